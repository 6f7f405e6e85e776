// File: control/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package control provides runtime metrics and debug introspection for
// display connections:
//   - counters updated on every flush, read and dispatch
//   - named probes sampled into a state dump
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
