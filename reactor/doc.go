// File: reactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor provides descriptor readiness waiting: a single-descriptor
// Wait used by blocking dispatch helpers, and an epoll Reactor for outer event
// loops that multiplex a display with other descriptors.
package reactor
