// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer for hioload-wl.
// Implements the fixed-capacity byte ring used by connections for payload and
// descriptor streams, and scratch buffer pooling for message serialization.
// See ring.go and bytepool.go for implementation details.
package pool
