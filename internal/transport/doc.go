// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buffered, descriptor-passing connection over a unix stream socket.
// Provides non-blocking flush/read with scatter/gather I/O straight into the
// ring buffers and ancillary-data descriptor transfer. Socket primitives come
// from internal/platform so tests can substitute them.

package transport
