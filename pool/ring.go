// File: pool/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-capacity circular byte buffer used for connection payload and
// descriptor streams. Not safe for concurrent use; the owning connection
// serializes access.

package pool

import (
	"github.com/momentics/hioload-wl/api"
)

// RingBuffer is a byte ring with power-of-two capacity.
// head advances on write, tail on consume; head-tail is the fill level and
// relies on uint32 wraparound.
type RingBuffer struct {
	data []byte
	mask uint32
	head uint32
	tail uint32
}

// NewRingBuffer allocates a ring buffer with size (must be power of two).
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 || (size&(size-1)) != 0 {
		panic("ring buffer size must be power of two")
	}
	return &RingBuffer{
		data: make([]byte, size),
		mask: uint32(size - 1),
	}
}

// Size returns the number of buffered bytes.
func (r *RingBuffer) Size() int {
	return int(r.head - r.tail)
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return len(r.data)
}

// Free returns the number of bytes that can still be written.
func (r *RingBuffer) Free() int {
	return len(r.data) - r.Size()
}

// Put appends p, splitting the copy at the wrap point.
func (r *RingBuffer) Put(p []byte) error {
	if len(p) > r.Free() {
		return api.NewError(api.ErrCodeOverflow, "ring buffer full").
			WithContext("size", r.Size()).
			WithContext("count", len(p))
	}
	h := r.head & r.mask
	n := copy(r.data[h:], p)
	copy(r.data, p[n:])
	r.head += uint32(len(p))
	return nil
}

// WriteIovecs returns the free region as one or two contiguous spans.
// Callers fill them directly and then Commit the number of bytes written.
func (r *RingBuffer) WriteIovecs() [][]byte {
	free := r.Free()
	if free == 0 {
		return nil
	}
	h := r.head & r.mask
	t := r.tail & r.mask
	if h < t {
		return [][]byte{r.data[h:t]}
	}
	if t == 0 {
		return [][]byte{r.data[h:]}
	}
	return [][]byte{r.data[h:], r.data[:t]}
}

// ReadIovecs returns the filled region as one or two contiguous spans.
func (r *RingBuffer) ReadIovecs() [][]byte {
	if r.Size() == 0 {
		return nil
	}
	h := r.head & r.mask
	t := r.tail & r.mask
	if t < h {
		return [][]byte{r.data[t:h]}
	}
	if h == 0 {
		return [][]byte{r.data[t:]}
	}
	return [][]byte{r.data[t:], r.data[:h]}
}

// Commit marks n bytes written through WriteIovecs as filled.
func (r *RingBuffer) Commit(n int) {
	if n > r.Free() {
		panic("ring buffer commit beyond free space")
	}
	r.head += uint32(n)
}

// CopyOut copies len(dst) bytes from the tail without consuming them.
func (r *RingBuffer) CopyOut(dst []byte) error {
	if len(dst) > r.Size() {
		return api.NewError(api.ErrCodeInvalidArgument, "copy beyond buffered data").
			WithContext("size", r.Size()).
			WithContext("count", len(dst))
	}
	t := r.tail & r.mask
	n := copy(dst, r.data[t:])
	copy(dst[n:], r.data)
	return nil
}

// Consume drops n bytes from the tail.
func (r *RingBuffer) Consume(n int) {
	if n > r.Size() {
		panic("ring buffer consume beyond buffered data")
	}
	r.tail += uint32(n)
}

// Reset empties the buffer.
func (r *RingBuffer) Reset() {
	r.head, r.tail = 0, 0
}
