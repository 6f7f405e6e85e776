// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// BytePool recycles scratch buffers of a fixed minimum size.
type BytePool struct {
	pool sync.Pool
	size int
}

// NewBytePool creates a pool handing out buffers of at least size bytes.
func NewBytePool(size int) *BytePool {
	bp := &BytePool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// GetBuffer returns a buffer of at least n bytes, sliced to n.
func (b *BytePool) GetBuffer(n int) []byte {
	if n > b.size {
		return make([]byte, n)
	}
	buf := b.pool.Get().(*[]byte)
	return (*buf)[:n]
}

// PutBuffer returns a buffer to the pool. Oversized buffers are left to the GC.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	buf = buf[:cap(buf)]
	b.pool.Put(&buf)
}
