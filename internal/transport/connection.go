// File: internal/transport/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection owns one stream socket and four rings: payload and descriptor
// streams for each direction. Descriptors travel as SCM_RIGHTS ancillary
// data and are consumed in the order they arrive.

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/internal/platform"
	"github.com/momentics/hioload-wl/pool"
)

const (
	// DefaultBufferSize is the payload ring capacity per direction.
	DefaultBufferSize = 4096

	// DefaultFDBufferSize is the descriptor ring capacity per direction, in descriptors.
	DefaultFDBufferSize = 1024

	fdSize = 4
)

// Counters accumulates traffic totals of a connection.
type Counters struct {
	BytesOut uint64
	BytesIn  uint64
	FDsOut   uint64
	FDsIn    uint64
	Sends    uint64
	Reads    uint64
}

// Option customizes connection initialization.
type Option func(*Connection)

// WithBufferSize sets the payload ring capacity (power of two).
func WithBufferSize(size int) Option {
	return func(c *Connection) {
		c.in = pool.NewRingBuffer(size)
		c.out = pool.NewRingBuffer(size)
	}
}

// WithFDBufferSize sets the descriptor ring capacity in descriptors (power of two).
func WithFDBufferSize(n int) Option {
	return func(c *Connection) {
		c.fdsIn = pool.NewRingBuffer(n * fdSize)
		c.fdsOut = pool.NewRingBuffer(n * fdSize)
	}
}

// WithSys replaces the socket primitives.
func WithSys(sys platform.Sys) Option {
	return func(c *Connection) {
		c.sys = sys
	}
}

// Connection is not safe for concurrent use.
type Connection struct {
	fd        int
	in, out   *pool.RingBuffer
	fdsIn     *pool.RingBuffer
	fdsOut    *pool.RingBuffer
	wantFlush bool
	sys       platform.Sys
	counters  Counters
}

// NewConnection takes ownership of the connected socket fd.
func NewConnection(fd int, opts ...Option) *Connection {
	c := &Connection{
		fd:  fd,
		sys: platform.Default,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.in == nil {
		WithBufferSize(DefaultBufferSize)(c)
	}
	if c.fdsIn == nil {
		WithFDBufferSize(DefaultFDBufferSize)(c)
	}
	return c
}

// FD returns the socket descriptor.
func (c *Connection) FD() int {
	return c.fd
}

// Counters returns the traffic totals so far.
func (c *Connection) Counters() Counters {
	return c.counters
}

// WantFlush reports whether written data awaits a flush.
func (c *Connection) WantFlush() bool {
	return c.wantFlush
}

// Flush sends buffered output until the ring is empty or the socket refuses
// more. Each send carries at most platform.MaxFDsOut descriptors; those are
// closed locally once handed to the peer. Returns the bytes sent. A
// would-block condition is returned as syscall.EAGAIN.
func (c *Connection) Flush() (int, error) {
	total := 0
	for c.out.Size() > 0 {
		iov := c.out.ReadIovecs()
		fds := c.peekFDs(c.fdsOut, platform.MaxFDsOut)
		if c.fdsOut.Size()/fdSize > platform.MaxFDsOut {
			// Descriptors must reach the peer no later than the bytes of the
			// message needing them: ship this batch with a single word.
			iov = limitIovecs(iov, fdSize)
		}

		var (
			n   int
			err error
		)
		for {
			n, err = c.sys.Sendmsg(c.fd, iov, fds)
			if !errors.Is(err, syscall.EINTR) {
				break
			}
		}
		if err != nil {
			return total, err
		}

		c.closeFDs(c.fdsOut, len(fds))
		c.out.Consume(n)
		total += n
		c.counters.BytesOut += uint64(n)
		c.counters.FDsOut += uint64(len(fds))
		c.counters.Sends++
	}
	c.wantFlush = false
	return total, nil
}

// Read performs one non-blocking receive into the input ring. It returns the
// total number of pending input bytes, or (0, io.EOF) when the peer closed
// the socket in order.
func (c *Connection) Read() (int, error) {
	if c.in.Free() == 0 {
		return 0, api.NewError(api.ErrCodeOverflow, "input buffer full").
			WithContext("size", c.in.Size())
	}
	iov := c.in.WriteIovecs()

	var (
		n      int
		rights [][]int
		err    error
	)
	for {
		n, rights, err = c.sys.Recvmsg(c.fd, iov)
		if !errors.Is(err, syscall.EINTR) {
			break
		}
	}
	if err != nil {
		return 0, err
	}
	c.counters.Reads++

	if err := c.decodeRights(rights); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	c.in.Commit(n)
	c.counters.BytesIn += uint64(n)
	return c.in.Size(), nil
}

// decodeRights queues received descriptors. A control message that does not
// fit is closed entirely, as is every one after it; descriptors accepted
// before the overflow stay queued.
func (c *Connection) decodeRights(rights [][]int) error {
	room := c.fdsIn.Free() / fdSize
	overflow := false
	for _, fds := range rights {
		if overflow || len(fds) > room {
			overflow = true
			for _, fd := range fds {
				_ = c.sys.Close(fd)
			}
			continue
		}
		for _, fd := range fds {
			putFD(c.fdsIn, fd)
		}
		room -= len(fds)
		c.counters.FDsIn += uint64(len(fds))
	}
	if overflow {
		return api.NewError(api.ErrCodeOverflow, "too many file descriptors received").
			WithContext("queued", c.fdsIn.Size()/fdSize)
	}
	return nil
}

// Write appends data to the output ring, flushing first when it would not fit.
func (c *Connection) Write(data []byte) error {
	if c.out.Size()+len(data) > c.out.Cap() {
		c.wantFlush = true
		if _, err := c.Flush(); err != nil {
			return fmt.Errorf("flush before write: %w", err)
		}
	}
	if err := c.out.Put(data); err != nil {
		return err
	}
	c.wantFlush = true
	return nil
}

// Queue appends data without ever flushing; the caller flushes once the
// batch is complete.
func (c *Connection) Queue(data []byte) error {
	return c.out.Put(data)
}

// PutFD queues fd for sending. Ownership moves to the connection only on
// success.
func (c *Connection) PutFD(fd int) error {
	if c.fdsOut.Free() < fdSize {
		if _, err := c.Flush(); err != nil {
			return fmt.Errorf("flush before fd: %w", err)
		}
		if c.fdsOut.Free() < fdSize {
			return api.NewError(api.ErrCodeOverflow, "outgoing fd buffer full")
		}
	}
	putFD(c.fdsOut, fd)
	return nil
}

// PopFD takes the oldest received descriptor.
func (c *Connection) PopFD() (int, bool) {
	if c.fdsIn.Size() < fdSize {
		return -1, false
	}
	var b [fdSize]byte
	_ = c.fdsIn.CopyOut(b[:])
	c.fdsIn.Consume(fdSize)
	return int(int32(binary.NativeEndian.Uint32(b[:]))), true
}

// CloseFDsIn closes up to n received descriptors.
func (c *Connection) CloseFDsIn(n int) {
	c.closeFDs(c.fdsIn, n)
}

// PendingFDs returns the number of received, unconsumed descriptors.
func (c *Connection) PendingFDs() int {
	return c.fdsIn.Size() / fdSize
}

// QueuedFDs returns the number of descriptors awaiting send.
func (c *Connection) QueuedFDs() int {
	return c.fdsOut.Size() / fdSize
}

// PendingInput returns the number of buffered input bytes.
func (c *Connection) PendingInput() int {
	return c.in.Size()
}

// PendingOutput returns the number of buffered output bytes.
func (c *Connection) PendingOutput() int {
	return c.out.Size()
}

// InputCapacity is the largest message the connection can ever hold.
func (c *Connection) InputCapacity() int {
	return c.in.Cap()
}

// Copy copies len(dst) input bytes without consuming them.
func (c *Connection) Copy(dst []byte) error {
	return c.in.CopyOut(dst)
}

// Consume drops n input bytes.
func (c *Connection) Consume(n int) {
	c.in.Consume(n)
}

// Close closes every queued descriptor and the socket and drops buffered
// bytes. Idempotent.
func (c *Connection) Close() error {
	if c.fd < 0 {
		return nil
	}
	c.closeFDs(c.fdsIn, c.fdsIn.Size()/fdSize)
	c.closeFDs(c.fdsOut, c.fdsOut.Size()/fdSize)
	c.in.Reset()
	c.out.Reset()
	err := c.sys.Close(c.fd)
	c.fd = -1
	return err
}

func (c *Connection) peekFDs(ring *pool.RingBuffer, max int) []int {
	n := ring.Size() / fdSize
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	buf := make([]byte, n*fdSize)
	_ = ring.CopyOut(buf)
	fds := make([]int, n)
	for i := range fds {
		fds[i] = int(int32(binary.NativeEndian.Uint32(buf[i*fdSize:])))
	}
	return fds
}

func (c *Connection) closeFDs(ring *pool.RingBuffer, n int) {
	for _, fd := range c.peekFDs(ring, n) {
		_ = c.sys.Close(fd)
	}
	if avail := ring.Size() / fdSize; n > avail {
		n = avail
	}
	ring.Consume(n * fdSize)
}

func putFD(ring *pool.RingBuffer, fd int) {
	var b [fdSize]byte
	binary.NativeEndian.PutUint32(b[:], uint32(int32(fd)))
	_ = ring.Put(b[:])
}

func limitIovecs(iov [][]byte, n int) [][]byte {
	out := make([][]byte, 0, len(iov))
	for _, v := range iov {
		if n == 0 {
			break
		}
		if len(v) > n {
			v = v[:n]
		}
		out = append(out, v)
		n -= len(v)
	}
	return out
}
