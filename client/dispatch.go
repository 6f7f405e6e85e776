// File: client/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"errors"
	"syscall"
	"time"

	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/reactor"
)

// Flush sends buffered requests. A full socket is reported as syscall.EAGAIN
// and is not fatal; poll for writability and retry.
func (d *Display) Flush() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastErr != nil {
		return 0, d.lastErr
	}
	n, err := d.conn.Flush()
	d.syncCounters()
	if err != nil && !errors.Is(err, syscall.EAGAIN) && !errors.Is(err, syscall.EPIPE) {
		d.fatal(err)
	}
	return n, err
}

// Dispatch blocks until events for the default queue arrive, then
// dispatches them.
func (d *Display) Dispatch() (int, error) {
	return d.DispatchQueue(d.defaultQueue)
}

// DispatchQueue blocks until events for q arrive, then dispatches them. It
// returns the number of events dispatched from q.
func (d *Display) DispatchQueue(q *EventQueue) (int, error) {
	return d.DispatchQueueTimeout(q, -1)
}

// DispatchQueueTimeout is DispatchQueue giving up after timeout (negative
// blocks). A timeout returns (0, nil).
func (d *Display) DispatchQueueTimeout(q *EventQueue, timeout time.Duration) (int, error) {
	if err := d.PrepareReadQueue(q); err != nil {
		return d.DispatchQueuePending(q)
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	remaining := func() time.Duration {
		if timeout < 0 {
			return -1
		}
		if left := time.Until(deadline); left > 0 {
			return left
		}
		return 0
	}

	var flushErr error
	for {
		_, flushErr = d.Flush()
		if !errors.Is(flushErr, syscall.EAGAIN) {
			break
		}
		ev, err := reactor.Wait(d.FD(), reactor.EventWrite, remaining())
		if err != nil || ev == 0 {
			d.CancelRead()
			return 0, err
		}
	}
	// A broken pipe may come with a protocol error still waiting to be read.
	if flushErr != nil && !errors.Is(flushErr, syscall.EPIPE) {
		d.CancelRead()
		return 0, flushErr
	}

	ev, err := reactor.Wait(d.FD(), reactor.EventRead, remaining())
	if err != nil || ev == 0 {
		d.CancelRead()
		return 0, err
	}
	if err := d.ReadEvents(); err != nil {
		return 0, err
	}
	return d.DispatchQueuePending(q)
}

// DispatchPending dispatches events already queued on the default queue
// without reading.
func (d *Display) DispatchPending() (int, error) {
	return d.DispatchQueuePending(d.defaultQueue)
}

// DispatchQueuePending dispatches events already queued on q without
// reading. The control queue is always drained first.
func (d *Display) DispatchQueuePending(q *EventQueue) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatchQueue(q)
}

func (d *Display) dispatchQueue(q *EventQueue) (int, error) {
	if d.lastErr != nil {
		return 0, d.lastErr
	}
	for !d.controlQueue.empty() {
		d.dispatchEvent(d.controlQueue)
		if d.lastErr != nil {
			return 0, d.lastErr
		}
	}

	count := 0
	for !q.empty() {
		d.dispatchEvent(q)
		count++
		if d.lastErr != nil {
			return count, d.lastErr
		}
	}
	return count, nil
}

// dispatchEvent runs the handler of the oldest event of q with the lock
// released.
func (d *Display) dispatchEvent(q *EventQueue) {
	ev := q.pop()
	c := ev.closure
	p := ev.proxy

	for i := range c.Args {
		a := &c.Args[i]
		if a.Type != api.ArgObject || a.Object == nil {
			continue
		}
		if op, ok := a.Object.(*Proxy); ok && op.destroyed() {
			a.Object = nil
			a.Null = true
		}
	}

	if p.destroyed() {
		if d.debug {
			d.trace(c.Format(p, false, true))
		}
		d.releaseEvent(ev)
		d.metrics.Add(MetricEventsDiscarded, 1)
		return
	}

	listener, dispatcher, data := p.listener, p.dispatcher, p.userData
	if d.debug {
		d.trace(c.Format(p, false, false))
	}

	d.mu.Unlock()
	var err error
	switch {
	case dispatcher != nil:
		err = dispatcher.Dispatch(p, c.Opcode, c.Message, c.Args)
		c.ConsumeFDs()
	case listener != nil:
		err = c.Invoke(p, listener, data)
	}
	d.mu.Lock()

	d.releaseEvent(ev)
	d.metrics.Add(MetricEventsDispatched, 1)
	if err != nil {
		d.log.With(p).WithField("event", c.Message.Name).WithError(err).Error("event handler failed")
		d.fatal(err)
	}
}

// trace writes one protocol trace line.
func (d *Display) trace(line string) {
	d.log.WithField("trace", "wayland").Info(line)
}
