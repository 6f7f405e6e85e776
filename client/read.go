// File: client/read.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reader arbitration. Any number of goroutines may announce intent to read
// with PrepareRead; the last one to call ReadEvents performs the single
// socket read and queues the decoded events, everyone else waits for it.

package client

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/protocol"
)

// PrepareRead announces intent to read into the default queue.
func (d *Display) PrepareRead() error {
	return d.PrepareReadQueue(d.defaultQueue)
}

// PrepareReadQueue announces intent to read events destined for q. It fails
// with api.ErrRetry while q or the display's control queue holds pending
// events; dispatch those first. On success the caller must follow up with
// exactly one ReadEvents or CancelRead, and must not dispatch in between.
func (d *Display) PrepareReadQueue(q *EventQueue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !q.empty() || !d.controlQueue.empty() {
		return api.ErrRetry
	}
	d.readerCount++
	return nil
}

// CancelRead withdraws a PrepareRead without reading.
func (d *Display) CancelRead() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readerCount--
	if d.readerCount == 0 {
		d.wakeup()
	}
}

// ReadEvents completes a PrepareRead. The last prepared goroutine reads the
// socket once and queues every complete message; the others block until it
// is done. A socket with nothing to read is not an error. The socket should
// be polled for readability beforehand.
func (d *Display) ReadEvents() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastErr != nil {
		d.readerCount--
		if d.readerCount == 0 {
			d.wakeup()
		}
		return d.lastErr
	}
	return d.readEvents()
}

func (d *Display) readEvents() error {
	d.readerCount--
	if d.readerCount > 0 {
		serial := d.readSerial
		for serial == d.readSerial {
			d.cond.Wait()
		}
		return d.lastErr
	}

	_, err := d.conn.Read()
	d.syncCounters()
	switch {
	case errors.Is(err, syscall.EAGAIN):
		d.wakeup()
		return nil
	case errors.Is(err, io.EOF):
		d.fatal(fmt.Errorf("compositor closed the connection: %w", syscall.EPIPE))
		return d.lastErr
	case err != nil:
		d.fatal(err)
		return d.lastErr
	}

	for {
		n, err := d.queueEvent(d.conn.PendingInput())
		if err != nil {
			d.fatal(err)
			return d.lastErr
		}
		if n == 0 {
			break
		}
	}
	d.wakeup()
	return nil
}

// queueEvent decodes one message from the input ring if it is complete.
// It returns the bytes consumed, zero when more input is needed.
func (d *Display) queueEvent(avail int) (int, error) {
	if avail < protocol.HeaderSize {
		return 0, nil
	}
	var hdr [protocol.HeaderSize]byte
	if err := d.conn.Copy(hdr[:]); err != nil {
		return 0, err
	}
	id, size, opcode := protocol.Header(hdr[:])
	if size < protocol.HeaderSize {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "message size below header size").
			WithContext("id", id).
			WithContext("size", size)
	}
	if size > d.conn.InputCapacity() {
		return 0, api.NewError(api.ErrCodeOverflow, "message larger than input buffer").
			WithContext("id", id).
			WithContext("size", size)
	}
	if avail < size {
		return 0, nil
	}

	obj := d.objects.Lookup(id)
	p, _ := obj.(*Proxy)
	if p == nil {
		fds := 0
		if z, ok := d.objects.Zombie(id); ok {
			fds = z.FDCount(opcode)
		}
		if d.debug {
			d.trace(fmt.Sprintf("discarded [unknown]#%d.[event %d](%d fd, %d byte)", id, opcode, fds, size))
		}
		d.conn.CloseFDsIn(fds)
		d.conn.Consume(size)
		d.metrics.Add(MetricEventsDiscarded, 1)
		return size, nil
	}

	if int(opcode) >= len(p.iface.Events) {
		return 0, fmt.Errorf("interface %s has no event %d: %w", p.Class(), opcode, syscall.EPROTO)
	}
	msg := &p.iface.Events[opcode]
	c, err := protocol.Demarshal(d.conn, size, d.objects, msg)
	if err != nil {
		return 0, err
	}

	ev := &event{closure: c, proxy: p}
	if err := d.createProxies(p, ev); err != nil {
		c.Destroy()
		return 0, err
	}
	if err := d.lookupObjects(ev); err != nil {
		d.releaseEvent(ev)
		return 0, err
	}
	c.Target = p
	p.refcount++

	q := p.queue
	if p == d.proxy {
		q = d.controlQueue
	}
	if q == nil {
		d.log.With(p).WithField("event", msg.Name).Warn("event for proxy without queue dropped")
		d.releaseEvent(ev)
		d.metrics.Add(MetricEventsDiscarded, 1)
		return size, nil
	}
	q.push(ev)
	d.metrics.Add(MetricEventsQueued, 1)
	return size, nil
}

// createProxies instantiates the objects announced by new_id arguments.
func (d *Display) createProxies(sender *Proxy, ev *event) error {
	c := ev.closure
	for i := range c.Args {
		a := &c.Args[i]
		if a.Type != api.ArgNewID {
			continue
		}
		var iface *api.Interface
		if i < len(c.Message.Types) {
			iface = c.Message.Types[i]
		}
		if iface == nil {
			return api.NewError(api.ErrCodeInvalidArgument, "untyped new_id in event").
				WithContext("event", c.Message.Name)
		}
		np, err := d.createProxyForID(sender, a.ID, iface)
		if err != nil {
			return err
		}
		a.Object = np
	}
	return nil
}

// lookupObjects resolves object arguments and takes a reference on each.
// Ids of objects already destroyed locally resolve to nil.
func (d *Display) lookupObjects(ev *event) error {
	c := ev.closure
	for i := range c.Args {
		a := &c.Args[i]
		if a.Type != api.ArgObject || a.ID == 0 {
			continue
		}
		if d.objects.IsZombie(a.ID) {
			continue
		}
		op, _ := d.objects.Lookup(a.ID).(*Proxy)
		if op == nil {
			return api.NewError(api.ErrCodeInvalidArgument, "unknown object").
				WithContext("id", a.ID).
				WithContext("event", c.Message.Name)
		}
		if i < len(c.Message.Types) && c.Message.Types[i] != nil && !op.iface.Equal(c.Message.Types[i]) {
			return api.NewError(api.ErrCodeInvalidArgument, "invalid object").
				WithContext("id", a.ID).
				WithContext("interface", op.Class()).
				WithContext("want", c.Message.Types[i].String()).
				WithContext("event", c.Message.Name)
		}
		a.Object = op
		op.refcount++
		ev.refs = append(ev.refs, op)
	}
	return nil
}

// releaseEvent closes unconsumed descriptors and drops the references held
// by ev.
func (d *Display) releaseEvent(ev *event) {
	ev.closure.Destroy()
	for _, r := range ev.refs {
		d.unref(r)
	}
	ev.refs = nil
	if ev.closure.Target != nil {
		ev.closure.Target = nil
		d.unref(ev.proxy)
	}
}
