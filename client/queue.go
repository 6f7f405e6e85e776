// File: client/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"github.com/eapache/queue"

	"github.com/momentics/hioload-wl/protocol"
)

// event is a decoded closure waiting for dispatch together with the proxies
// it holds references on.
type event struct {
	closure *protocol.Closure
	proxy   *Proxy
	refs    []*Proxy
}

// EventQueue holds decoded events until a thread dispatches them. All state
// is guarded by the display mutex.
type EventQueue struct {
	display *Display
	name    string
	events  *queue.Queue
	proxies map[*Proxy]struct{}
}

func newEventQueue(d *Display, name string) *EventQueue {
	return &EventQueue{
		display: d,
		name:    name,
		events:  queue.New(),
		proxies: make(map[*Proxy]struct{}),
	}
}

// CreateQueue creates an additional event queue.
func (d *Display) CreateQueue(name string) *EventQueue {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := newEventQueue(d, name)
	d.queues[q] = struct{}{}
	return q
}

// Name returns the queue name.
func (q *EventQueue) Name() string {
	return q.name
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int {
	q.display.mu.Lock()
	defer q.display.mu.Unlock()
	return q.events.Length()
}

// Destroy discards pending events and detaches every proxy still assigned to
// the queue. Detached proxies receive no events until SetQueue is called.
func (q *EventQueue) Destroy() {
	d := q.display
	if q == d.defaultQueue || q == d.controlQueue {
		panic("client: built-in queue " + q.name + " cannot be destroyed")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(q.proxies) > 0 {
		d.log.WithField("queue", q.name).
			WithField("proxies", len(q.proxies)).
			Warn("queue destroyed while proxies still attached")
	}
	for p := range q.proxies {
		p.queue = nil
	}
	q.proxies = make(map[*Proxy]struct{})

	for q.events.Length() > 0 {
		d.releaseEvent(q.events.Remove().(*event))
	}
	delete(d.queues, q)
}

func (q *EventQueue) empty() bool {
	return q.events.Length() == 0
}

func (q *EventQueue) push(ev *event) {
	q.events.Add(ev)
}

func (q *EventQueue) pop() *event {
	return q.events.Remove().(*event)
}

func (q *EventQueue) subscribe(p *Proxy) {
	if q == nil {
		return
	}
	q.proxies[p] = struct{}{}
}

func (q *EventQueue) unsubscribe(p *Proxy) {
	if q == nil {
		return
	}
	delete(q.proxies, p)
}
