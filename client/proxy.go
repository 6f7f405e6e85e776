// File: client/proxy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"github.com/lthibault/log"

	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/internal/objmap"
	"github.com/momentics/hioload-wl/protocol"
)

type proxyFlags uint8

const (
	flagIDDeleted proxyFlags = 1 << iota
	flagDestroyed
	flagWrapper
	flagFreed
)

// Proxy is the client-side handle of one remote object.
type Proxy struct {
	display *Display
	queue   *EventQueue
	iface   *api.Interface
	id      uint32
	version uint32

	flags    proxyFlags
	refcount int

	listener   []any
	dispatcher Dispatcher
	userData   any
}

// ID returns the protocol object id.
func (p *Proxy) ID() uint32 { return p.id }

// Interface returns the interface the proxy speaks.
func (p *Proxy) Interface() *api.Interface { return p.iface }

// Class returns the interface name.
func (p *Proxy) Class() string { return p.iface.String() }

// Version returns the negotiated interface version, 0 when unversioned.
func (p *Proxy) Version() uint32 { return p.version }

// Display returns the owning display.
func (p *Proxy) Display() *Display { return p.display }

// UserData returns the data passed to listeners.
func (p *Proxy) UserData() any {
	p.display.mu.Lock()
	defer p.display.mu.Unlock()
	return p.userData
}

// SetUserData sets the data passed to listeners.
func (p *Proxy) SetUserData(data any) {
	p.display.mu.Lock()
	p.userData = data
	p.display.mu.Unlock()
}

// Queue returns the queue events of the proxy are delivered to, nil if its
// queue was destroyed.
func (p *Proxy) Queue() *EventQueue {
	p.display.mu.Lock()
	defer p.display.mu.Unlock()
	return p.queue
}

// Loggable returns structured logging fields.
func (p *Proxy) Loggable() map[string]interface{} {
	return log.F{
		"id":        p.id,
		"interface": p.iface.String(),
		"version":   p.version,
	}
}

// CreateProxy allocates a new client id for an object of iface without
// sending anything. The proxy inherits the factory's queue.
func CreateProxy(factory *Proxy, iface *api.Interface, version uint32) (*Proxy, error) {
	d := factory.display
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createProxy(factory, iface, version)
}

func (d *Display) createProxy(factory *Proxy, iface *api.Interface, version uint32) (*Proxy, error) {
	p := &Proxy{
		display:  d,
		queue:    factory.queue,
		iface:    iface,
		version:  version,
		refcount: 1,
	}
	id, err := d.objects.InsertNew(0, p)
	if err != nil {
		return nil, err
	}
	p.id = id
	p.queue.subscribe(p)
	return p, nil
}

// createProxyForID builds the proxy of a server-allocated id announced by an
// event.
func (d *Display) createProxyForID(factory *Proxy, id uint32, iface *api.Interface) (*Proxy, error) {
	p := &Proxy{
		display:  d,
		queue:    factory.queue,
		iface:    iface,
		id:       id,
		version:  factory.version,
		refcount: 1,
	}
	if err := d.objects.InsertAt(0, id, p); err != nil {
		return nil, err
	}
	p.queue.subscribe(p)
	return p, nil
}

// AddListener attaches a table of event handlers indexed by opcode. Each
// handler is a func taking (data, proxy, args...) with parameter types
// matching the event signature. A proxy accepts one listener or dispatcher,
// once.
func (p *Proxy) AddListener(handlers []any, data any) error {
	d := p.display
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.flags&flagWrapper != 0 {
		panic("client: listener on wrapper proxy " + p.Class())
	}
	if p.listener != nil || p.dispatcher != nil {
		return api.NewError(api.ErrCodeAlreadyExists, "proxy already has a listener").
			WithContext("id", p.id).
			WithContext("interface", p.Class())
	}
	p.listener = handlers
	p.userData = data
	return nil
}

// AddDispatcher attaches a generic dispatcher.
func (p *Proxy) AddDispatcher(dispatcher Dispatcher, data any) error {
	d := p.display
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.flags&flagWrapper != 0 {
		panic("client: dispatcher on wrapper proxy " + p.Class())
	}
	if p.listener != nil || p.dispatcher != nil {
		return api.NewError(api.ErrCodeAlreadyExists, "proxy already has a listener").
			WithContext("id", p.id).
			WithContext("interface", p.Class())
	}
	p.dispatcher = dispatcher
	p.userData = data
	return nil
}

// Destroy releases the proxy locally. Nothing is sent; callers send the
// interface's destructor request first or use MarshalFlags with
// MarshalDestroy.
func (p *Proxy) Destroy() {
	d := p.display
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyProxy(p)
}

func (d *Display) destroyProxy(p *Proxy) {
	if p.flags&flagWrapper != 0 {
		panic("client: Destroy on wrapper proxy, use DestroyWrapper")
	}
	if p.flags&flagDestroyed != 0 {
		return
	}

	switch {
	case p.flags&flagIDDeleted != 0:
		d.objects.Remove(p.id)
	case p.id < objmap.ServerIDStart:
		z := &objmap.Zombie{FDCounts: protocol.EventFDCounts(p.iface)}
		if err := d.objects.SetZombie(p.id, z); err != nil {
			d.log.With(p).WithError(err).Warn("cannot leave tombstone")
		}
	default:
		d.objects.Clear(p.id)
	}

	p.flags |= flagDestroyed
	p.queue.unsubscribe(p)
	d.unref(p)
}

func (d *Display) unref(p *Proxy) {
	p.refcount--
	if p.refcount > 0 {
		return
	}
	p.flags |= flagFreed
	p.listener = nil
	p.dispatcher = nil
	p.userData = nil
}

// SetQueue moves the proxy to q; nil selects the default queue. Events
// already queued stay where they are.
func (p *Proxy) SetQueue(q *EventQueue) {
	d := p.display
	d.mu.Lock()
	defer d.mu.Unlock()
	if q == nil {
		q = d.defaultQueue
	}
	if p.flags&(flagWrapper|flagDestroyed) == 0 {
		p.queue.unsubscribe(p)
		q.subscribe(p)
	}
	p.queue = q
}

// CreateWrapper returns a stand-in for p sharing its id and interface.
// Objects created through the wrapper land on the wrapper's queue, which can
// be changed without touching p.
func (p *Proxy) CreateWrapper() *Proxy {
	d := p.display
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Proxy{
		display:  d,
		queue:    p.queue,
		iface:    p.iface,
		id:       p.id,
		version:  p.version,
		flags:    flagWrapper,
		refcount: 1,
	}
}

// DestroyWrapper releases a wrapper returned by CreateWrapper.
func (p *Proxy) DestroyWrapper() {
	d := p.display
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.flags&flagWrapper == 0 {
		panic("client: DestroyWrapper on non-wrapper proxy " + p.Class())
	}
	p.flags |= flagDestroyed
	d.unref(p)
}

func (p *Proxy) destroyed() bool {
	return p.flags&flagDestroyed != 0
}
