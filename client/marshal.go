// File: client/marshal.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/protocol"
)

// Marshal flags.
const (
	// MarshalDestroy destroys the proxy right after the request is written.
	MarshalDestroy uint32 = 1 << iota
	// MarshalQueued appends the request without flushing even when the
	// output buffer fills; the caller flushes.
	MarshalQueued
)

// Marshal sends request opcode with args.
func (p *Proxy) Marshal(opcode uint16, args ...api.Argument) error {
	_, err := p.MarshalFlags(opcode, nil, 0, 0, args...)
	return err
}

// MarshalConstructor sends a request creating a new object of iface at the
// proxy's version. The new_id placeholder in args is filled with the new
// proxy.
func (p *Proxy) MarshalConstructor(opcode uint16, iface *api.Interface, args ...api.Argument) (*Proxy, error) {
	return p.MarshalFlags(opcode, iface, p.version, 0, args...)
}

// MarshalConstructorVersioned is MarshalConstructor with an explicit
// version, used for untyped new_id requests such as wl_registry.bind.
func (p *Proxy) MarshalConstructorVersioned(opcode uint16, iface *api.Interface, version uint32, args ...api.Argument) (*Proxy, error) {
	return p.MarshalFlags(opcode, iface, version, 0, args...)
}

// MarshalFlags is the general request path. When iface is non-nil a proxy is
// created for the first new_id placeholder in args and returned. Once the
// display has failed no proxy is created and the latched error is returned.
func (p *Proxy) MarshalFlags(opcode uint16, iface *api.Interface, version uint32, flags uint32, args ...api.Argument) (*Proxy, error) {
	d := p.display
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastErr != nil {
		return nil, d.lastErr
	}
	if int(opcode) >= len(p.iface.Methods) {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "no such request").
			WithContext("interface", p.Class()).
			WithContext("opcode", opcode)
	}
	msg := &p.iface.Methods[opcode]
	if since := protocol.Since(msg.Signature); p.version != 0 && since > p.version {
		return nil, api.NewError(api.ErrCodeNotSupported, "request newer than proxy version").
			WithContext("interface", p.Class()).
			WithContext("request", msg.Name).
			WithContext("since", since).
			WithContext("version", p.version)
	}
	for i := range args {
		if args[i].Type != api.ArgNewID {
			continue
		}
		if np, ok := args[i].Object.(*Proxy); ok && np.destroyed() {
			return nil, api.NewError(api.ErrCodeInvalidArgument, "new_id references a destroyed object").
				WithContext("request", msg.Name).
				WithContext("id", np.id)
		}
	}

	var created *Proxy
	if iface != nil {
		np, err := d.createProxy(p, iface, version)
		if err != nil {
			return nil, err
		}
		created = np
		args = fillNewID(args, np)
	}

	c, err := protocol.NewClosure(p.id, opcode, msg, args)
	if err != nil {
		d.abandon(created)
		return nil, err
	}
	defer c.Destroy()

	if d.debug {
		d.trace(c.Format(p, true, false))
	}
	if flags&MarshalQueued != 0 {
		err = c.Queue(d.conn)
	} else {
		err = c.Send(d.conn)
	}
	if err != nil {
		d.fatal(err)
		return nil, err
	}
	d.metrics.Add(MetricRequests, 1)

	if flags&MarshalDestroy != 0 {
		d.destroyProxy(p)
	}
	return created, nil
}

// fillNewID returns a copy of args with the first empty new_id placeholder
// bound to np.
func fillNewID(args []api.Argument, np *Proxy) []api.Argument {
	out := make([]api.Argument, len(args))
	copy(out, args)
	for i := range out {
		if out[i].Type == api.ArgNewID && out[i].Object == nil && out[i].ID == 0 && !out[i].Null {
			out[i].Object = np
			break
		}
	}
	return out
}

// abandon drops a proxy whose constructor request was never sent; its id
// goes straight back to the free list.
func (d *Display) abandon(p *Proxy) {
	if p == nil {
		return
	}
	d.objects.Remove(p.id)
	p.queue.unsubscribe(p)
	p.flags |= flagDestroyed
	d.unref(p)
}
