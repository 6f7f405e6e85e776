// File: client/roundtrip.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/protocol/wayland"
)

// Sync sends wl_display.sync. The returned wl_callback fires done once the
// compositor has processed every earlier request.
func (d *Display) Sync() (*Proxy, error) {
	return d.proxy.MarshalConstructor(wayland.DisplaySync, wayland.CallbackInterface, api.NewID())
}

// GetRegistry sends wl_display.get_registry.
func (d *Display) GetRegistry() (*Proxy, error) {
	return d.proxy.MarshalConstructor(wayland.DisplayGetRegistry, wayland.RegistryInterface, api.NewID())
}

// Bind binds the global name announced on registry to a new proxy of iface.
func Bind(registry *Proxy, name uint32, iface *api.Interface, version uint32) (*Proxy, error) {
	return registry.MarshalConstructorVersioned(wayland.RegistryBind, iface, version,
		api.Uint32(name),
		api.String(iface.Name),
		api.Uint32(version),
		api.NewID())
}

// Roundtrip blocks until the compositor has processed every request sent so
// far, dispatching the default queue meanwhile.
func (d *Display) Roundtrip() (int, error) {
	return d.RoundtripQueue(d.defaultQueue)
}

// RoundtripQueue is Roundtrip dispatching q. It returns the number of events
// dispatched.
func (d *Display) RoundtripQueue(q *EventQueue) (int, error) {
	wrapper := d.proxy.CreateWrapper()
	wrapper.SetQueue(q)
	cb, err := wrapper.MarshalConstructor(wayland.DisplaySync, wayland.CallbackInterface, api.NewID())
	wrapper.DestroyWrapper()
	if err != nil {
		return 0, err
	}

	done := false
	onDone := func(done *bool, cb *Proxy, _ uint32) {
		*done = true
		cb.Destroy()
	}
	if err := cb.AddListener([]any{onDone}, &done); err != nil {
		cb.Destroy()
		return 0, err
	}

	total := 0
	for !done {
		n, err := d.DispatchQueue(q)
		total += n
		if err != nil {
			if !done {
				cb.Destroy()
			}
			return total, err
		}
	}
	return total, nil
}
