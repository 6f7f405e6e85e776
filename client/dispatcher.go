// File: client/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:generate mockgen -source=dispatcher.go -destination=mock_dispatcher_test.go -package=client

package client

import "github.com/momentics/hioload-wl/api"

// Dispatcher receives every event of a proxy with its raw typed arguments.
// Descriptor arguments belong to the dispatcher once it is called.
type Dispatcher interface {
	Dispatch(p *Proxy, opcode uint16, msg *api.Message, args []api.Argument) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(p *Proxy, opcode uint16, msg *api.Message, args []api.Argument) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(p *Proxy, opcode uint16, msg *api.Message, args []api.Argument) error {
	return f(p, opcode, msg, args)
}
