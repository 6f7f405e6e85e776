// File: protocol/wayland/wayland.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package wayland holds the bootstrap schema every client needs before it can
// discover anything else: wl_display, wl_registry and wl_callback.
package wayland

import "github.com/momentics/hioload-wl/api"

// wl_display requests.
const (
	DisplaySync        uint16 = 0
	DisplayGetRegistry uint16 = 1
)

// wl_display events.
const (
	DisplayErrorEvent    uint16 = 0
	DisplayDeleteIDEvent uint16 = 1
)

// wl_display error codes.
const (
	DisplayErrorInvalidObject  uint32 = 0
	DisplayErrorInvalidMethod  uint32 = 1
	DisplayErrorNoMemory       uint32 = 2
	DisplayErrorImplementation uint32 = 3
)

// wl_registry.
const (
	RegistryBind uint16 = 0

	RegistryGlobalEvent       uint16 = 0
	RegistryGlobalRemoveEvent uint16 = 1
)

// wl_callback.
const CallbackDoneEvent uint16 = 0

var CallbackInterface = &api.Interface{
	Name:    "wl_callback",
	Version: 1,
	Events: []api.Message{
		{Name: "done", Signature: "u", Types: []*api.Interface{nil}},
	},
}

var RegistryInterface = &api.Interface{
	Name:    "wl_registry",
	Version: 1,
	Methods: []api.Message{
		{Name: "bind", Signature: "usun", Types: []*api.Interface{nil, nil, nil, nil}},
	},
	Events: []api.Message{
		{Name: "global", Signature: "usu", Types: []*api.Interface{nil, nil, nil}},
		{Name: "global_remove", Signature: "u", Types: []*api.Interface{nil}},
	},
}

var DisplayInterface = &api.Interface{
	Name:    "wl_display",
	Version: 1,
	Methods: []api.Message{
		{Name: "sync", Signature: "n", Types: []*api.Interface{CallbackInterface}},
		{Name: "get_registry", Signature: "n", Types: []*api.Interface{RegistryInterface}},
	},
	Events: []api.Message{
		{Name: "error", Signature: "ous", Types: []*api.Interface{nil, nil, nil}},
		{Name: "delete_id", Signature: "u", Types: []*api.Interface{nil}},
	},
}

// ErrorCodeName returns the symbolic name of a wl_display error code.
func ErrorCodeName(code uint32) string {
	switch code {
	case DisplayErrorInvalidObject:
		return "invalid_object"
	case DisplayErrorInvalidMethod:
		return "invalid_method"
	case DisplayErrorNoMemory:
		return "no_memory"
	case DisplayErrorImplementation:
		return "implementation"
	}
	return "unknown"
}
