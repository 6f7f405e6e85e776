// File: client/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"fmt"
	"syscall"

	"github.com/lthibault/log"

	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/protocol/wayland"
)

// ProtocolError is a fatal error reported by the compositor through
// wl_display.error.
type ProtocolError struct {
	Code      uint32
	ObjectID  uint32
	Interface *api.Interface
	Message   string

	errno syscall.Errno
}

func newProtocolError(code, id uint32, iface *api.Interface, msg string) *ProtocolError {
	errno := syscall.EPROTO
	if iface.Equal(wayland.DisplayInterface) {
		switch code {
		case wayland.DisplayErrorInvalidObject, wayland.DisplayErrorInvalidMethod:
			errno = syscall.EINVAL
		case wayland.DisplayErrorNoMemory:
			errno = syscall.ENOMEM
		case wayland.DisplayErrorImplementation:
			errno = syscall.EPROTO
		default:
			errno = syscall.EFAULT
		}
	}
	return &ProtocolError{
		Code:      code,
		ObjectID:  id,
		Interface: iface,
		Message:   msg,
		errno:     errno,
	}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d on %s#%d: %s", e.Code, e.Interface, e.ObjectID, e.Message)
}

// Unwrap returns the errno class of the error.
func (e *ProtocolError) Unwrap() error {
	return e.errno
}

// Loggable returns structured logging fields.
func (e *ProtocolError) Loggable() map[string]interface{} {
	return log.F{
		"code":      e.Code,
		"object":    e.ObjectID,
		"interface": e.Interface.String(),
		"message":   e.Message,
	}
}
