//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"time"

	"github.com/momentics/hioload-wl/api"
)

func newEpollReactor() (Reactor, error) {
	return nil, api.ErrNotSupported
}

// Wait is not supported on this platform.
func Wait(int, FDEventType, time.Duration) (FDEventType, error) {
	return 0, api.ErrNotSupported
}
