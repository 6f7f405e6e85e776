//go:build !linux
// +build !linux

// File: internal/platform/platform_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub implementation for unsupported platforms.

package platform

import (
	"github.com/momentics/hioload-wl/api"
)

// Default is the host implementation of Sys.
var Default Sys = stubSys{}

type stubSys struct{}

func (stubSys) Sendmsg(int, [][]byte, []int) (int, error)   { return 0, api.ErrNotSupported }
func (stubSys) Recvmsg(int, [][]byte) (int, [][]int, error) { return 0, nil, api.ErrNotSupported }
func (stubSys) Close(int) error                             { return api.ErrNotSupported }

// Connect returns an error for unsupported platforms.
func Connect(string) (int, error) { return -1, api.ErrNotSupported }

// DupCloexec returns an error for unsupported platforms.
func DupCloexec(int) (int, error) { return -1, api.ErrNotSupported }

// SetCloexec returns an error for unsupported platforms.
func SetCloexec(int) error { return api.ErrNotSupported }

// Close returns an error for unsupported platforms.
func Close(int) error { return api.ErrNotSupported }
