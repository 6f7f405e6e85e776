// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral readiness interface for descriptor multiplexing.

package reactor

import "time"

// FDEventType is a readiness bit set.
type FDEventType uint8

const (
	EventRead FDEventType = 1 << iota
	EventWrite
	EventError
)

// FDCallback is invoked from Poll with the ready events of fd.
type FDCallback func(fd uintptr, events FDEventType)

// Reactor multiplexes readiness of several descriptors.
type Reactor interface {
	// Register adds fd with the given interest.
	Register(fd uintptr, events FDEventType, cb FDCallback) error

	// Unregister removes fd.
	Unregister(fd uintptr) error

	// Poll waits up to timeout (negative blocks) and runs the callbacks of
	// ready descriptors.
	Poll(timeout time.Duration) error

	// Close releases the reactor.
	Close() error
}

// NewReactor constructs the platform reactor.
func NewReactor() (Reactor, error) {
	return newEpollReactor()
}

func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout.Milliseconds()
	if ms == 0 && timeout > 0 {
		ms = 1
	}
	return int(ms)
}
