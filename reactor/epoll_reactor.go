//go:build linux
// +build linux

// File: reactor/epoll_reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll implementation.

package reactor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// epollReactor implements Reactor using Linux epoll.
type epollReactor struct {
	epfd      int
	callbacks sync.Map // map[uintptr]FDCallback
}

func newEpollReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollReactor{epfd: epfd}, nil
}

// Register adds a file descriptor to the epoll watch list.
func (r *epollReactor) Register(fd uintptr, events FDEventType, cb FDCallback) error {
	var ev unix.EpollEvent
	if events&EventRead != 0 {
		ev.Events |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	ev.Fd = int32(fd)

	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	r.callbacks.Store(fd, cb)
	return nil
}

// Unregister removes a file descriptor from the epoll watch list.
func (r *epollReactor) Unregister(fd uintptr) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	r.callbacks.Delete(fd)
	return nil
}

// Poll blocks and waits for events on registered file descriptors.
func (r *epollReactor) Poll(timeout time.Duration) error {
	const maxEvents = 128
	var events [maxEvents]unix.EpollEvent

	n, err := unix.EpollWait(r.epfd, events[:], timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := events[i]
		fd := uintptr(ev.Fd)

		val, ok := r.callbacks.Load(fd)
		if !ok {
			continue
		}

		var eventType FDEventType
		if ev.Events&unix.EPOLLIN != 0 {
			eventType |= EventRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			eventType |= EventWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			eventType |= EventError
		}
		val.(FDCallback)(fd, eventType)
	}
	return nil
}

// Close releases the epoll file descriptor.
func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
