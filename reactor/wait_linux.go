//go:build linux
// +build linux

// File: reactor/wait_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// Wait blocks until fd reports one of events, or timeout elapses (negative
// blocks). It returns the ready events, zero on timeout. Hangup and error
// conditions are reported as EventError regardless of interest.
func Wait(fd int, events FDEventType, timeout time.Duration) (FDEventType, error) {
	pfd := []unix.PollFd{{Fd: int32(fd)}}
	if events&EventRead != 0 {
		pfd[0].Events |= unix.POLLIN
	}
	if events&EventWrite != 0 {
		pfd[0].Events |= unix.POLLOUT
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		n, err := unix.Poll(pfd, timeoutMillis(timeout))
		if errors.Is(err, unix.EINTR) {
			if timeout >= 0 {
				if timeout = time.Until(deadline); timeout < 0 {
					return 0, nil
				}
			}
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, nil
		}
		return translate(pfd[0].Revents), nil
	}
}

func translate(revents int16) FDEventType {
	var ev FDEventType
	if revents&unix.POLLIN != 0 {
		ev |= EventRead
	}
	if revents&unix.POLLOUT != 0 {
		ev |= EventWrite
	}
	if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		ev |= EventError
	}
	return ev
}
