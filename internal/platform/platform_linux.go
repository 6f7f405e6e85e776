//go:build linux
// +build linux

// File: internal/platform/platform_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux primitives on top of golang.org/x/sys/unix.

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Default is the host implementation of Sys.
var Default Sys = unixSys{}

type unixSys struct{}

// Sendmsg implements Sys.Sendmsg via SendmsgBuffers.
func (unixSys) Sendmsg(fd int, iov [][]byte, fds []int) (int, error) {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	return unix.SendmsgBuffers(fd, iov, oob, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
}

// Recvmsg implements Sys.Recvmsg via RecvmsgBuffers.
func (unixSys) Recvmsg(fd int, iov [][]byte) (int, [][]int, error) {
	oob := make([]byte, unix.CmsgSpace(MaxFDsIn*4))
	n, oobn, _, _, err := unix.RecvmsgBuffers(fd, iov, oob, unix.MSG_DONTWAIT|unix.MSG_CMSG_CLOEXEC)
	if err != nil {
		return 0, nil, err
	}
	if oobn == 0 {
		return n, nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return n, nil, fmt.Errorf("parse control message: %w", err)
	}
	var rights [][]int
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			closeAll(rights)
			return n, nil, fmt.Errorf("parse unix rights: %w", err)
		}
		rights = append(rights, fds)
	}
	return n, rights, nil
}

// Close implements Sys.Close.
func (unixSys) Close(fd int) error {
	return unix.Close(fd)
}

func closeAll(rights [][]int) {
	for _, fds := range rights {
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
	}
}

// Connect opens a close-on-exec stream socket connected to the unix socket
// at path.
func Connect(path string) (int, error) {
	addr := &unix.SockaddrUnix{Name: path}
	if len(path) >= len(unix.RawSockaddrUnix{}.Path) {
		return -1, fmt.Errorf("socket path %q: %w", path, unix.ENAMETOOLONG)
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket create: %w", err)
	}
	if err := unix.Connect(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("connect %s: %w", path, err)
	}
	return fd, nil
}

// DupCloexec duplicates fd with close-on-exec set.
func DupCloexec(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}

// SetCloexec sets close-on-exec on an inherited descriptor.
func SetCloexec(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)
	return err
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}
