// File: internal/platform/platform.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

const (
	// MaxFDsOut is the number of descriptors attached to one send call.
	MaxFDsOut = 28

	// MaxFDsIn bounds the descriptors one receive call can return
	// (the kernel's SCM_MAX_FD).
	MaxFDsIn = 253
)

// Sys is the set of socket primitives a connection needs. Default is the
// host implementation; tests substitute their own.
type Sys interface {
	// Sendmsg sends iov with fds attached as SCM_RIGHTS, non-blocking and
	// without raising SIGPIPE.
	Sendmsg(fd int, iov [][]byte, fds []int) (int, error)

	// Recvmsg receives into iov, non-blocking. Received descriptors are
	// close-on-exec and grouped per control message.
	Recvmsg(fd int, iov [][]byte) (n int, rights [][]int, err error)

	// Close closes a descriptor.
	Close(fd int) error
}
