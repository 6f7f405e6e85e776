//go:build linux
// +build linux

// File: client/compositor_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/lthibault/log"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/internal/objmap"
	"github.com/momentics/hioload-wl/internal/transport"
	"github.com/momentics/hioload-wl/protocol"
	"github.com/momentics/hioload-wl/protocol/wayland"
	"github.com/momentics/hioload-wl/reactor"
)

// testIface is a made-up interface for exercising descriptor and object
// arguments in events.
var testIface = &api.Interface{
	Name:    "test_object",
	Version: 1,
	Methods: []api.Message{
		{Name: "destroy", Signature: ""},
		{Name: "send_fd", Signature: "h", Types: []*api.Interface{nil}},
		{Name: "set_level", Signature: "2u", Types: []*api.Interface{nil}},
	},
	Events: []api.Message{
		{Name: "fd", Signature: "h", Types: []*api.Interface{nil}},
		{Name: "ping", Signature: "u", Types: []*api.Interface{nil}},
		{Name: "ref", Signature: "?o", Types: []*api.Interface{nil}},
		{Name: "fds", Signature: "hhhh", Types: []*api.Interface{nil, nil, nil, nil}},
	},
}

// compositor is a scripted server end speaking through the same codec.
type compositor struct {
	conn    *transport.Connection
	objects *objmap.Map
	ifaces  map[uint32]*api.Interface
	named   map[string]*api.Interface
}

func quietLogger() log.Logger {
	return log.New(log.WithWriter(io.Discard))
}

func newTestDisplay(t *testing.T, opts ...Option) (*Display, *compositor) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	d, err := ConnectToFD(fds[0], append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)

	s := &compositor{
		conn:    transport.NewConnection(fds[1]),
		objects: objmap.New(objmap.ServerSide),
		ifaces:  map[uint32]*api.Interface{1: wayland.DisplayInterface},
		named:   map[string]*api.Interface{testIface.Name: testIface},
	}
	t.Cleanup(func() {
		d.Disconnect()
		s.conn.Close()
	})
	return d, s
}

// request blocks until one complete request arrives and decodes it.
func (s *compositor) request() (*protocol.Closure, error) {
	deadline := time.Now().Add(2 * time.Second)
	for {
		if s.conn.PendingInput() >= protocol.HeaderSize {
			var hdr [protocol.HeaderSize]byte
			if err := s.conn.Copy(hdr[:]); err != nil {
				return nil, err
			}
			id, size, opcode := protocol.Header(hdr[:])
			if s.conn.PendingInput() >= size {
				return s.decode(id, size, opcode)
			}
		}
		if time.Now().After(deadline) {
			return nil, errors.New("timed out waiting for request")
		}
		if _, err := reactor.Wait(s.conn.FD(), reactor.EventRead, 100*time.Millisecond); err != nil {
			return nil, err
		}
		if _, err := s.conn.Read(); err != nil && !errors.Is(err, syscall.EAGAIN) {
			return nil, err
		}
	}
}

func (s *compositor) decode(id uint32, size int, opcode uint16) (*protocol.Closure, error) {
	iface := s.ifaces[id]
	if iface == nil || int(opcode) >= len(iface.Methods) {
		return nil, fmt.Errorf("request for unknown object %d opcode %d", id, opcode)
	}
	msg := &iface.Methods[opcode]
	c, err := protocol.Demarshal(s.conn, size, s.objects, msg)
	if err != nil {
		return nil, err
	}
	for i, a := range c.Args {
		if a.Type != api.ArgNewID {
			continue
		}
		typed := msg.Types[i]
		if typed == nil && i >= 2 {
			typed = s.named[c.Args[i-2].Str]
		}
		s.ifaces[a.ID] = typed
	}
	return c, nil
}

// event sends one event from object id and flushes.
func (s *compositor) event(id uint32, iface *api.Interface, opcode uint16, args ...api.Argument) error {
	c, err := protocol.NewClosure(id, opcode, &iface.Events[opcode], args)
	if err != nil {
		return err
	}
	defer c.Destroy()
	if err := c.Send(s.conn); err != nil {
		return err
	}
	_, err = s.conn.Flush()
	return err
}

func (s *compositor) deleteID(id uint32) error {
	s.objects.Remove(id)
	delete(s.ifaces, id)
	return s.event(1, wayland.DisplayInterface, wayland.DisplayDeleteIDEvent, api.Uint32(id))
}

func (s *compositor) displayError(object, code uint32, msg string) error {
	return s.event(1, wayland.DisplayInterface, wayland.DisplayErrorEvent,
		api.Argument{Type: api.ArgObject, ID: object},
		api.Uint32(code),
		api.String(msg))
}

// answerSync serves one wl_display.sync.
func (s *compositor) answerSync(serial uint32) error {
	c, err := s.request()
	if err != nil {
		return err
	}
	if c.Sender != 1 || c.Opcode != wayland.DisplaySync {
		return fmt.Errorf("expected sync, got %s", c.Message.Name)
	}
	cb := c.Args[0].ID
	if err := s.event(cb, wayland.CallbackInterface, wayland.CallbackDoneEvent, api.Uint32(serial)); err != nil {
		return err
	}
	return s.deleteID(cb)
}

// registry sends get_registry and returns the client proxy once the
// compositor has seen the request.
func (s *compositor) registry(t *testing.T, d *Display) *Proxy {
	t.Helper()
	reg, err := d.GetRegistry()
	require.NoError(t, err)
	_, err = d.Flush()
	require.NoError(t, err)
	c, err := s.request()
	require.NoError(t, err)
	require.Equal(t, wayland.DisplayGetRegistry, c.Opcode)
	require.Equal(t, reg.ID(), c.Args[0].ID)
	return reg
}

func (s *compositor) global(reg *Proxy, name uint32, iface string, version uint32) error {
	return s.event(reg.ID(), wayland.RegistryInterface, wayland.RegistryGlobalEvent,
		api.Uint32(name), api.String(iface), api.Uint32(version))
}

// readUntil performs socket reads until cond, evaluated under the display
// lock, holds.
func readUntil(t *testing.T, d *Display, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		done := cond()
		d.mu.Unlock()
		if done {
			return
		}
		require.True(t, time.Now().Before(deadline), "timed out waiting for events")

		_, err := reactor.Wait(d.FD(), reactor.EventRead, 100*time.Millisecond)
		require.NoError(t, err)
		d.mu.Lock()
		d.readerCount++
		err = d.readEvents()
		d.mu.Unlock()
		require.NoError(t, err)
	}
}

// dispatchUntil dispatches the default queue until cond, evaluated under the
// display lock, holds.
func dispatchUntil(t *testing.T, d *Display, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		done := cond()
		d.mu.Unlock()
		if done {
			return
		}
		require.True(t, time.Now().Before(deadline), "condition never reached")
		_, err := d.DispatchQueueTimeout(d.defaultQueue, 10*time.Millisecond)
		require.NoError(t, err)
	}
}

// nativeHeader writes a message header into b for hand-built messages.
func nativeHeader(b []byte, id uint32, size int, opcode uint16) {
	binary.NativeEndian.PutUint32(b[0:], id)
	binary.NativeEndian.PutUint32(b[4:], uint32(size)<<16|uint32(opcode))
}

func (d *Display) locked(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}
