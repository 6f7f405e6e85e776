//go:build linux
// +build linux

// File: client/display_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/lthibault/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/protocol/wayland"
)

func TestSocketPath(t *testing.T) {
	t.Setenv(EnvRuntimeDir, "/run/user/1000")
	t.Setenv(EnvDisplay, "")

	path, err := SocketPath("")
	require.NoError(t, err)
	assert.Equal(t, "/run/user/1000/wayland-0", path)

	t.Setenv(EnvDisplay, "wayland-3")
	path, err = SocketPath("")
	require.NoError(t, err)
	assert.Equal(t, "/run/user/1000/wayland-3", path)

	path, err = SocketPath("wayland-1")
	require.NoError(t, err)
	assert.Equal(t, "/run/user/1000/wayland-1", path, "explicit name wins over the environment")

	path, err = SocketPath("/tmp/compositor.sock")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/compositor.sock", path)

	t.Setenv(EnvRuntimeDir, "relative/dir")
	_, err = SocketPath("wayland-1")
	assert.ErrorIs(t, err, syscall.ENOENT)
}

func TestConnectUsesWaylandSocket(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])

	t.Setenv(EnvSocket, strconv.Itoa(fds[0]))
	d, err := Connect("ignored", WithLogger(quietLogger()))
	require.NoError(t, err)
	defer d.Disconnect()

	assert.Equal(t, fds[0], d.FD())
	assert.Empty(t, os.Getenv(EnvSocket), "WAYLAND_SOCKET is consumed")

	flags, err := unix.FcntlInt(uintptr(fds[0]), unix.F_GETFD, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.FD_CLOEXEC)
}

func TestConnectRejectsMalformedWaylandSocket(t *testing.T) {
	t.Setenv(EnvSocket, "not-a-number")
	_, err := Connect("", WithLogger(quietLogger()))
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestConnectByName(t *testing.T) {
	dir := t.TempDir()
	l, err := net.Listen("unix", filepath.Join(dir, "wayland-test"))
	require.NoError(t, err)
	defer l.Close()

	t.Setenv(EnvSocket, "")
	t.Setenv(EnvRuntimeDir, dir)

	d, err := Connect("wayland-test", WithLogger(quietLogger()))
	require.NoError(t, err)
	defer d.Disconnect()

	conn, err := l.Accept()
	require.NoError(t, err)
	conn.Close()

	_, err = Connect("missing", WithLogger(quietLogger()))
	assert.ErrorIs(t, err, syscall.ENOENT)
}

func TestConnectToFDRejectsBufferSizes(t *testing.T) {
	_, err := ConnectToFD(-1, WithLogger(quietLogger()), WithBufferSize(1000))
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = ConnectToFD(-1, WithLogger(quietLogger()), WithFDBufferSize(0))
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestDebugFromEnv(t *testing.T) {
	assert.True(t, debugFromEnv("1"))
	assert.True(t, debugFromEnv("server, client"))
	assert.False(t, debugFromEnv("server"))
	assert.False(t, debugFromEnv(""))
}

func TestDisplayProxy(t *testing.T) {
	d, _ := newTestDisplay(t)

	p := d.Proxy()
	assert.Equal(t, uint32(1), p.ID())
	assert.Equal(t, "wl_display", p.Class())
	assert.Equal(t, d, p.UserData())
	assert.Equal(t, d.DefaultQueue(), p.Queue())
	assert.Equal(t, p, d.objects.Lookup(1))
}

func TestRoundtrip(t *testing.T) {
	d, s := newTestDisplay(t)

	var g errgroup.Group
	g.Go(func() error { return s.answerSync(7) })

	n, err := d.Roundtrip()
	require.NoError(t, err)
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, n, "only the callback's done event is counted")

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats[MetricRequests])
	assert.NotZero(t, stats[MetricBytesOut])
}

func TestRoundtripReusesCallbackIDs(t *testing.T) {
	d, s := newTestDisplay(t)

	var g errgroup.Group
	g.Go(func() error {
		for serial := uint32(1); serial <= 3; serial++ {
			if err := s.answerSync(serial); err != nil {
				return err
			}
		}
		return nil
	})

	for i := 0; i < 3; i++ {
		_, err := d.Roundtrip()
		require.NoError(t, err)
	}
	require.NoError(t, g.Wait())

	// The last delete_id may still be unread.
	dispatchUntil(t, d, func() bool { return d.objects.Len() == 1 })

	p, err := CreateProxy(d.Proxy(), wayland.CallbackInterface, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.ID(), uint32(3), "ids are recycled rather than grown")
}

func TestRegistryGlobals(t *testing.T) {
	d, s := newTestDisplay(t)

	type global struct {
		name    uint32
		iface   string
		version uint32
	}
	var (
		globals []global
		removed []uint32
	)
	reg := s.registry(t, d)
	require.NoError(t, reg.AddListener([]any{
		func(_ any, r *Proxy, name uint32, iface string, version uint32) {
			assert.Equal(t, reg, r)
			globals = append(globals, global{name, iface, version})
		},
		func(_ any, _ *Proxy, name uint32) {
			removed = append(removed, name)
		},
	}, nil))

	var g errgroup.Group
	g.Go(func() error {
		if err := s.global(reg, 1, "wl_compositor", 4); err != nil {
			return err
		}
		if err := s.global(reg, 2, "wl_shm", 1); err != nil {
			return err
		}
		if err := s.event(reg.ID(), wayland.RegistryInterface, wayland.RegistryGlobalRemoveEvent, api.Uint32(1)); err != nil {
			return err
		}
		return s.answerSync(1)
	})

	n, err := d.Roundtrip()
	require.NoError(t, err)
	require.NoError(t, g.Wait())

	assert.Equal(t, 4, n)
	assert.Equal(t, []global{{1, "wl_compositor", 4}, {2, "wl_shm", 1}}, globals)
	assert.Equal(t, []uint32{1}, removed)
}

func TestBindCreatesVersionedProxy(t *testing.T) {
	d, s := newTestDisplay(t)
	reg := s.registry(t, d)

	obj, err := Bind(reg, 9, testIface, 1)
	require.NoError(t, err)
	assert.Equal(t, "test_object", obj.Class())
	assert.Equal(t, uint32(1), obj.Version())
	assert.Equal(t, reg.Queue(), obj.Queue())

	_, err = d.Flush()
	require.NoError(t, err)
	c, err := s.request()
	require.NoError(t, err)
	require.Equal(t, reg.ID(), c.Sender)
	assert.Equal(t, wayland.RegistryBind, c.Opcode)
	assert.Equal(t, uint32(9), c.Args[0].Uint)
	assert.Equal(t, "test_object", c.Args[1].Str)
	assert.Equal(t, uint32(1), c.Args[2].Uint)
	assert.Equal(t, obj.ID(), c.Args[3].ID)

	var pings []uint32
	require.NoError(t, obj.AddListener([]any{
		nil,
		func(_ any, _ *Proxy, serial uint32) { pings = append(pings, serial) },
	}, nil))

	require.NoError(t, s.event(obj.ID(), testIface, 1, api.Uint32(42)))
	readUntil(t, d, func() bool { return !d.defaultQueue.empty() })
	n, err := d.DispatchPending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint32{42}, pings)
}

func TestProtocolErrorIsSticky(t *testing.T) {
	d, s := newTestDisplay(t)

	require.NoError(t, s.displayError(1, wayland.DisplayErrorInvalidMethod, "bad request"))

	_, err := d.Dispatch()
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EINVAL)

	pe := d.ProtocolError()
	require.NotNil(t, pe)
	assert.Equal(t, wayland.DisplayErrorInvalidMethod, pe.Code)
	assert.Equal(t, uint32(1), pe.ObjectID)
	assert.Equal(t, wayland.DisplayInterface, pe.Interface)
	assert.Equal(t, "bad request", pe.Message)

	// Everything afterwards reports the first error.
	var objects int
	d.locked(func() { objects = d.objects.Len() })

	_, err = d.Sync()
	assert.ErrorIs(t, err, syscall.EINVAL)
	d.locked(func() { assert.Equal(t, objects, d.objects.Len(), "no proxy created after failure") })

	_, err = d.Flush()
	assert.ErrorIs(t, err, syscall.EINVAL)

	require.NoError(t, d.PrepareRead())
	assert.ErrorIs(t, d.ReadEvents(), syscall.EINVAL)

	_, err = d.DispatchPending()
	assert.ErrorIs(t, err, syscall.EINVAL)
	assert.Equal(t, err, d.Err())

	second := []api.Argument{
		{Type: api.ArgObject, ID: 1, Object: d.Proxy()},
		api.Uint32(wayland.DisplayErrorNoMemory),
		api.String("second error"),
	}
	require.NoError(t, d.handleDisplayEvent(d.Proxy(), wayland.DisplayErrorEvent, nil, second))
	assert.ErrorIs(t, d.Err(), syscall.EINVAL)
	assert.Equal(t, "bad request", d.ProtocolError().Message, "later errors never replace the first")
}

func TestProtocolErrorOnOtherInterface(t *testing.T) {
	d, s := newTestDisplay(t)
	reg := s.registry(t, d)

	require.NoError(t, s.displayError(reg.ID(), 0, "no such global"))

	_, err := d.Dispatch()
	assert.ErrorIs(t, err, syscall.EPROTO)

	pe := d.ProtocolError()
	require.NotNil(t, pe)
	assert.Equal(t, reg.ID(), pe.ObjectID)
	assert.Equal(t, wayland.RegistryInterface, pe.Interface)
	assert.Contains(t, pe.Error(), "wl_registry#2")
}

func TestPeerCloseIsFatal(t *testing.T) {
	d, s := newTestDisplay(t)
	require.NoError(t, s.conn.Close())

	_, err := d.Dispatch()
	assert.ErrorIs(t, err, syscall.EPIPE)
	assert.ErrorIs(t, d.Err(), syscall.EPIPE)
	assert.Nil(t, d.ProtocolError())
}

func TestDispatchQueueTimeout(t *testing.T) {
	d, _ := newTestDisplay(t)

	start := time.Now()
	n, err := d.DispatchQueueTimeout(d.DefaultQueue(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	d.locked(func() { assert.Zero(t, d.readerCount, "timeout withdraws the read intent") })
}

func TestDisconnectClosesPendingDescriptors(t *testing.T) {
	d, s := newTestDisplay(t)

	obj, err := CreateProxy(d.Proxy(), testIface, 1)
	require.NoError(t, err)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, s.event(obj.ID(), testIface, 0, api.FD(int(r.Fd()))))
	require.NoError(t, r.Close())
	readUntil(t, d, func() bool { return !d.defaultQueue.empty() })

	require.NoError(t, d.Disconnect())
	_, err = w.Write([]byte{1})
	assert.ErrorIs(t, err, syscall.EPIPE)

	assert.ErrorIs(t, d.Err(), api.ErrClosed)
	assert.NoError(t, d.Disconnect(), "disconnect is idempotent")
}

func TestDebugTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.WithWriter(&buf), log.WithLevel(log.DebugLevel))
	d, s := newTestDisplay(t, WithLogger(logger), WithDebug(true))

	reg := s.registry(t, d)
	require.NoError(t, s.global(reg, 5, "wl_seat", 7))
	readUntil(t, d, func() bool { return !d.defaultQueue.empty() })
	_, err := d.DispatchPending()
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "wl_display#1.get_registry(new id wl_registry#2)")
	assert.Contains(t, out, "wl_registry#2.global(5, ")
	assert.Contains(t, out, "wayland")
}

func TestStatsAndProbes(t *testing.T) {
	d, s := newTestDisplay(t)
	reg := s.registry(t, d)
	require.NoError(t, s.global(reg, 1, "wl_output", 3))
	readUntil(t, d, func() bool { return !d.defaultQueue.empty() })

	state := d.DumpState()
	assert.Equal(t, 0, state["reader_count"])
	assert.Nil(t, state["last_error"])
	assert.Equal(t, 1, state["queues"].(map[string]int)["default"])

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats[MetricEventsQueued])
	assert.NotZero(t, stats[MetricBytesIn])
	assert.Equal(t, uint64(1), stats[MetricReads])

	_, err := d.DispatchPending()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d.Stats()[MetricEventsDispatched])
}

func TestDisplayErrorsUnwrap(t *testing.T) {
	cases := []struct {
		code uint32
		want syscall.Errno
	}{
		{wayland.DisplayErrorInvalidObject, syscall.EINVAL},
		{wayland.DisplayErrorInvalidMethod, syscall.EINVAL},
		{wayland.DisplayErrorNoMemory, syscall.ENOMEM},
		{wayland.DisplayErrorImplementation, syscall.EPROTO},
		{42, syscall.EFAULT},
	}
	for _, tc := range cases {
		pe := newProtocolError(tc.code, 1, wayland.DisplayInterface, "x")
		assert.True(t, errors.Is(pe, tc.want), "code %d", tc.code)
	}
	pe := newProtocolError(0, 3, testIface, "x")
	assert.True(t, errors.Is(pe, syscall.EPROTO))
	assert.Equal(t, "test_object", pe.Loggable()["interface"])
}
