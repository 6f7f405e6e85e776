// File: client/display.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"

	"github.com/lthibault/log"

	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/control"
	"github.com/momentics/hioload-wl/internal/objmap"
	"github.com/momentics/hioload-wl/internal/platform"
	"github.com/momentics/hioload-wl/internal/transport"
	"github.com/momentics/hioload-wl/protocol/wayland"
)

// Metric names maintained by a Display.
const (
	MetricBytesOut         = "bytes_out"
	MetricBytesIn          = "bytes_in"
	MetricFDsOut           = "fds_out"
	MetricFDsIn            = "fds_in"
	MetricReads            = "reads"
	MetricRequests         = "requests"
	MetricEventsQueued     = "events_queued"
	MetricEventsDispatched = "events_dispatched"
	MetricEventsDiscarded  = "events_discarded"
)

// Display is the connection to a compositor and the root of its object
// tree. It is safe for concurrent use; see PrepareRead for the rules on
// sharing the socket between goroutines.
type Display struct {
	mu   sync.Mutex
	cond *sync.Cond

	conn    *transport.Connection
	objects *objmap.Map
	proxy   *Proxy

	defaultQueue *EventQueue
	controlQueue *EventQueue
	queues       map[*EventQueue]struct{}

	readerCount int
	readSerial  uint32
	lastErr     error
	protoErr    *ProtocolError
	closed      bool

	log     log.Logger
	debug   bool
	metrics *control.MetricsRegistry
	probes  *control.DebugProbes
}

// Connect connects to the compositor socket. A non-empty WAYLAND_SOCKET
// names an already connected descriptor and takes precedence; it is removed
// from the environment once used. Otherwise name, then WAYLAND_DISPLAY, then
// "wayland-0" is resolved against XDG_RUNTIME_DIR unless it is absolute.
func Connect(name string, opts ...Option) (*Display, error) {
	if env := os.Getenv(EnvSocket); env != "" {
		fd, err := strconv.Atoi(env)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvSocket, api.ErrInvalidArgument)
		}
		if err := platform.SetCloexec(fd); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvSocket, err)
		}
		os.Unsetenv(EnvSocket)
		return ConnectToFD(fd, opts...)
	}

	path, err := SocketPath(name)
	if err != nil {
		return nil, err
	}
	fd, err := platform.Connect(path)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	d, err := ConnectToFD(fd, opts...)
	if err != nil {
		platform.Close(fd)
		return nil, err
	}
	return d, nil
}

// SocketPath resolves a display name to a socket path.
func SocketPath(name string) (string, error) {
	if name == "" {
		name = os.Getenv(EnvDisplay)
	}
	if name == "" {
		name = DefaultDisplayName
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	dir := os.Getenv(EnvRuntimeDir)
	if !filepath.IsAbs(dir) {
		return "", fmt.Errorf("%s is invalid or not set: %w", EnvRuntimeDir, syscall.ENOENT)
	}
	return filepath.Join(dir, name), nil
}

// ConnectToFD builds a display over an already connected socket and takes
// ownership of fd.
func ConnectToFD(fd int, opts ...Option) (*Display, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		WithLogger(nil)(&cfg)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = control.NewMetricsRegistry()
	}
	if !isPow2(cfg.BufferSize) || !isPow2(cfg.FDBufferSize) {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "buffer sizes must be powers of two").
			WithContext("buffer_size", cfg.BufferSize).
			WithContext("fd_buffer_size", cfg.FDBufferSize)
	}

	d := &Display{
		objects: objmap.New(objmap.ClientSide),
		queues:  make(map[*EventQueue]struct{}),
		log:     cfg.Logger.WithField("fd", fd),
		debug:   cfg.Debug,
		metrics: cfg.Metrics,
		probes:  control.NewDebugProbes(),
	}
	d.cond = sync.NewCond(&d.mu)
	d.defaultQueue = newEventQueue(d, "default")
	d.controlQueue = newEventQueue(d, "display")

	// id 0 is never handed out
	if _, err := d.objects.InsertNew(0, nil); err != nil {
		return nil, err
	}
	d.proxy = &Proxy{
		display:  d,
		queue:    d.defaultQueue,
		iface:    wayland.DisplayInterface,
		refcount: 1,
		userData: d,
	}
	d.proxy.dispatcher = DispatcherFunc(d.handleDisplayEvent)
	id, err := d.objects.InsertNew(0, d.proxy)
	if err != nil {
		return nil, err
	}
	d.proxy.id = id

	d.conn = transport.NewConnection(fd,
		transport.WithBufferSize(cfg.BufferSize),
		transport.WithFDBufferSize(cfg.FDBufferSize))

	d.registerProbes()
	d.log.Debug("display connected")
	return d, nil
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (d *Display) registerProbes() {
	control.RegisterPlatformProbes(d.probes)
	d.probes.RegisterProbe("objects", func() any {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.objects.Len()
	})
	d.probes.RegisterProbe("reader_count", func() any {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.readerCount
	})
	d.probes.RegisterProbe("read_serial", func() any {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.readSerial
	})
	d.probes.RegisterProbe("queues", func() any {
		d.mu.Lock()
		defer d.mu.Unlock()
		out := map[string]int{
			d.defaultQueue.name: d.defaultQueue.events.Length(),
			d.controlQueue.name: d.controlQueue.events.Length(),
		}
		for q := range d.queues {
			out[q.name] += q.events.Length()
		}
		return out
	})
	d.probes.RegisterProbe("last_error", func() any {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.lastErr == nil {
			return nil
		}
		return d.lastErr.Error()
	})
}

// Disconnect closes the socket and every descriptor still held by pending
// events. The display must not be used afterwards.
func (d *Display) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	queues := []*EventQueue{d.controlQueue, d.defaultQueue}
	for q := range d.queues {
		queues = append(queues, q)
	}
	for _, q := range queues {
		for !q.empty() {
			d.releaseEvent(q.pop())
		}
	}
	if d.lastErr == nil {
		d.lastErr = api.ErrClosed
	}
	d.wakeup()
	d.log.Debug("display disconnected")
	return d.conn.Close()
}

// Proxy returns the wl_display object.
func (d *Display) Proxy() *Proxy {
	return d.proxy
}

// DefaultQueue returns the queue proxies are assigned to unless moved.
func (d *Display) DefaultQueue() *EventQueue {
	return d.defaultQueue
}

// FD returns the socket descriptor for use in an outer event loop.
func (d *Display) FD() int {
	return d.conn.FD()
}

// Err returns the fatal error latched on the display, if any.
func (d *Display) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// ProtocolError returns the error reported by the compositor, if any.
func (d *Display) ProtocolError() *ProtocolError {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.protoErr == nil {
		return nil
	}
	pe := *d.protoErr
	return &pe
}

// Stats returns a snapshot of the traffic and dispatch counters.
func (d *Display) Stats() map[string]any {
	d.mu.Lock()
	d.syncCounters()
	d.mu.Unlock()
	return d.metrics.GetSnapshot()
}

// DumpState samples the debug probes.
func (d *Display) DumpState() map[string]any {
	return d.probes.DumpState()
}

// QueueNames lists the queues created with CreateQueue.
func (d *Display) QueueNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.queues))
	for q := range d.queues {
		names = append(names, q.name)
	}
	sort.Strings(names)
	return names
}

// syncCounters copies the connection totals into the metrics registry.
func (d *Display) syncCounters() {
	c := d.conn.Counters()
	d.metrics.Set(MetricBytesOut, c.BytesOut)
	d.metrics.Set(MetricBytesIn, c.BytesIn)
	d.metrics.Set(MetricFDsOut, c.FDsOut)
	d.metrics.Set(MetricFDsIn, c.FDsIn)
	d.metrics.Set(MetricReads, c.Reads)
}

// fatal latches err unless an error is already latched, then releases every
// goroutine waiting in ReadEvents.
func (d *Display) fatal(err error) {
	if d.lastErr != nil {
		return
	}
	if err == nil {
		err = syscall.EFAULT
	}
	d.lastErr = err

	var pe *ProtocolError
	if errors.As(err, &pe) {
		d.log.With(pe).Error("protocol error")
	} else {
		d.log.WithError(err).Error("fatal display error")
	}
	d.wakeup()
}

func (d *Display) wakeup() {
	d.readSerial++
	d.cond.Broadcast()
}

// handleDisplayEvent runs on the control queue with the lock released.
func (d *Display) handleDisplayEvent(_ *Proxy, opcode uint16, _ *api.Message, args []api.Argument) error {
	switch opcode {
	case wayland.DisplayErrorEvent:
		var iface *api.Interface
		if args[0].Object != nil {
			iface = args[0].Object.Interface()
		}
		pe := newProtocolError(args[1].Uint, args[0].ID, iface, args[2].Str)

		d.mu.Lock()
		if d.lastErr == nil {
			d.protoErr = pe
		}
		d.fatal(pe)
		d.mu.Unlock()

	case wayland.DisplayDeleteIDEvent:
		id := args[0].Uint

		d.mu.Lock()
		switch obj := d.objects.Lookup(id); {
		case d.objects.IsZombie(id):
			d.objects.Remove(id)
		case obj != nil:
			if p, ok := obj.(*Proxy); ok {
				p.flags |= flagIDDeleted
			}
		default:
			d.log.WithField("id", id).Error("delete_id for unknown object")
		}
		d.mu.Unlock()
	}
	return nil
}
