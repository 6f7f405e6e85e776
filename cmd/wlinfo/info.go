// File: cmd/wlinfo/info.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/client"
	"github.com/momentics/hioload-wl/internal/logutil"
	"github.com/momentics/hioload-wl/protocol/wayland"
	"github.com/momentics/hioload-wl/reactor"
)

// global is one registry entry.
type global struct {
	Name      uint32 `json:"name"`
	Interface string `json:"interface"`
	Version   uint32 `json:"version"`
}

// registry tracks globals through a generic dispatcher.
type registry struct {
	globals map[uint32]global
	out     io.Writer
	live    bool
}

func (r *registry) Dispatch(_ *client.Proxy, opcode uint16, _ *api.Message, args []api.Argument) error {
	switch opcode {
	case wayland.RegistryGlobalEvent:
		g := global{Name: args[0].Uint, Interface: args[1].Str, Version: args[2].Uint}
		r.globals[g.Name] = g
		if r.live {
			fmt.Fprintf(r.out, "+ %d %s %d\n", g.Name, g.Interface, g.Version)
		}
	case wayland.RegistryGlobalRemoveEvent:
		name := args[0].Uint
		if r.live {
			fmt.Fprintf(r.out, "- %d %s\n", name, r.globals[name].Interface)
		}
		delete(r.globals, name)
	}
	return nil
}

func (r *registry) sorted() []global {
	out := make([]global, 0, len(r.globals))
	for _, g := range r.globals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func info(c *cli.Context) error {
	logger := logutil.New(c)

	d, err := client.Connect(c.String("display"),
		client.WithLogger(logger),
		client.WithDebug(c.Bool("debug")))
	if err != nil {
		return err
	}
	defer d.Disconnect()

	reg := &registry{globals: map[uint32]global{}, out: c.App.Writer}
	proxy, err := d.GetRegistry()
	if err != nil {
		return err
	}
	if err := proxy.AddDispatcher(reg, nil); err != nil {
		return err
	}
	if _, err := d.Roundtrip(); err != nil {
		return err
	}

	for _, g := range reg.sorted() {
		fmt.Fprintf(c.App.Writer, "%-4d %-40s %d\n", g.Name, g.Interface, g.Version)
	}

	if c.Bool("monitor") {
		reg.live = true
		ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if err := monitor(ctx, d); err != nil {
			return err
		}
	}

	if c.Bool("stats") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"stats": d.Stats(),
			"state": d.DumpState(),
		})
	}
	return nil
}

// monitor drives the display from an epoll loop until ctx ends.
func monitor(ctx context.Context, d *client.Display) error {
	r, err := reactor.NewReactor()
	if err != nil {
		return err
	}
	defer r.Close()

	var (
		fired   bool
		readErr error
	)
	err = r.Register(uintptr(d.FD()), reactor.EventRead, func(uintptr, reactor.FDEventType) {
		fired = true
		readErr = d.ReadEvents()
	})
	if err != nil {
		return err
	}

	for ctx.Err() == nil {
		for d.PrepareRead() != nil {
			if _, err := d.DispatchPending(); err != nil {
				return err
			}
		}
		if _, err := d.Flush(); err != nil && !errors.Is(err, syscall.EAGAIN) {
			d.CancelRead()
			return err
		}

		fired, readErr = false, nil
		if err := r.Poll(200 * time.Millisecond); err != nil {
			d.CancelRead()
			return err
		}
		if !fired {
			d.CancelRead()
			continue
		}
		if readErr != nil {
			return readErr
		}
		if _, err := d.DispatchPending(); err != nil {
			return err
		}
	}
	return nil
}
