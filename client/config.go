// File: client/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Display configuration: functional options plus the environment variables a
// client honors.

package client

import (
	"os"
	"strings"

	"github.com/lthibault/log"

	"github.com/momentics/hioload-wl/control"
	"github.com/momentics/hioload-wl/internal/transport"
)

// Environment variables consulted by Connect.
const (
	EnvDisplay    = "WAYLAND_DISPLAY"
	EnvSocket     = "WAYLAND_SOCKET"
	EnvRuntimeDir = "XDG_RUNTIME_DIR"
	EnvDebug      = "WAYLAND_DEBUG"

	// DefaultDisplayName is used when neither a name nor WAYLAND_DISPLAY is set.
	DefaultDisplayName = "wayland-0"
)

// Config holds display settings.
type Config struct {
	Logger       log.Logger
	Debug        bool
	BufferSize   int
	FDBufferSize int
	Metrics      *control.MetricsRegistry
}

// DefaultConfig returns settings taken from the environment.
func DefaultConfig() Config {
	return Config{
		Debug:        debugFromEnv(os.Getenv(EnvDebug)),
		BufferSize:   transport.DefaultBufferSize,
		FDBufferSize: transport.DefaultFDBufferSize,
	}
}

// Option customizes a Display.
type Option func(*Config)

// WithLogger sets the logger instance.
// If l == nil, a default logger is used.
func WithLogger(l log.Logger) Option {
	if l == nil {
		l = log.New()
	}

	return func(c *Config) {
		c.Logger = l
	}
}

// WithDebug enables protocol tracing of every request and event.
func WithDebug(on bool) Option {
	return func(c *Config) {
		c.Debug = on
	}
}

// WithBufferSize sets the payload ring capacity per direction. It must be a
// power of two and bounds the largest message that can be received.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithFDBufferSize sets the descriptor ring capacity per direction.
func WithFDBufferSize(n int) Option {
	return func(c *Config) {
		c.FDBufferSize = n
	}
}

// WithMetrics shares a metrics registry between displays.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// debugFromEnv accepts "1" or a comma list naming "client".
func debugFromEnv(v string) bool {
	if v == "1" {
		return true
	}
	for _, part := range strings.Split(v, ",") {
		if strings.TrimSpace(part) == "client" {
			return true
		}
	}
	return false
}
