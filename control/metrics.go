// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime counters exposed by a display connection.

package control

import (
	"sync"
	"time"
)

// MetricsRegistry holds named counters and gauges.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Add increments a uint64 counter, creating it at zero. A key holding a
// non-counter value is reset to delta.
func (mr *MetricsRegistry) Add(key string, delta uint64) {
	if delta == 0 {
		return
	}
	mr.mu.Lock()
	cur, _ := mr.metrics[key].(uint64)
	mr.metrics[key] = cur + delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Counter returns the value of a counter, zero if unset.
func (mr *MetricsRegistry) Counter(key string) uint64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	v, _ := mr.metrics[key].(uint64)
	return v
}

// Updated returns the time of the last change.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}
