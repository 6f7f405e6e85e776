// File: control/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Named probes sampled on demand for state dumps.

package control

import (
	"sort"
	"sync"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// Names returns the registered probe names in order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	names := make([]string, 0, len(dp.probes))
	for k := range dp.probes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// DumpState returns output of all probes. Probes run without the registry
// lock held, so a probe may take locks of its own.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	fns := make(map[string]func() any, len(dp.probes))
	for k, fn := range dp.probes {
		fns[k] = fn
	}
	dp.mu.RUnlock()

	out := make(map[string]any, len(fns))
	for k, fn := range fns {
		out[k] = fn()
	}
	return out
}
