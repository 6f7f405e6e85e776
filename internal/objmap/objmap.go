// File: internal/objmap/objmap.go
// Package objmap
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bidirectional id/object table. The id space is split at ServerIDStart:
// ids below are allocated by the client, ids at or above by the server.
// Each side is a growable slice plus a free list threaded through the
// recycled slots.

package objmap

import (
	"github.com/momentics/hioload-wl/api"
)

const (
	// ServerIDStart is the first id allocated by the server side.
	ServerIDStart uint32 = 0xff000000

	// MaxObjects is the sanity ceiling on entries per side.
	MaxObjects = 0x00f00000
)

// Entry flags.
const (
	FlagZombie uint32 = 1 << iota
)

// Side selects which half of the id space the local end allocates from.
type Side int

const (
	ClientSide Side = iota
	ServerSide
)

// Zombie is the tombstone left for a client-allocated id whose object was
// destroyed locally but not yet released by the peer. FDCounts holds, per
// event opcode, the number of descriptors that event carries.
type Zombie struct {
	FDCounts []int
}

// FDCount returns the descriptors carried by event opcode.
func (z *Zombie) FDCount(opcode uint16) int {
	if z == nil || int(opcode) >= len(z.FDCounts) {
		return 0
	}
	return z.FDCounts[opcode]
}

type slotState uint8

const (
	slotEmpty slotState = iota
	slotReserved
	slotLive
)

type entry struct {
	data  any
	flags uint32
	state slotState
	next  int
}

type table struct {
	entries []entry
	free    int
}

func newTable() table {
	return table{free: -1}
}

// Map is not safe for concurrent use; the display mutex guards it.
type Map struct {
	side   Side
	client table
	server table
}

// New creates an empty map for the given side.
func New(side Side) *Map {
	return &Map{
		side:   side,
		client: newTable(),
		server: newTable(),
	}
}

func (m *Map) locate(id uint32) (*table, int) {
	if id < ServerIDStart {
		return &m.client, int(id)
	}
	return &m.server, int(id - ServerIDStart)
}

func (m *Map) own() (*table, uint32) {
	if m.side == ClientSide {
		return &m.client, 0
	}
	return &m.server, ServerIDStart
}

// InsertNew allocates an id on the local side, reusing a freed slot first.
func (m *Map) InsertNew(flags uint32, data any) (uint32, error) {
	t, base := m.own()
	var i int
	if t.free >= 0 {
		i = t.free
		t.free = t.entries[i].next
	} else {
		if len(t.entries) >= MaxObjects {
			return 0, api.NewError(api.ErrCodeResourceExhausted, "object map full").
				WithContext("count", len(t.entries))
		}
		t.entries = append(t.entries, entry{})
		i = len(t.entries) - 1
	}
	t.entries[i] = entry{data: data, flags: flags, state: slotLive, next: -1}
	return base + uint32(i), nil
}

// InsertAt stores data under an id dictated by the peer or reserved by
// ReserveNew. The table grows up to the id; a live slot is an error.
func (m *Map) InsertAt(flags uint32, id uint32, data any) error {
	t, i := m.locate(id)
	if i >= MaxObjects {
		return api.NewError(api.ErrCodeResourceExhausted, "object id beyond limit").
			WithContext("id", id)
	}
	m.grow(t, i)
	e := &t.entries[i]
	if e.state == slotLive {
		return api.NewError(api.ErrCodeAlreadyExists, "object id in use").
			WithContext("id", id)
	}
	m.unlinkFree(t, i)
	*e = entry{data: data, flags: flags, state: slotLive, next: -1}
	return nil
}

// ReserveNew claims a peer-allocated id announced by a new_id argument.
// It fails when the id belongs to the local side or is already occupied.
func (m *Map) ReserveNew(id uint32) error {
	t, i := m.locate(id)
	if (id < ServerIDStart) == (m.side == ClientSide) {
		return api.NewError(api.ErrCodeInvalidArgument, "new id on the wrong side").
			WithContext("id", id)
	}
	if i >= MaxObjects {
		return api.NewError(api.ErrCodeResourceExhausted, "object id beyond limit").
			WithContext("id", id)
	}
	m.grow(t, i)
	e := &t.entries[i]
	if e.state != slotEmpty {
		return api.NewError(api.ErrCodeAlreadyExists, "object id in use").
			WithContext("id", id)
	}
	m.unlinkFree(t, i)
	*e = entry{state: slotReserved, next: -1}
	return nil
}

func (m *Map) grow(t *table, i int) {
	for len(t.entries) <= i {
		t.entries = append(t.entries, entry{next: -1})
	}
}

// unlinkFree removes slot i from the free list if it is on it.
func (m *Map) unlinkFree(t *table, i int) {
	prev := -1
	for cur := t.free; cur >= 0; cur = t.entries[cur].next {
		if cur == i {
			if prev < 0 {
				t.free = t.entries[cur].next
			} else {
				t.entries[prev].next = t.entries[cur].next
			}
			return
		}
		prev = cur
	}
}

// Remove releases id. The table is not compacted; the slot goes on the free
// list for the next InsertNew.
func (m *Map) Remove(id uint32) {
	t, i := m.locate(id)
	if i >= len(t.entries) || t.entries[i].state == slotEmpty {
		return
	}
	t.entries[i] = entry{next: t.free}
	t.free = i
}

// Clear empties the slot of id in place without recycling it.
func (m *Map) Clear(id uint32) {
	t, i := m.locate(id)
	if i >= len(t.entries) {
		return
	}
	t.entries[i].data = nil
	t.entries[i].flags = 0
	t.entries[i].state = slotEmpty
}

// SetZombie replaces the entry of a client-allocated id with a tombstone.
func (m *Map) SetZombie(id uint32, z *Zombie) error {
	if id >= ServerIDStart {
		return api.NewError(api.ErrCodeInvalidArgument, "zombie for server id").
			WithContext("id", id)
	}
	t, i := m.locate(id)
	if i >= len(t.entries) || t.entries[i].state != slotLive {
		return api.NewError(api.ErrCodeNotFound, "no such object").
			WithContext("id", id)
	}
	t.entries[i].data = z
	t.entries[i].flags |= FlagZombie
	return nil
}

// Lookup returns the data stored for id, or nil. Zombies return their
// *Zombie record.
func (m *Map) Lookup(id uint32) any {
	t, i := m.locate(id)
	if i >= len(t.entries) || t.entries[i].state != slotLive {
		return nil
	}
	return t.entries[i].data
}

// Flags returns the entry flags of id.
func (m *Map) Flags(id uint32) uint32 {
	t, i := m.locate(id)
	if i >= len(t.entries) || t.entries[i].state != slotLive {
		return 0
	}
	return t.entries[i].flags
}

// IsZombie reports whether id is a tombstone.
func (m *Map) IsZombie(id uint32) bool {
	return m.Flags(id)&FlagZombie != 0
}

// Zombie returns the tombstone of id, if any.
func (m *Map) Zombie(id uint32) (*Zombie, bool) {
	if !m.IsZombie(id) {
		return nil, false
	}
	z, _ := m.Lookup(id).(*Zombie)
	return z, true
}

// IterResult controls ForEach.
type IterResult int

const (
	IterContinue IterResult = iota
	IterStop
)

// ForEach visits every occupied entry, client side first.
func (m *Map) ForEach(fn func(id uint32, data any, flags uint32) IterResult) {
	for _, side := range []struct {
		t    *table
		base uint32
	}{{&m.client, 0}, {&m.server, ServerIDStart}} {
		for i := range side.t.entries {
			e := &side.t.entries[i]
			if e.state != slotLive || (e.data == nil && e.flags == 0) {
				continue
			}
			if fn(side.base+uint32(i), e.data, e.flags) == IterStop {
				return
			}
		}
	}
}

// Len returns the number of occupied entries.
func (m *Map) Len() int {
	n := 0
	m.ForEach(func(uint32, any, uint32) IterResult {
		n++
		return IterContinue
	})
	return n
}
