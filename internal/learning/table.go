package learning

import (
	"sync"

	"github.com/aytixel/dwitch/internal/protocol"
)

// Table is one VRF's MAC→SwitchId learning table. Entries are soft state
// (spec Invariant 5): they may be dropped on cache reload or VRF deletion
// without affecting correctness, since an unknown destination just falls
// back to flooding.
type Table struct {
	mu      sync.RWMutex
	entries map[protocol.MacAddress]protocol.SwitchID
}

// NewTable creates an empty learning table.
func NewTable() *Table {
	return &Table{entries: make(map[protocol.MacAddress]protocol.SwitchID)}
}

// Learn records that mac was last seen arriving from origin, overwriting
// any previous binding (spec §4.4, network→TAP ingress path).
func (t *Table) Learn(mac protocol.MacAddress, origin protocol.SwitchID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[mac] = origin
}

// Lookup returns the SwitchId mac was last learned from, if any.
func (t *Table) Lookup(mac protocol.MacAddress) (protocol.SwitchID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.entries[mac]
	return id, ok
}

// Snapshot returns a copy of every entry, for cache persistence.
func (t *Table) Snapshot() map[protocol.MacAddress]protocol.SwitchID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[protocol.MacAddress]protocol.SwitchID, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Load replaces the table's contents, used when restoring from cache.
func (t *Table) Load(entries map[protocol.MacAddress]protocol.SwitchID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[protocol.MacAddress]protocol.SwitchID, len(entries))
	for k, v := range entries {
		t.entries[k] = v
	}
}

// Set owns one Table per VRF, keyed by VrfId. It is itself
// reader/writer-locked because VRF deletion removes a whole per-VRF table
// (spec §4.3 Delete, Invariant 5).
type Set struct {
	mu     sync.RWMutex
	tables map[protocol.VrfID]*Table
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{tables: make(map[protocol.VrfID]*Table)}
}

// For returns the Table for vrfID, creating it if absent.
func (s *Set) For(vrfID protocol.VrfID) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[vrfID]
	if !ok {
		t = NewTable()
		s.tables[vrfID] = t
	}
	return t
}

// LoadAll replaces the Set's contents wholesale with the given per-VRF
// entries, used once at startup to restore from the persisted cache.
func (s *Set) LoadAll(byVrf map[protocol.VrfID]map[protocol.MacAddress]protocol.SwitchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[protocol.VrfID]*Table, len(byVrf))
	for vrfID, entries := range byVrf {
		t := NewTable()
		t.Load(entries)
		s.tables[vrfID] = t
	}
}

// Drop removes the table for vrfID, if any (spec §4.3 Delete).
func (s *Set) Drop(vrfID protocol.VrfID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, vrfID)
}

// Snapshot returns, for every VRF with a table, its MAC entries — used to
// build the persisted cache.
func (s *Set) Snapshot() map[protocol.VrfID]map[protocol.MacAddress]protocol.SwitchID {
	s.mu.RLock()
	tables := make(map[protocol.VrfID]*Table, len(s.tables))
	for id, t := range s.tables {
		tables[id] = t
	}
	s.mu.RUnlock()

	out := make(map[protocol.VrfID]map[protocol.MacAddress]protocol.SwitchID, len(tables))
	for id, t := range tables {
		out[id] = t.Snapshot()
	}
	return out
}
