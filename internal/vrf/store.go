// Package vrf implements VrfStore, the replicated table of VRFs, and the
// control-plane operations that mutate it (spec §4.3). VrfStore itself
// only tracks state and membership; it knows nothing about TAP devices or
// peer connections — callers (internal/daemon) sequence it with
// internal/tapmgr under the lock ordering spec §5 requires.
package vrf

import (
	"sort"
	"sync"

	"github.com/aytixel/dwitch/internal/protocol"
)

// Store is the process-wide, reader/writer-locked VRF table.
type Store struct {
	mu    sync.RWMutex
	byID  map[protocol.VrfID]protocol.Vrf
	names map[string]protocol.VrfID
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byID:  make(map[protocol.VrfID]protocol.Vrf),
		names: make(map[string]protocol.VrfID),
	}
}

// Get returns a clone of the VRF with the given id.
func (s *Store) Get(id protocol.VrfID) (protocol.Vrf, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	if !ok {
		return protocol.Vrf{}, false
	}
	return v.Clone(), true
}

// Has reports whether id exists.
func (s *Store) Has(id protocol.VrfID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// All returns a clone of every VRF, ordered by id, for List replies and
// cache snapshots.
func (s *Store) All() []protocol.Vrf {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Vrf, 0, len(s.byID))
	for _, v := range s.byID {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Create inserts v if neither its id nor its name already exist (spec
// Invariant 4). It reports whether the insert happened. The caller is
// responsible for creating/destroying any TapWorker under the combined
// VrfStore→TapManager lock ordering (spec §4.3, §5); Create itself takes
// only the Store's own lock.
func (s *Store) Create(v protocol.Vrf) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[v.ID]; exists {
		return false
	}
	if _, exists := s.names[v.Name]; exists {
		return false
	}
	stored := v.Clone()
	s.byID[v.ID] = stored
	s.names[v.Name] = v.ID
	return true
}

// Delete removes id if present, returning the removed VRF and whether it
// existed.
func (s *Store) Delete(id protocol.VrfID) (protocol.Vrf, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return protocol.Vrf{}, false
	}
	delete(s.byID, id)
	delete(s.names, v.Name)
	return v, true
}

// AddMembers adds each of members to id's member set, ignoring unknown
// ids. It returns the set of members that were newly added (not already
// present), which the caller uses to decide TapWorker creation for the
// local switch id.
func (s *Store) AddMembers(id protocol.VrfID, members []protocol.SwitchID) []protocol.SwitchID {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return nil
	}
	var added []protocol.SwitchID
	for _, m := range members {
		if _, present := v.Members[m]; !present {
			v.Members[m] = struct{}{}
			added = append(added, m)
		}
	}
	s.byID[id] = v
	return added
}

// RemoveMembers removes each of members from id's member set, ignoring
// unknown ids. It returns the set of members that were actually present.
func (s *Store) RemoveMembers(id protocol.VrfID, members []protocol.SwitchID) []protocol.SwitchID {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return nil
	}
	var removed []protocol.SwitchID
	for _, m := range members {
		if _, present := v.Members[m]; present {
			delete(v.Members, m)
			removed = append(removed, m)
		}
	}
	s.byID[id] = v
	return removed
}

// Members returns the member switch ids of vrf id, for internal/tapmgr's
// flood fallback (tapmgr.MemberLister). Unknown ids report an empty set.
func (s *Store) Members(id protocol.VrfID) []protocol.SwitchID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	if !ok {
		return nil
	}
	out := make([]protocol.SwitchID, 0, len(v.Members))
	for m := range v.Members {
		out = append(out, m)
	}
	return out
}

// IsMember reports whether switchID is in vrf id's member set.
func (s *Store) IsMember(id protocol.VrfID, switchID protocol.SwitchID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	if !ok {
		return false
	}
	_, present := v.Members[switchID]
	return present
}

// Load replaces the store's contents wholesale, used once at startup to
// restore from the persisted cache (spec §4.3/§5). Unlike Create, it does
// not check for id/name collisions: the store is assumed empty, which
// holds at boot before any control traffic has been processed.
func (s *Store) Load(vrfs []protocol.Vrf) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[protocol.VrfID]protocol.Vrf, len(vrfs))
	s.names = make(map[string]protocol.VrfID, len(vrfs))
	for _, v := range vrfs {
		stored := v.Clone()
		s.byID[v.ID] = stored
		s.names[v.Name] = v.ID
	}
}

// Chunks splits All() into groups of at most protocol.VrfListChunkSize,
// for the List response streaming protocol (spec §4.3).
func Chunks(vrfs []protocol.Vrf) [][]protocol.Vrf {
	if len(vrfs) == 0 {
		return nil
	}
	var chunks [][]protocol.Vrf
	for len(vrfs) > 0 {
		n := protocol.VrfListChunkSize
		if n > len(vrfs) {
			n = len(vrfs)
		}
		chunks = append(chunks, vrfs[:n])
		vrfs = vrfs[n:]
	}
	return chunks
}
