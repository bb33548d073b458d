package tapmgr

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/aytixel/dwitch/internal/learning"
	"github.com/aytixel/dwitch/internal/peer"
	"github.com/aytixel/dwitch/internal/protocol"
)

// Manager is the process-wide mapping from VrfId to a running TapWorker
// (spec §4.4): an entry exists iff the local node is a member of that
// VRF (spec Invariant 2).
type Manager struct {
	mu      sync.RWMutex
	workers map[protocol.VrfID]*Worker

	localID  protocol.SwitchID
	registry *peer.Registry
	members  MemberLister
	tables   *learning.Set
	nsDir    string
	log      *slog.Logger
}

// New creates an empty Manager.
func New(localID protocol.SwitchID, registry *peer.Registry, members MemberLister, tables *learning.Set, nsDir string, log *slog.Logger) *Manager {
	return &Manager{
		workers:  make(map[protocol.VrfID]*Worker),
		localID:  localID,
		registry: registry,
		members:  members,
		tables:   tables,
		nsDir:    nsDir,
		log:      log.With("component", "tapmgr"),
	}
}

// Has reports whether a worker exists for vrfID.
func (m *Manager) Has(vrfID protocol.VrfID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.workers[vrfID]
	return ok
}

// Get returns the worker for vrfID, for data-plane delivery.
func (m *Manager) Get(vrfID protocol.VrfID) (*Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[vrfID]
	return w, ok
}

// EnsureStarted creates and starts a worker for v if one doesn't already
// exist. Failure to set up the TAP/namespace is logged and reported, but
// — per spec §7's "Namespace / TAP setup failure" policy — the caller
// must still let the VRF be inserted into VrfStore; the node simply
// remains a passive member with no local worker.
func (m *Manager) EnsureStarted(v protocol.Vrf) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workers[v.ID]; ok {
		return nil
	}
	w := newWorker(v.ID, v.Name, m.localID, m.registry, m.members, m.tables.For(v.ID), m.nsDir, m.log)
	if err := w.Start(); err != nil {
		return fmt.Errorf("tapmgr: start worker for vrf %d (%s): %w", v.ID, v.Name, err)
	}
	m.workers[v.ID] = w
	return nil
}

// Stop destroys the worker for vrfID, if present, tearing down its TAP
// and namespace (spec §4.3 Delete/RemoveMember, §4.4 Shutdown).
func (m *Manager) Stop(vrfID protocol.VrfID) {
	m.mu.Lock()
	w, ok := m.workers[vrfID]
	if ok {
		delete(m.workers, vrfID)
	}
	m.mu.Unlock()
	if ok {
		w.Stop()
	}
}

// Len returns the number of running workers, for diagnostics/tests.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}
