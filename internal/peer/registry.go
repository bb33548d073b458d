// Package peer implements PeerRegistry, the single source of truth for
// "who can I send packets to": a mapping from SwitchId to the bounded
// outbound queue of a live, handshake-completed peer session.
package peer

import (
	"fmt"
	"sync"

	"github.com/aytixel/dwitch/internal/protocol"
)

// Queue is a bounded FIFO of outbound packets for one peer session.
// Send never blocks: a full queue drops the packet and reports it, which
// is how backpressure sheds load per §4.2.
type Queue struct {
	ch chan protocol.Packet
}

// NewQueue creates a Queue with the standard peer/worker capacity.
func NewQueue() *Queue {
	return &Queue{ch: make(chan protocol.Packet, protocol.PeerQueueCapacity)}
}

// Send enqueues p without blocking. It reports false if the queue is full
// or closed; a concurrent Close racing this call never panics.
func (q *Queue) Send(p protocol.Packet) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case q.ch <- p:
		return true
	default:
		return false
	}
}

// C exposes the receive side for the session's multiplex loop.
func (q *Queue) C() <-chan protocol.Packet {
	return q.ch
}

// Close closes the queue, which ends the session's drain loop; any later
// Send reports false.
func (q *Queue) Close() {
	defer func() { recover() }()
	close(q.ch)
}

// Registry maps SwitchId to the outbound Queue of its established session.
// Entry presence is exactly "a TCP session to this peer is Established and
// has completed identity exchange" (spec Invariant 3).
type Registry struct {
	mu    sync.RWMutex
	peers map[protocol.SwitchID]*Queue
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{peers: make(map[protocol.SwitchID]*Queue)}
}

// Register inserts id's queue, refusing the reserved configuration id.
func (r *Registry) Register(id protocol.SwitchID, q *Queue) error {
	if id == protocol.ConfigurationSwitchID {
		return fmt.Errorf("peer: refusing to register reserved switch id 0")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[id] = q
	return nil
}

// Unregister removes id, if present.
func (r *Registry) Unregister(id protocol.SwitchID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Get returns the queue for id, and whether it was present.
func (r *Registry) Get(id protocol.SwitchID) (*Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.peers[id]
	return q, ok
}

// SendTo enqueues p on peer id's queue. It returns false if the peer is
// not registered or its queue is full.
func (r *Registry) SendTo(id protocol.SwitchID, p protocol.Packet) bool {
	q, ok := r.Get(id)
	if !ok {
		return false
	}
	return q.Send(p)
}

// Flood enqueues p onto every peer in ids, skipping any that are not
// registered. It returns the number of peers the packet was accepted by.
func (r *Registry) Flood(ids []protocol.SwitchID, p protocol.Packet) int {
	sent := 0
	for _, id := range ids {
		if r.SendTo(id, p) {
			sent++
		}
	}
	return sent
}

// BroadcastAll enqueues p onto every currently registered peer.
func (r *Registry) BroadcastAll(p protocol.Packet) int {
	r.mu.RLock()
	ids := make([]protocol.SwitchID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	return r.Flood(ids, p)
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
