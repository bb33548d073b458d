package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/aytixel/dwitch/internal/learning"
	"github.com/aytixel/dwitch/internal/vrf"
)

// snapshotInterval is how often the daemon persists VrfStore and the
// learning tables (spec §5).
const snapshotInterval = 1 * time.Second

// Restore loads path into store and tables at startup. A missing or
// corrupt file leaves both empty, which is a valid cold-start state.
func Restore(path string, store *vrf.Store, tables *learning.Set, log *slog.Logger) {
	snap := Load(path)
	store.Load(snap.Vrfs)
	tables.LoadAll(snap.Learning)
	log.Info("cache restored", "path", path, "vrfs", len(snap.Vrfs))
}

// Run snapshots store and tables to path once a second until ctx is
// cancelled.
func Run(ctx context.Context, path string, store *vrf.Store, tables *learning.Set, log *slog.Logger) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := Snapshot{Vrfs: store.All(), Learning: tables.Snapshot()}
			if err := Save(path, snap); err != nil {
				log.Error("cache save", "err", err)
			}
		}
	}
}
