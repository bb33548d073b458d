package tapmgr

import (
	"log/slog"

	"github.com/aytixel/dwitch/internal/learning"
	"github.com/aytixel/dwitch/internal/peer"
	"github.com/aytixel/dwitch/internal/protocol"
	"github.com/aytixel/dwitch/internal/tap"
)

// NewWorkerForTest builds a Worker wired to a fake tap.Device, skipping
// namespace/TAP kernel setup, so the egress/ingress data-plane logic can
// be exercised without root privileges.
func NewWorkerForTest(vrfID protocol.VrfID, localID protocol.SwitchID, registry *peer.Registry, members MemberLister, table *learning.Table, dev tap.Device) *Worker {
	w := newWorker(vrfID, "test", localID, registry, members, table, "", slog.Default())
	w.startWithDevice(dev)
	return w
}
