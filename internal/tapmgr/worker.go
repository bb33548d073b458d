// Package tapmgr implements TapManager and TapWorker (spec §4.4): the
// mapping from VrfId to a running per-VRF TAP worker, each owning one TAP
// device inside its own network namespace and driving the MAC-learning
// data plane between that device and the rest of the cluster.
package tapmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aytixel/dwitch/internal/learning"
	"github.com/aytixel/dwitch/internal/netns"
	"github.com/aytixel/dwitch/internal/peer"
	"github.com/aytixel/dwitch/internal/protocol"
	"github.com/aytixel/dwitch/internal/tap"
)

// Ingress is one frame arriving from a peer, destined for the worker's TAP.
type Ingress struct {
	Origin protocol.SwitchID
	Data   []byte
}

// MemberLister resolves a VRF's current member set for flooding. Backed
// by *vrf.Store in production; satisfied by a fake in tests.
type MemberLister interface {
	Members(vrfID protocol.VrfID) []protocol.SwitchID
}

// Worker owns one TAP device and one namespace, paired with a bounded
// ingress queue, for exactly one VRF (spec §4.4).
type Worker struct {
	vrfID    protocol.VrfID
	nsName   string
	nsDir    string
	localID  protocol.SwitchID
	registry *peer.Registry
	members  MemberLister
	table    *learning.Table
	log      *slog.Logger

	dev     tap.Device
	ingress *ingressQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ingressQueue is a bounded, non-blocking, safely-closeable FIFO — the
// same shedding discipline as peer.Queue, applied to frames arriving from
// peers for this worker's TAP (spec §4.4, §5 Backpressure).
type ingressQueue struct {
	ch chan Ingress
}

func newIngressQueue() *ingressQueue {
	return &ingressQueue{ch: make(chan Ingress, protocol.PeerQueueCapacity)}
}

func (q *ingressQueue) Send(item Ingress) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

func (q *ingressQueue) Close() {
	defer func() { recover() }()
	close(q.ch)
}

// newWorker creates a Worker's in-memory state without touching the
// kernel; Start performs the actual TAP/namespace setup.
func newWorker(vrfID protocol.VrfID, nsName string, localID protocol.SwitchID, registry *peer.Registry, members MemberLister, table *learning.Table, nsDir string, log *slog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		vrfID:    vrfID,
		nsName:   nsName,
		nsDir:    nsDir,
		localID:  localID,
		registry: registry,
		members:  members,
		table:    table,
		log:      log.With("vrf", vrfID),
		ingress:  newIngressQueue(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start creates the namespace and TAP device, brings the interface up,
// and spawns the egress and ingress tasks (spec §4.4).
func (w *Worker) Start() error {
	if err := netns.Create(w.nsDir, w.nsName); err != nil {
		return fmt.Errorf("tapmgr: create namespace %s: %w", w.nsName, err)
	}

	dev, err := w.createTAPInNamespace()
	if err != nil {
		_ = netns.Delete(w.nsDir, w.nsName)
		return err
	}
	w.startLoops(dev)
	return nil
}

// startWithDevice bypasses namespace/TAP creation entirely, driving the
// egress/ingress loops against a caller-supplied tap.Device. It exists so
// the data-plane logic can be exercised in tests without root privileges
// or a real kernel TAP device.
func (w *Worker) startWithDevice(dev tap.Device) {
	w.startLoops(dev)
}

func (w *Worker) startLoops(dev tap.Device) {
	w.dev = dev
	w.wg.Add(2)
	go w.egressLoop()
	go w.ingressLoop()
}

func (w *Worker) createTAPInNamespace() (tap.Device, error) {
	handle, err := netns.Enter(w.nsDir, w.nsName)
	if err != nil {
		return nil, fmt.Errorf("tapmgr: enter namespace %s: %w", w.nsName, err)
	}
	defer func() {
		if cerr := handle.Close(); cerr != nil {
			w.log.Error("restore namespace after tap create", "err", cerr)
		}
	}()

	dev, err := tap.New("")
	if err != nil {
		return nil, fmt.Errorf("tapmgr: create tap device: %w", err)
	}
	if err := dev.SetUp(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("tapmgr: bring tap up: %w", err)
	}
	return dev, nil
}

// Deliver enqueues a frame arriving from a peer for this worker's TAP. It
// reports false if the queue is full, matching the non-blocking-send
// backpressure of peer.Queue.
func (w *Worker) Deliver(item Ingress) bool {
	return w.ingress.Send(item)
}

// egressLoop reads frames from the TAP and routes them to a learned peer
// or floods them to the VRF's members (spec §4.4 TAP→network).
func (w *Worker) egressLoop() {
	defer w.wg.Done()
	buf := make([]byte, protocol.MaxBufferSize)
	for {
		if w.ctx.Err() != nil {
			return
		}
		n, err := w.dev.Read(buf)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.log.Error("tap read", "err", err)
			continue
		}

		hdr, err := learning.ParseHeader(buf[:n])
		if err != nil {
			continue // too short to be a valid ethernet frame; drop
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		pkt := protocol.DataPacket{VrfID: w.vrfID, Data: frame}

		if dest, ok := w.table.Lookup(hdr.Dst); ok {
			if w.registry.SendTo(dest, pkt) {
				continue
			}
			// Learned peer not currently registered: fall back to flood.
		}
		w.registry.Flood(w.members.Members(w.vrfID), pkt)
	}
}

// ingressLoop receives frames from peers, learns the source MAC, and
// writes into the TAP (spec §4.4 network→TAP).
func (w *Worker) ingressLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case item, ok := <-w.ingress.ch:
			if !ok {
				return
			}
			hdr, err := learning.ParseHeader(item.Data)
			if err != nil {
				continue
			}
			w.table.Learn(hdr.Src, item.Origin)
			if _, err := w.dev.Write(item.Data); err != nil {
				w.log.Error("tap write", "err", err)
			}
		}
	}
}

// Stop aborts both tasks, releases the TAP fd, then unmounts and unlinks
// the namespace (spec §4.4 Shutdown, §4.5, §5 Resource scoping). The fd is
// closed before waiting for the tasks, since closing it is what unblocks an
// egressLoop parked in Read.
func (w *Worker) Stop() {
	w.cancel()
	w.ingress.Close()
	if w.dev != nil {
		if err := w.dev.Close(); err != nil {
			w.log.Error("close tap device", "err", err)
		}
	}
	w.wg.Wait()
	if err := netns.Delete(w.nsDir, w.nsName); err != nil {
		w.log.Error("delete namespace", "err", err)
	}
}
