package connlayer

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/aytixel/dwitch/internal/peer"
	"github.com/aytixel/dwitch/internal/protocol"
)

type delivery struct {
	vrfID  protocol.VrfID
	origin protocol.SwitchID
	data   []byte
}

type fakeControl struct {
	mu       sync.Mutex
	vrfs     []protocol.Vrf
	created  []protocol.Vrf
	deleted  []protocol.VrfID
	added    []protocol.VrfActionAddMember
	removed  []protocol.VrfActionRemoveMember
}

func (f *fakeControl) List() []protocol.Vrf {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Vrf{}, f.vrfs...)
}

func (f *fakeControl) Create(v protocol.Vrf) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, v)
}

func (f *fakeControl) Delete(id protocol.VrfID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

func (f *fakeControl) AddMembers(id protocol.VrfID, members []protocol.SwitchID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, protocol.VrfActionAddMember{ID: id, Members: members})
}

func (f *fakeControl) RemoveMembers(id protocol.VrfID, members []protocol.SwitchID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, protocol.VrfActionRemoveMember{ID: id, Members: members})
}

type fakeData struct {
	mu        sync.Mutex
	delivered []delivery
}

func (f *fakeData) Deliver(vrfID protocol.VrfID, origin protocol.SwitchID, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, delivery{vrfID, origin, data})
	return true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandshakeExchangesIDs(t *testing.T) {
	// handshake writes its own id before reading the peer's. A loopback TCP
	// pair buffers that write; net.Pipe does not, and would leave both ends
	// blocked in Write until the deadline.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	acceptedCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(acceptedCh)
			return
		}
		acceptedCh <- conn
	}()
	b, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()
	a, ok := <-acceptedCh
	if !ok {
		t.Fatal("accept failed")
	}
	defer a.Close()

	type result struct {
		id  protocol.SwitchID
		err error
	}
	ch := make(chan result, 1)
	go func() {
		id, err := handshake(a, 1, time.Second)
		ch <- result{id, err}
	}()

	id, err := handshake(b, 2, time.Second)
	if err != nil {
		t.Fatalf("handshake b: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected b to learn id 1, got %d", id)
	}

	r := <-ch
	if r.err != nil {
		t.Fatalf("handshake a: %v", r.err)
	}
	if r.id != 2 {
		t.Fatalf("expected a to learn id 2, got %d", r.id)
	}
}

func TestSessionEchoesPing(t *testing.T) {
	a, b := net.Pipe()
	registry := peer.New()
	control := &fakeControl{}
	data := &fakeData{}

	s := newSession(a, 5, 1, registry, control, data, DefaultTiming(), true, testLogger())
	go s.run()

	if err := writeFrame(b, protocol.PingPacket{}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	pkt, err := readFrame(b)
	if err != nil {
		t.Fatalf("read ping echo: %v", err)
	}
	if _, ok := pkt.(protocol.PingPacket); !ok {
		t.Fatalf("expected ping echo, got %+v", pkt)
	}
	b.Close()
}

func TestSessionDispatchesData(t *testing.T) {
	a, b := net.Pipe()
	registry := peer.New()
	control := &fakeControl{}
	data := &fakeData{}

	s := newSession(a, 5, 1, registry, control, data, DefaultTiming(), true, testLogger())
	done := make(chan struct{})
	go func() { s.run(); close(done) }()

	writeFrame(b, protocol.DataPacket{VrfID: 9, Data: []byte("frame")})
	b.Close()
	<-done

	data.mu.Lock()
	defer data.mu.Unlock()
	if len(data.delivered) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(data.delivered))
	}
	if data.delivered[0].vrfID != 9 || data.delivered[0].origin != 5 || string(data.delivered[0].data) != "frame" {
		t.Fatalf("unexpected delivery: %+v", data.delivered[0])
	}
}

func TestSessionAppliesAndRebroadcastsOperatorAction(t *testing.T) {
	a, b := net.Pipe()
	registry := peer.New()
	control := &fakeControl{}
	data := &fakeData{}

	otherQueue := peer.NewQueue()
	registry.Register(2, otherQueue)

	s := newSession(a, protocol.ConfigurationSwitchID, 1, registry, control, data, DefaultTiming(), true, testLogger())
	done := make(chan struct{})
	go func() { s.run(); close(done) }()

	v := protocol.Vrf{ID: 10, Name: "v", Members: map[protocol.SwitchID]struct{}{1: {}}}
	writeFrame(b, protocol.VrfActionPacket{Action: protocol.VrfActionCreate{Vrf: v}})
	b.Close()
	<-done

	select {
	case pkt := <-otherQueue.C():
		action, ok := pkt.(protocol.VrfActionPacket)
		if !ok {
			t.Fatalf("expected VrfActionPacket, got %+v", pkt)
		}
		create, ok := action.Action.(protocol.VrfActionCreate)
		if !ok || create.Vrf.ID != 10 {
			t.Fatalf("unexpected rebroadcast action: %+v", action)
		}
	default:
		t.Fatal("expected rebroadcast to peer 2's queue")
	}

	control.mu.Lock()
	defer control.mu.Unlock()
	if len(control.created) != 1 || control.created[0].ID != 10 {
		t.Fatalf("expected local Create application, got %+v", control.created)
	}
}

func TestSessionDoesNotRebroadcastNonOperatorAction(t *testing.T) {
	a, b := net.Pipe()
	registry := peer.New()
	control := &fakeControl{}
	data := &fakeData{}

	otherQueue := peer.NewQueue()
	registry.Register(2, otherQueue)

	s := newSession(a, 3, 1, registry, control, data, DefaultTiming(), true, testLogger())
	done := make(chan struct{})
	go func() { s.run(); close(done) }()

	writeFrame(b, protocol.VrfActionPacket{Action: protocol.VrfActionDelete{ID: 10}})
	b.Close()
	<-done

	select {
	case pkt := <-otherQueue.C():
		t.Fatalf("unexpected rebroadcast from a non-operator peer: %+v", pkt)
	default:
	}

	control.mu.Lock()
	defer control.mu.Unlock()
	if len(control.deleted) != 1 || control.deleted[0] != 10 {
		t.Fatalf("expected local Delete application, got %+v", control.deleted)
	}
}

func TestSessionStreamsListReplyInChunks(t *testing.T) {
	a, b := net.Pipe()
	registry := peer.New()
	control := &fakeControl{}
	for i := 0; i < 15; i++ {
		control.vrfs = append(control.vrfs, protocol.Vrf{ID: protocol.VrfID(i), Name: "v", Members: map[protocol.SwitchID]struct{}{}})
	}
	data := &fakeData{}

	s := newSession(a, 5, 1, registry, control, data, DefaultTiming(), true, testLogger())
	go s.run()
	defer a.Close()

	writeFrame(b, protocol.VrfActionPacket{Action: protocol.VrfActionList{Chunk: nil}})

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	first, err := readFrame(b)
	if err != nil {
		t.Fatalf("read first chunk: %v", err)
	}
	firstChunk := first.(protocol.VrfActionPacket).Action.(protocol.VrfActionList).Chunk
	if len(firstChunk) != protocol.VrfListChunkSize {
		t.Fatalf("expected chunk of %d, got %d", protocol.VrfListChunkSize, len(firstChunk))
	}

	second, err := readFrame(b)
	if err != nil {
		t.Fatalf("read second chunk: %v", err)
	}
	secondChunk := second.(protocol.VrfActionPacket).Action.(protocol.VrfActionList).Chunk
	if len(secondChunk) != 5 {
		t.Fatalf("expected chunk of 5, got %d", len(secondChunk))
	}

	term, err := readFrame(b)
	if err != nil {
		t.Fatalf("read terminator: %v", err)
	}
	termChunk := term.(protocol.VrfActionPacket).Action.(protocol.VrfActionList).Chunk
	if len(termChunk) != 0 {
		t.Fatalf("expected empty terminator chunk, got %d entries", len(termChunk))
	}
	b.Close()
}

func TestOperatorSessionNotRegistered(t *testing.T) {
	a, b := net.Pipe()
	registry := peer.New()
	control := &fakeControl{}
	data := &fakeData{}

	s := newSession(a, protocol.ConfigurationSwitchID, 1, registry, control, data, DefaultTiming(), true, testLogger())
	done := make(chan struct{})
	go func() { s.run(); close(done) }()

	time.Sleep(20 * time.Millisecond)
	if registry.Len() != 0 {
		t.Fatalf("operator session must not be registered, registry has %d entries", registry.Len())
	}
	b.Close()
	<-done
}

func TestSessionClosesOnPingTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	registry := peer.New()
	control := &fakeControl{}
	data := &fakeData{}

	timing := DefaultTiming()
	timing.PingTimeout = 50 * time.Millisecond

	s := newSession(a, 5, 1, registry, control, data, timing, true, testLogger())
	done := make(chan struct{})
	go func() { s.run(); close(done) }()

	// Neither side writes anything; the session must give up once
	// PingTimeout passes in silence (spec §4.2, Testable Property S5) and
	// unregister itself.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close after ping timeout silence")
	}
	if registry.Len() != 0 {
		t.Fatalf("expected session to unregister on timeout, registry has %d entries", registry.Len())
	}
}

func TestOutboundSessionDoesNotEchoPing(t *testing.T) {
	a, b := net.Pipe()
	registry := peer.New()
	control := &fakeControl{}
	data := &fakeData{}

	s := newSession(a, 5, 1, registry, control, data, DefaultTiming(), false, testLogger())
	done := make(chan struct{})
	go func() { s.run(); close(done) }()

	if err := writeFrame(b, protocol.PingPacket{}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	// Give the session a chance to (wrongly) echo, then confirm nothing
	// arrives: spec §4.2 has only the inbound side echo a Ping, so an
	// outbound (Connector) session must never write one back.
	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, err := readFrame(b); err == nil {
		t.Fatal("expected no ping echo from an outbound session")
	}
	b.Close()
	<-done
}
