package connlayer

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/aytixel/dwitch/internal/peer"
	"github.com/aytixel/dwitch/internal/protocol"
)

// state is the per-session lifecycle (spec §4.2): Connecting → Handshaking
// → Established → Closing. Only Established registers in PeerRegistry;
// leaving Established, for any reason, unregisters.
type state int

const (
	stateConnecting state = iota
	stateHandshaking
	stateEstablished
	stateClosing
)

// handshake exchanges each side's SwitchId immediately after connect
// (spec §4.2). Either side failing to send, sending short, or failing to
// decode drops the connection without touching any table.
func handshake(conn net.Conn, localID protocol.SwitchID, timeout time.Duration) (protocol.SwitchID, error) {
	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(protocol.EncodeSwitchID(localID)); err != nil {
		return 0, fmt.Errorf("connlayer: handshake send: %w", err)
	}
	var buf [4]byte
	if _, err := readFull(conn, buf[:]); err != nil {
		return 0, fmt.Errorf("connlayer: handshake recv: %w", err)
	}
	peerID, err := protocol.DecodeSwitchID(buf[:])
	if err != nil {
		return 0, fmt.Errorf("connlayer: handshake decode: %w", err)
	}
	return peerID, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// connWriter serializes frame writes onto one socket: the queue-drain
// writer and the read loop's direct replies (ping echo, list chunks) both
// write through it.
type connWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *connWriter) write(p protocol.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return writeFrame(w.conn, p)
}

// session is the Established-state behaviour shared by both accepted and
// dialed connections (spec §4.2): drain the outbound queue onto the
// socket, read and dispatch inbound packets, and track a liveness
// deadline that closes the session on silence.
type session struct {
	conn     net.Conn
	peerID   protocol.SwitchID
	localID  protocol.SwitchID
	registry *peer.Registry
	control  ControlPlane
	data     DataPlane
	timing   Timing
	log      *slog.Logger

	// inbound is true for a session behind an accepted connection (Server)
	// and false for one behind a dialed connection (Connector). Spec §4.2
	// is asymmetric: only the inbound side echoes a Ping back; the
	// outbound side only resets its liveness deadline on receipt (done
	// unconditionally in readLoop) and originates its own unsolicited
	// Pings from session.heartbeat. Echoing on both sides would reflect
	// every Ping forever between the two peers.
	inbound bool

	writer *connWriter
	queue  *peer.Queue
	done   chan struct{}

	mu    sync.Mutex
	state state
}

func (s *session) setState(st state) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func newSession(conn net.Conn, peerID, localID protocol.SwitchID, registry *peer.Registry, control ControlPlane, data DataPlane, timing Timing, inbound bool, log *slog.Logger) *session {
	return &session{
		conn:     conn,
		peerID:   peerID,
		localID:  localID,
		registry: registry,
		control:  control,
		data:     data,
		timing:   timing,
		inbound:  inbound,
		log:      log.With("peer", peerID),
		writer:   &connWriter{conn: conn},
		queue:    peer.NewQueue(),
		done:     make(chan struct{}),
		state:    stateHandshaking,
	}
}

// run registers the session's queue, drains it to the socket on a
// background goroutine, and reads+dispatches until the connection closes
// or goes silent for PING_TIMEOUT. It unregisters before returning.
// run is the Established-state body. The reserved configuration id
// (operator control connections) is never entered into PeerRegistry
// (Invariant 6): such a session still reads, handshakes, and dispatches
// normally, it just never receives broadcast or unicast data-plane
// traffic, since nothing can address it there.
func (s *session) run() {
	isOperator := s.peerID == protocol.ConfigurationSwitchID
	if !isOperator {
		if err := s.registry.Register(s.peerID, s.queue); err != nil {
			s.log.Error("register peer", "err", err)
			close(s.done)
			return
		}
		defer s.registry.Unregister(s.peerID)
	}
	s.setState(stateEstablished)

	drained := make(chan struct{})
	go s.drainLoop(drained)
	defer func() {
		s.setState(stateClosing)
		s.queue.Close()
		<-drained
		close(s.done)
	}()

	s.readLoop()
}

func (s *session) drainLoop(done chan<- struct{}) {
	defer close(done)
	for pkt := range s.queue.C() {
		if err := s.writer.write(pkt); err != nil {
			s.log.Debug("write to peer", "err", err)
			s.conn.Close()
			return
		}
	}
}

func (s *session) readLoop() {
	for {
		s.conn.SetReadDeadline(time.Now().Add(s.timing.PingTimeout))
		pkt, err := readFrame(s.conn)
		if err != nil {
			s.log.Debug("session read ended", "err", err)
			return
		}
		s.dispatch(pkt)
	}
}

func (s *session) dispatch(pkt protocol.Packet) {
	switch v := pkt.(type) {
	case protocol.PingPacket:
		// Only the inbound (server) side echoes (spec §4.2); the outbound
		// side's readLoop resetting the read deadline above is its entire
		// response to an inbound Ping. Echoing on both sides would
		// reflect every Ping back and forth forever.
		if s.inbound {
			if err := s.writer.write(protocol.PingPacket{}); err != nil {
				s.log.Debug("ping echo", "err", err)
			}
		}
	case protocol.DataPacket:
		s.data.Deliver(v.VrfID, s.peerID, v.Data)
	case protocol.VrfActionPacket:
		s.dispatchAction(v.Action)
	default:
		s.log.Warn("unexpected packet type", "type", fmt.Sprintf("%T", pkt))
	}
}

// dispatchAction applies a control-plane mutation, rebroadcasting it first
// when it originated from the operator control channel (spec §4.2).
func (s *session) dispatchAction(action protocol.VrfAction) {
	if list, ok := action.(protocol.VrfActionList); ok {
		if list.Chunk == nil {
			s.replyList()
		}
		return
	}

	if s.peerID == protocol.ConfigurationSwitchID {
		s.registry.BroadcastAll(protocol.VrfActionPacket{Action: action})
	}

	switch v := action.(type) {
	case protocol.VrfActionCreate:
		s.control.Create(v.Vrf)
	case protocol.VrfActionDelete:
		s.control.Delete(v.ID)
	case protocol.VrfActionAddMember:
		s.control.AddMembers(v.ID, v.Members)
	case protocol.VrfActionRemoveMember:
		s.control.RemoveMembers(v.ID, v.Members)
	}
}

// replyList streams the VRF table back in chunks of at most
// VrfListChunkSize, terminated by an empty chunk, then flushes (spec §4.3
// List).
func (s *session) replyList() {
	all := s.control.List()
	for len(all) > 0 {
		n := protocol.VrfListChunkSize
		if n > len(all) {
			n = len(all)
		}
		chunk := all[:n]
		all = all[n:]
		if err := s.writer.write(protocol.VrfActionPacket{Action: protocol.VrfActionList{Chunk: chunk}}); err != nil {
			s.log.Debug("list reply", "err", err)
			return
		}
	}
	if err := s.writer.write(protocol.VrfActionPacket{Action: protocol.VrfActionList{Chunk: []protocol.Vrf{}}}); err != nil {
		s.log.Debug("list reply terminator", "err", err)
	}
}
