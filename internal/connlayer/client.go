package connlayer

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/aytixel/dwitch/internal/peer"
	"github.com/aytixel/dwitch/internal/protocol"
)

// Connector is one configured peer address's outbound reconnect loop
// (spec §4.2 Outbound side). It runs until ctx is cancelled, dialling,
// handshaking, and driving an Established session, then looping back to
// dial again whenever the session ends.
type Connector struct {
	addr     string
	localID  protocol.SwitchID
	registry *peer.Registry
	control  ControlPlane
	data     DataPlane
	timing   Timing
	log      *slog.Logger
}

// NewConnector creates a reconnect loop for one configured peer address.
func NewConnector(addr string, localID protocol.SwitchID, registry *peer.Registry, control ControlPlane, data DataPlane, timing Timing, log *slog.Logger) *Connector {
	return &Connector{
		addr:     addr,
		localID:  localID,
		registry: registry,
		control:  control,
		data:     data,
		timing:   timing,
		log:      log.With("component", "connector", "addr", addr),
	}
}

// Run blocks, dialling and redialling until ctx is cancelled.
func (c *Connector) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", c.addr)
		if err != nil {
			c.log.Debug("dial failed", "err", err)
			if !sleepOrDone(ctx, c.timing.ConnectRetry) {
				return
			}
			continue
		}

		peerID, err := handshake(conn, c.localID, c.timing.PingTimeout)
		if err != nil {
			c.log.Warn("handshake failed", "err", err)
			conn.Close()
			if !sleepOrDone(ctx, c.timing.ConnectRetry) {
				return
			}
			continue
		}

		c.log.Info("peer connected", "peer", peerID)
		s := newSession(conn, peerID, c.localID, c.registry, c.control, c.data, c.timing, false, c.log)

		heartbeatDone := make(chan struct{})
		go func() {
			defer close(heartbeatDone)
			s.heartbeat()
		}()

		s.run()
		conn.Close()
		<-heartbeatDone
		c.log.Info("peer disconnected", "peer", peerID)

		if ctx.Err() != nil {
			return
		}
	}
}

// heartbeat enqueues a Ping every PING_INTERVAL until the session ends
// (spec §4.2 step 4: "terminates when the queue is closed"). A dropped
// ping under backpressure doesn't end the heartbeat by itself — only the
// session's own lifetime does.
func (s *session) heartbeat() {
	ticker := time.NewTicker(s.timing.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.queue.Send(protocol.PingPacket{})
		}
	}
}

// sleepOrDone waits for d, returning false early if ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
