package connlayer

import (
	"context"
	"log/slog"
	"net"

	"github.com/aytixel/dwitch/internal/peer"
	"github.com/aytixel/dwitch/internal/protocol"
)

// Server is the inbound side of ConnectionLayer (spec §4.2): it binds the
// configured listen address and, for each accepted socket, handshakes and
// spawns an independent Established session.
type Server struct {
	listen   string
	localID  protocol.SwitchID
	registry *peer.Registry
	control  ControlPlane
	data     DataPlane
	timing   Timing
	log      *slog.Logger
}

// NewServer creates a Server bound to listen, not yet accepting.
func NewServer(listen string, localID protocol.SwitchID, registry *peer.Registry, control ControlPlane, data DataPlane, timing Timing, log *slog.Logger) *Server {
	return &Server{
		listen:   listen,
		localID:  localID,
		registry: registry,
		control:  control,
		data:     data,
		timing:   timing,
		log:      log.With("component", "server", "listen", listen),
	}
}

// Run binds the listener and accepts until ctx is cancelled.
func (srv *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", srv.listen)
	if err != nil {
		return err
	}
	srv.log.Info("listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			srv.log.Error("accept", "err", err)
			if !sleepOrDone(ctx, srv.timing.AcceptBackoff) {
				return nil
			}
			continue
		}
		go srv.handle(conn)
	}
}

func (srv *Server) handle(conn net.Conn) {
	peerID, err := handshake(conn, srv.localID, srv.timing.PingTimeout)
	if err != nil {
		srv.log.Warn("handshake failed", "err", err, "remote", conn.RemoteAddr())
		conn.Close()
		return
	}
	srv.log.Info("peer accepted", "peer", peerID, "remote", conn.RemoteAddr())

	s := newSession(conn, peerID, srv.localID, srv.registry, srv.control, srv.data, srv.timing, true, srv.log)
	s.run()
	conn.Close()
	srv.log.Info("peer session ended", "peer", peerID)
}
