package connlayer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/aytixel/dwitch/internal/peer"
)

// TestConnectorReconnectsAfterSessionEnds drives Connector.Run against a
// listener that accepts and handshakes twice, dropping the first
// connection immediately, to verify the outbound reconnect loop (spec
// §4.2 Outbound side, Testable Property 6) redials instead of giving up
// once a session ends.
func TestConnectorReconnectsAfterSessionEnds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 2)
	go func() {
		for i := 0; i < 2; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if _, err := handshake(conn, 2, time.Second); err != nil {
				conn.Close()
				continue
			}
			accepted <- conn
		}
	}()

	registry := peer.New()
	control := &fakeControl{}
	data := &fakeData{}
	timing := DefaultTiming()
	timing.ConnectRetry = 10 * time.Millisecond

	c := NewConnector(ln.Addr().String(), 1, registry, control, data, timing, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	var first net.Conn
	select {
	case first = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("connector never dialed")
	}
	first.Close()

	select {
	case second := <-accepted:
		second.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("connector did not reconnect after the first session ended")
	}
}
