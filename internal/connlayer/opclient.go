package connlayer

import (
	"fmt"
	"net"
	"time"

	"github.com/aytixel/dwitch/internal/protocol"
)

// OperatorClient is a one-shot connection to a daemon's control port,
// advertising the reserved CONFIGURATION_SWITCH_ID during the handshake
// (spec §6 Operator CLI surface). It is used by cmd/dwitch; it does not
// run a session loop — the operator issues exactly one request per
// connection and reads its reply directly.
type OperatorClient struct {
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to addr, completes the identity handshake as the operator,
// and returns a client ready to send exactly one VrfAction.
func Dial(addr string, timeout time.Duration) (*OperatorClient, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connlayer: dial %s: %w", addr, err)
	}
	if _, err := handshake(conn, protocol.ConfigurationSwitchID, timeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connlayer: operator handshake: %w", err)
	}
	return &OperatorClient{conn: conn, timeout: timeout}, nil
}

// Close closes the underlying connection.
func (c *OperatorClient) Close() error {
	return c.conn.Close()
}

// SendAction writes a VrfAction to the daemon.
func (c *OperatorClient) SendAction(action protocol.VrfAction) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return writeFrame(c.conn, protocol.VrfActionPacket{Action: action})
}

// List sends List(nil) and reads chunks until the empty terminator,
// returning the concatenated VRF table (spec §6).
func (c *OperatorClient) List() ([]protocol.Vrf, error) {
	if err := c.SendAction(protocol.VrfActionList{Chunk: nil}); err != nil {
		return nil, err
	}
	var all []protocol.Vrf
	for {
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
		pkt, err := readFrame(c.conn)
		if err != nil {
			return nil, fmt.Errorf("connlayer: read list reply: %w", err)
		}
		action, ok := pkt.(protocol.VrfActionPacket)
		if !ok {
			return nil, fmt.Errorf("connlayer: unexpected reply type %T", pkt)
		}
		chunk, ok := action.Action.(protocol.VrfActionList)
		if !ok {
			return nil, fmt.Errorf("connlayer: unexpected action type %T", action.Action)
		}
		if len(chunk.Chunk) == 0 {
			return all, nil
		}
		all = append(all, chunk.Chunk...)
	}
}
