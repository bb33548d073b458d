// Package connlayer implements ConnectionLayer (spec §4.2): the full-mesh
// TCP sessions between daemons, plus the operator control connection, and
// the handshake, ping, and dispatch behaviour that rides over them.
package connlayer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/aytixel/dwitch/internal/protocol"
)

// writeFrame writes p as a 4-byte little-endian length prefix followed by
// its canonical encoding. The core wire format treats "one read, one
// packet" as the decode unit (spec §6); TCP gives no such guarantee, so a
// length prefix is added at this layer to make framing robust against
// coalescing and splitting, per the framing redesign noted alongside §6.
// Both peers must agree on this framing; the payload encoding itself is
// unchanged.
func writeFrame(w io.Writer, p protocol.Packet) error {
	body := protocol.Encode(p)
	if len(body) > protocol.MaxBufferSize {
		return fmt.Errorf("connlayer: encoded packet of %d bytes exceeds max buffer size", len(body))
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("connlayer: write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("connlayer: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed packet from r.
func readFrame(r io.Reader) (protocol.Packet, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > protocol.MaxBufferSize {
		return nil, fmt.Errorf("connlayer: frame length %d exceeds max buffer size", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("connlayer: read frame body: %w", err)
	}
	pkt, err := protocol.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("connlayer: decode frame: %w", err)
	}
	return pkt, nil
}
