// Package learning implements the per-VRF MAC learning table and the
// minimal Ethernet frame parsing the data plane needs to drive it
// (spec §4.4).
package learning

import (
	"errors"

	"github.com/aytixel/dwitch/internal/protocol"
)

// EthernetHeaderSize is the minimum Ethernet header length (no VLAN tag):
// 6 bytes destination MAC, 6 bytes source MAC, 2 bytes EtherType.
const EthernetHeaderSize = 14

// ErrFrameTooShort is returned by ParseHeader for frames shorter than
// EthernetHeaderSize; callers drop such frames per spec §4.4.
var ErrFrameTooShort = errors.New("learning: frame shorter than ethernet header")

// Header is the minimal parsed view of an Ethernet frame the switch
// actually needs: source and destination MAC.
type Header struct {
	Dst protocol.MacAddress
	Src protocol.MacAddress
}

// ParseHeader extracts the destination and source MAC from a raw frame.
func ParseHeader(frame []byte) (Header, error) {
	if len(frame) < EthernetHeaderSize {
		return Header{}, ErrFrameTooShort
	}
	var h Header
	copy(h.Dst[:], frame[0:6])
	copy(h.Src[:], frame[6:12])
	return h, nil
}
