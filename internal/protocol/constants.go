// Package protocol defines the wire format shared by peer-to-peer and
// operator-to-daemon traffic: a closed tagged union of Packet values,
// encoded as little-endian fixed-width integers and length-prefixed
// vectors/strings/bytes.
package protocol

import "time"

const (
	// MaxBufferSize is the largest single read/decode unit for peer and
	// control traffic. Exactly one Packet is decoded per read.
	MaxBufferSize = 65535

	// ConfigurationSwitchID is the reserved SwitchId used by the operator
	// control channel. It must never appear in a VRF's member set or in
	// the peer registry.
	ConfigurationSwitchID SwitchID = 0

	// PingInterval is how often an outbound session sends an unsolicited Ping.
	PingInterval = 1 * time.Second
	// PingTimeout is how long a session tolerates silence before closing.
	PingTimeout = 10 * time.Second
	// ConnectRetryInterval is the backoff between outbound connect attempts.
	ConnectRetryInterval = 1 * time.Second
	// AcceptBackoff is the backoff after a failed accept() on the listener.
	AcceptBackoff = 10 * time.Second

	// VrfListChunkSize bounds the number of Vrf records per List reply chunk.
	VrfListChunkSize = 10

	// PeerQueueCapacity is the bounded FIFO depth for a peer's outbound queue
	// and for a TapWorker's ingress queue.
	PeerQueueCapacity = 32
)
