// Package tap provides the TAP device abstraction TapWorker uses: a byte
// stream of raw Ethernet frames backed by a kernel virtual network
// interface (spec §4.4, §4.5). The host-kernel TAP character device
// itself is out of this specification's core (spec §1); this package is
// the thin boundary around it.
package tap

// Device is the cross-platform TAP device interface. Only Linux has a
// real implementation (songgao/water); other platforms get a build-tagged
// stub so the rest of the module still compiles during development.
type Device interface {
	// Name returns the OS network interface name (e.g., "dwitch0").
	Name() string

	// Read reads one Ethernet frame from the TAP device into buf.
	Read(buf []byte) (int, error)

	// Write writes one Ethernet frame to the TAP device.
	Write(buf []byte) (int, error)

	// SetUp brings the interface up inside its current network namespace.
	SetUp() error

	// Close releases the TAP file descriptor.
	Close() error
}
