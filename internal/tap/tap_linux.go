//go:build linux

package tap

import (
	"fmt"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"
)

// LinuxTAP implements Device using songgao/water for the character device
// and vishvananda/netlink to bring the resulting interface up. It must be
// created from inside the TapWorker's dedicated network namespace (spec
// §4.5) so the interface is born in the right place.
type LinuxTAP struct {
	iface *water.Interface
	name  string
}

// New creates a new TAP device in the calling goroutine's current network
// namespace. If name is empty, the OS assigns one.
func New(name string) (*LinuxTAP, error) {
	cfg := water.Config{DeviceType: water.TAP}
	if name != "" {
		cfg.Name = name
	}
	iface, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("tap: create device: %w", err)
	}
	return &LinuxTAP{iface: iface, name: iface.Name()}, nil
}

func (d *LinuxTAP) Name() string { return d.name }

func (d *LinuxTAP) Read(buf []byte) (int, error) { return d.iface.Read(buf) }

func (d *LinuxTAP) Write(buf []byte) (int, error) { return d.iface.Write(buf) }

func (d *LinuxTAP) SetUp() error {
	link, err := netlink.LinkByName(d.name)
	if err != nil {
		return fmt.Errorf("tap: lookup link %s: %w", d.name, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("tap: set link %s up: %w", d.name, err)
	}
	return nil
}

func (d *LinuxTAP) Close() error {
	return d.iface.Close()
}
