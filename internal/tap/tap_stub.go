//go:build !linux

package tap

import (
	"fmt"
	"runtime"
)

// stubTAP is a placeholder for unsupported platforms. dwitch's TAP and
// network-namespace primitives are Linux kernel facilities (spec §1); this
// stub exists only so the rest of the module builds elsewhere.
type stubTAP struct {
	name string
}

// New always fails on non-Linux platforms.
func New(name string) (*stubTAP, error) {
	return nil, fmt.Errorf("tap: TAP devices require Linux, running on %s", runtime.GOOS)
}

func (d *stubTAP) Name() string                 { return d.name }
func (d *stubTAP) Read(buf []byte) (int, error)  { return 0, fmt.Errorf("tap: stub") }
func (d *stubTAP) Write(buf []byte) (int, error) { return 0, fmt.Errorf("tap: stub") }
func (d *stubTAP) SetUp() error                  { return fmt.Errorf("tap: stub") }
func (d *stubTAP) Close() error                  { return nil }
