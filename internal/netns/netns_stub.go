//go:build !linux

package netns

import (
	"fmt"
	"runtime"
)

// DefaultDir mirrors the Linux build's constant so callers can reference
// it regardless of platform.
const DefaultDir = "/run/netns"

// MaybeRunHelper is a no-op outside Linux: there is no re-exec helper to
// intercept.
func MaybeRunHelper() {}

// Entry mirrors the Linux build's type.
type Entry struct {
	Name    string
	Default bool
}

func unsupported() error {
	return fmt.Errorf("netns: network namespaces require Linux, running on %s", runtime.GOOS)
}

func Create(dir, name string) error           { return unsupported() }
func Delete(dir, name string) error           { return unsupported() }
func List(dir string) ([]Entry, error)        { return nil, unsupported() }

// Handle mirrors the Linux build's type.
type Handle struct{}

func Enter(dir, name string) (*Handle, error) { return nil, unsupported() }
func (h *Handle) Close() error                { return nil }
