//go:build linux

// Package netns implements the network namespace primitive of spec §4.5:
// the equivalent of the `ip netns add/del/exec` contract, without shelling
// out to `ip`. Each TapWorker (internal/tapmgr) owns exactly one namespace
// created here.
//
// Create, Delete and List go straight to golang.org/x/sys/unix: they take
// an arbitrary marker directory (not just the well-known default), which
// github.com/vishvananda/netns's NewNamed/DeleteNamed don't support — those
// hardcode /var/run/netns. Enter and Handle.Close, which only need to open
// a marker path and setns into it, use vishvananda/netns's NsHandle/Get/
// GetFromPath/Set for that part instead of hand-rolling it.
package netns

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"

	vishnetns "github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// DefaultDir is the well-known directory namespace marker files live
// under, matching `ip netns`'s convention (spec §6).
const DefaultDir = "/run/netns"

// helperEnv, when set in a re-exec'd child's environment, tells
// MaybeRunHelper to perform the unshare+bind-mount dance for the named
// marker file and exit, instead of running the daemon. This is this
// package's stand-in for the spec's literal fork(): Go cannot safely
// fork() a multi-threaded runtime, so namespace creation re-execs the
// current binary into a short-lived single-purpose child process.
const helperEnv = "DWITCH_NETNS_HELPER_TARGET"

// MaybeRunHelper must be called first thing in main(), before any other
// initialization, in every binary that calls Create (cmd/dwitchd; the
// operator CLI creates no namespaces and does not call it). If the
// process was re-exec'd by Create to perform namespace creation, it does
// that work and exits;
// otherwise it returns immediately and the caller proceeds normally.
func MaybeRunHelper() {
	target := os.Getenv(helperEnv)
	if target == "" {
		return
	}
	if err := createHelperBody(target); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

func createHelperBody(target string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := unix.Unshare(unix.CLONE_NEWNET); err != nil {
		return fmt.Errorf("netns: unshare CLONE_NEWNET: %w", err)
	}
	if err := unix.Mount("/proc/self/ns/net", target, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("netns: bind mount onto %s: %w", target, err)
	}
	return nil
}

func markerPath(dir, name string) string {
	return filepath.Join(dir, name)
}

// Create makes a namespace named name under dir (DefaultDir if empty).
// It is idempotent: if the marker already exists, it returns nil without
// touching anything.
func Create(dir, name string) error {
	if dir == "" {
		dir = DefaultDir
	}
	path := markerPath(dir, name)

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("netns: stat %s: %w", path, err)
	}

	if err := ensureShared(dir); err != nil {
		return fmt.Errorf("netns: prepare %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("netns: create marker %s: %w", path, err)
	}
	f.Close()

	if err := runHelper(path); err != nil {
		os.Remove(path) // surface a clean failure, not a half-created namespace
		return fmt.Errorf("netns: create %s: %w", name, err)
	}
	return nil
}

func runHelper(target string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), helperEnv+"="+target)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ensureShared makes dir exist and carry shared, recursive mount
// propagation, so the bind mounts Create's helper makes under it propagate
// to other mount namespaces (spec §4.5).
func ensureShared(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := unix.Mount("", dir, "", unix.MS_SHARED|unix.MS_REC, ""); err != nil {
		if err := unix.Mount(dir, dir, "", unix.MS_BIND, ""); err != nil {
			return fmt.Errorf("bind-mount self: %w", err)
		}
		if err := unix.Mount("", dir, "", unix.MS_SHARED|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("make shared: %w", err)
		}
	}
	return nil
}

// Delete removes the namespace named name under dir. It is idempotent:
// unmounting or unlinking something that is already gone is not an error.
func Delete(dir, name string) error {
	if dir == "" {
		dir = DefaultDir
	}
	path := markerPath(dir, name)

	if err := unix.Unmount(path, unix.MNT_DETACH); err != nil &&
		err != unix.EINVAL && err != unix.ENOENT {
		return fmt.Errorf("netns: unmount %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("netns: unlink %s: %w", path, err)
	}
	return nil
}

// Entry describes one namespace List enumerates.
type Entry struct {
	Name    string
	Default bool
}

// List enumerates the default namespace plus every bind-mounted entry
// under dir, skipping any marker whose inode equals the default
// namespace's inode (a stale marker that was never actually bind-mounted
// onto a distinct namespace).
func List(dir string) ([]Entry, error) {
	if dir == "" {
		dir = DefaultDir
	}
	defaultIno, err := inodeOf("/proc/1/ns/net")
	if err != nil {
		return nil, fmt.Errorf("netns: stat default namespace: %w", err)
	}

	entries := []Entry{{Name: "default", Default: true}}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("netns: read %s: %w", dir, err)
	}
	for _, de := range dirEntries {
		path := filepath.Join(dir, de.Name())
		ino, err := inodeOf(path)
		if err != nil {
			continue
		}
		if ino == defaultIno {
			continue
		}
		entries = append(entries, Entry{Name: de.Name()})
	}
	return entries, nil
}

func inodeOf(path string) (uint64, error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0, err
	}
	return st.Ino, nil
}

// Handle is a scoped reference to a temporary namespace switch performed
// by Enter. Restoring the original namespace requires an explicit Close
// call: there is no finalizer, because the restore can fail and that
// failure must be visible to the caller.
type Handle struct {
	saved  vishnetns.NsHandle
	closed bool
}

// Enter switches the calling goroutine's OS thread into the namespace
// named name under dir, locking the goroutine to its current OS thread
// for the duration. Call Close to restore the previous namespace.
func Enter(dir, name string) (*Handle, error) {
	if dir == "" {
		dir = DefaultDir
	}
	runtime.LockOSThread()

	saved, err := vishnetns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("netns: open current namespace: %w", err)
	}

	target, err := vishnetns.GetFromPath(markerPath(dir, name))
	if err != nil {
		saved.Close()
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("netns: open target namespace %s: %w", name, err)
	}
	defer target.Close()

	if err := unix.Unshare(unix.CLONE_NEWNET); err != nil {
		saved.Close()
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("netns: unshare: %w", err)
	}
	if err := vishnetns.Set(target); err != nil {
		saved.Close()
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("netns: setns %s: %w", name, err)
	}

	return &Handle{saved: saved}, nil
}

// Close restores the namespace that was active before Enter and releases
// the locked OS thread. It must be called exactly once.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	defer runtime.UnlockOSThread()
	defer h.saved.Close()

	if err := unix.Unshare(unix.CLONE_NEWNET); err != nil {
		return fmt.Errorf("netns: unshare on restore: %w", err)
	}
	if err := vishnetns.Set(h.saved); err != nil {
		return fmt.Errorf("netns: setns on restore: %w", err)
	}
	return nil
}
