// Package cache persists VrfStore and the per-VRF learning tables to disk
// so a restart doesn't start from a cold VRF table (spec §4.3, §5). Both
// are soft state: a missing or corrupt file yields an empty cache, never
// an error.
package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aytixel/dwitch/internal/protocol"
)

// DefaultPath is the fixed on-disk location named by spec §6.
const DefaultPath = "/var/cache/dwitch.cache"

// Snapshot is the combined, encodable state of one cache write: the VRF
// table and every VRF's learning table.
type Snapshot struct {
	Vrfs     []protocol.Vrf
	Learning map[protocol.VrfID]map[protocol.MacAddress]protocol.SwitchID
}

type encoder struct{ buf bytes.Buffer }

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) str(s string) {
	e.u64(uint64(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) switchIDVec(ids []protocol.SwitchID) {
	e.u64(uint64(len(ids)))
	for _, id := range ids {
		e.u32(uint32(id))
	}
}

// Encode serializes a Snapshot using the same little-endian, length-
// prefixed encoding family as the peer wire format (spec §6).
func Encode(s Snapshot) []byte {
	e := &encoder{}
	e.u64(uint64(len(s.Vrfs)))
	for _, v := range s.Vrfs {
		e.u32(uint32(v.ID))
		e.str(v.Name)
		e.switchIDVec(v.MemberList())
	}

	e.u64(uint64(len(s.Learning)))
	for vrfID, table := range s.Learning {
		e.u32(uint32(vrfID))
		e.u64(uint64(len(table)))
		for mac, origin := range table {
			e.buf.Write(mac[:])
			e.u32(uint32(origin))
		}
	}
	return e.buf.Bytes()
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) need(n int) error {
	if len(d.buf)-d.off < n {
		return fmt.Errorf("cache: need %d bytes, have %d", n, len(d.buf)-d.off)
	}
	return nil
}

func (d *decoder) u32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) str() (string, error) {
	n, err := d.u64()
	if err != nil {
		return "", err
	}
	if n > uint64(len(d.buf)) {
		return "", fmt.Errorf("cache: string length %d exceeds buffer", n)
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

func (d *decoder) switchIDVec() ([]protocol.SwitchID, error) {
	n, err := d.u64()
	if err != nil {
		return nil, err
	}
	out := make([]protocol.SwitchID, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := d.u32()
		if err != nil {
			return nil, err
		}
		out = append(out, protocol.SwitchID(v))
	}
	return out, nil
}

func (d *decoder) mac() (protocol.MacAddress, error) {
	var m protocol.MacAddress
	if err := d.need(len(m)); err != nil {
		return m, err
	}
	copy(m[:], d.buf[d.off:])
	d.off += len(m)
	return m, nil
}

// Decode parses a Snapshot previously produced by Encode.
func Decode(buf []byte) (Snapshot, error) {
	d := &decoder{buf: buf}
	vrfCount, err := d.u64()
	if err != nil {
		return Snapshot{}, fmt.Errorf("cache: vrf count: %w", err)
	}
	vrfs := make([]protocol.Vrf, 0, vrfCount)
	for i := uint64(0); i < vrfCount; i++ {
		id, err := d.u32()
		if err != nil {
			return Snapshot{}, fmt.Errorf("cache: vrf id: %w", err)
		}
		name, err := d.str()
		if err != nil {
			return Snapshot{}, fmt.Errorf("cache: vrf name: %w", err)
		}
		members, err := d.switchIDVec()
		if err != nil {
			return Snapshot{}, fmt.Errorf("cache: vrf members: %w", err)
		}
		set := make(map[protocol.SwitchID]struct{}, len(members))
		for _, m := range members {
			set[m] = struct{}{}
		}
		vrfs = append(vrfs, protocol.Vrf{ID: protocol.VrfID(id), Name: name, Members: set})
	}

	tableCount, err := d.u64()
	if err != nil {
		return Snapshot{}, fmt.Errorf("cache: learning table count: %w", err)
	}
	learning := make(map[protocol.VrfID]map[protocol.MacAddress]protocol.SwitchID, tableCount)
	for i := uint64(0); i < tableCount; i++ {
		vrfID, err := d.u32()
		if err != nil {
			return Snapshot{}, fmt.Errorf("cache: learning vrf id: %w", err)
		}
		entryCount, err := d.u64()
		if err != nil {
			return Snapshot{}, fmt.Errorf("cache: learning entry count: %w", err)
		}
		entries := make(map[protocol.MacAddress]protocol.SwitchID, entryCount)
		for j := uint64(0); j < entryCount; j++ {
			mac, err := d.mac()
			if err != nil {
				return Snapshot{}, fmt.Errorf("cache: learning mac: %w", err)
			}
			origin, err := d.u32()
			if err != nil {
				return Snapshot{}, fmt.Errorf("cache: learning origin: %w", err)
			}
			entries[mac] = protocol.SwitchID(origin)
		}
		learning[protocol.VrfID(vrfID)] = entries
	}

	return Snapshot{Vrfs: vrfs, Learning: learning}, nil
}

// Save atomically writes s to path: encode to a temp file in the same
// directory, then rename over the destination, so a crash mid-write never
// leaves a torn file behind.
func Save(path string, s Snapshot) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dwitch.cache.*")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(Encode(s)); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("cache: rename into place: %w", err)
	}
	return nil
}

// Load reads and decodes path. A missing or corrupt file yields an empty
// Snapshot; Load has no error result (spec §4.3: cache reload is never fatal).
func Load(path string) Snapshot {
	empty := Snapshot{Learning: map[protocol.VrfID]map[protocol.MacAddress]protocol.SwitchID{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		return empty
	}
	s, err := Decode(raw)
	if err != nil {
		return empty
	}
	if s.Learning == nil {
		s.Learning = map[protocol.VrfID]map[protocol.MacAddress]protocol.SwitchID{}
	}
	return s
}
