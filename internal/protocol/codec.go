package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encoder builds the little-endian wire representation described in
// spec §6. It never fails for well-formed values.
type encoder struct {
	buf bytes.Buffer
}

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

func (e *encoder) bytes(b []byte) {
	e.u64(uint64(len(b)))
	e.buf.Write(b)
}

func (e *encoder) str(s string) {
	e.bytes([]byte(s))
}

func (e *encoder) switchIDVec(ids []SwitchID) {
	e.u64(uint64(len(ids)))
	for _, id := range ids {
		e.u32(uint32(id))
	}
}

func (e *encoder) vrf(v Vrf) {
	e.u32(uint32(v.ID))
	e.str(v.Name)
	e.switchIDVec(v.MemberList())
}

func (e *encoder) vrfVec(vs []Vrf) {
	e.u64(uint64(len(vs)))
	for _, v := range vs {
		e.vrf(v)
	}
}

// EncodeSwitchID encodes a bare SwitchID, as used by the identity handshake.
func EncodeSwitchID(id SwitchID) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(id))
	return b[:]
}

// DecodeSwitchID decodes a bare SwitchID from exactly 4 bytes.
func DecodeSwitchID(b []byte) (SwitchID, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("protocol: handshake id must be 4 bytes, got %d", len(b))
	}
	return SwitchID(binary.LittleEndian.Uint32(b)), nil
}

// Encode serializes a Packet into its canonical binary form.
func Encode(p Packet) []byte {
	e := &encoder{}
	e.u32(p.packetTag())
	switch v := p.(type) {
	case PingPacket:
		// empty body
	case VrfActionPacket:
		encodeAction(e, v.Action)
	case DataPacket:
		e.u32(uint32(v.VrfID))
		e.bytes(v.Data)
	default:
		panic(fmt.Sprintf("protocol: unencodable packet type %T", p))
	}
	return e.buf.Bytes()
}

func encodeAction(e *encoder, a VrfAction) {
	e.u32(a.actionTag())
	switch v := a.(type) {
	case VrfActionList:
		if v.Chunk == nil {
			e.buf.WriteByte(0)
		} else {
			e.buf.WriteByte(1)
			e.vrfVec(v.Chunk)
		}
	case VrfActionCreate:
		e.vrf(v.Vrf)
	case VrfActionDelete:
		e.u32(uint32(v.ID))
	case VrfActionAddMember:
		e.u32(uint32(v.ID))
		e.switchIDVec(v.Members)
	case VrfActionRemoveMember:
		e.u32(uint32(v.ID))
		e.switchIDVec(v.Members)
	default:
		panic(fmt.Sprintf("protocol: unencodable action type %T", v))
	}
}

// decoder reads the little-endian wire representation, reporting a
// recoverable error on any malformed or truncated input.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) need(n int) error {
	if len(d.buf)-d.off < n {
		return fmt.Errorf("protocol: need %d bytes, have %d", n, len(d.buf)-d.off)
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

func (d *decoder) byt() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) bytesN() ([]byte, error) {
	n, err := d.u64()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(d.buf)) {
		return nil, fmt.Errorf("protocol: length prefix %d exceeds buffer", n)
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:d.off+int(n)])
	d.off += int(n)
	return out, nil
}

func (d *decoder) str() (string, error) {
	b, err := d.bytesN()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) switchIDVec() ([]SwitchID, error) {
	n, err := d.u64()
	if err != nil {
		return nil, err
	}
	out := make([]SwitchID, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := d.u32()
		if err != nil {
			return nil, err
		}
		out = append(out, SwitchID(v))
	}
	return out, nil
}

func (d *decoder) vrf() (Vrf, error) {
	id, err := d.u32()
	if err != nil {
		return Vrf{}, err
	}
	name, err := d.str()
	if err != nil {
		return Vrf{}, err
	}
	members, err := d.switchIDVec()
	if err != nil {
		return Vrf{}, err
	}
	set := make(map[SwitchID]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return Vrf{ID: VrfID(id), Name: name, Members: set}, nil
}

func (d *decoder) vrfVec() ([]Vrf, error) {
	n, err := d.u64()
	if err != nil {
		return nil, err
	}
	out := make([]Vrf, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := d.vrf()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Decode parses exactly one Packet from buf. A malformed or truncated
// buffer produces an error; it never panics.
func Decode(buf []byte) (Packet, error) {
	d := &decoder{buf: buf}
	tag, err := d.u32()
	if err != nil {
		return nil, fmt.Errorf("protocol: decode packet tag: %w", err)
	}
	switch tag {
	case tagPing:
		return PingPacket{}, nil
	case tagVrfAction:
		action, err := decodeAction(d)
		if err != nil {
			return nil, err
		}
		return VrfActionPacket{Action: action}, nil
	case tagData:
		vrfID, err := d.u32()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode data vrf id: %w", err)
		}
		data, err := d.bytesN()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode data payload: %w", err)
		}
		return DataPacket{VrfID: VrfID(vrfID), Data: data}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown packet tag %d", tag)
	}
}

func decodeAction(d *decoder) (VrfAction, error) {
	tag, err := d.u32()
	if err != nil {
		return nil, fmt.Errorf("protocol: decode action tag: %w", err)
	}
	switch tag {
	case actionList:
		disc, err := d.byt()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode list discriminant: %w", err)
		}
		if disc == 0 {
			return VrfActionList{Chunk: nil}, nil
		}
		chunk, err := d.vrfVec()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode list chunk: %w", err)
		}
		if chunk == nil {
			chunk = []Vrf{}
		}
		return VrfActionList{Chunk: chunk}, nil
	case actionCreate:
		v, err := d.vrf()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode create vrf: %w", err)
		}
		return VrfActionCreate{Vrf: v}, nil
	case actionDelete:
		id, err := d.u32()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode delete id: %w", err)
		}
		return VrfActionDelete{ID: VrfID(id)}, nil
	case actionAddMember:
		id, err := d.u32()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode add-member id: %w", err)
		}
		members, err := d.switchIDVec()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode add-member members: %w", err)
		}
		return VrfActionAddMember{ID: VrfID(id), Members: members}, nil
	case actionRemoveMember:
		id, err := d.u32()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode remove-member id: %w", err)
		}
		members, err := d.switchIDVec()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode remove-member members: %w", err)
		}
		return VrfActionRemoveMember{ID: VrfID(id), Members: members}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown action tag %d", tag)
	}
}
