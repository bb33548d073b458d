package protocol

import (
	"reflect"
	"testing"
)

func vrfEqual(t *testing.T, a, b Vrf) {
	t.Helper()
	if a.ID != b.ID || a.Name != b.Name {
		t.Fatalf("vrf mismatch: %+v vs %+v", a, b)
	}
	if !reflect.DeepEqual(a.Members, b.Members) {
		t.Fatalf("vrf members mismatch: %+v vs %+v", a.Members, b.Members)
	}
}

func TestSwitchIDRoundTrip(t *testing.T) {
	for _, id := range []SwitchID{0, 1, 42, 0xffffffff} {
		got, err := DecodeSwitchID(EncodeSwitchID(id))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != id {
			t.Fatalf("want %d got %d", id, got)
		}
	}
}

func TestPacketRoundTrip(t *testing.T) {
	cases := []Packet{
		PingPacket{},
		DataPacket{VrfID: 7, Data: []byte("hello ethernet frame")},
		DataPacket{VrfID: 0, Data: nil},
		VrfActionPacket{Action: VrfActionList{Chunk: nil}},
		VrfActionPacket{Action: VrfActionList{Chunk: []Vrf{}}},
		VrfActionPacket{Action: VrfActionList{Chunk: []Vrf{
			{ID: 1, Name: "a", Members: map[SwitchID]struct{}{1: {}, 2: {}}},
		}}},
		VrfActionPacket{Action: VrfActionCreate{Vrf: Vrf{
			ID: 10, Name: "v", Members: map[SwitchID]struct{}{1: {}, 2: {}},
		}}},
		VrfActionPacket{Action: VrfActionDelete{ID: 9}},
		VrfActionPacket{Action: VrfActionAddMember{ID: 9, Members: []SwitchID{5, 6}}},
		VrfActionPacket{Action: VrfActionRemoveMember{ID: 9, Members: []SwitchID{5}}},
	}

	for i, p := range cases {
		encoded := Encode(p)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}

		switch want := p.(type) {
		case DataPacket:
			got, ok := decoded.(DataPacket)
			if !ok {
				t.Fatalf("case %d: wrong type %T", i, decoded)
			}
			if got.VrfID != want.VrfID || string(got.Data) != string(want.Data) {
				t.Fatalf("case %d: mismatch got=%+v want=%+v", i, got, want)
			}
		case VrfActionPacket:
			got, ok := decoded.(VrfActionPacket)
			if !ok {
				t.Fatalf("case %d: wrong type %T", i, decoded)
			}
			switch wa := want.Action.(type) {
			case VrfActionList:
				ga, ok := got.Action.(VrfActionList)
				if !ok {
					t.Fatalf("case %d: wrong action type %T", i, got.Action)
				}
				if (wa.Chunk == nil) != (ga.Chunk == nil) {
					t.Fatalf("case %d: nil-ness mismatch", i)
				}
				if len(wa.Chunk) != len(ga.Chunk) {
					t.Fatalf("case %d: chunk len mismatch", i)
				}
				for j := range wa.Chunk {
					vrfEqual(t, wa.Chunk[j], ga.Chunk[j])
				}
			case VrfActionCreate:
				ga := got.Action.(VrfActionCreate)
				vrfEqual(t, wa.Vrf, ga.Vrf)
			case VrfActionDelete:
				ga := got.Action.(VrfActionDelete)
				if ga.ID != wa.ID {
					t.Fatalf("case %d: delete id mismatch", i)
				}
			case VrfActionAddMember:
				ga := got.Action.(VrfActionAddMember)
				if ga.ID != wa.ID || !reflect.DeepEqual(ga.Members, wa.Members) {
					t.Fatalf("case %d: add-member mismatch", i)
				}
			case VrfActionRemoveMember:
				ga := got.Action.(VrfActionRemoveMember)
				if ga.ID != wa.ID || !reflect.DeepEqual(ga.Members, wa.Members) {
					t.Fatalf("case %d: remove-member mismatch", i)
				}
			}
		case PingPacket:
			if _, ok := decoded.(PingPacket); !ok {
				t.Fatalf("case %d: wrong type %T", i, decoded)
			}
		}
	}
}

func TestDecodeTruncatedIsRecoverableError(t *testing.T) {
	full := Encode(DataPacket{VrfID: 1, Data: []byte("abcdef")})
	for n := 0; n < len(full); n++ {
		if _, err := Decode(full[:n]); err == nil {
			t.Fatalf("expected error decoding truncated buffer of length %d", n)
		}
	}
}

func TestDecodeUnknownTagIsError(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected error for unknown packet tag")
	}
}
