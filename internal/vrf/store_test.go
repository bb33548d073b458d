package vrf

import (
	"testing"

	"github.com/aytixel/dwitch/internal/protocol"
)

func mkVrf(id protocol.VrfID, name string, members ...protocol.SwitchID) protocol.Vrf {
	set := make(map[protocol.SwitchID]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return protocol.Vrf{ID: id, Name: name, Members: set}
}

func TestCreateIdempotent(t *testing.T) {
	s := New()
	if !s.Create(mkVrf(1, "a", 1, 2)) {
		t.Fatal("first create should succeed")
	}
	if s.Create(mkVrf(1, "a", 1, 2)) {
		t.Fatal("re-creating same id should be ignored")
	}
	if got := len(s.All()); got != 1 {
		t.Fatalf("want 1 vrf, got %d", got)
	}
}

func TestCreateDuplicateNameIgnored(t *testing.T) {
	s := New()
	if !s.Create(mkVrf(1, "a")) {
		t.Fatal("first create should succeed")
	}
	if s.Create(mkVrf(2, "a")) {
		t.Fatal("duplicate name create should be ignored")
	}
	all := s.All()
	if len(all) != 1 || all[0].ID != 1 {
		t.Fatalf("store should still contain only id=1, got %+v", all)
	}
}

func TestAddRemoveMembersUnknownVrfIgnored(t *testing.T) {
	s := New()
	if added := s.AddMembers(99, []protocol.SwitchID{1}); added != nil {
		t.Fatalf("expected nil for unknown vrf, got %v", added)
	}
	if removed := s.RemoveMembers(99, []protocol.SwitchID{1}); removed != nil {
		t.Fatalf("expected nil for unknown vrf, got %v", removed)
	}
}

func TestAddRemoveMembersIdempotent(t *testing.T) {
	s := New()
	s.Create(mkVrf(9, "v", 5, 6))

	added := s.AddMembers(9, []protocol.SwitchID{5, 7})
	if len(added) != 1 || added[0] != 7 {
		t.Fatalf("expected only 7 to be newly added, got %v", added)
	}

	added2 := s.AddMembers(9, []protocol.SwitchID{7})
	if added2 != nil {
		t.Fatalf("re-adding existing member should report nothing new, got %v", added2)
	}

	removed := s.RemoveMembers(9, []protocol.SwitchID{5})
	if len(removed) != 1 || removed[0] != 5 {
		t.Fatalf("expected 5 to be removed, got %v", removed)
	}
	if s.IsMember(9, 5) {
		t.Fatal("5 should no longer be a member")
	}
	if !s.IsMember(9, 6) || !s.IsMember(9, 7) {
		t.Fatal("6 and 7 should remain members")
	}
}

func TestDeleteDropsNameReservation(t *testing.T) {
	s := New()
	s.Create(mkVrf(1, "a"))
	if _, ok := s.Delete(1); !ok {
		t.Fatal("delete should report existing")
	}
	if !s.Create(mkVrf(2, "a")) {
		t.Fatal("name should be reusable after delete")
	}
}

func TestChunking(t *testing.T) {
	var vrfs []protocol.Vrf
	for i := 0; i < 23; i++ {
		vrfs = append(vrfs, mkVrf(protocol.VrfID(i), "v"))
	}
	chunks := Chunks(vrfs)
	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(chunks))
	}
	sizes := []int{len(chunks[0]), len(chunks[1]), len(chunks[2])}
	want := []int{10, 10, 3}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("chunk sizes = %v, want %v", sizes, want)
		}
	}
}

func TestChunksEmpty(t *testing.T) {
	if chunks := Chunks(nil); chunks != nil {
		t.Fatalf("expected nil chunks for empty input, got %v", chunks)
	}
}
