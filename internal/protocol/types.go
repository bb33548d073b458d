package protocol

import "fmt"

// SwitchID is the cluster-unique identifier of a dwitch daemon. Zero is
// reserved for the operator control channel (ConfigurationSwitchID).
type SwitchID uint32

// VrfID uniquely identifies a VRF within the cluster.
type VrfID uint32

// MacAddress is a raw 6-byte Ethernet hardware address.
type MacAddress [6]byte

func (m MacAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Vrf is a VRF's replicated record: id, unique name, and member set.
type Vrf struct {
	ID      VrfID
	Name    string
	Members map[SwitchID]struct{}
}

// Clone returns a deep copy of v, safe to hand to a caller outside the lock
// that protects the owning VrfStore.
func (v Vrf) Clone() Vrf {
	members := make(map[SwitchID]struct{}, len(v.Members))
	for m := range v.Members {
		members[m] = struct{}{}
	}
	return Vrf{ID: v.ID, Name: v.Name, Members: members}
}

// MemberList returns the member set as a slice in unspecified order,
// suitable for wire encoding.
func (v Vrf) MemberList() []SwitchID {
	out := make([]SwitchID, 0, len(v.Members))
	for m := range v.Members {
		out = append(out, m)
	}
	return out
}
