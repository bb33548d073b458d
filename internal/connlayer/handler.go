package connlayer

import "github.com/aytixel/dwitch/internal/protocol"

// ControlPlane applies VrfAction mutations and answers List queries. It
// wraps VrfStore and TapManager together (spec §4.3) so the combined
// lock-ordering and TapWorker side effects happen behind one seam that
// connlayer doesn't need to know the details of.
type ControlPlane interface {
	List() []protocol.Vrf
	Create(v protocol.Vrf)
	Delete(id protocol.VrfID)
	AddMembers(id protocol.VrfID, members []protocol.SwitchID)
	RemoveMembers(id protocol.VrfID, members []protocol.SwitchID)
}

// DataPlane dispatches a Data packet into the TapWorker for its VRF.
type DataPlane interface {
	Deliver(vrfID protocol.VrfID, origin protocol.SwitchID, data []byte) bool
}
