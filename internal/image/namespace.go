package image

import (
	"fmt"

	"github.com/wanzew/snapmirror/pkg/types"
)

// SnapshotNamespace tags a snapshot with its role. Only mirror snapshots
// participate in replication; every other kind is opaque to the replayer.
type SnapshotNamespace interface {
	snapshotNamespace()
}

// UserSnapshotNamespace marks an ordinary user-created snapshot.
type UserSnapshotNamespace struct{}

func (UserSnapshotNamespace) snapshotNamespace() {}

type MirrorSnapshotState int8

const (
	MirrorSnapshotStatePrimary MirrorSnapshotState = iota
	MirrorSnapshotStatePrimaryDemoted
	MirrorSnapshotStateNonPrimary
	MirrorSnapshotStateNonPrimaryDemoted
)

var _ fmt.Stringer = (*MirrorSnapshotState)(nil)

func (s MirrorSnapshotState) String() string {
	switch s {
	case MirrorSnapshotStatePrimary:
		return "primary"
	case MirrorSnapshotStatePrimaryDemoted:
		return "primary-demoted"
	case MirrorSnapshotStateNonPrimary:
		return "non-primary"
	case MirrorSnapshotStateNonPrimaryDemoted:
		return "non-primary-demoted"
	default:
		return fmt.Sprintf("unknown(%d)", int8(s))
	}
}

// SnapSeqs translates remote snap ids to the local snap ids created for them
// during snapshot-metadata copy.
type SnapSeqs map[types.SnapID]types.SnapID

// MirrorSnapshotNamespace annotates a replication sync point.
type MirrorSnapshotNamespace struct {
	State    MirrorSnapshotState
	Complete bool

	// PrimaryMirrorUUID and PrimarySnapID link a non-primary snapshot to the
	// remote primary snapshot it mirrors.
	PrimaryMirrorUUID string
	PrimarySnapID     types.SnapID

	// MirrorPeerUUIDs lists the peers authorized to consume a primary
	// snapshot. The snapshot may be pruned once the set is empty.
	MirrorPeerUUIDs map[string]struct{}

	SnapSeqs               SnapSeqs
	LastCopiedObjectNumber types.ObjectNumber
}

func (ns MirrorSnapshotNamespace) snapshotNamespace() {}

func (ns *MirrorSnapshotNamespace) IsPrimary() bool {
	return ns.State == MirrorSnapshotStatePrimary ||
		ns.State == MirrorSnapshotStatePrimaryDemoted
}

func (ns *MirrorSnapshotNamespace) IsNonPrimary() bool {
	return ns.State == MirrorSnapshotStateNonPrimary ||
		ns.State == MirrorSnapshotStateNonPrimaryDemoted
}

func (ns *MirrorSnapshotNamespace) IsDemoted() bool {
	return ns.State == MirrorSnapshotStatePrimaryDemoted ||
		ns.State == MirrorSnapshotStateNonPrimaryDemoted
}

func (ns *MirrorSnapshotNamespace) HasPeer(peerUUID string) bool {
	_, ok := ns.MirrorPeerUUIDs[peerUUID]
	return ok
}

func (ns *MirrorSnapshotNamespace) String() string {
	return fmt.Sprintf("[state=%s complete=%t primary_mirror_uuid=%s primary_snap_id=%s last_copied_object_number=%s]",
		ns.State, ns.Complete, ns.PrimaryMirrorUUID, ns.PrimarySnapID,
		ns.LastCopiedObjectNumber)
}
