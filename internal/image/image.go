package image

import (
	"context"
	"fmt"

	"github.com/wanzew/snapmirror/pkg/types"
)

// Ref identifies an image within a cluster.
type Ref struct {
	Pool  types.PoolID
	Image types.ImageID
}

var _ fmt.Stringer = (*Ref)(nil)

func (ref Ref) String() string {
	return fmt.Sprintf("%s/%s", ref.Pool, ref.Image)
}

// SnapInfo is the metadata of a single snapshot.
type SnapInfo struct {
	ID        types.SnapID
	Name      string
	Namespace SnapshotNamespace
}

// MirrorNamespace unpacks the snapshot's namespace when it is a mirror
// snapshot.
func (si SnapInfo) MirrorNamespace() (MirrorSnapshotNamespace, bool) {
	ns, ok := si.Namespace.(MirrorSnapshotNamespace)
	return ns, ok
}

// UpdateWatcher receives image metadata change notifications. HandleNotify
// may be invoked from an arbitrary goroutine.
type UpdateWatcher interface {
	HandleNotify()
}

// WatcherHandle identifies a registered update watcher.
type WatcherHandle uint64

// Image is the capability surface of an opened image handle. Concrete
// implementations are provided by the cluster client library; imagestore
// provides an embedded implementation.
//
// Snapshots returns a consistent view of the snapshot list ordered by
// ascending snap id; the implementation holds the image lock in shared mode
// while assembling it.
type Image interface {
	Ref() Ref

	IsRefreshRequired() bool
	Refresh(ctx context.Context) error

	Snapshots() []SnapInfo
	GetSnapshot(id types.SnapID) (SnapInfo, error)

	CreateSnapshot(ctx context.Context, name string, ns SnapshotNamespace) (types.SnapID, error)
	RemoveSnapshot(ctx context.Context, id types.SnapID) error
	SetSnapshotNamespace(ctx context.Context, id types.SnapID, ns SnapshotNamespace) error

	// SetCopyProgress atomically persists the completeness flag and the
	// object-copy resume point of a mirror snapshot.
	SetCopyProgress(ctx context.Context, id types.SnapID, complete bool, lastCopiedObjectNumber types.ObjectNumber) error

	// ImageState reads the opaque image-state blob attached to a snapshot;
	// SetImageState writes it.
	ImageState(ctx context.Context, id types.SnapID) ([]byte, error)
	SetImageState(ctx context.Context, id types.SnapID, state []byte) error

	RegisterUpdateWatcher(watcher UpdateWatcher) (WatcherHandle, error)
	UnregisterUpdateWatcher(ctx context.Context, handle WatcherHandle) error
	NotifyUpdate(ctx context.Context) error

	// Object IO used by the deep-copy engine. Reads address a snapshot or the
	// head via types.NoSnap; writes always address the head.
	ObjectCount(ctx context.Context, id types.SnapID) (uint64, error)
	ReadObject(ctx context.Context, id types.SnapID, objectNumber types.ObjectNumber) ([]byte, error)
	WriteObject(ctx context.Context, objectNumber types.ObjectNumber, data []byte) error
}
