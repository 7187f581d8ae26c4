package replayer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanzew/snapmirror/internal/deepcopy"
	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/internal/imagestore"
	"github.com/wanzew/snapmirror/internal/poolmeta"
	"github.com/wanzew/snapmirror/internal/snapops"
	"github.com/wanzew/snapmirror/internal/workqueue"
	"github.com/wanzew/snapmirror/pkg/merrors"
	"github.com/wanzew/snapmirror/pkg/types"
)

// TestReplayer_MirrorBetweenStores drives the replayer end to end against two
// embedded image stores: a fresh sync, an incremental sync triggered by an
// update notification, and the pruning of the consumed remote sync point.
func TestReplayer_MirrorBetweenStores(t *testing.T) {
	ctx := context.Background()

	remote, err := imagestore.Open(t.TempDir(),
		image.Ref{Pool: testRemotePool, Image: "img"}, imagestore.WithoutSyncWAL())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, remote.Close())
	})
	local, err := imagestore.Open(t.TempDir(),
		image.Ref{Pool: testLocalPool, Image: "img"}, imagestore.WithoutSyncWAL())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, local.Close())
	})

	const numObjects = 8
	for i := 0; i < numObjects; i++ {
		require.NoError(t, remote.WriteObject(ctx, types.ObjectNumber(i), []byte(fmt.Sprintf("v1-%d", i))))
	}
	snap1, err := remote.CreateSnapshot(ctx, "mirror-1", image.MirrorSnapshotNamespace{
		State:           image.MirrorSnapshotStatePrimary,
		Complete:        true,
		MirrorPeerUUIDs: map[string]struct{}{testPeerUUID: {}},
	})
	require.NoError(t, err)
	require.NoError(t, remote.SetImageState(ctx, snap1, []byte("state-1")))

	wq, err := workqueue.New(workqueue.WithNumWorkers(4))
	require.NoError(t, err)
	t.Cleanup(wq.Stop)

	cache := poolmeta.NewCache()
	cache.SetRemotePoolMeta(testRemotePool, poolmeta.RemotePoolMeta{
		MirrorUUID:     remote.MirrorUUID(),
		MirrorPeerUUID: testPeerUUID,
	})

	copier, err := deepcopy.New(deepcopy.WithConcurrency(2))
	require.NoError(t, err)
	ops, err := snapops.New()
	require.NoError(t, err)

	listener := &countingListener{}
	r, err := New(
		WithLocalMirrorUUID(local.MirrorUUID()),
		WithRemoteMirrorUUID(remote.MirrorUUID()),
		WithLocalImage(local),
		WithRemoteImage(remote),
		WithPoolMetaCache(cache),
		WithListener(listener),
		WithWorkQueue(wq),
		WithCopier(copier),
		WithSnapshotOps(ops),
	)
	require.NoError(t, err)

	errC := make(chan error, 1)
	r.Init(func(err error) { errC <- err })
	require.NoError(t, <-errC)

	require.Eventually(t, func() bool {
		return r.currentState() == stateIdle
	}, 10*time.Second, 10*time.Millisecond)

	// fresh sync: data and a completed non-primary snapshot on the local side
	for i := 0; i < numObjects; i++ {
		data, err := local.ReadObject(ctx, types.NoSnap, types.ObjectNumber(i))
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("v1-%d", i)), data)
	}
	localSnaps := local.Snapshots()
	require.Len(t, localSnaps, 1)
	ns, ok := localSnaps[0].MirrorNamespace()
	require.True(t, ok)
	assert.True(t, ns.Complete)
	assert.Equal(t, snap1, ns.PrimarySnapID)
	assert.Equal(t, remote.MirrorUUID(), ns.PrimaryMirrorUUID)
	state, err := local.ImageState(ctx, localSnaps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("state-1"), state)

	// incremental sync: new data, a new mirror snapshot, and a notification
	require.NoError(t, remote.WriteObject(ctx, types.ObjectNumber(0), []byte("v2-0")))
	snap2, err := remote.CreateSnapshot(ctx, "mirror-2", image.MirrorSnapshotNamespace{
		State:           image.MirrorSnapshotStatePrimary,
		Complete:        true,
		MirrorPeerUUIDs: map[string]struct{}{testPeerUUID: {}},
	})
	require.NoError(t, err)
	require.NoError(t, remote.NotifyUpdate(ctx))

	require.Eventually(t, func() bool {
		infos := local.Snapshots()
		if len(infos) != 2 {
			return false
		}
		ns, ok := infos[1].MirrorNamespace()
		return ok && ns.Complete && ns.PrimarySnapID == snap2
	}, 10*time.Second, 10*time.Millisecond)

	data, err := local.ReadObject(ctx, types.NoSnap, types.ObjectNumber(0))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2-0"), data)

	// the consumed sync point lost its last peer and was pruned
	require.Eventually(t, func() bool {
		_, err := remote.GetSnapshot(snap1)
		return merrors.IsNotFound(err)
	}, 10*time.Second, 10*time.Millisecond)

	r.ShutDown(func(err error) { errC <- err })
	require.NoError(t, <-errC)
	assert.GreaterOrEqual(t, listener.count(), 2)
}
