package deepcopy

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/internal/imagestore"
	"github.com/wanzew/snapmirror/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testOpenStore(t *testing.T, name types.ImageID) *imagestore.Store {
	t.Helper()
	s, err := imagestore.Open(t.TempDir(), image.Ref{Pool: 1, Image: name}, imagestore.WithoutSyncWAL())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestCopier_InvalidConfig(t *testing.T) {
	_, err := New(WithConcurrency(0))
	assert.Error(t, err)

	_, err = New(WithLogger(nil))
	assert.Error(t, err)
}

func TestCopier_CopySnapshots(t *testing.T) {
	ctx := context.Background()
	remote := testOpenStore(t, "remote")
	local := testOpenStore(t, "local")

	snapA, err := remote.CreateSnapshot(ctx, "a", image.UserSnapshotNamespace{})
	require.NoError(t, err)
	snapB, err := remote.CreateSnapshot(ctx, "b", image.UserSnapshotNamespace{})
	require.NoError(t, err)
	end, err := remote.CreateSnapshot(ctx, "end", image.MirrorSnapshotNamespace{
		State:    image.MirrorSnapshotStatePrimary,
		Complete: true,
	})
	require.NoError(t, err)

	c, err := New()
	require.NoError(t, err)

	snapSeqs, err := c.CopySnapshots(ctx, remote, local, 0, end, 0)
	require.NoError(t, err)
	require.Len(t, snapSeqs, 2)

	infos := local.Snapshots()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "b", infos[1].Name)
	assert.Equal(t, infos[0].ID, snapSeqs[snapA])
	assert.Equal(t, infos[1].ID, snapSeqs[snapB])

	// rerunning reuses the already-copied snapshots
	again, err := c.CopySnapshots(ctx, remote, local, 0, end, 0)
	require.NoError(t, err)
	assert.Equal(t, snapSeqs, again)
	assert.Len(t, local.Snapshots(), 2)
}

func TestCopier_CopySnapshotsSeedsSyncPoint(t *testing.T) {
	ctx := context.Background()
	remote := testOpenStore(t, "remote")
	local := testOpenStore(t, "local")

	end, err := remote.CreateSnapshot(ctx, "end", image.MirrorSnapshotNamespace{
		State:    image.MirrorSnapshotStatePrimary,
		Complete: true,
	})
	require.NoError(t, err)

	c, err := New()
	require.NoError(t, err)

	snapSeqs, err := c.CopySnapshots(ctx, remote, local, types.SnapID(1), end, types.SnapID(7))
	require.NoError(t, err)
	assert.Equal(t, image.SnapSeqs{types.SnapID(1): types.SnapID(7)}, snapSeqs)
}

type recordingProgress struct {
	mu      sync.Mutex
	offsets []uint64
	total   uint64
}

func (rp *recordingProgress) UpdateProgress(offset, total uint64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.offsets = append(rp.offsets, offset)
	rp.total = total
}

func TestCopier_CopyImage(t *testing.T) {
	ctx := context.Background()
	remote := testOpenStore(t, "remote")
	local := testOpenStore(t, "local")

	const numObjects = 16
	for i := 0; i < numObjects; i++ {
		require.NoError(t, remote.WriteObject(ctx, types.ObjectNumber(i), []byte(fmt.Sprintf("obj-%d", i))))
	}
	end, err := remote.CreateSnapshot(ctx, "end", image.MirrorSnapshotNamespace{
		State:    image.MirrorSnapshotStatePrimary,
		Complete: true,
	})
	require.NoError(t, err)

	c, err := New(WithConcurrency(3))
	require.NoError(t, err)

	progress := &recordingProgress{}
	require.NoError(t, c.CopyImage(ctx, remote, local, 0, end, 0, 0, nil, progress))

	for i := 0; i < numObjects; i++ {
		data, err := local.ReadObject(ctx, types.NoSnap, types.ObjectNumber(i))
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("obj-%d", i)), data)
	}

	progress.mu.Lock()
	defer progress.mu.Unlock()
	assert.EqualValues(t, numObjects, progress.total)
	// progress offsets never regress
	for i := 1; i < len(progress.offsets); i++ {
		assert.GreaterOrEqual(t, progress.offsets[i], progress.offsets[i-1])
	}
	assert.EqualValues(t, numObjects, progress.offsets[len(progress.offsets)-1])
}

func TestCopier_CopyImageResume(t *testing.T) {
	ctx := context.Background()
	remote := testOpenStore(t, "remote")
	local := testOpenStore(t, "local")

	const numObjects = 8
	for i := 0; i < numObjects; i++ {
		require.NoError(t, remote.WriteObject(ctx, types.ObjectNumber(i), []byte(fmt.Sprintf("obj-%d", i))))
	}
	end, err := remote.CreateSnapshot(ctx, "end", image.MirrorSnapshotNamespace{
		State:    image.MirrorSnapshotStatePrimary,
		Complete: true,
	})
	require.NoError(t, err)

	c, err := New(WithConcurrency(1))
	require.NoError(t, err)

	require.NoError(t, c.CopyImage(ctx, remote, local, 0, end, 0, types.ObjectNumber(5), nil, nil))

	// objects below the resume point were not copied
	for i := 0; i < 5; i++ {
		data, err := local.ReadObject(ctx, types.NoSnap, types.ObjectNumber(i))
		require.NoError(t, err)
		assert.Nil(t, data)
	}
	for i := 5; i < numObjects; i++ {
		data, err := local.ReadObject(ctx, types.NoSnap, types.ObjectNumber(i))
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("obj-%d", i)), data)
	}
}

func TestCopier_CopyImageNothingToDo(t *testing.T) {
	ctx := context.Background()
	remote := testOpenStore(t, "remote")
	local := testOpenStore(t, "local")

	end, err := remote.CreateSnapshot(ctx, "end", image.MirrorSnapshotNamespace{
		State:    image.MirrorSnapshotStatePrimary,
		Complete: true,
	})
	require.NoError(t, err)

	c, err := New()
	require.NoError(t, err)

	progress := &recordingProgress{}
	require.NoError(t, c.CopyImage(ctx, remote, local, 0, end, 0, 0, nil, progress))
	assert.Equal(t, []uint64{0}, progress.offsets)
}
