package replayer

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/internal/replayer/mock"
	"github.com/wanzew/snapmirror/pkg/types"
)

func addPendingRemoteSnapshot(env *testEnv) {
	env.remote.addSnapshot(10, "mirror-1", image.MirrorSnapshotNamespace{
		State:           image.MirrorSnapshotStatePrimary,
		Complete:        true,
		MirrorPeerUUIDs: map[string]struct{}{testPeerUUID: {}},
	})
}

func requireReplayFailed(t *testing.T, env *testEnv, wantErr error, wantDescription string) {
	t.Helper()
	env.waitForState(t, stateComplete)
	err, description := env.r.Err()
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, wantDescription, description)
	require.NoError(t, env.shutDownReplayer(t))
}

func TestReplayer_RefreshLocalImageError(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("refresh failed")
	env.local.refreshRequired = true
	env.local.refreshErr = boom

	require.NoError(t, env.initReplayer(t))
	requireReplayFailed(t, env, boom, "failed to refresh local image")
}

func TestReplayer_RefreshRemoteImageError(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("refresh failed")
	env.remote.refreshRequired = true
	env.remote.refreshErr = boom

	require.NoError(t, env.initReplayer(t))
	requireReplayFailed(t, env, boom, "failed to refresh remote image")
}

func TestReplayer_CopySnapshotsError(t *testing.T) {
	env := newTestEnv(t)
	addPendingRemoteSnapshot(env)
	boom := errors.New("copy snapshots failed")
	env.copier.copySnapshotsErr = boom

	require.NoError(t, env.initReplayer(t))
	requireReplayFailed(t, env, boom, "failed to copy snapshots from remote to local image")
}

func TestReplayer_GetImageStateError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockOps := mock.NewMockSnapshotOps(ctrl)
	env := newTestEnv(t, WithSnapshotOps(mockOps))
	addPendingRemoteSnapshot(env)

	boom := errors.New("get image state failed")
	mockOps.EXPECT().GetImageState(gomock.Any(), gomock.Any(), types.SnapID(10)).
		Return(nil, boom)

	require.NoError(t, env.initReplayer(t))
	requireReplayFailed(t, env, boom, "failed to retrieve remote snapshot image state")
}

func TestReplayer_CreateNonPrimarySnapshotError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockOps := mock.NewMockSnapshotOps(ctrl)
	env := newTestEnv(t, WithSnapshotOps(mockOps))
	addPendingRemoteSnapshot(env)

	boom := errors.New("create failed")
	mockOps.EXPECT().GetImageState(gomock.Any(), gomock.Any(), types.SnapID(10)).
		Return([]byte("image-state"), nil)
	mockOps.EXPECT().
		CreateNonPrimary(gomock.Any(), gomock.Any(), false, testRemoteMirrorUUID,
			types.SnapID(10), gomock.Any(), []byte("image-state")).
		Return(types.SnapID(0), boom)

	require.NoError(t, env.initReplayer(t))
	requireReplayFailed(t, env, boom, "failed to create local mirror snapshot")
}

func TestReplayer_CopyImageError(t *testing.T) {
	env := newTestEnv(t)
	addPendingRemoteSnapshot(env)
	boom := errors.New("copy image failed")
	env.copier.copyImageErr = boom

	require.NoError(t, env.initReplayer(t))
	requireReplayFailed(t, env, boom, "failed to copy remote image")
}

func TestReplayer_UpdateNonPrimarySnapshotError(t *testing.T) {
	env := newTestEnv(t)
	addPendingRemoteSnapshot(env)
	boom := errors.New("update failed")
	env.local.copyProgressErr = boom

	require.NoError(t, env.initReplayer(t))
	requireReplayFailed(t, env, boom, "failed to update local snapshot progress")
}

func TestReplayer_NotifyImageUpdateErrorIgnored(t *testing.T) {
	env := newTestEnv(t)
	addPendingRemoteSnapshot(env)
	env.local.notifyUpdateErr = errors.New("notify failed")

	require.NoError(t, env.initReplayer(t))
	env.waitForState(t, stateIdle)

	err, description := env.r.Err()
	assert.NoError(t, err)
	assert.Empty(t, description)

	require.NoError(t, env.shutDownReplayer(t))
}

func TestReplayer_UnlinkPeerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockOps := mock.NewMockSnapshotOps(ctrl)
	env := newTestEnv(t, WithSnapshotOps(mockOps))

	env.remote.addSnapshot(10, "mirror-1", image.MirrorSnapshotNamespace{
		State:           image.MirrorSnapshotStatePrimary,
		Complete:        true,
		MirrorPeerUUIDs: map[string]struct{}{testPeerUUID: {}},
	})
	env.remote.addSnapshot(20, "mirror-2", image.MirrorSnapshotNamespace{
		State:           image.MirrorSnapshotStatePrimary,
		Complete:        true,
		MirrorPeerUUIDs: map[string]struct{}{testPeerUUID: {}},
	})
	env.local.addSnapshot(200, "mirror-1", image.MirrorSnapshotNamespace{
		State:             image.MirrorSnapshotStateNonPrimary,
		Complete:          true,
		PrimaryMirrorUUID: testRemoteMirrorUUID,
		PrimarySnapID:     types.SnapID(10),
	})

	boom := errors.New("unlink failed")
	mockOps.EXPECT().GetImageState(gomock.Any(), gomock.Any(), types.SnapID(20)).
		Return(nil, nil)
	mockOps.EXPECT().
		CreateNonPrimary(gomock.Any(), gomock.Any(), false, testRemoteMirrorUUID,
			types.SnapID(20), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx, local, demoted, uuid, snapID, snapSeqs, state any) (types.SnapID, error) {
			env.local.addSnapshot(201, "mirror-2", image.MirrorSnapshotNamespace{
				State:             image.MirrorSnapshotStateNonPrimary,
				Complete:          false,
				PrimaryMirrorUUID: testRemoteMirrorUUID,
				PrimarySnapID:     types.SnapID(20),
			})
			return types.SnapID(201), nil
		})
	mockOps.EXPECT().
		UnlinkPeer(gomock.Any(), gomock.Any(), types.SnapID(10), testPeerUUID).
		Return(boom)

	require.NoError(t, env.initReplayer(t))
	requireReplayFailed(t, env, boom, "failed to unlink local peer from remote image")
}

func TestReplayer_UpdateCompletePersistedBeforeUnlink(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockOps := mock.NewMockSnapshotOps(ctrl)
	env := newTestEnv(t, WithSnapshotOps(mockOps))

	env.remote.addSnapshot(10, "mirror-1", image.MirrorSnapshotNamespace{
		State:           image.MirrorSnapshotStatePrimary,
		Complete:        true,
		MirrorPeerUUIDs: map[string]struct{}{testPeerUUID: {}},
	})
	env.remote.addSnapshot(20, "mirror-2", image.MirrorSnapshotNamespace{
		State:           image.MirrorSnapshotStatePrimary,
		Complete:        true,
		MirrorPeerUUIDs: map[string]struct{}{testPeerUUID: {}},
	})
	env.local.addSnapshot(200, "mirror-1", image.MirrorSnapshotNamespace{
		State:             image.MirrorSnapshotStateNonPrimary,
		Complete:          true,
		PrimaryMirrorUUID: testRemoteMirrorUUID,
		PrimarySnapID:     types.SnapID(10),
	})

	var mu sync.Mutex
	var events []string
	env.local.onCopyProgress = func() {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, "update")
	}

	mockOps.EXPECT().GetImageState(gomock.Any(), gomock.Any(), types.SnapID(20)).
		Return(nil, nil)
	mockOps.EXPECT().
		CreateNonPrimary(gomock.Any(), gomock.Any(), false, testRemoteMirrorUUID,
			types.SnapID(20), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx, local, demoted, uuid, snapID, snapSeqs, state any) (types.SnapID, error) {
			env.local.addSnapshot(201, "mirror-2", image.MirrorSnapshotNamespace{
				State:             image.MirrorSnapshotStateNonPrimary,
				Complete:          false,
				PrimaryMirrorUUID: testRemoteMirrorUUID,
				PrimarySnapID:     types.SnapID(20),
			})
			return types.SnapID(201), nil
		})
	mockOps.EXPECT().
		UnlinkPeer(gomock.Any(), gomock.Any(), types.SnapID(10), testPeerUUID).
		DoAndReturn(func(ctx, remote, snapID, peerUUID any) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "unlink")
			return nil
		})

	require.NoError(t, env.initReplayer(t))
	env.waitForState(t, stateIdle)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"update", "unlink"}, events)

	require.NoError(t, env.shutDownReplayer(t))
}

func TestReplayer_InvalidRemoteMirrorSnapshotState(t *testing.T) {
	env := newTestEnv(t)
	env.remote.addSnapshot(10, "mirror-bad", image.MirrorSnapshotNamespace{
		State: image.MirrorSnapshotState(42),
	})

	require.NoError(t, env.initReplayer(t))
	env.waitForState(t, stateComplete)

	_, description := env.r.Err()
	assert.Equal(t, "invalid remote mirror snapshot state", description)

	require.NoError(t, env.shutDownReplayer(t))
}
