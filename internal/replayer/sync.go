package replayer

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wanzew/snapmirror/internal/deepcopy"
	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/pkg/merrors"
	"github.com/wanzew/snapmirror/pkg/types"
)

func (r *Replayer) copySnapshots() {
	r.logger.Debug("copying snapshots",
		zap.Stringer("remote_snap_id_start", r.remoteSnapIDStart),
		zap.Stringer("remote_snap_id_end", r.remoteSnapIDEnd),
		zap.Stringer("local_snap_id_start", r.localSnapIDStart))

	if r.remoteSnapIDStart == types.NoSnap ||
		r.remoteSnapIDEnd == 0 || r.remoteSnapIDEnd == types.NoSnap ||
		r.localSnapIDStart == types.NoSnap {
		panic(fmt.Sprintf("replayer: bad sync window: remote=(%s,%s] local_start=%s",
			r.remoteSnapIDStart, r.remoteSnapIDEnd, r.localSnapIDStart))
	}

	r.localMirrorSnapNS = image.MirrorSnapshotNamespace{}
	r.queueStep(func() {
		snapSeqs, err := r.copier.CopySnapshots(r.ctx,
			r.remoteImage, r.localImage,
			r.remoteSnapIDStart, r.remoteSnapIDEnd, r.localSnapIDStart)
		if err == nil {
			r.localMirrorSnapNS.SnapSeqs = snapSeqs
		}
		r.handleCopySnapshots(err)
	})
}

func (r *Replayer) handleCopySnapshots(err error) {
	r.logger.Debug("handle copy snapshots", zap.Error(err))

	if err != nil {
		r.logger.Error("failed to copy snapshots from remote to local image", zap.Error(err))
		r.handleReplayComplete(err, "failed to copy snapshots from remote to local image")
		return
	}

	r.getImageState()
}

func (r *Replayer) getImageState() {
	r.logger.Debug("fetching image state",
		zap.Stringer("remote_snap_id", r.remoteSnapIDEnd))

	r.queueStep(func() {
		state, err := r.snapOps.GetImageState(r.ctx, r.remoteImage, r.remoteSnapIDEnd)
		if err == nil {
			r.imageState = state
		}
		r.handleGetImageState(err)
	})
}

func (r *Replayer) handleGetImageState(err error) {
	r.logger.Debug("handle get image state", zap.Error(err))

	if err != nil {
		r.logger.Error("failed to retrieve remote snapshot image state", zap.Error(err))
		r.handleReplayComplete(err, "failed to retrieve remote snapshot image state")
		return
	}

	r.createNonPrimarySnapshot()
}

func (r *Replayer) createNonPrimarySnapshot() {
	r.logger.Debug("creating non-primary snapshot",
		zap.Stringer("remote_snap_id", r.remoteSnapIDEnd),
		zap.Bool("demoted", r.remoteMirrorSnapNS.IsDemoted()))

	r.queueStep(func() {
		localSnapID, err := r.snapOps.CreateNonPrimary(r.ctx, r.localImage,
			r.remoteMirrorSnapNS.IsDemoted(), r.remoteMirrorUUID,
			r.remoteSnapIDEnd, r.localMirrorSnapNS.SnapSeqs, r.imageState)
		if err == nil {
			r.localSnapIDEnd = localSnapID
		}
		r.handleCreateNonPrimarySnapshot(err)
	})
}

func (r *Replayer) handleCreateNonPrimarySnapshot(err error) {
	r.logger.Debug("handle create non-primary snapshot", zap.Error(err))

	if err != nil {
		r.logger.Error("failed to create local mirror snapshot", zap.Error(err))
		r.handleReplayComplete(err, "failed to create local mirror snapshot")
		return
	}

	r.copyImage()
}

// progressContext relays object-copy progress into the replayer. Updates may
// arrive concurrently from the copy workers; the state machine is parked in
// the copy step for their whole lifetime.
type progressContext struct {
	r *Replayer

	mu         sync.Mutex
	lastOffset uint64
}

var _ deepcopy.Progress = (*progressContext)(nil)

func (pc *progressContext) UpdateProgress(offset, total uint64) {
	pc.r.logger.Debug("copy image progress",
		zap.Uint64("offset", offset), zap.Uint64("total", total))

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if offset <= pc.lastOffset {
		return
	}
	pc.r.metrics.ObjectsCopied(pc.r.ctx, int64(offset-pc.lastOffset))
	pc.lastOffset = offset
	if types.ObjectNumber(offset) > pc.r.localMirrorSnapNS.LastCopiedObjectNumber {
		pc.r.localMirrorSnapNS.LastCopiedObjectNumber = types.ObjectNumber(offset)
	}
}

func (r *Replayer) copyImage() {
	r.logger.Debug("copying image",
		zap.Stringer("remote_snap_id_start", r.remoteSnapIDStart),
		zap.Stringer("remote_snap_id_end", r.remoteSnapIDEnd),
		zap.Stringer("local_snap_id_start", r.localSnapIDStart),
		zap.Stringer("resume_object", r.localMirrorSnapNS.LastCopiedObjectNumber))

	r.progressCtx = &progressContext{
		r:          r,
		lastOffset: uint64(r.localMirrorSnapNS.LastCopiedObjectNumber),
	}
	r.queueStep(func() {
		r.handleCopyImage(r.copier.CopyImage(r.ctx,
			r.remoteImage, r.localImage,
			r.remoteSnapIDStart, r.remoteSnapIDEnd, r.localSnapIDStart,
			r.localMirrorSnapNS.LastCopiedObjectNumber,
			r.localMirrorSnapNS.SnapSeqs, r.progressCtx))
	})
}

func (r *Replayer) handleCopyImage(err error) {
	r.logger.Debug("handle copy image", zap.Error(err))

	r.progressCtx = nil

	if err != nil {
		r.logger.Error("failed to copy remote image", zap.Error(err))
		r.handleReplayComplete(err, "failed to copy remote image")
		return
	}

	r.updateNonPrimarySnapshot(true)
}

func (r *Replayer) updateNonPrimarySnapshot(complete bool) {
	r.logger.Debug("updating non-primary snapshot",
		zap.Stringer("local_snap_id", r.localSnapIDEnd),
		zap.Bool("complete", complete))

	if complete {
		r.localMirrorSnapNS.Complete = true
	}

	r.queueStep(func() {
		r.handleUpdateNonPrimarySnapshot(complete,
			r.localImage.SetCopyProgress(r.ctx, r.localSnapIDEnd,
				r.localMirrorSnapNS.Complete,
				r.localMirrorSnapNS.LastCopiedObjectNumber))
	})
}

func (r *Replayer) handleUpdateNonPrimarySnapshot(complete bool, err error) {
	r.logger.Debug("handle update non-primary snapshot",
		zap.Bool("complete", complete), zap.Error(err))

	if err != nil {
		r.logger.Error("failed to update local snapshot progress", zap.Error(err))
		r.handleReplayComplete(err, "failed to update local snapshot progress")
		return
	}

	if complete {
		r.metrics.SnapshotSynced(r.ctx)
	}
	r.notifyImageUpdate()
}

func (r *Replayer) notifyImageUpdate() {
	r.logger.Debug("notifying local image update")

	r.queueStep(func() {
		r.handleNotifyImageUpdate(r.localImage.NotifyUpdate(r.ctx))
	})
}

func (r *Replayer) handleNotifyImageUpdate(err error) {
	r.logger.Debug("handle notify image update", zap.Error(err))

	if err != nil {
		r.logger.Warn("failed to notify local image update", zap.Error(err))
	}

	if r.isReplayInterrupted() {
		return
	}

	r.unlinkPeer()
}

func (r *Replayer) unlinkPeer() {
	if r.remoteSnapIDStart == 0 {
		r.mu.Lock()
		r.notifyStatusUpdatedLocked()
		r.mu.Unlock()

		r.refreshLocalImage()
		return
	}

	// the local snapshot is fully synced: we no longer depend on the sync
	// start snapshot in the remote image
	r.logger.Debug("unlinking peer",
		zap.Stringer("remote_snap_id", r.remoteSnapIDStart))

	r.queueStep(func() {
		r.handleUnlinkPeer(r.snapOps.UnlinkPeer(r.ctx,
			r.remoteImage, r.remoteSnapIDStart, r.remoteMirrorPeerUUID))
	})
}

func (r *Replayer) handleUnlinkPeer(err error) {
	r.logger.Debug("handle unlink peer", zap.Error(err))

	if err != nil && !merrors.IsNotFound(err) {
		r.logger.Error("failed to unlink local peer from remote image", zap.Error(err))
		r.handleReplayComplete(err, "failed to unlink local peer from remote image")
		return
	}

	r.mu.Lock()
	r.notifyStatusUpdatedLocked()
	r.mu.Unlock()

	r.refreshLocalImage()
}
