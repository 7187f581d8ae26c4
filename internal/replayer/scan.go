package replayer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/pkg/merrors"
	"github.com/wanzew/snapmirror/pkg/types"
)

func (r *Replayer) refreshLocalImage() {
	if !r.localImage.IsRefreshRequired() {
		r.refreshRemoteImage()
		return
	}

	r.logger.Debug("refreshing local image")
	r.queueStep(func() {
		r.handleRefreshLocalImage(r.localImage.Refresh(r.ctx))
	})
}

func (r *Replayer) handleRefreshLocalImage(err error) {
	r.logger.Debug("handle refresh local image", zap.Error(err))

	if err != nil {
		r.logger.Error("failed to refresh local image", zap.Error(err))
		r.handleReplayComplete(err, "failed to refresh local image")
		return
	}

	r.refreshRemoteImage()
}

func (r *Replayer) refreshRemoteImage() {
	if !r.remoteImage.IsRefreshRequired() {
		r.scanLocalMirrorSnapshots()
		return
	}

	r.logger.Debug("refreshing remote image")
	r.queueStep(func() {
		r.handleRefreshRemoteImage(r.remoteImage.Refresh(r.ctx))
	})
}

func (r *Replayer) handleRefreshRemoteImage(err error) {
	r.logger.Debug("handle refresh remote image", zap.Error(err))

	if err != nil {
		r.logger.Error("failed to refresh remote image", zap.Error(err))
		r.handleReplayComplete(err, "failed to refresh remote image")
		return
	}

	r.scanLocalMirrorSnapshots()
}

// scanLocalMirrorSnapshots walks the local snapshot list and picks the local
// half of the sync window: the latest complete mirror snapshot as the start
// point and a still-incomplete one, if any, as the sync to resume.
func (r *Replayer) scanLocalMirrorSnapshots() {
	if r.isReplayInterrupted() {
		return
	}

	r.logger.Debug("scanning local mirror snapshots")
	r.metrics.ReplayCycle(r.ctx)

	r.localSnapIDStart = 0
	r.localSnapIDEnd = types.NoSnap
	r.localMirrorSnapNS = image.MirrorSnapshotNamespace{}

	r.remoteSnapIDStart = 0
	r.remoteSnapIDEnd = types.NoSnap
	r.remoteMirrorSnapNS = image.MirrorSnapshotNamespace{}

	for _, si := range r.localImage.Snapshots() {
		mirrorNS, ok := si.MirrorNamespace()
		if !ok {
			continue
		}

		r.logger.Debug("local mirror snapshot",
			zap.Stringer("snap_id", si.ID), zap.Stringer("mirror_ns", &mirrorNS))
		r.localMirrorSnapNS = mirrorNS

		switch {
		case mirrorNS.IsNonPrimary():
			if mirrorNS.Complete {
				// if the remote has new snapshots, we would sync from here
				r.localSnapIDStart = si.ID
				r.localSnapIDEnd = types.NoSnap
			} else {
				// the start snap stays the last complete mirror snapshot or
				// the initial image revision
				r.localSnapIDEnd = si.ID
			}
		case mirrorNS.IsPrimary():
			if mirrorNS.Complete {
				r.localSnapIDStart = si.ID
				r.localSnapIDEnd = types.NoSnap
			} else {
				r.logger.Error("incomplete local primary snapshot",
					zap.Stringer("snap_id", si.ID))
				r.handleReplayComplete(merrors.ErrInvalid, "incomplete local primary snapshot")
				return
			}
		default:
			r.logger.Error("unknown local mirror snapshot state",
				zap.Stringer("snap_id", si.ID))
			r.handleReplayComplete(merrors.ErrInvalid, "invalid local mirror snapshot state")
			return
		}
	}

	if r.localSnapIDStart > 0 || r.localSnapIDEnd != types.NoSnap {
		if r.localMirrorSnapNS.IsNonPrimary() &&
			r.localMirrorSnapNS.PrimaryMirrorUUID != r.remoteMirrorUUID {
			// multi-peer replication is not supported
			r.logger.Error("local image linked to unknown peer",
				zap.String("primary_mirror_uuid", r.localMirrorSnapNS.PrimaryMirrorUUID))
			r.handleReplayComplete(merrors.ErrExist, "local image linked to unknown peer")
			return
		} else if r.localMirrorSnapNS.State == image.MirrorSnapshotStatePrimary {
			r.logger.Info("local image promoted")
			r.handleReplayComplete(nil, "force promoted")
			return
		}

		r.logger.Debug("found local mirror snapshot",
			zap.Stringer("local_snap_id_start", r.localSnapIDStart),
			zap.Stringer("local_snap_id_end", r.localSnapIDEnd),
			zap.Stringer("local_snap_ns", &r.localMirrorSnapNS))
		if r.localMirrorSnapNS.Complete {
			// the remote sync should start after this completed snapshot
			r.remoteSnapIDStart = r.localMirrorSnapNS.PrimarySnapID
		}
	}

	// either no mirror snapshots at all, or the latest one is a non-primary
	// snapshot linked to the remote image or a demoted primary snapshot
	r.scanRemoteMirrorSnapshots()
}

// scanRemoteMirrorSnapshots walks the remote snapshot list, advances the
// remote start point past everything already synced, and picks the first
// primary snapshot listing us as a peer as the sync target. It then decides
// between resuming an interrupted sync, starting a fresh one, idling, or
// finishing the replay.
func (r *Replayer) scanRemoteMirrorSnapshots() {
	r.logger.Debug("scanning remote mirror snapshots")

	r.mu.Lock()
	// reset in case a new snapshot appears while we are scanning
	r.remoteImageUpdated = false
	r.mu.Unlock()

	remoteDemoted := false
	for _, si := range r.remoteImage.Snapshots() {
		mirrorNS, ok := si.MirrorNamespace()
		if !ok {
			continue
		}

		r.logger.Debug("remote mirror snapshot",
			zap.Stringer("snap_id", si.ID), zap.Stringer("mirror_ns", &mirrorNS))
		if !mirrorNS.IsPrimary() && !mirrorNS.IsNonPrimary() {
			r.logger.Error("unknown remote mirror snapshot state",
				zap.Stringer("snap_id", si.ID))
			r.handleReplayComplete(merrors.ErrInvalid, "invalid remote mirror snapshot state")
			return
		}
		remoteDemoted = mirrorNS.IsPrimary() && mirrorNS.IsDemoted()

		remoteSnapID := si.ID
		if r.localSnapIDStart > 0 || r.localSnapIDEnd != types.NoSnap {
			// the local image has a mirror snapshot
			if r.localMirrorSnapNS.IsNonPrimary() {
				if r.localMirrorSnapNS.PrimaryMirrorUUID != r.remoteMirrorUUID {
					panic(fmt.Sprintf("replayer: local snapshot linked to %s instead of %s",
						r.localMirrorSnapNS.PrimaryMirrorUUID, r.remoteMirrorUUID))
				}

				if r.localMirrorSnapNS.Complete &&
					r.localMirrorSnapNS.PrimarySnapID >= remoteSnapID {
					// skip past the completed remote snapshot
					r.remoteSnapIDStart = remoteSnapID
					r.logger.Debug("skipping synced remote snapshot",
						zap.Stringer("snap_id", remoteSnapID))
					continue
				} else if !r.localMirrorSnapNS.Complete &&
					r.localMirrorSnapNS.PrimarySnapID > remoteSnapID {
					// skip until we get to the in-progress remote snapshot
					r.remoteSnapIDStart = remoteSnapID
					r.logger.Debug("skipping synced remote snapshot while searching for in-progress sync",
						zap.Stringer("snap_id", remoteSnapID))
					continue
				}
			} else if r.localMirrorSnapNS.State == image.MirrorSnapshotStatePrimaryDemoted {
				// find the matching demotion snapshot in the remote image
				if r.localSnapIDStart == 0 {
					panic("replayer: demoted local snapshot without start point")
				}
				if mirrorNS.State == image.MirrorSnapshotStateNonPrimaryDemoted &&
					mirrorNS.PrimaryMirrorUUID == r.localMirrorUUID &&
					mirrorNS.PrimarySnapID == r.localSnapIDStart {
					r.logger.Debug("located matching demotion snapshot",
						zap.Stringer("remote_snap_id", remoteSnapID),
						zap.Stringer("local_snap_id", r.localSnapIDStart))
					r.remoteSnapIDStart = remoteSnapID
					continue
				} else if r.remoteSnapIDStart == 0 {
					// still searching for the matching demotion snapshot
					r.logger.Debug("skipping remote snapshot while searching for demotion",
						zap.Stringer("snap_id", remoteSnapID))
					continue
				}
			} else {
				// reachable only under corrupt metadata
				r.handleReplayComplete(merrors.ErrInvalid, "invalid local mirror snapshot state")
				return
			}
		}

		// find the first snapshot where we are listed as a peer
		if !mirrorNS.IsPrimary() {
			r.logger.Debug("skipping non-primary remote snapshot",
				zap.Stringer("snap_id", remoteSnapID))
			continue
		} else if !mirrorNS.HasPeer(r.remoteMirrorPeerUUID) {
			r.logger.Debug("skipping remote snapshot due to missing mirror peer",
				zap.Stringer("snap_id", remoteSnapID))
			continue
		}

		r.remoteSnapIDEnd = remoteSnapID
		r.remoteMirrorSnapNS = mirrorNS
		break
	}

	if r.remoteSnapIDEnd != types.NoSnap {
		r.logger.Debug("found remote mirror snapshot",
			zap.Stringer("remote_snap_id_start", r.remoteSnapIDStart),
			zap.Stringer("remote_snap_id_end", r.remoteSnapIDEnd),
			zap.Stringer("remote_snap_ns", &r.remoteMirrorSnapNS))
		if r.remoteMirrorSnapNS.Complete {
			if r.localSnapIDEnd != types.NoSnap && !r.localMirrorSnapNS.Complete {
				// resume the interrupted image sync
				r.logger.Debug("local image contains in-progress mirror snapshot")
				r.copyImage()
			} else {
				r.copySnapshots()
			}
			return
		}
		// raced with the creation of a remote mirror snapshot: refresh and
		// rescan once it completes
		r.logger.Debug("remote mirror snapshot not complete")
	}

	r.mu.Lock()
	if r.remoteImageUpdated {
		// received an update notification while scanning, restart
		r.remoteImageUpdated = false
		r.mu.Unlock()

		r.logger.Debug("restarting snapshot scan due to remote update notification")
		r.refreshLocalImage()
		return
	}

	if r.state == stateComplete {
		r.mu.Unlock()

		r.logger.Debug("resuming pending shut down")
		r.unregisterUpdateWatcher()
		return
	} else if remoteDemoted {
		r.mu.Unlock()

		r.logger.Info("remote image demoted")
		r.handleReplayComplete(nil, "remote image demoted")
		return
	}

	r.logger.Debug("all remote snapshots synced: idling waiting for new snapshot")
	if r.state != stateReplaying {
		state := r.state
		r.mu.Unlock()
		panic(fmt.Sprintf("replayer: idle transition in state %s", state))
	}
	r.state = stateIdle
	r.notifyStatusUpdatedLocked()
	r.mu.Unlock()
}
