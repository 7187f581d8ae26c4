// Package replayer implements the snapshot-based image replayer: the
// long-running core that drags a local image copy forward to match each new
// mirror snapshot produced on the remote image.
//
// The replayer is a single logical state machine driven by a shared work
// queue. One cycle runs refresh -> scan -> copy -> finalize -> unlink and
// loops; with no remote work pending it idles until the remote image update
// watcher wakes it. Errors and shutdown both land in the terminal complete
// state, from which the pending shutdown path unregisters the watcher, drains
// in-flight listener callbacks, and completes the caller.
package replayer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wanzew/snapmirror/internal/deepcopy"
	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/internal/optracker"
	"github.com/wanzew/snapmirror/internal/poolmeta"
	"github.com/wanzew/snapmirror/pkg/merrors"
	"github.com/wanzew/snapmirror/pkg/types"
)

//go:generate mockgen -package mock -destination mock/replayer_mock.go github.com/wanzew/snapmirror/internal/replayer SnapshotOps,Listener

// Listener observes the replayer. HandleNotification is invoked, off the
// replayer lock, after every observable status change; the owner reacts by
// polling IsReplaying and Err.
type Listener interface {
	HandleNotification()
}

// PoolMetaGetter resolves replication metadata of remote pools.
type PoolMetaGetter interface {
	GetRemotePoolMeta(poolID types.PoolID) (poolmeta.RemotePoolMeta, error)
}

// Copier performs the deep-copy primitives between the two images.
type Copier interface {
	CopySnapshots(ctx context.Context, remote, local image.Image, remoteStart, remoteEnd, localStart types.SnapID) (image.SnapSeqs, error)
	CopyImage(ctx context.Context, remote, local image.Image, remoteStart, remoteEnd, localStart types.SnapID, resumeObject types.ObjectNumber, snapSeqs image.SnapSeqs, progress deepcopy.Progress) error
}

// SnapshotOps performs mirror-snapshot metadata operations.
type SnapshotOps interface {
	GetImageState(ctx context.Context, remote image.Image, id types.SnapID) ([]byte, error)
	CreateNonPrimary(ctx context.Context, local image.Image, demoted bool, primaryMirrorUUID string, primarySnapID types.SnapID, snapSeqs image.SnapSeqs, imageState []byte) (types.SnapID, error)
	UnlinkPeer(ctx context.Context, remote image.Image, id types.SnapID, peerUUID string) error
}

type replayerState int8

const (
	stateInit replayerState = iota
	stateReplaying
	stateIdle
	stateComplete
)

func (s replayerState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateReplaying:
		return "replaying"
	case stateIdle:
		return "idle"
	case stateComplete:
		return "complete"
	default:
		return fmt.Sprintf("unknown(%d)", int8(s))
	}
}

type Replayer struct {
	replayerConfig

	ctx context.Context

	// mu guards the fields shared with the notifier goroutine and the
	// shutdown caller. The per-cycle fields below it are owned by the state
	// machine continuation and need no lock.
	mu                 sync.Mutex
	state              replayerState
	onInitShutdown     func(error)
	err                error
	errDescription     string
	remoteImageUpdated bool

	updateWatcherHandle     image.WatcherHandle
	updateWatcherRegistered bool

	inFlightOps *optracker.Tracker

	remoteMirrorPeerUUID string

	localSnapIDStart   types.SnapID
	localSnapIDEnd     types.SnapID
	localMirrorSnapNS  image.MirrorSnapshotNamespace
	remoteSnapIDStart  types.SnapID
	remoteSnapIDEnd    types.SnapID
	remoteMirrorSnapNS image.MirrorSnapshotNamespace

	imageState  []byte
	progressCtx *progressContext
}

func New(opts ...Option) (*Replayer, error) {
	cfg, err := newReplayerConfig(opts)
	if err != nil {
		return nil, err
	}
	r := &Replayer{
		replayerConfig: cfg,
		ctx:            context.Background(),
		state:          stateInit,
		inFlightOps:    optracker.New(),
		localSnapIDEnd: types.NoSnap,
	}
	r.remoteSnapIDEnd = types.NoSnap
	return r, nil
}

// Init resolves the remote mirror peer uuid and registers the update watcher
// on the remote image. onFinish is completed once the replayer is replaying
// or has failed; exactly one of Init and ShutDown may be outstanding.
func (r *Replayer) Init(onFinish func(error)) {
	r.logger.Debug("init")

	r.mu.Lock()
	if r.state != stateInit {
		state := r.state
		r.mu.Unlock()
		panic(fmt.Sprintf("replayer: init in state %s", state))
	}
	r.mu.Unlock()

	meta, err := r.poolMetaCache.GetRemotePoolMeta(r.remoteImage.Ref().Pool)
	if err != nil || len(meta.MirrorPeerUUID) == 0 {
		if err == nil {
			err = fmt.Errorf("replayer: missing mirror peer uuid: %w", merrors.ErrInvalid)
		}
		r.logger.Error("failed to retrieve mirror peer uuid from remote pool", zap.Error(err))
		r.mu.Lock()
		r.state = stateComplete
		r.mu.Unlock()
		r.wq.Queue(onFinish, err)
		return
	}
	r.remoteMirrorPeerUUID = meta.MirrorPeerUUID
	r.logger.Debug("resolved remote mirror peer uuid",
		zap.String("remote_mirror_peer_uuid", r.remoteMirrorPeerUUID))

	r.mu.Lock()
	if r.onInitShutdown != nil {
		r.mu.Unlock()
		panic("replayer: init/shutdown already in progress")
	}
	r.onInitShutdown = onFinish
	r.mu.Unlock()

	r.registerUpdateWatcher()
}

// ShutDown tears the replayer down. If a sync is in flight the teardown is
// deferred until the running step lands in the state machine and observes the
// complete state; otherwise it proceeds immediately. onFinish is completed
// exactly once, after the update watcher is unregistered and in-flight
// listener callbacks have drained.
func (r *Replayer) ShutDown(onFinish func(error)) {
	r.logger.Debug("shut down")

	r.mu.Lock()
	if r.onInitShutdown != nil {
		r.mu.Unlock()
		panic("replayer: init/shutdown already in progress")
	}
	r.onInitShutdown = onFinish
	r.err = nil
	r.errDescription = ""

	if r.state == stateInit {
		r.mu.Unlock()
		panic("replayer: shut down before init")
	}
	state := r.state
	r.state = stateComplete

	if state == stateReplaying {
		// TODO interrupt snapshot copy and image copy even if the remote
		// cluster is unreachable
		r.logger.Debug("shut down pending on completion of snapshot replay")
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.unregisterUpdateWatcher()
}

// Flush completes immediately: object-level flush is guaranteed by the copy
// primitives.
func (r *Replayer) Flush(onFinish func(error)) {
	r.logger.Debug("flush")
	r.wq.Queue(onFinish, nil)
}

// GetReplayStatus returns a placeholder description and completes onFinish
// with merrors.ErrExist to signal that detailed status is not implemented.
func (r *Replayer) GetReplayStatus(onFinish func(error)) (string, bool) {
	r.logger.Debug("get replay status")
	onFinish(merrors.ErrExist)
	return "NOT IMPLEMENTED", true
}

func (r *Replayer) IsReplaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateReplaying || r.state == stateIdle
}

// Err returns the recorded result of the replay: the first error observed (or
// nil) and its description. Terminal but successful outcomes, such as a
// demoted remote image, record a nil error with a descriptive reason.
func (r *Replayer) Err() (error, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err, r.errDescription
}

func (r *Replayer) currentState() replayerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// queueStep schedules fn on the work queue. The replayer never has two steps
// in flight: every step is queued by the completion of its predecessor.
func (r *Replayer) queueStep(fn func()) {
	r.wq.Queue(func(error) { fn() }, nil)
}

// handleReplayComplete records the (error, description) pair unless a non-nil
// error is already recorded, and moves an active replayer to the complete
// state. A recorded nil error (a terminal success) is replaced by a later
// pair; once an error is recorded, later ones are dropped.
func (r *Replayer) handleReplayComplete(err error, description string) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
		r.errDescription = description
		if err != nil {
			r.metrics.ReplayError(r.ctx)
		}
	}

	if r.state != stateReplaying && r.state != stateIdle {
		r.mu.Unlock()
		return
	}
	r.state = stateComplete
	r.notifyStatusUpdatedLocked()
	r.mu.Unlock()
}

// notifyStatusUpdatedLocked schedules one tracked listener callback. Callers
// must hold r.mu.
func (r *Replayer) notifyStatusUpdatedLocked() {
	r.logger.Debug("notifying status updated")
	r.inFlightOps.StartOp()
	r.wq.Queue(func(error) {
		r.listener.HandleNotification()
		r.inFlightOps.FinishOp()
	}, nil)
}

// isReplayInterrupted tests for a pending shutdown. When the replayer is
// already complete it resumes the deferred teardown and reports true; the
// caller must not advance the cycle.
func (r *Replayer) isReplayInterrupted() bool {
	r.mu.Lock()
	if r.state != stateComplete {
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	r.logger.Debug("resuming pending shut down")
	r.unregisterUpdateWatcher()
	return true
}

type updateWatcher struct {
	r *Replayer
}

var _ image.UpdateWatcher = (*updateWatcher)(nil)

func (w *updateWatcher) HandleNotify() {
	w.r.handleRemoteImageUpdateNotify()
}

func (r *Replayer) handleRemoteImageUpdateNotify() {
	r.logger.Debug("remote image update notification")

	r.mu.Lock()
	switch r.state {
	case stateReplaying:
		r.logger.Debug("flagging snapshot rescan required")
		r.remoteImageUpdated = true
		r.mu.Unlock()
	case stateIdle:
		r.state = stateReplaying
		r.mu.Unlock()

		r.logger.Debug("restarting idle replayer")
		r.refreshLocalImage()
	default:
		r.mu.Unlock()
	}
}

func (r *Replayer) registerUpdateWatcher() {
	r.logger.Debug("registering update watcher")

	handle, err := r.remoteImage.RegisterUpdateWatcher(&updateWatcher{r: r})
	if err == nil {
		r.updateWatcherHandle = handle
		r.updateWatcherRegistered = true
	}
	r.wq.Queue(r.handleRegisterUpdateWatcher, err)
}

func (r *Replayer) handleRegisterUpdateWatcher(err error) {
	r.logger.Debug("handle register update watcher", zap.Error(err))

	if err != nil {
		r.logger.Error("failed to register update watcher", zap.Error(err))
		r.handleReplayComplete(err, "failed to register remote image update watcher")
		r.mu.Lock()
		r.state = stateComplete
		r.mu.Unlock()
	} else {
		r.mu.Lock()
		r.state = stateReplaying
		r.mu.Unlock()
	}

	r.mu.Lock()
	onInit := r.onInitShutdown
	r.onInitShutdown = nil
	r.mu.Unlock()
	onInit(err)

	// delay the initial snapshot scan until after the owner has observed
	// that init finished, in case an error occurs
	if err == nil {
		r.mu.Lock()
		r.notifyStatusUpdatedLocked()
		r.mu.Unlock()

		r.refreshLocalImage()
	}
}

func (r *Replayer) unregisterUpdateWatcher() {
	r.logger.Debug("unregistering update watcher")

	if !r.updateWatcherRegistered {
		r.queueStep(func() { r.handleUnregisterUpdateWatcher(nil) })
		return
	}
	r.queueStep(func() {
		r.handleUnregisterUpdateWatcher(
			r.remoteImage.UnregisterUpdateWatcher(r.ctx, r.updateWatcherHandle))
	})
}

func (r *Replayer) handleUnregisterUpdateWatcher(err error) {
	r.logger.Debug("handle unregister update watcher", zap.Error(err))

	if err != nil {
		r.logger.Error("failed to unregister update watcher", zap.Error(err))
		r.handleReplayComplete(err, "failed to unregister remote image update watcher")
	}
	r.updateWatcherRegistered = false

	r.waitForInFlightOps()
}

func (r *Replayer) waitForInFlightOps() {
	r.logger.Debug("waiting for in-flight ops")

	r.inFlightOps.WaitForOps(func() {
		r.queueStep(r.handleWaitForInFlightOps)
	})
}

func (r *Replayer) handleWaitForInFlightOps() {
	r.logger.Debug("handle wait for in-flight ops")

	r.mu.Lock()
	if r.onInitShutdown == nil {
		r.mu.Unlock()
		panic("replayer: shutdown completion without waiter")
	}
	onShutdown := r.onInitShutdown
	r.onInitShutdown = nil
	err := r.err
	r.mu.Unlock()

	onShutdown(err)
}
