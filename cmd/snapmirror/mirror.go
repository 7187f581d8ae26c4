package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wanzew/snapmirror/internal/deepcopy"
	"github.com/wanzew/snapmirror/internal/flags"
	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/internal/imagestore"
	"github.com/wanzew/snapmirror/internal/poolmeta"
	"github.com/wanzew/snapmirror/internal/replayer"
	"github.com/wanzew/snapmirror/internal/snapops"
	"github.com/wanzew/snapmirror/internal/workqueue"
	"github.com/wanzew/snapmirror/pkg/types"
	"github.com/wanzew/snapmirror/pkg/util/log"
)

// statusListener logs the replayer status on every notification. The
// replayer pointer is filled in after construction.
type statusListener struct {
	logger *zap.Logger
	r      atomic.Pointer[replayer.Replayer]
}

var _ replayer.Listener = (*statusListener)(nil)

func (l *statusListener) HandleNotification() {
	r := l.r.Load()
	if r == nil {
		return
	}
	err, description := r.Err()
	l.logger.Info("replayer status updated",
		zap.Bool("replaying", r.IsReplaying()),
		zap.String("description", description),
		zap.Error(err))
}

func mirror(c *cli.Context) (err error) {
	logOpts, err := flags.ParseLoggerFlags(c, "snapmirror.log")
	if err != nil {
		return err
	}
	logger, err := log.New(logOpts...)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	localPool := types.PoolID(c.Uint64(flagLocalPool.Name))
	remotePool := types.PoolID(c.Uint64(flagRemotePool.Name))
	imageID := types.ImageID(c.String(flagImageID.Name))

	local, err := imagestore.Open(c.String(flagLocalPath.Name),
		image.Ref{Pool: localPool, Image: imageID},
		imagestore.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, local.Close())
	}()

	remote, err := imagestore.Open(c.String(flagRemotePath.Name),
		image.Ref{Pool: remotePool, Image: imageID},
		imagestore.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, remote.Close())
	}()

	peerUUID := c.String(flagPeerUUID.Name)
	if len(peerUUID) == 0 {
		peerUUID = uuid.NewString()
		logger.Info("generated peer uuid", zap.String("peer_uuid", peerUUID))
	}

	cache := poolmeta.NewCache()
	cache.SetRemotePoolMeta(remotePool, poolmeta.RemotePoolMeta{
		MirrorUUID:     remote.MirrorUUID(),
		MirrorPeerUUID: peerUUID,
	})

	wq, err := workqueue.New(
		workqueue.WithNumWorkers(c.Int(flagWorkQueueWorkers.Name)),
		workqueue.WithLogger(logger))
	if err != nil {
		return err
	}
	defer wq.Stop()

	copier, err := deepcopy.New(
		deepcopy.WithConcurrency(c.Int(flagSyncWorkers.Name)),
		deepcopy.WithLogger(logger))
	if err != nil {
		return err
	}
	ops, err := snapops.New(snapops.WithLogger(logger))
	if err != nil {
		return err
	}

	listener := &statusListener{logger: logger.Named("listener")}
	r, err := replayer.New(
		replayer.WithLocalMirrorUUID(local.MirrorUUID()),
		replayer.WithRemoteMirrorUUID(remote.MirrorUUID()),
		replayer.WithLocalImage(local),
		replayer.WithRemoteImage(remote),
		replayer.WithPoolMetaCache(cache),
		replayer.WithListener(listener),
		replayer.WithWorkQueue(wq),
		replayer.WithCopier(copier),
		replayer.WithSnapshotOps(ops),
		replayer.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	listener.r.Store(r)

	initC := make(chan error, 1)
	r.Init(func(err error) { initC <- err })
	if err := <-initC; err != nil {
		return err
	}
	logger.Info("replayer started",
		zap.Stringer("local_image", local.Ref()),
		zap.Stringer("remote_image", remote.Ref()))

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigC
	logger.Info("caught signal, shutting down", zap.Stringer("signal", sig))

	shutC := make(chan error, 1)
	r.ShutDown(func(err error) { shutC <- err })
	return <-shutC
}

func snapshot(c *cli.Context) (err error) {
	logOpts, err := flags.ParseLoggerFlags(c, "snapmirror.log")
	if err != nil {
		return err
	}
	logger, err := log.New(logOpts...)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool := types.PoolID(c.Uint64(flagPool.Name))
	imageID := types.ImageID(c.String(flagImageID.Name))

	store, err := imagestore.Open(c.String(flagPath.Name),
		image.Ref{Pool: pool, Image: imageID},
		imagestore.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	state := image.MirrorSnapshotStatePrimary
	if c.Bool(flagDemoted.Name) {
		state = image.MirrorSnapshotStatePrimaryDemoted
	}
	ctx := context.Background()
	id, err := store.CreateSnapshot(ctx, "mirror."+uuid.NewString(), image.MirrorSnapshotNamespace{
		State:           state,
		Complete:        true,
		MirrorPeerUUIDs: map[string]struct{}{c.String(flagPeerUUID.Name): {}},
	})
	if err != nil {
		return err
	}
	if err := store.NotifyUpdate(ctx); err != nil {
		return err
	}
	logger.Info("mirror snapshot created",
		zap.Stringer("snap_id", id), zap.Stringer("state", state))
	return nil
}
