package replayer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/internal/replayer/telemetry"
	"github.com/wanzew/snapmirror/internal/workqueue"
)

type replayerConfig struct {
	localMirrorUUID  string
	remoteMirrorUUID string
	localImage       image.Image
	remoteImage      image.Image
	poolMetaCache    PoolMetaGetter
	listener         Listener
	wq               workqueue.WorkQueue
	copier           Copier
	snapOps          SnapshotOps
	metrics          *telemetry.Metrics
	logger           *zap.Logger
}

func newReplayerConfig(opts []Option) (replayerConfig, error) {
	cfg := replayerConfig{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	if cfg.metrics == nil {
		cfg.metrics = telemetry.Nop()
	}
	cfg.logger = cfg.logger.Named("replayer").With(
		zap.Stringer("local_image", cfg.localImage.Ref()),
		zap.Stringer("remote_image", cfg.remoteImage.Ref()),
	)
	return cfg, nil
}

func (cfg replayerConfig) validate() error {
	if len(cfg.localMirrorUUID) == 0 {
		return fmt.Errorf("replayer: local mirror uuid is empty")
	}
	if len(cfg.remoteMirrorUUID) == 0 {
		return fmt.Errorf("replayer: remote mirror uuid is empty")
	}
	if cfg.localImage == nil {
		return fmt.Errorf("replayer: local image is nil")
	}
	if cfg.remoteImage == nil {
		return fmt.Errorf("replayer: remote image is nil")
	}
	if cfg.poolMetaCache == nil {
		return fmt.Errorf("replayer: pool meta cache is nil")
	}
	if cfg.listener == nil {
		return fmt.Errorf("replayer: listener is nil")
	}
	if cfg.wq == nil {
		return fmt.Errorf("replayer: work queue is nil")
	}
	if cfg.copier == nil {
		return fmt.Errorf("replayer: copier is nil")
	}
	if cfg.snapOps == nil {
		return fmt.Errorf("replayer: snapshot ops is nil")
	}
	if cfg.logger == nil {
		return fmt.Errorf("replayer: logger is nil")
	}
	return nil
}

type Option interface {
	apply(cfg *replayerConfig)
}

type funcOption struct {
	f func(cfg *replayerConfig)
}

func newFuncOption(f func(cfg *replayerConfig)) *funcOption {
	return &funcOption{f: f}
}

func (fo *funcOption) apply(cfg *replayerConfig) {
	fo.f(cfg)
}

// WithLocalMirrorUUID sets the uuid of the local cluster.
func WithLocalMirrorUUID(localMirrorUUID string) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.localMirrorUUID = localMirrorUUID
	})
}

// WithRemoteMirrorUUID sets the uuid of the remote cluster producing the
// primary snapshots.
func WithRemoteMirrorUUID(remoteMirrorUUID string) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.remoteMirrorUUID = remoteMirrorUUID
	})
}

func WithLocalImage(localImage image.Image) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.localImage = localImage
	})
}

func WithRemoteImage(remoteImage image.Image) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.remoteImage = remoteImage
	})
}

func WithPoolMetaCache(poolMetaCache PoolMetaGetter) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.poolMetaCache = poolMetaCache
	})
}

func WithListener(listener Listener) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.listener = listener
	})
}

func WithWorkQueue(wq workqueue.WorkQueue) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.wq = wq
	})
}

func WithCopier(copier Copier) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.copier = copier
	})
}

func WithSnapshotOps(snapOps SnapshotOps) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.snapOps = snapOps
	})
}

func WithMetrics(metrics *telemetry.Metrics) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.metrics = metrics
	})
}

func WithLogger(logger *zap.Logger) Option {
	return newFuncOption(func(cfg *replayerConfig) {
		cfg.logger = logger
	})
}
