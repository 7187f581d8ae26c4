package imagestore

import (
	"fmt"

	"go.uber.org/zap"
)

type storeConfig struct {
	syncWAL bool
	logger  *zap.Logger
}

func newStoreConfig(opts []Option) (storeConfig, error) {
	cfg := storeConfig{
		syncWAL: true,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	cfg.logger = cfg.logger.Named("imagestore")
	return cfg, nil
}

func (cfg storeConfig) validate() error {
	if cfg.logger == nil {
		return fmt.Errorf("imagestore: logger is nil")
	}
	return nil
}

type Option interface {
	apply(cfg *storeConfig)
}

type funcOption struct {
	f func(cfg *storeConfig)
}

func newFuncOption(f func(cfg *storeConfig)) *funcOption {
	return &funcOption{f: f}
}

func (fo *funcOption) apply(cfg *storeConfig) {
	fo.f(cfg)
}

func WithoutSyncWAL() Option {
	return newFuncOption(func(cfg *storeConfig) {
		cfg.syncWAL = false
	})
}

func WithLogger(logger *zap.Logger) Option {
	return newFuncOption(func(cfg *storeConfig) {
		cfg.logger = logger
	})
}
