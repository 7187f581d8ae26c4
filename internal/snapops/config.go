package snapops

import (
	"fmt"

	"go.uber.org/zap"
)

type clientConfig struct {
	logger *zap.Logger
}

func newClientConfig(opts []Option) (clientConfig, error) {
	cfg := clientConfig{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if cfg.logger == nil {
		return cfg, fmt.Errorf("snapops: logger is nil")
	}
	cfg.logger = cfg.logger.Named("snapops")
	return cfg, nil
}

type Option interface {
	apply(cfg *clientConfig)
}

type funcOption struct {
	f func(cfg *clientConfig)
}

func newFuncOption(f func(cfg *clientConfig)) *funcOption {
	return &funcOption{f: f}
}

func (fo *funcOption) apply(cfg *clientConfig) {
	fo.f(cfg)
}

func WithLogger(logger *zap.Logger) Option {
	return newFuncOption(func(cfg *clientConfig) {
		cfg.logger = logger
	})
}
