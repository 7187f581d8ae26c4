package deepcopy

import (
	"fmt"

	"go.uber.org/zap"
)

const DefaultConcurrency = 4

type copierConfig struct {
	concurrency int
	logger      *zap.Logger
}

func newCopierConfig(opts []Option) (copierConfig, error) {
	cfg := copierConfig{
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	cfg.logger = cfg.logger.Named("deepcopy")
	return cfg, nil
}

func (cfg copierConfig) validate() error {
	if cfg.concurrency < 1 {
		return fmt.Errorf("deepcopy: invalid concurrency %d", cfg.concurrency)
	}
	if cfg.logger == nil {
		return fmt.Errorf("deepcopy: logger is nil")
	}
	return nil
}

type Option interface {
	apply(cfg *copierConfig)
}

type funcOption struct {
	f func(cfg *copierConfig)
}

func newFuncOption(f func(cfg *copierConfig)) *funcOption {
	return &funcOption{f: f}
}

func (fo *funcOption) apply(cfg *copierConfig) {
	fo.f(cfg)
}

// WithConcurrency bounds the number of objects copied in parallel.
func WithConcurrency(concurrency int) Option {
	return newFuncOption(func(cfg *copierConfig) {
		cfg.concurrency = concurrency
	})
}

func WithLogger(logger *zap.Logger) Option {
	return newFuncOption(func(cfg *copierConfig) {
		cfg.logger = logger
	})
}
