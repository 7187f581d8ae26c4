package workqueue

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	DefaultNumWorkers    = 4
	DefaultQueueCapacity = 1024

	minQueueCapacity = 1
	maxQueueCapacity = 1 << 16
)

type poolConfig struct {
	numWorkers    int
	queueCapacity int
	logger        *zap.Logger
}

func newPoolConfig(opts []Option) (poolConfig, error) {
	cfg := poolConfig{
		numWorkers:    DefaultNumWorkers,
		queueCapacity: DefaultQueueCapacity,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	cfg.logger = cfg.logger.Named("workqueue")
	return cfg, nil
}

func (cfg poolConfig) validate() error {
	if cfg.numWorkers < 1 {
		return fmt.Errorf("workqueue: invalid number of workers %d", cfg.numWorkers)
	}
	if cfg.queueCapacity < minQueueCapacity || cfg.queueCapacity > maxQueueCapacity {
		return fmt.Errorf("workqueue: invalid queue capacity %d", cfg.queueCapacity)
	}
	if cfg.logger == nil {
		return fmt.Errorf("workqueue: logger is nil")
	}
	return nil
}

type Option interface {
	apply(cfg *poolConfig)
}

type funcOption struct {
	f func(cfg *poolConfig)
}

func newFuncOption(f func(cfg *poolConfig)) *funcOption {
	return &funcOption{f: f}
}

func (fo *funcOption) apply(cfg *poolConfig) {
	fo.f(cfg)
}

func WithNumWorkers(numWorkers int) Option {
	return newFuncOption(func(cfg *poolConfig) {
		cfg.numWorkers = numWorkers
	})
}

func WithQueueCapacity(queueCapacity int) Option {
	return newFuncOption(func(cfg *poolConfig) {
		cfg.queueCapacity = queueCapacity
	})
}

func WithLogger(logger *zap.Logger) Option {
	return newFuncOption(func(cfg *poolConfig) {
		cfg.logger = logger
	})
}
