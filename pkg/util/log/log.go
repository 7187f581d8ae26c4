// Package log builds the process logger: zap, JSON-encoded in production and
// console-encoded in debug mode, writing to stderr and/or a size-rotated file.
package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wanzew/snapmirror/pkg/util/fputil"
)

const (
	DefaultMaxSizeMB  = 100
	DefaultMaxAgeDays = 14
	DefaultMaxBackups = 100

	logDirMode = os.FileMode(0755)
)

type config struct {
	disableLogToStderr bool
	humanFriendly      bool
	level              zapcore.Level
	debug              bool

	// log rotation
	path       string
	maxSizeMB  int
	maxAgeDays int
	maxBackups int
	compress   bool
	localTime  bool
}

func newConfig(opts []Option) (cfg config, err error) {
	cfg = config{
		level:      zapcore.InfoLevel,
		maxSizeMB:  DefaultMaxSizeMB,
		maxAgeDays: DefaultMaxAgeDays,
		maxBackups: DefaultMaxBackups,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	err = cfg.validate()
	return cfg, err
}

func (cfg config) validate() error {
	if cfg.disableLogToStderr && len(cfg.path) == 0 {
		return errors.New("logger: no output")
	}
	if len(cfg.path) > 0 {
		if cfg.path[len(cfg.path)-1] == '/' {
			return errors.New("logger: invalid file path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.path), logDirMode); err != nil {
			return err
		}
		if err := fputil.IsWritableDir(filepath.Dir(cfg.path)); err != nil {
			return err
		}
	}
	return nil
}

type Option func(*config)

func WithoutLogToStderr() Option {
	return func(cfg *config) {
		cfg.disableLogToStderr = true
	}
}

func WithHumanFriendly() Option {
	return func(cfg *config) {
		cfg.humanFriendly = true
	}
}

func WithDebug() Option {
	return func(cfg *config) {
		cfg.debug = true
		cfg.level = zapcore.DebugLevel
	}
}

func WithLevel(level zapcore.Level) Option {
	return func(cfg *config) {
		cfg.level = level
	}
}

func WithPath(path string) Option {
	return func(cfg *config) {
		cfg.path = path
	}
}

func WithMaxSizeMB(maxSizeMB int) Option {
	return func(cfg *config) {
		cfg.maxSizeMB = maxSizeMB
	}
}

func WithAgeDays(maxAgeDays int) Option {
	return func(cfg *config) {
		cfg.maxAgeDays = maxAgeDays
	}
}

func WithMaxBackups(maxBackups int) Option {
	return func(cfg *config) {
		cfg.maxBackups = maxBackups
	}
}

func WithCompression() Option {
	return func(cfg *config) {
		cfg.compress = true
	}
}

func WithLocalTime() Option {
	return func(cfg *config) {
		cfg.localTime = true
	}
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (zapcore.Level, error) {
	return zapcore.ParseLevel(strings.ToLower(s))
}

func New(opts ...Option) (*zap.Logger, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	var writeSyncer zapcore.WriteSyncer
	if !cfg.disableLogToStderr {
		writeSyncer = zapcore.Lock(zapcore.AddSync(os.Stderr))
	}
	if len(cfg.path) > 0 {
		fileSyncer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.path,
			LocalTime:  cfg.localTime,
			Compress:   cfg.compress,
			MaxSize:    cfg.maxSizeMB,
			MaxBackups: cfg.maxBackups,
			MaxAge:     cfg.maxAgeDays,
		})
		if writeSyncer != nil {
			writeSyncer = zap.CombineWriteSyncers(writeSyncer, fileSyncer)
		} else {
			writeSyncer = fileSyncer
		}
	}

	var encoder zapcore.Encoder
	if cfg.humanFriendly || cfg.debug {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	core := zapcore.NewCore(encoder, writeSyncer, zap.NewAtomicLevelAt(cfg.level))

	zapOpts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.debug {
		zapOpts = append(zapOpts, zap.Development())
	}
	return zap.New(core, zapOpts...), nil
}
