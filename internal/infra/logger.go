package infra

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls where the daemon writes its log.
type LogConfig struct {
	Path       string // empty logs to stderr only
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogger builds a JSON zap logger. When Path is set the file is rotated by
// lumberjack and warnings are also copied to stderr.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	stderr := zapcore.Lock(os.Stderr)
	if cfg.Path == "" {
		return zap.New(zapcore.NewCore(encoder, stderr, level)), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})

	warnAndAbove := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.WarnLevel && level.Enabled(l)
	})
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, file, level),
		zapcore.NewCore(encoder, stderr, warnAndAbove),
	)
	return zap.New(core), nil
}
