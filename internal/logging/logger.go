// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the console format, the level, and an optional log file.
type Options struct {
	Development bool
	Level       string
	File        string
}

// New builds a zap.Logger that writes to the console and, when Options.File
// is set, to a JSON log file as well. The returned close func flushes the
// logger and releases the file; call it once the logger is no longer used.
func New(opts Options) (*zap.Logger, func(), error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	if opts.File == "" {
		return logger, func() { _ = logger.Sync() }, nil
	}

	sink, closeFile, err := zap.Open(opts.File)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), sink, level)
	logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
	var once sync.Once
	return logger, func() {
		once.Do(func() {
			_ = logger.Sync()
			closeFile()
		})
	}, nil
}

func fileEncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}
