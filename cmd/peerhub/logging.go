// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// logConfig describes the diagnostic log of the program.
type logConfig struct {
	Level  string `toml:"level"`  // default "warn"
	Format string `toml:"format"` // "console" (default) or "json"

	// If File is set, logs are written to that file and rotated; otherwise
	// they go to stderr.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// build constructs a logger for c. The returned closer flushes and releases
// the log output.
func (c logConfig) build() (*zap.Logger, io.Closer, error) {
	level := zapcore.WarnLevel
	if c.Level != "" {
		lvl, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		level = lvl
	}

	ecfg := zap.NewProductionEncoderConfig()
	ecfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch c.Format {
	case "", "console":
		ecfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(ecfg)
	case "json":
		enc = zapcore.NewJSONEncoder(ecfg)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", c.Format)
	}

	var out zapcore.WriteSyncer
	var closer io.Closer
	if c.File != "" {
		lj := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		}
		out, closer = zapcore.AddSync(lj), lj
	} else {
		out = zapcore.Lock(os.Stderr)
	}
	log := zap.New(zapcore.NewCore(enc, out, level), zap.AddCaller())
	return log, syncCloser{log, closer}, nil
}

type syncCloser struct {
	log *zap.Logger
	c   io.Closer
}

func (s syncCloser) Close() error {
	s.log.Sync()
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
