// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging builds the daemon's zap logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/luxfi/unirpc/internal/config"
)

// Setup builds a zap.Logger from c. The returned close function flushes
// the logger and releases any files it opened.
func Setup(c config.Logging) (*zap.Logger, func() error, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		cores   []zapcore.Core
		closers []io.Closer
	)
	for _, out := range c.Outputs {
		var (
			ws  zapcore.WriteSyncer
			tty bool
		)
		switch strings.ToLower(out) {
		case "stdout":
			ws, tty = zapcore.Lock(os.Stdout), isTerminal(os.Stdout)
		case "stderr":
			ws, tty = zapcore.Lock(os.Stderr), isTerminal(os.Stderr)
		default:
			if dir := filepath.Dir(out); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					closeAll(closers)
					return nil, nil, fmt.Errorf("create log directory: %w", err)
				}
			}
			if c.Rotation.Enable {
				lj := &lumberjack.Logger{
					Filename:   out,
					MaxSize:    c.Rotation.MaxSizeMB,
					MaxBackups: c.Rotation.MaxBackups,
					MaxAge:     c.Rotation.MaxAgeDays,
					Compress:   c.Rotation.Compress,
				}
				ws = zapcore.AddSync(lj)
				closers = append(closers, lj)
			} else {
				f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					closeAll(closers)
					return nil, nil, fmt.Errorf("open log file: %w", err)
				}
				ws = zapcore.AddSync(f)
				closers = append(closers, f)
			}
		}
		cores = append(cores, zapcore.NewCore(newEncoder(c.Format, tty), ws, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	closeFn := func() error {
		_ = logger.Sync()
		return closeAll(closers)
	}
	return logger, closeFn, nil
}

func parseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zap.DebugLevel, nil
	case "", "info":
		return zap.InfoLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// newEncoder picks the console encoder for "console", and for "auto" when
// the output is a terminal. Everything else gets JSON.
func newEncoder(format string, tty bool) zapcore.Encoder {
	switch strings.ToLower(format) {
	case "console":
		return zapcore.NewConsoleEncoder(consoleEncoderConfig(tty))
	case "auto":
		if tty {
			return zapcore.NewConsoleEncoder(consoleEncoderConfig(true))
		}
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func consoleEncoderConfig(color bool) zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	if color {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func closeAll(closers []io.Closer) error {
	var first error
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
