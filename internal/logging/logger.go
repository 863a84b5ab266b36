// Package logging provides the structured logger for hook and batch
// diagnostics. Log lines go to a JSON file under .autodev/logs/ with a
// console mirror for warnings and errors, so hook invocations stay quiet
// on stdout (the host parses stdout as a decision payload).
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// nopLogger is returned before Init so call sites never nil-check.
var logger = zap.NewNop()

// Options controls logger construction.
type Options struct {
	// Dir is the log directory. Empty disables the file sink.
	Dir string
	// Level is debug, info, warn, or error. Empty means info.
	Level string
	// Quiet suppresses the stderr mirror entirely.
	Quiet bool
}

// Init builds the global logger. Returns a flush function to defer.
func Init(opts Options) (func(), error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		logPath := filepath.Join(opts.Dir, "autodev.log")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) // #nosec G304 -- path under .autodev/logs
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(f),
			level,
		))
	}

	if !opts.Quiet {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleLevel := zapcore.WarnLevel
		if level == zapcore.DebugLevel {
			consoleLevel = zapcore.DebugLevel
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.AddSync(os.Stderr),
			consoleLevel,
		))
	}

	if len(cores) == 0 {
		logger = zap.NewNop()
		return func() {}, nil
	}

	logger = zap.New(zapcore.NewTee(cores...))
	return func() { _ = logger.Sync() }, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
	}
}

// L returns the global logger.
func L() *zap.Logger {
	return logger
}

// Named returns a named child of the global logger.
func Named(name string) *zap.Logger {
	return logger.Named(name)
}
