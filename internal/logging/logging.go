// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package logging wraps zap with the structured fields this program's
// components attach consistently: component, request_id, router, and
// outcome_code. A Logger is built once per request from a RuntimeConfig's
// verbosity and passed down explicitly.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.Logger plus the verbosity level that gated its
// construction, since cause-chain attachment only happens at verbosity >= 2.
type Logger struct {
	z         *zap.Logger
	verbosity int
}

// New builds a Logger for one request, mapping 0-3 to zap levels:
// 0=warn, 1=info, 2=debug, 3=debug+stacktraces.
func New(verbosity int, requestID string) *Logger {
	level := zapcore.WarnLevel
	switch {
	case verbosity >= 2:
		level = zapcore.DebugLevel
	case verbosity == 1:
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = verbosity < 3
	cfg.EncoderConfig.TimeKey = "ts"

	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	if requestID != "" {
		z = z.With(zap.String("request_id", requestID))
	}
	return &Logger{z: z, verbosity: verbosity}
}

// With returns a child logger tagged with an additional component name.
func (l *Logger) With(component string) *Logger {
	return &Logger{z: l.z.With(zap.String("component", component)), verbosity: l.verbosity}
}

// Info logs a structured informational event.
func (l *Logger) Info(msg string, fields ...zap.Field) { l.z.Info(msg, fields...) }

// Warn logs a structured warning, e.g. a malformed facts section that was
// skipped rather than failing the load.
func (l *Logger) Warn(msg string, fields ...zap.Field) { l.z.Warn(msg, fields...) }

// Error logs a failure. When verbosity >= 2 the full pkg/errors cause chain
// is attached as a field.
func (l *Logger) Error(msg string, err error, fields ...zap.Field) {
	if l.verbosity >= 2 && err != nil {
		fields = append(fields, zap.String("cause_chain", fmt.Sprintf("%+v", err)))
	}
	l.z.Error(msg, fields...)
}

// Router returns a field identifying the router a log line concerns.
func Router(name string) zap.Field { return zap.String("router", name) }

// OutcomeCode returns a field identifying the outcome.Code a log line concerns.
func OutcomeCode(code string) zap.Field { return zap.String("outcome_code", code) }

// Sync flushes buffered log entries; callers should defer this at process exit.
func (l *Logger) Sync() error { return l.z.Sync() }
