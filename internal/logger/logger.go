// Package logger builds the zap logger shared by every collecte component.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names for structured logging.
const (
	FieldRunID    = "run_id"
	FieldAddress  = "address"
	FieldCategory = "category"
	FieldDate     = "date"
	FieldState    = "state"
	FieldStatus   = "status"
	FieldCount    = "count"
	FieldError    = "error"
	FieldTopic    = "topic"
	FieldPath     = "path"
	FieldURL      = "url"
	FieldReason   = "reason"
)

// Options configures the logger.
type Options struct {
	Debug  bool      // Enable debug level logging
	Quiet  bool      // Only show errors
	JSON   bool      // Output as JSON
	Output io.Writer // Output destination (default: stderr)
}

// New builds a sugared zap logger from opts.
func New(opts Options) *zap.SugaredLogger {
	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}
	if opts.Quiet {
		level = zap.ErrorLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), level)
	return zap.New(core).Sugar()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
