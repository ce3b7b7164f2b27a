// Package log provides the logger constructors and the log field helpers shared by the
// relay and sync components.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// where logs go by default.
var logWriter io.Writer = os.Stderr

const (
	// ConsoleEncoder is the human-readable log format.
	ConsoleEncoder = "console"
	// JSONEncoder is the structured log format.
	JSONEncoder = "json"
)

// NewNop creates silent logger.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

// New creates a logger with the specified level and encoder.
// The level is one of zap's level names ("debug", "info", ...), and the encoder is
// either ConsoleEncoder or JSONEncoder.
func New(level, encoder string, hooks ...func(zapcore.Entry) error) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	enc, err := newEncoder(encoder)
	if err != nil {
		return nil, err
	}
	return NewWithLevel(lvl, enc, hooks...), nil
}

// NewWithLevel creates a logger with a fixed level and with a set of (optional) hooks.
func NewWithLevel(
	level zap.AtomicLevel,
	encoder zapcore.Encoder,
	hooks ...func(zapcore.Entry) error,
) *zap.Logger {
	core := zapcore.NewCore(encoder, zapcore.AddSync(logWriter), level)
	return zap.New(zapcore.RegisterHooks(core, hooks...))
}

func newEncoder(name string) (zapcore.Encoder, error) {
	switch name {
	case ConsoleEncoder, "":
		return zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), nil
	case JSONEncoder:
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), nil
	default:
		return nil, fmt.Errorf("unknown log encoder %q", name)
	}
}
