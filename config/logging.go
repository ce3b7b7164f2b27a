package config

import (
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/nostrsync/relay/log"
)

// LogEncoder defines a log encoder kind.
type LogEncoder = string

const (
	defaultLoggingLevel = zapcore.InfoLevel
	// ConsoleLogEncoder represents logging with plain text.
	ConsoleLogEncoder LogEncoder = log.ConsoleEncoder
	// JSONLogEncoder represents logging with JSON.
	JSONLogEncoder LogEncoder = log.JSONEncoder
)

// LoggerConfig holds the logging level and the encoder.
type LoggerConfig struct {
	Encoder LogEncoder    `mapstructure:"log-encoder"`
	Level   zapcore.Level `mapstructure:"level"`
}

// Validate checks the logging settings.
func (cfg *LoggerConfig) Validate() error {
	switch cfg.Encoder {
	case ConsoleLogEncoder, JSONLogEncoder:
		return nil
	default:
		return fmt.Errorf("log-encoder: unknown encoder %q", cfg.Encoder)
	}
}

func defaultLoggingConfig() LoggerConfig {
	return LoggerConfig{
		Encoder: ConsoleLogEncoder,
		Level:   defaultLoggingLevel,
	}
}
