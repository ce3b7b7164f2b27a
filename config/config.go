// Package config contains the nostrsync configuration definitions.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/nostrsync/relay/metrics"
	"github.com/nostrsync/relay/relay"
	"github.com/nostrsync/relay/sync2/negsync"
)

const (
	defaultDataDirName = "nostrsync"
	databaseFileName   = "events.sql"
	lockFileName       = "LOCK"
)

// Config defines the top level configuration of the relay.
type Config struct {
	BaseConfig `mapstructure:"main"`
	Logging    LoggerConfig   `mapstructure:"logging"`
	Sync       negsync.Config `mapstructure:"sync"`
	Relay      relay.Config   `mapstructure:"relay"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
}

// BaseConfig defines the storage and bootstrap options.
type BaseConfig struct {
	DataDir    string `mapstructure:"data-dir"`
	ConfigFile string `mapstructure:"config"`
	Preset     string `mapstructure:"preset"`

	DatabaseConnections     int  `mapstructure:"db-connections"`
	DatabaseLatencyMetering bool `mapstructure:"db-latency-metering"`

	ProfilerName string `mapstructure:"profiler-name"`
	ProfilerURL  string `mapstructure:"profiler-url"`
}

// MetricsConfig defines the prometheus endpoint and the optional push gateway.
type MetricsConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Listen             string `mapstructure:"listen"`
	Instance           string `mapstructure:"instance"`
	metrics.PushConfig `mapstructure:",squash"`
}

// DatabasePath returns the path to the event database.
func (cfg *Config) DatabasePath() string {
	return filepath.Join(cfg.DataDir, databaseFileName)
}

// LockPath returns the path to the file that guards the data directory against
// concurrent writers.
func (cfg *Config) LockPath() string {
	return filepath.Join(cfg.DataDir, lockFileName)
}

// Validate checks the configuration values.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.DataDir == "" {
		errs = append(errs, errors.New("main: data-dir is required"))
	}
	if cfg.DatabaseConnections <= 0 {
		errs = append(errs, errors.New("main: db-connections must be positive"))
	}
	if err := cfg.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := cfg.Sync.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}
	if err := cfg.Relay.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("relay: %w", err))
	}
	if cfg.Metrics.URL != "" && cfg.Metrics.Period <= 0 {
		errs = append(errs, errors.New("metrics: push-period must be positive"))
	}
	return errors.Join(errs...)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseConfig: BaseConfig{
			DataDir:             defaultDataDir(),
			DatabaseConnections: 8,
			ProfilerName:        "nostrsync",
		},
		Logging: defaultLoggingConfig(),
		Sync:    negsync.DefaultConfig(),
		Relay:   relay.DefaultConfig(),
		Metrics: MetricsConfig{
			Listen:   "127.0.0.1:1010",
			Instance: "nostrsync",
			PushConfig: metrics.PushConfig{
				Period:     time.Minute,
				Retries:    3,
				RetryDelay: time.Second,
			},
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirName
	}
	return filepath.Join(home, "."+defaultDataDirName)
}

// LoadConfig loads the preset (if provided) into cfg and then overrides it with the
// values from the config file at path (if provided).
func LoadConfig(cfg *Config, preset, path string) error {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	if len(preset) == 0 && v.IsSet("main.preset") {
		preset = v.GetString("main.preset")
	}
	if len(preset) > 0 {
		p, err := getPreset(preset)
		if err != nil {
			return err
		}
		*cfg = p
	}

	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	opts := []viper.DecoderConfigOption{
		viper.DecodeHook(hook),
		withIgnoreUntagged(),
		withErrorUnused(),
	}
	if err := v.Unmarshal(cfg, opts...); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func withIgnoreUntagged() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.IgnoreUntaggedFields = true
	}
}

func withErrorUnused() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
	}
}
