package negsync

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nostrsync/relay/sync2/negentropy"
)

// Config contains the reconciliation settings.
type Config struct {
	// Timeout is the maximum duration of a single reconciliation.
	Timeout time.Duration `mapstructure:"timeout"`
	// WaitSlice is the maximum time the syncer waits for the peer without
	// re-checking the deadline.
	WaitSlice time.Duration `mapstructure:"wait-slice"`
	// IDListThreshold is the maximum number of items in a mismatched range for which
	// the ids are sent instead of splitting the range.
	IDListThreshold int `mapstructure:"id-list-threshold"`
	// FrameSizeLimit is the soft limit on the outgoing message size in bytes.
	// Zero means no limit.
	FrameSizeLimit int `mapstructure:"frame-size-limit"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:         60 * time.Second,
		WaitSlice:       30 * time.Second,
		IDListThreshold: negentropy.DefaultIDListThreshold,
		FrameSizeLimit:  0,
	}
}

// Validate returns an error if the config is invalid.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %v", cfg.Timeout))
	}
	if cfg.WaitSlice <= 0 {
		errs = append(errs, fmt.Errorf("wait-slice must be positive, got %v", cfg.WaitSlice))
	}
	if cfg.IDListThreshold < 1 {
		errs = append(errs, fmt.Errorf("id-list-threshold must be at least 1, got %d",
			cfg.IDListThreshold))
	}
	if cfg.FrameSizeLimit != 0 && cfg.FrameSizeLimit < negentropy.MinFrameSizeLimit {
		errs = append(errs, fmt.Errorf("frame-size-limit must be 0 or at least %d, got %d",
			negentropy.MinFrameSizeLimit, cfg.FrameSizeLimit))
	}
	return errors.Join(errs...)
}

// ReconcilerOptions returns the reconciler options corresponding to the config.
func (cfg *Config) ReconcilerOptions(logger *zap.Logger) []negentropy.ReconcilerOption {
	return []negentropy.ReconcilerOption{
		negentropy.WithIDListThreshold(cfg.IDListThreshold),
		negentropy.WithFrameSizeLimit(cfg.FrameSizeLimit),
		negentropy.WithLogger(logger),
	}
}
