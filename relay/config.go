package relay

import (
	"errors"
	"time"
)

// Config is the configuration of the relay websocket endpoint.
type Config struct {
	// Listen is the address of the websocket listener.
	Listen string `mapstructure:"listen"`
	// Name, Description and Contact are advertised in the relay information document.
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Contact     string `mapstructure:"contact"`
	// MaxSessions is the number of reconciliation sessions that can be open on a
	// single connection.
	MaxSessions int `mapstructure:"max-sessions"`
	// MaxRecords is the maximum number of records in a reconciliation snapshot.
	MaxRecords int `mapstructure:"max-records"`
	// MaxMessageSize limits the size of incoming websocket messages.
	MaxMessageSize int64 `mapstructure:"max-message-size"`
	// MessagesPerSecond and MessageBurst limit the rate of the incoming frames
	// per connection.
	MessagesPerSecond float64 `mapstructure:"messages-per-second"`
	MessageBurst      int     `mapstructure:"message-burst"`

	WriteTimeout time.Duration `mapstructure:"write-timeout"`
	PingInterval time.Duration `mapstructure:"ping-interval"`
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{
		Listen:            "127.0.0.1:7777",
		Name:              "nostrsync",
		Description:       "negentropy reconciliation endpoint",
		MaxSessions:       16,
		MaxRecords:        1_000_000,
		MaxMessageSize:    1 << 20,
		MessagesPerSecond: 50,
		MessageBurst:      100,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
	}
}

// Validate checks the configuration values.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.MaxSessions <= 0 {
		errs = append(errs, errors.New("max-sessions must be positive"))
	}
	if cfg.MaxRecords < 0 {
		errs = append(errs, errors.New("max-records must not be negative"))
	}
	if cfg.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("max-message-size must be positive"))
	}
	if cfg.MessagesPerSecond <= 0 || cfg.MessageBurst <= 0 {
		errs = append(errs, errors.New("messages-per-second and message-burst must be positive"))
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, errors.New("write-timeout must be positive"))
	}
	if cfg.PingInterval <= 0 {
		errs = append(errs, errors.New("ping-interval must be positive"))
	}
	return errors.Join(errs...)
}
