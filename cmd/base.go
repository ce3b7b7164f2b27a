// Package cmd contains the command line plumbing shared by the nostrsync executables.
package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nostrsync/relay/config"
	"github.com/nostrsync/relay/log"
)

var (
	// Version is the app's semantic version. Designed to be overwritten by make.
	Version string

	// Branch is the git branch used to build the App. Designed to be overwritten by make.
	Branch string

	// Commit is the git commit used to build the app. Designed to be overwritten by make.
	Commit string
)

// VersionString returns the version description of the build.
func VersionString() string {
	version := Version
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("%s (branch %q, commit %q)", version, Branch, Commit)
}

// Configure loads the preset and the config file into conf and then applies the
// command line flags on top of them. The flags are parsed again so that they take
// precedence over the file.
func Configure(flags *pflag.FlagSet, args []string, configPath string, conf *config.Config) error {
	preset := conf.Preset // might be set via CLI flag
	if err := config.LoadConfig(conf, preset, configPath); err != nil {
		return log.ErrMalformedConfig(err)
	}
	if err := flags.Parse(args); err != nil {
		return log.ErrBadFlags(err)
	}
	if err := conf.Validate(); err != nil {
		return log.ErrMalformedConfig(err)
	}
	return nil
}

// NewLogger creates the application logger from the logging config.
func NewLogger(conf config.LoggerConfig) (*zap.Logger, error) {
	logger, err := log.New(conf.Level.String(), conf.Encoder)
	if err != nil {
		return nil, log.ErrMalformedConfig(err)
	}
	return logger, nil
}
