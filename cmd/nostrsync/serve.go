package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nostrsync/relay/cmd"
	"github.com/nostrsync/relay/config"
	"github.com/nostrsync/relay/log"
	"github.com/nostrsync/relay/metrics"
	"github.com/nostrsync/relay/relay"
	"github.com/nostrsync/relay/sql"
	"github.com/nostrsync/relay/sql/events"
)

func serveCommand() *cobra.Command {
	conf := config.DefaultConfig()
	var configPath *string
	c := &cobra.Command{
		Use:   "serve",
		Short: "serve NIP-77 reconciliation over websocket",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if err := cmd.Configure(c.Flags(), osArgs(), *configPath, &conf); err != nil {
				return err
			}
			logger, err := cmd.NewLogger(conf.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()
			// Don't print usage on error from this point forward
			c.SilenceUsage = true

			// os.Interrupt for all systems, syscall.SIGTERM is mainly for docker.
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serve(ctx, logger, &conf); err != nil {
				logger.Error("relay failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
	configPath = cmd.AddFlags(c.Flags(), &conf)
	return c
}

// lockDataDir makes sure that a single process writes to the data directory.
func lockDataDir(conf *config.Config) (*flock.Flock, error) {
	if err := os.MkdirAll(conf.DataDir, 0o700); err != nil {
		return nil, log.ErrEnsureDataDir(conf.DataDir, err)
	}
	fl := flock.New(conf.LockPath())
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("flock %s: %w", fl.Path(), err)
	} else if !locked {
		return nil, fmt.Errorf("only one nostrsync instance should be writing to %s (locking file %s)",
			conf.DataDir, fl.Path())
	}
	return fl, nil
}

func openDatabase(logger *zap.Logger, conf *config.Config) (*sql.Database, error) {
	if err := os.MkdirAll(conf.DataDir, 0o700); err != nil {
		return nil, log.ErrEnsureDataDir(conf.DataDir, err)
	}
	db, err := sql.Open("file:"+conf.DatabasePath(),
		sql.WithLogger(logger.Named("db")),
		sql.WithConnections(conf.DatabaseConnections),
		sql.WithLatencyMetering(conf.DatabaseLatencyMetering),
	)
	if err != nil {
		return nil, log.ErrOpenDatabase(err)
	}
	return db, nil
}

func serve(ctx context.Context, logger *zap.Logger, conf *config.Config) error {
	fl, err := lockDataDir(conf)
	if err != nil {
		return err
	}
	defer fl.Unlock()
	db, err := openDatabase(logger, conf)
	if err != nil {
		return err
	}
	defer db.Close()

	if conf.ProfilerURL != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: conf.ProfilerName,
			// conf.ProfilerURL should be the pyroscope server address
			ServerAddress: conf.ProfilerURL,
		})
		if err != nil {
			return fmt.Errorf("cannot start profiling client: %w", err)
		}
		defer profiler.Stop()
	}
	if conf.Metrics.Enabled {
		srv := metrics.StartCollectingMetrics(conf.Metrics.Listen, logger.Named("metrics"))
		defer srv.Close()
	}
	if conf.Metrics.URL != "" {
		metrics.StartPushingMetrics(ctx, logger.Named("metrics"), conf.Metrics.PushConfig, conf.Metrics.Instance)
	}

	l, err := net.Listen("tcp", conf.Relay.Listen)
	if err != nil {
		return log.ErrListen(conf.Relay.Listen, err)
	}
	count, err := events.Count(db)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	logger.Info("starting relay",
		zap.String("version", cmd.VersionString()),
		zap.String("database", conf.DatabasePath()),
		zap.Int("events", count))
	srv := relay.NewServer(events.NewSource(db),
		relay.WithServerLogger(logger.Named("relay")),
		relay.WithServerConfig(conf.Relay),
		relay.WithSyncConfig(conf.Sync),
		relay.WithVersion(cmd.Version),
	)
	return srv.Run(ctx, l)
}
