package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nostrsync/relay/cmd"
	"github.com/nostrsync/relay/config"
	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/relay"
	"github.com/nostrsync/relay/sql/events"
	"github.com/nostrsync/relay/sync2/negsync"
)

func syncCommand() *cobra.Command {
	conf := config.DefaultConfig()
	var (
		configPath *string
		filterJSON string
		subID      string
		output     string
	)
	c := &cobra.Command{
		Use:   "sync <relay-url>",
		Short: "reconcile the local events with a remote relay",
		Long: "Reconciles the local events matching the filter with the remote relay and " +
			"prints the ids the remote relay lacks (have) and the ids missing locally (need).",
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := cmd.Configure(c.Flags(), osArgs(), *configPath, &conf); err != nil {
				return err
			}
			var filter nip77.Filter
			if err := json.Unmarshal([]byte(filterJSON), &filter); err != nil {
				return fmt.Errorf("parse filter: %w", err)
			}
			if err := filter.Validate(); err != nil {
				return err
			}
			logger, err := cmd.NewLogger(conf.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()
			c.SilenceUsage = true

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			res, err := syncWith(ctx, logger, &conf, args[0], negsync.Request{
				SubscriptionID: subID,
				Filter:         filter,
			})
			if err != nil {
				return err
			}
			if output == "" {
				return writeResult(c.OutOrStdout(), res)
			}
			var buf bytes.Buffer
			if err := writeResult(&buf, res); err != nil {
				return err
			}
			if err := atomic.WriteFile(output, &buf); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			return nil
		},
	}
	configPath = cmd.AddFlags(c.Flags(), &conf)
	c.Flags().StringVar(&filterJSON, "filter", "{}", "NIP-01 filter selecting the events to reconcile")
	c.Flags().StringVar(&subID, "subscription", "", "subscription id (random if empty)")
	c.Flags().StringVarP(&output, "output", "o", "", "write the ids to the file instead of stdout")
	return c
}

func syncWith(
	ctx context.Context,
	logger *zap.Logger,
	conf *config.Config,
	url string,
	req negsync.Request,
) (*negsync.Result, error) {
	db, err := openDatabase(logger, conf)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	req.Items, err = events.Snapshot(db, req.Filter, 0)
	if err != nil {
		return nil, err
	}

	client, err := relay.Dial(ctx, url,
		relay.WithClientLogger(logger.Named("client")),
		relay.WithWriteTimeout(conf.Relay.WriteTimeout))
	if err != nil {
		return nil, err
	}
	defer client.Close()
	syncer := negsync.NewSyncer(client,
		negsync.WithLogger(logger.Named("sync")),
		negsync.WithConfig(conf.Sync))
	res, err := syncer.Sync(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Info("reconciliation complete",
		zap.String("relay", url),
		zap.Int("local", len(req.Items)),
		zap.Int("have", len(res.Have)),
		zap.Int("need", len(res.Need)),
		zap.Int("rounds", res.Rounds))
	return res, nil
}

// writeResult writes one line per id, prefixed with "have" for the ids the remote
// relay lacks and with "need" for the ids missing locally.
func writeResult(w io.Writer, res *negsync.Result) error {
	for _, id := range res.Have {
		if _, err := fmt.Fprintf(w, "have %s\n", id); err != nil {
			return err
		}
	}
	for _, id := range res.Need {
		if _, err := fmt.Fprintf(w, "need %s\n", id); err != nil {
			return err
		}
	}
	return nil
}
