package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nostrsync/relay/cmd"
	"github.com/nostrsync/relay/config"
	"github.com/nostrsync/relay/sql"
	"github.com/nostrsync/relay/sql/events"
)

const maxEventSize = 1 << 20

func importCommand() *cobra.Command {
	conf := config.DefaultConfig()
	var configPath *string
	c := &cobra.Command{
		Use:   "import <file>",
		Short: "import events from a JSON lines file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := cmd.Configure(c.Flags(), osArgs(), *configPath, &conf); err != nil {
				return err
			}
			logger, err := cmd.NewLogger(conf.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()
			c.SilenceUsage = true

			in, err := openInput(afero.NewOsFs(), args[0], c.InOrStdin())
			if err != nil {
				return err
			}
			defer in.Close()
			fl, err := lockDataDir(&conf)
			if err != nil {
				return err
			}
			defer fl.Unlock()
			db, err := openDatabase(logger, &conf)
			if err != nil {
				return err
			}
			defer db.Close()
			added, skipped, err := importEvents(c.Context(), db, in)
			if err != nil {
				return err
			}
			logger.Info("import complete", zap.Int("added", added), zap.Int("skipped", skipped))
			return nil
		},
	}
	configPath = cmd.AddFlags(c.Flags(), &conf)
	return c
}

// openInput opens the file at path, or returns stdin for "-".
func openInput(fs afero.Fs, path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// importEvents adds the events from the JSON lines reader in a single transaction.
// The events that are already present are skipped.
func importEvents(ctx context.Context, db *sql.Database, r io.Reader) (added, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		for line := 1; scanner.Scan(); line++ {
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}
			if err := events.ValidateSchema(raw); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			ev, err := events.ParseEvent(append([]byte(nil), raw...))
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			switch err := events.Add(tx, ev); {
			case errors.Is(err, sql.ErrObjectExists):
				skipped++
			case err != nil:
				return fmt.Errorf("line %d: %w", line, err)
			default:
				added++
			}
		}
		return scanner.Err()
	})
	if err != nil {
		return 0, 0, fmt.Errorf("import events: %w", err)
	}
	return added, skipped, nil
}
