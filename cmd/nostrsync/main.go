// nostrsync is a Nostr relay endpoint that reconciles event sets with NIP-77.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nostrsync/relay/cmd"
)

var (
	version string
	commit  string
	branch  string
)

// osArgs returns the command line arguments that are parsed again after the config
// file is loaded.
var osArgs = func() []string {
	return os.Args[1:]
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "nostrsync",
		Short: "NIP-77 negentropy reconciliation for Nostr relays",
	}
	root.AddCommand(
		serveCommand(),
		syncCommand(),
		importCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "print the version",
			Run: func(c *cobra.Command, _ []string) {
				fmt.Fprintln(c.OutOrStdout(), cmd.VersionString())
			},
		},
	)
	return root
}

func main() {
	cmd.Version = version
	cmd.Commit = commit
	cmd.Branch = branch
	if err := rootCommand().Execute(); err != nil {
		// the error was already printed by cobra
		os.Exit(1)
	}
}
