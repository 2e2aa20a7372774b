// Package cmd holds the agentctl subcommands, wired with spf13/cobra the
// way the teacher's own daemon entrypoints are, one file per subcommand.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	addrFlag    string
	logDirFlag  string
	dbPathFlag  string
)

// RootCmd is the top-level agentctl command.
var RootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "agentctl drives an in-process agent runtime",
	Long: `agentctl bootstraps an agent runtime, optionally serving its
control plane over a WebSocket gateway, and can itself act as a client
against that gateway to send activities, inspect state, subscribe to
activity events, and terminate instances.`,
}

func init() {
	RootCmd.PersistentFlags().StringVar(
		&addrFlag, "addr", "127.0.0.1:8778",
		"address the gateway listens on (serve) or connects to (client subcommands)",
	)
	RootCmd.PersistentFlags().StringVar(
		&logDirFlag, "log-dir", "",
		"directory for rotating log files; empty disables file logging",
	)
	RootCmd.PersistentFlags().StringVar(
		&dbPathFlag, "trace-db", "",
		"path to the tracesink SQLite database; empty disables tracing",
	)
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
