// Package main implements the sessionparse CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "sessionparse",
		Short: "Parse conversation logs into structured sessions",
		Long: `sessionparse reads JSONL conversation logs and produces structured sessions:
ordered blocks with extracted code, file paths, commands, URLs, mentions and
statistics.

Configuration is read from ~/.config/sessionparse/config.yaml (or --config)
and SESSIONPARSE_* environment variables.`,
		SilenceUsage: true,
		Version:      version,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (YAML or TOML)")

	root.AddCommand(
		newParseCmd(a),
		newBatchCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newVersionCmd(),
	)
	return root
}
