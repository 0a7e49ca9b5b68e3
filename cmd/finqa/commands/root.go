// Package commands implements the finqa command line interface.
package commands

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	debug      bool
	logFile    string
}

// NewRootCmd creates the finqa root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "finqa",
		Short: "Question answering over company financial filings",
		Long: `finqa answers questions about public companies from excerpts of their 10-K filings.

Ingest a (ticker, context) corpus into a vector collection once, then ask questions in
the interactive chat or one at a time. Tickers named in a question are detected
automatically; otherwise the default ticker is used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (default ./config.yaml, then ~/.config/finqa/config.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file")

	cmd.AddCommand(
		NewIngestCmd(opts),
		NewChatCmd(opts),
		NewAskCmd(opts),
		NewTickersCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command. An interrupt cancels the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
