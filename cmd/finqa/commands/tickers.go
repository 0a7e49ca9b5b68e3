package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"finqa/internal/session"
)

// NewTickersCmd creates the tickers command
func NewTickersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tickers",
		Short: "List the known ticker symbols",
		Long:  `List the ticker symbols covered by the corpus, in the order the chat cycles through them.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range session.KnownTickers().All() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	}
}
