package commands

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"finqa/internal/session"
	"finqa/internal/tui"
)

// NewChatCmd creates the interactive chat command
func NewChatCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat",
		Long: `Open the terminal chat. Each question is answered from the filings of the tickers it
names, or of the default ticker (tab / shift+tab to change it). Logs go to --log-file
or are discarded while the chat owns the terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg, true)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, log, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.prepareQuery(ctx); err != nil {
				return err
			}
			sh, err := a.shell()
			if err != nil {
				return err
			}

			m := tui.New(ctx, sh, session.NewSession(cfg.Chat.DefaultTicker))
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
	return cmd
}
