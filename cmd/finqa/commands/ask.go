package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"finqa/internal/domain"
	"finqa/internal/session"
)

// NewAskCmd creates the one-shot ask command
func NewAskCmd(opts *rootOptions) *cobra.Command {
	var (
		ticker  string
		noSrc   bool
		snippet int
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question",
		Long: `Answer one question and print the streamed answer followed by its sources.

Tickers named in the question are detected automatically; --ticker sets the fallback
used when the question names none.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			sess := session.NewSession(cfg.Chat.DefaultTicker)
			if ticker != "" {
				t := strings.ToUpper(strings.TrimSpace(ticker))
				if !session.KnownTickers().Contains(t) {
					return fmt.Errorf("unknown ticker %s (see `finqa tickers`)", t)
				}
				sess.SetDefaultTicker(t)
			}

			log, err := newLogger(cfg, false)
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

			turn, err := sh.Begin(ctx, sess, strings.Join(args, " "))
			if err != nil {
				return err
			}
			defer turn.Close()

			errOut := cmd.ErrOrStderr()
			if turn.UsedDefault {
				fmt.Fprintf(errOut, "No ticker found in the question. Using default ticker %s.\n", turn.Tickers[0])
			} else {
				fmt.Fprintf(errOut, "Analyzing %s.\n", strings.Join(turn.Tickers, ", "))
			}

			out := cmd.OutOrStdout()
			for {
				f, err := turn.Recv()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				fmt.Fprint(out, f)
			}
			fmt.Fprintln(out)

			if !noSrc {
				printSources(out, turn.Contexts, snippet)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&ticker, "ticker", "t", "", "Default ticker when the question names none")
	cmd.Flags().BoolVar(&noSrc, "no-sources", false, "Do not print the retrieved sources")
	cmd.Flags().IntVar(&snippet, "snippet", 160, "Maximum characters shown per source")
	return cmd
}

func printSources(w io.Writer, contexts []domain.Context, maxLen int) {
	if len(contexts) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, c := range contexts {
		text := strings.Join(strings.Fields(c.Text), " ")
		fmt.Fprintf(w, "  [%d] %s (score %.3f) %s\n", i+1, c.Ticker, c.Score, truncate(text, maxLen))
	}
}
