package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewIngestCmd creates the ingest command
func NewIngestCmd(opts *rootOptions) *cobra.Command {
	var (
		file      string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load the filings corpus into the vector collection",
		Long: `Chunk, embed and upsert every (ticker, context) row of a .csv or .xlsx corpus.

The collection is created on first use with the embedding model's dimensionality and
cosine similarity. Re-running ingest overwrites existing chunks instead of duplicating them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("batch-size") && batchSize <= 0 {
				return fmt.Errorf("batch-size must be positive, got %d", batchSize)
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Ingest.SourcePath
			}
			if batchSize == 0 {
				batchSize = cfg.Ingest.UpsertBatchSize
			}
			log, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.ingestFile(cmd.Context(), file, batchSize)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingested %s\n", file)
			fmt.Fprintf(out, "  records:  %d\n", rep.Records)
			fmt.Fprintf(out, "  skipped:  %d\n", rep.Skipped)
			fmt.Fprintf(out, "  chunks:   %d\n", rep.Chunks)
			fmt.Fprintf(out, "  batches:  %d\n", rep.Batches)
			fmt.Fprintf(out, "  vectors in collection: %d\n", rep.Total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Corpus file (.csv or .xlsx); defaults to ingest.source_path")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Chunks per upsert batch; defaults to ingest.upsert_batch_size")
	return cmd
}
