package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/annual-report-eval/internal/index"
)

var chunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "Manage the document index",
}

var chunksLoadCmd = &cobra.Command{
	Use:   "load <file>...",
	Short: "Load chunk files (JSONL, CSV or XLSX) into the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = cfg.Index.LoadConcurrency
		}

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := index.LoadFiles(ctx, b.Index, args, concurrency)
		if err != nil {
			return eris.Wrap(err, "chunks load")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d chunks from %d file(s)\n", n, len(args))
		return nil
	},
}

var chunksCompaniesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List companies with indexed documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		names, err := b.Index.Companies(ctx)
		if err != nil {
			return eris.Wrap(err, "chunks companies")
		}
		for _, n := range names {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

func init() {
	chunksLoadCmd.Flags().Int("concurrency", 0, "files loaded in parallel (default from config)")
	chunksCmd.AddCommand(chunksLoadCmd)
	chunksCmd.AddCommand(chunksCompaniesCmd)
	rootCmd.AddCommand(chunksCmd)
}
