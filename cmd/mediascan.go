package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/annual-report-eval/internal/mediascan"
)

var mediascanCmd = &cobra.Command{
	Use:   "mediascan",
	Short: "Manage media-scan disqualification notes",
}

var mediascanListCmd = &cobra.Command{
	Use:   "list",
	Short: "List media-scan records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		recs, err := b.Store.ListDisqualifications(ctx)
		if err != nil {
			return eris.Wrap(err, "mediascan list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No media-scan records found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "COMPANY\tTOPIC\tUPDATED")
		for _, r := range recs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.CompanyName, truncate(oneLine(r.Topic), 70), r.UpdatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var mediascanImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import media-scan records from CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		res, err := mediascan.ImportFile(args[0])
		if err != nil {
			return err
		}

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := b.Store.UpsertDisqualifications(ctx, res.Records)
		if err != nil {
			return eris.Wrap(err, "mediascan import")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records, %d rows skipped\n", n, len(res.Skipped))
		if len(res.Skipped) > 0 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  skipped lines: %v\n", res.Skipped)
		}
		return nil
	},
}

var mediascanDeleteCmd = &cobra.Command{
	Use:   "delete <company>",
	Short: "Delete the media-scan record of a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		if err := b.Store.DeleteDisqualification(ctx, args[0]); err != nil {
			return eris.Wrap(err, "mediascan delete")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	mediascanCmd.AddCommand(mediascanListCmd)
	mediascanCmd.AddCommand(mediascanImportCmd)
	mediascanCmd.AddCommand(mediascanDeleteCmd)
	rootCmd.AddCommand(mediascanCmd)
}
