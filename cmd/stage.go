package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sells-group/annual-report-eval/internal/stage"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Stage annual-report files in the blob bucket",
}

var stageUploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload files, optionally into a batch sub-path",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		batch, _ := cmd.Flags().GetString("batch")
		if err := cfg.Validate("stage"); err != nil {
			return err
		}

		st, err := stage.New(ctx, cfg.Stage)
		if err != nil {
			return err
		}
		for _, path := range args {
			obj, err := st.Upload(ctx, path, batch)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", obj.Key, humanize.Bytes(uint64(obj.Size)))
		}
		return nil
	},
}

var stageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staged files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		batch, _ := cmd.Flags().GetString("batch")
		if err := cfg.Validate("stage"); err != nil {
			return err
		}

		st, err := stage.New(ctx, cfg.Stage)
		if err != nil {
			return err
		}
		objs, err := st.List(ctx, batch)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "BATCH\tNAME\tSIZE\tMODIFIED")
		for _, o := range objs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Batch, o.Name, humanize.Bytes(uint64(o.Size)), o.LastModified.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var stageDownloadCmd = &cobra.Command{
	Use:   "download <key> <local-path>",
	Short: "Download a staged file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("stage"); err != nil {
			return err
		}
		st, err := stage.New(ctx, cfg.Stage)
		if err != nil {
			return err
		}
		return st.Download(ctx, args[0], args[1])
	},
}

func init() {
	stageUploadCmd.Flags().String("batch", "", "batch sub-path")
	stageListCmd.Flags().String("batch", "", "only this batch")
	stageCmd.AddCommand(stageUploadCmd)
	stageCmd.AddCommand(stageListCmd)
	stageCmd.AddCommand(stageDownloadCmd)
	rootCmd.AddCommand(stageCmd)
}
