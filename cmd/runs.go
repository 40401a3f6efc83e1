package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Review analysis runs",
	Long:  "Commands for listing runs, viewing their results, scores and failures, and exporting them.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		runs, err := b.Store.ListRunSummaries(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunSummaries(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		run, err := b.Store.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		results, err := b.Store.ListResults(ctx, store.ResultFilter{RunID: args[0]})
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		analysis.SortResults(results)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return enc.Encode(map[string]any{"run": run, "results": results})
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Run %s (%s), created %s\n", run.ID, run.AnalysisType, run.CreatedAt.Format("2006-01-02 15:04:05"))
		_, _ = fmt.Fprintf(out, "Criteria: %d  Companies: %d  Results: %d\n\n", len(run.CriteriaIDs), len(run.CompanyNames), len(results))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "CRITERIA\tCOMPANY\tRESULT\tJUSTIFICATION")
		for _, r := range results {
			_, _ = fmt.Fprintf(w, "%s@%s\t%s\t%s\t%s\n",
				r.CriteriaID, r.CriteriaVersion, truncate(r.CompanyName, 30), r.Result, truncate(oneLine(r.Justification), 80))
		}
		return w.Flush()
	},
}

// -- runs scores --

var runsScoresCmd = &cobra.Command{
	Use:   "scores [run-id]",
	Short: "Score companies for one run, or on their latest results across runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		company, _ := cmd.Flags().GetString("company")

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		filter := store.ResultFilter{CompanyName: company}
		if len(args) == 1 {
			filter.RunID = args[0]
		}
		results, err := b.Store.ListResults(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs scores")
		}
		cs, err := b.Store.ListCriteria(ctx, store.CriteriaFilter{Status: store.CriteriaActive})
		if err != nil {
			return eris.Wrap(err, "runs scores")
		}
		formatScores(cmd.OutOrStdout(), analysis.Score(results, cs))
		return nil
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's results to CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		outPath, _ := cmd.Flags().GetString("out")
		latest, _ := cmd.Flags().GetBool("latest")

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		if _, err := b.Store.GetRun(ctx, args[0]); err != nil {
			return eris.Wrap(err, "runs export")
		}
		results, err := b.Store.ListResults(ctx, store.ResultFilter{RunID: args[0]})
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		if latest {
			results = analysis.LatestPerCriteria(results)
		} else {
			analysis.SortResults(results)
		}

		if outPath == "" {
			return analysis.ExportCSV(cmd.OutOrStdout(), results)
		}
		return exportResults(outPath, results)
	},
}

// -- runs failures --

var runsFailuresCmd = &cobra.Command{
	Use:   "failures <run-id>",
	Short: "List the failed cells of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		fs, err := b.Store.ListFailures(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs failures")
		}
		if len(fs) == 0 {
			fmt.Fprintln(os.Stderr, "No failures recorded.")
			return nil
		}
		formatFailures(cmd.OutOrStdout(), fs)
		return nil
	},
}

// -- runs overview --

var runsOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show headline counts and recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		ov, err := b.Store.Overview(ctx)
		if err != nil {
			return eris.Wrap(err, "runs overview")
		}
		recent, err := b.Store.ListRunSummaries(ctx, 10)
		if err != nil {
			return eris.Wrap(err, "runs overview")
		}

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Runs:\t%d\n", ov.Runs)
		_, _ = fmt.Fprintf(w, "Analyses:\t%d\n", ov.Analyses)
		_, _ = fmt.Fprintf(w, "Companies:\t%d\n", ov.Companies)
		_, _ = fmt.Fprintf(w, "Criteria:\t%d\n", ov.Criteria)
		_ = w.Flush()
		if len(recent) > 0 {
			_, _ = fmt.Fprintln(out)
			formatRunSummaries(out, recent)
		}
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 10, "max number of runs to display")
	runsShowCmd.Flags().Bool("json", false, "print JSON")
	runsScoresCmd.Flags().String("company", "", "only this company")
	runsExportCmd.Flags().String("out", "", "write to a .csv or .xlsx file instead of stdout")
	runsExportCmd.Flags().Bool("latest", false, "keep only the latest row per company and criterion")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsScoresCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsFailuresCmd)
	runsCmd.AddCommand(runsOverviewCmd)
	rootCmd.AddCommand(runsCmd)
}
