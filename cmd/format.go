package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/model"
)

// formatRunSummaries writes a tabular list of runs to out.
func formatRunSummaries(out io.Writer, runs []model.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN_ID\tCRITERIA\tCOMPANIES\tRESULTS\tFAILURES\tSTARTED")
	_, _ = fmt.Fprintln(w, "------\t--------\t---------\t-------\t--------\t-------")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			r.RunID,
			r.CriteriaCount,
			r.CompanyCount,
			r.ResultCount,
			r.FailureCount,
			r.StartedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatScores writes per-company scores to out.
func formatScores(out io.Writer, scores []analysis.CompanyScore) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPANY\tSCORE\tMAX\tPERCENT\tYES\tEVALUATED\tSTALE")
	_, _ = fmt.Fprintln(w, "-------\t-----\t---\t-------\t---\t---------\t-----")
	for _, s := range scores {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.1f%%\t%d\t%d\t%d\n",
			truncate(s.Company, 40),
			s.Score,
			s.MaxScore,
			s.Percent,
			s.Affirmative,
			s.Evaluated,
			s.Stale,
		)
	}
	_ = w.Flush()
}

// formatCriteria writes a criteria listing to out.
func formatCriteria(out io.Writer, cs []model.Criterion) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tVERSION\tACTIVE\tWEIGHT\tROLE\tQUESTION")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t------\t----\t--------")
	for _, c := range cs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%.2f\t%s\t%s\n",
			c.ID, c.Version, c.Active, c.Weight, c.Role, truncate(c.Question, 60))
	}
	_ = w.Flush()
}

// formatFailures writes failure rows to out.
func formatFailures(out io.Writer, fs []model.CellFailure) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CRITERIA\tCOMPANY\tKIND\tCLASS\tMESSAGE")
	_, _ = fmt.Fprintln(w, "--------\t-------\t----\t-----\t-------")
	for _, f := range fs {
		_, _ = fmt.Fprintf(w, "%s@%s\t%s\t%s\t%s\t%s\n",
			f.CriteriaID, f.CriteriaVersion, truncate(f.CompanyName, 30), f.Kind, f.ErrorClass, truncate(oneLine(f.Message), 80))
	}
	_ = w.Flush()
}

// formatOutcome writes the per-status counts of an executed run.
func formatOutcome(out io.Writer, o *analysis.Outcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", o.RunID)
	_, _ = fmt.Fprintf(w, "Cells:\t%d\n", len(o.Cells))
	_, _ = fmt.Fprintf(w, "Succeeded:\t%d\n", o.Succeeded)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", o.Failed)
	if o.Unsaved > 0 {
		_, _ = fmt.Fprintf(w, "Unsaved:\t%d\n", o.Unsaved)
	}
	if o.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", o.Skipped)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
