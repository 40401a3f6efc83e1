package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/store"
)

// RunStats is the cell accounting of one analysis run.
type RunStats struct {
	RunID     string    `json:"run_id"`
	Planned   int       `json:"planned"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	FailRate  float64   `json:"fail_rate"`
	StartedAt time.Time `json:"started_at"`
}

// Finished is the number of cells that produced a result or a failure.
func (s *RunStats) Finished() int {
	return s.Succeeded + s.Failed
}

func (s *RunStats) computeRate() {
	if n := s.Finished(); n > 0 {
		s.FailRate = float64(s.Failed) / float64(n)
	}
}

// FromOutcome builds stats from an executed run. Unsaved and skipped cells
// count as failed.
func FromOutcome(o *analysis.Outcome) *RunStats {
	s := &RunStats{
		RunID:     o.RunID,
		Planned:   len(o.Cells),
		Succeeded: o.Succeeded,
		Failed:    o.Failed + o.Unsaved + o.Skipped,
	}
	s.computeRate()
	return s
}

// RunReader is the slice of store.Store the collector needs.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*model.AnalysisRun, error)
	ListResults(ctx context.Context, filter store.ResultFilter) ([]model.EvaluationResult, error)
	ListFailures(ctx context.Context, runID string) ([]model.CellFailure, error)
	ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error)
}

// Collector reads run stats back from the store.
type Collector struct {
	runs RunReader
}

// NewCollector creates a new run stats collector.
func NewCollector(runs RunReader) *Collector {
	return &Collector{runs: runs}
}

// Collect computes stats for one run from its persisted rows. Cells that
// left no row at all (unsaved) count as failed.
func (c *Collector) Collect(ctx context.Context, runID string) (*RunStats, error) {
	run, err := c.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "monitoring: get run %s", runID)
	}
	results, err := c.runs.ListResults(ctx, store.ResultFilter{RunID: runID})
	if err != nil {
		return nil, eris.Wrapf(err, "monitoring: list results for %s", runID)
	}
	failures, err := c.runs.ListFailures(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "monitoring: list failures for %s", runID)
	}

	s := &RunStats{
		RunID:     runID,
		Planned:   len(run.CriteriaIDs) * len(run.CompanyNames),
		Succeeded: len(results),
		Failed:    len(failures),
		StartedAt: run.CreatedAt,
	}
	if missing := s.Planned - s.Finished(); missing > 0 {
		s.Failed += missing
	}
	s.computeRate()
	return s, nil
}

// Recent returns stats for the most recent runs, newest first. Planned is
// left zero since summaries only carry row counts.
func (c *Collector) Recent(ctx context.Context, limit int) ([]RunStats, error) {
	sums, err := c.runs.ListRunSummaries(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list run summaries")
	}
	out := make([]RunStats, 0, len(sums))
	for _, sum := range sums {
		s := RunStats{
			RunID:     sum.RunID,
			Succeeded: sum.ResultCount,
			Failed:    sum.FailureCount,
			StartedAt: sum.StartedAt,
		}
		s.computeRate()
		out = append(out, s)
	}
	return out, nil
}
