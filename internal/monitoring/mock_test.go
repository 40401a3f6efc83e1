package monitoring

import (
	"context"

	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/store"
)

type fakeRuns struct {
	run       *model.AnalysisRun
	results   []model.EvaluationResult
	failures  []model.CellFailure
	summaries []model.RunSummary
	err       error
}

func (f *fakeRuns) GetRun(_ context.Context, runID string) (*model.AnalysisRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.run == nil || f.run.ID != runID {
		return nil, store.ErrNotFound
	}
	return f.run, nil
}

func (f *fakeRuns) ListResults(_ context.Context, _ store.ResultFilter) ([]model.EvaluationResult, error) {
	return f.results, f.err
}

func (f *fakeRuns) ListFailures(_ context.Context, _ string) ([]model.CellFailure, error) {
	return f.failures, f.err
}

func (f *fakeRuns) ListRunSummaries(_ context.Context, _ int) ([]model.RunSummary, error) {
	return f.summaries, f.err
}
