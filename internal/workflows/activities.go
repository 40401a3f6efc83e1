package workflows

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/monitoring"
	"github.com/sells-group/annual-report-eval/internal/store"
)

// RunRecorder creates and looks up run rows.
type RunRecorder interface {
	CreateRun(ctx context.Context, run model.AnalysisRun) error
	GetRun(ctx context.Context, runID string) (*model.AnalysisRun, error)
}

// CellEvaluator evaluates a single cell.
type CellEvaluator interface {
	EvaluateCell(ctx context.Context, run model.AnalysisRun, c model.Criterion, company string) analysis.Cell
}

// Activities hold the dependencies of the run workflow's activities.
type Activities struct {
	cells     CellEvaluator
	runs      RunRecorder
	collector *monitoring.Collector
	alerter   *monitoring.Alerter
}

// NewActivities wires the activities. collector and alerter may be nil,
// in which case FinishRunActivity sends nothing.
func NewActivities(cells CellEvaluator, runs RunRecorder, collector *monitoring.Collector, alerter *monitoring.Alerter) *Activities {
	return &Activities{cells: cells, runs: runs, collector: collector, alerter: alerter}
}

// CreateRunActivity records the run. A retry after a lost ack finds the
// row already present and succeeds.
func (a *Activities) CreateRunActivity(ctx context.Context, run model.AnalysisRun) error {
	_, err := a.runs.GetRun(ctx, run.ID)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return eris.Wrapf(err, "workflows: look up run %s", run.ID)
	}
	return eris.Wrapf(a.runs.CreateRun(ctx, run), "workflows: create run %s", run.ID)
}

// EvaluateCellActivity evaluates one cell. It only errors when the worker
// itself fails; cell failures come back in the result.
func (a *Activities) EvaluateCellActivity(ctx context.Context, in EvaluateCellInput) (CellResult, error) {
	cell := a.cells.EvaluateCell(ctx, in.Run, in.Criterion, in.Company)
	out := CellResult{
		CriteriaID:      cell.CriteriaID,
		CriteriaVersion: cell.CriteriaVersion,
		Company:         cell.Company,
		Status:          cell.Status,
		Kind:            cell.Kind,
	}
	if cell.Result != nil {
		out.Result = cell.Result.Result
	}
	if cell.Err != nil {
		out.Message = cell.Err.Error()
	}
	return out, nil
}

// FinishRunActivity checks the finished run against the alert thresholds
// and returns the number of alerts sent.
func (a *Activities) FinishRunActivity(ctx context.Context, runID string) (int, error) {
	if a.collector == nil || a.alerter == nil {
		return 0, nil
	}
	stats, err := a.collector.Collect(ctx, runID)
	if err != nil {
		return 0, err
	}
	zap.L().Info("workflows: run finished",
		zap.String("run_id", runID),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
	)
	return a.alerter.Notify(ctx, stats), nil
}
