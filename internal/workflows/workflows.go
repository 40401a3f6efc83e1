// Package workflows runs analysis plans durably on Temporal. Each cell is an
// activity; companies are evaluated in windows and criteria run in order
// within a company.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/model"
)

// AnalysisRunWorkflow evaluates every cell of the input plan and returns
// the final progress. Cell failures are outcomes, not workflow errors.
func AnalysisRunWorkflow(ctx workflow.Context, in AnalysisRunInput) (RunProgress, error) {
	progress := RunProgress{
		RunID:  in.Run.ID,
		Status: StatusRunning,
		Total:  len(in.Criteria) * len(in.Companies),
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetRunProgress, func() (RunProgress, error) {
		return progress, nil
	}); err != nil {
		return progress, err
	}
	log := workflow.GetLogger(ctx)

	bookkeeping := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    5,
		},
	})
	// Transport retries live in the completion guard; a cell runs once.
	cells := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	if err := workflow.ExecuteActivity(bookkeeping, ActivityCreateRun, in.Run).Get(ctx, nil); err != nil {
		progress.Status = StatusFailed
		return progress, err
	}

	window := in.CompanyWindow
	if window <= 0 {
		window = 1
	}
	for i := 0; i < len(in.Companies); i += window {
		end := min(i+window, len(in.Companies))
		wg := workflow.NewWaitGroup(ctx)
		for _, company := range in.Companies[i:end] {
			wg.Add(1)
			workflow.Go(cells, func(gctx workflow.Context) {
				defer wg.Done()
				for _, c := range in.Criteria {
					progress.record(evaluateCell(gctx, in.Run, c, company))
				}
			})
		}
		wg.Wait(ctx)
		log.Info("window evaluated", "run_id", in.Run.ID, "completed", progress.Completed, "total", progress.Total)
	}

	var alerts int
	if err := workflow.ExecuteActivity(bookkeeping, ActivityFinishRun, in.Run.ID).Get(ctx, &alerts); err != nil {
		log.Warn("finish run failed", "run_id", in.Run.ID, "error", err)
	}
	progress.Alerts = alerts
	progress.Status = StatusCompleted
	return progress, nil
}

func evaluateCell(ctx workflow.Context, run model.AnalysisRun, c model.Criterion, company string) CellResult {
	var out CellResult
	err := workflow.ExecuteActivity(ctx, ActivityEvaluateCell, EvaluateCellInput{
		Run:       run,
		Criterion: c,
		Company:   company,
	}).Get(ctx, &out)
	if err != nil {
		return CellResult{
			CriteriaID:      c.ID,
			CriteriaVersion: c.Version,
			Company:         company,
			Status:          analysis.CellFailed,
			Kind:            model.FailureCompletion,
			Message:         err.Error(),
		}
	}
	return out
}
