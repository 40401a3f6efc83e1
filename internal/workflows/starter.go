package workflows

import (
	"context"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"

	"github.com/sells-group/annual-report-eval/internal/analysis"
)

// WorkflowID is the workflow id used for a run.
func WorkflowID(runID string) string {
	return "analysis-run-" + runID
}

// Starter launches runs on Temporal and queries their progress.
type Starter struct {
	client        tclient.Client
	taskQueue     string
	companyWindow int
}

// NewStarter creates a Starter.
func NewStarter(c tclient.Client, taskQueue string, companyWindow int) *Starter {
	return &Starter{client: c, taskQueue: taskQueue, companyWindow: companyWindow}
}

// Start launches the workflow for plan and returns its workflow id.
func (s *Starter) Start(ctx context.Context, plan *analysis.Plan) (string, error) {
	opts := tclient.StartWorkflowOptions{
		ID:                    WorkflowID(plan.Run.ID),
		TaskQueue:             s.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}
	run, err := s.client.ExecuteWorkflow(ctx, opts, AnalysisRunWorkflow, AnalysisRunInput{
		Run:           plan.Run,
		Criteria:      plan.Criteria,
		Companies:     plan.Companies,
		CompanyWindow: s.companyWindow,
	})
	if err != nil {
		return "", eris.Wrapf(err, "workflows: start run %s", plan.Run.ID)
	}
	return run.GetID(), nil
}

// Progress queries a running or finished workflow for its progress.
func (s *Starter) Progress(ctx context.Context, runID string) (*RunProgress, error) {
	val, err := s.client.QueryWorkflow(ctx, WorkflowID(runID), "", QueryGetRunProgress)
	if err != nil {
		return nil, eris.Wrapf(err, "workflows: query run %s", runID)
	}
	var p RunProgress
	if err := val.Get(&p); err != nil {
		return nil, eris.Wrapf(err, "workflows: decode progress for %s", runID)
	}
	return &p, nil
}
