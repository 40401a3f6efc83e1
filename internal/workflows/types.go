package workflows

import (
	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/model"
)

const (
	QueryGetRunProgress = "GetRunProgress"

	ActivityCreateRun    = "CreateRunActivity"
	ActivityEvaluateCell = "EvaluateCellActivity"
	ActivityFinishRun    = "FinishRunActivity"

	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// AnalysisRunInput is a prepared plan handed to the workflow.
type AnalysisRunInput struct {
	Run           model.AnalysisRun `json:"run"`
	Criteria      []model.Criterion `json:"criteria"`
	Companies     []string          `json:"companies"`
	CompanyWindow int               `json:"company_window"`
}

// EvaluateCellInput addresses one (criterion, company) cell.
type EvaluateCellInput struct {
	Run       model.AnalysisRun `json:"run"`
	Criterion model.Criterion   `json:"criterion"`
	Company   string            `json:"company"`
}

// CellResult is the serializable outcome of one cell.
type CellResult struct {
	CriteriaID      string              `json:"criteria_id"`
	CriteriaVersion string              `json:"criteria_version"`
	Company         string              `json:"company"`
	Status          analysis.CellStatus `json:"status"`
	Kind            model.FailureKind   `json:"kind,omitempty"`
	Result          string              `json:"result,omitempty"`
	Message         string              `json:"message,omitempty"`
}

// RunProgress is what GetRunProgress answers with.
type RunProgress struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Succeeded int    `json:"succeeded"`
	Unsaved   int    `json:"unsaved"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Alerts    int    `json:"alerts"`
}

func (p *RunProgress) record(r CellResult) {
	p.Completed++
	switch r.Status {
	case analysis.CellSuccess:
		p.Succeeded++
	case analysis.CellUnsaved:
		p.Unsaved++
	case analysis.CellSkipped:
		p.Skipped++
	default:
		p.Failed++
	}
}
