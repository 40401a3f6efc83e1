package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicateResult is returned when a cell already has a result row.
	ErrDuplicateResult = eris.New("store: duplicate result")
)

// CriteriaStatus selects criteria by their active flag.
type CriteriaStatus string

const (
	CriteriaAll      CriteriaStatus = ""
	CriteriaActive   CriteriaStatus = "active"
	CriteriaInactive CriteriaStatus = "inactive"
)

// ParseCriteriaStatus accepts "active", "inactive", "all" or "".
func ParseCriteriaStatus(s string) (CriteriaStatus, error) {
	switch s {
	case "", "all":
		return CriteriaAll, nil
	case "active":
		return CriteriaActive, nil
	case "inactive":
		return CriteriaInactive, nil
	default:
		return "", eris.Errorf("store: unknown criteria status %q", s)
	}
}

// CriteriaFilter specifies which criteria to list.
type CriteriaFilter struct {
	Status   CriteriaStatus `json:"status,omitempty"`
	Version  string         `json:"version,omitempty"`
	Role     string         `json:"role,omitempty"`
	IDPrefix string         `json:"id_prefix,omitempty"`
	IDs      []string       `json:"ids,omitempty"`
}

// ResultFilter specifies which evaluation results to list.
type ResultFilter struct {
	RunID       string   `json:"run_id,omitempty"`
	CompanyName string   `json:"company_name,omitempty"`
	CriteriaIDs []string `json:"criteria_ids,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// Store defines the persistence interface for criteria, media-scan notes,
// analysis runs and their results.
type Store interface {
	// Criteria
	UpsertCriteria(ctx context.Context, criteria []model.Criterion) (int, error)
	GetCriterion(ctx context.Context, id, version string) (*model.Criterion, error)
	ListCriteria(ctx context.Context, filter CriteriaFilter) ([]model.Criterion, error)
	SetCriterionActive(ctx context.Context, id, version string, active bool) (int, error)
	DeleteCriterion(ctx context.Context, id, version string) (int, error)

	// Media scan
	UpsertDisqualifications(ctx context.Context, records []model.DisqualificationRecord) (int, error)
	ListDisqualifications(ctx context.Context) ([]model.DisqualificationRecord, error)
	DeleteDisqualification(ctx context.Context, companyName string) error

	// Runs
	CreateRun(ctx context.Context, run model.AnalysisRun) error
	GetRun(ctx context.Context, runID string) (*model.AnalysisRun, error)
	ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error)
	Overview(ctx context.Context) (*model.Overview, error)

	// Results
	AppendResult(ctx context.Context, result model.EvaluationResult) error
	RecordFailure(ctx context.Context, failure model.CellFailure) error
	ListResults(ctx context.Context, filter ResultFilter) ([]model.EvaluationResult, error)
	ListFailures(ctx context.Context, runID string) ([]model.CellFailure, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultSummaryLimit = 10

// runSummaryQuery groups results and failures by run. It is valid in both
// Postgres and SQLite; only the limit placeholder differs.
const runSummaryQuery = `WITH cells AS (
	SELECT run_id, criteria_id, company_name, created_at, 1 AS ok FROM evaluation_results
	UNION ALL
	SELECT run_id, criteria_id, company_name, created_at, 0 AS ok FROM cell_failures
)
SELECT run_id, COUNT(DISTINCT criteria_id), COUNT(DISTINCT company_name),
	SUM(ok), COUNT(*) - SUM(ok), MIN(created_at)
FROM cells
GROUP BY run_id
ORDER BY MIN(created_at) DESC, run_id DESC
LIMIT `

const overviewQuery = `SELECT COUNT(DISTINCT run_id), COUNT(*), COUNT(DISTINCT company_name), COUNT(DISTINCT criteria_id) FROM evaluation_results`
