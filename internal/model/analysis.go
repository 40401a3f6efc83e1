package model

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// AnalysisTypeCriteriaRAG tags snapshots of successful evaluations.
	AnalysisTypeCriteriaRAG = "criteria_based_rag"
)

// AnalysisRun is one execution of the criteria x company matrix.
type AnalysisRun struct {
	ID           string    `json:"run_id"`
	CriteriaIDs  []string  `json:"criteria_ids"`
	CompanyNames []string  `json:"company_names"`
	AnalysisType string    `json:"analysis_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// RunSummary is the review-page view of a run, grouped from its results.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	CriteriaCount int       `json:"criteria_count"`
	CompanyCount  int       `json:"company_count"`
	ResultCount   int       `json:"result_count"`
	FailureCount  int       `json:"failure_count"`
	StartedAt     time.Time `json:"started_at"`
}

// Overview holds the headline counts of the review page.
type Overview struct {
	Runs      int `json:"runs"`
	Analyses  int `json:"analyses"`
	Companies int `json:"companies"`
	Criteria  int `json:"criteria"`
}

// OutputSnapshot is the immutable JSON record stored with every result.
type OutputSnapshot struct {
	Company         string          `json:"company"`
	CriteriaID      string          `json:"criteria_id"`
	CriteriaVersion string          `json:"criteria_version"`
	Question        string          `json:"question"`
	Prompt          string          `json:"prompt"`
	Result          json.RawMessage `json:"result"`
	Timestamp       time.Time       `json:"timestamp"`
	RunID           string          `json:"run_id"`
	AnalysisType    string          `json:"analysis_type"`
}

// EvaluationResult is the append-only record of one evaluated cell.
type EvaluationResult struct {
	RunID           string         `json:"run_id"`
	CriteriaID      string         `json:"criteria_id"`
	CriteriaVersion string         `json:"criteria_version"`
	CompanyName     string         `json:"company_name"`
	Question        string         `json:"question"`
	PromptUsed      string         `json:"prompt_used"`
	Result          string         `json:"result"`
	Justification   string         `json:"justification"`
	Evidence        string         `json:"evidence"`
	RawOutput       string         `json:"raw_output"`
	Output          OutputSnapshot `json:"output"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Key returns the criterion version this result was evaluated against.
func (r EvaluationResult) Key() CriterionKey {
	return CriterionKey{ID: r.CriteriaID, Version: r.CriteriaVersion}
}

// EvaluatedAt is the authoritative evaluation time: the snapshot timestamp,
// or the row creation time when the snapshot carries none.
func (r EvaluationResult) EvaluatedAt() time.Time {
	if !r.Output.Timestamp.IsZero() {
		return r.Output.Timestamp
	}
	return r.CreatedAt
}

// Affirmative reports whether the result scores.
func (r EvaluationResult) Affirmative() bool {
	return IsAffirmative(r.Result)
}

// IsAffirmative is the only scoring rule: the trimmed, upper-cased value
// must equal "YES".
func IsAffirmative(result string) bool {
	return strings.ToUpper(strings.TrimSpace(result)) == "YES"
}

// FailureKind classifies why a cell produced no result.
type FailureKind string

const (
	FailureRetrieval       FailureKind = "retrieval"
	FailureCompletion      FailureKind = "completion"
	FailureMalformedOutput FailureKind = "malformed_output"
	FailurePersistence     FailureKind = "persistence"
	FailureCancelled       FailureKind = "cancelled"
)

// CellFailure records a failed cell. It never carries a result value.
type CellFailure struct {
	RunID           string      `json:"run_id"`
	CriteriaID      string      `json:"criteria_id"`
	CriteriaVersion string      `json:"criteria_version"`
	CompanyName     string      `json:"company_name"`
	Kind            FailureKind `json:"kind"`
	ErrorClass      string      `json:"error_class"`
	Message         string      `json:"message"`
	RawOutput       string      `json:"raw_output,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}
