package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/store"
)

const criteriaSeed = `criteria:
  - id: gov_1
    question: Does the board have an independent chair?
    role: governance analyst
    weight: 2
  - id: gov_2
    question: Is there an audit committee?
    weight: 1
`

// useTempStore points the commands at a fresh SQLite file.
func useTempStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eval.db")
	t.Setenv("EVAL_STORE_DRIVER", "sqlite")
	t.Setenv("EVAL_STORE_SQLITE_PATH", path)
	t.Setenv("EVAL_LOG_LEVEL", "error")
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), "args: %v", args)
	return out.String()
}

func listCriteria(t *testing.T, status string) []model.Criterion {
	t.Helper()
	var cs []model.Criterion
	require.NoError(t, json.Unmarshal([]byte(execute(t, "criteria", "list", "--status", status, "--json")), &cs))
	return cs
}

func TestCriteriaCommands_ImportListDeactivate(t *testing.T) {
	useTempStore(t)
	seed := filepath.Join(t.TempDir(), "criteria.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(criteriaSeed), 0o644))

	out := execute(t, "criteria", "import", seed)
	assert.Contains(t, out, "Imported 2 criteria, 0 rows rejected")

	active := listCriteria(t, "active")
	require.Len(t, active, 2)
	assert.Equal(t, "gov_1", active[0].ID)
	assert.Equal(t, model.DefaultCriterionVersion, active[0].Version)
	assert.NotEmpty(t, active[0].Prompt)

	out = execute(t, "criteria", "deactivate", "gov_2", "--version", "")
	assert.Contains(t, out, "Updated 1 criteria version(s)")

	inactive := listCriteria(t, "inactive")
	require.Len(t, inactive, 1)
	assert.Equal(t, "gov_2", inactive[0].ID)
	assert.Len(t, listCriteria(t, "active"), 1)
}

func TestRunsCommands_ReadSeededRun(t *testing.T) {
	path := useTempStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	runID := "analysis_bbbbbbbbbbbb_20250301_093000"

	st, err := store.NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	_, err = st.UpsertCriteria(ctx, []model.Criterion{
		{ID: "gov_1", Version: "1.0", Question: "q1", Prompt: "p1", Weight: 2, Active: true},
		{ID: "gov_2", Version: "1.0", Question: "q2", Prompt: "p2", Weight: 1, Active: true},
	})
	require.NoError(t, err)
	require.NoError(t, st.CreateRun(ctx, model.AnalysisRun{
		ID:           runID,
		CriteriaIDs:  []string{"gov_1", "gov_2"},
		CompanyNames: []string{"Acme Co"},
		AnalysisType: model.AnalysisTypeCriteriaRAG,
		CreatedAt:    now,
	}))
	require.NoError(t, st.AppendResult(ctx, model.EvaluationResult{
		RunID:           runID,
		CriteriaID:      "gov_1",
		CriteriaVersion: "1.0",
		CompanyName:     "Acme Co",
		Question:        "q1",
		PromptUsed:      "p1",
		Result:          "YES",
		Justification:   "Chair is independent.",
		Output:          model.OutputSnapshot{RunID: runID, Timestamp: now, AnalysisType: model.AnalysisTypeCriteriaRAG},
		CreatedAt:       now,
	}))
	require.NoError(t, st.RecordFailure(ctx, model.CellFailure{
		RunID:           runID,
		CriteriaID:      "gov_2",
		CriteriaVersion: "1.0",
		CompanyName:     "Acme Co",
		Kind:            model.FailureCompletion,
		ErrorClass:      "rate_limited",
		Message:         "429 from provider",
		CreatedAt:       now,
	}))
	require.NoError(t, st.Close())

	out := execute(t, "runs", "list", "--limit", "5")
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "2025-03-01 09:30")

	out = execute(t, "runs", "scores", runID, "--company", "")
	assert.Contains(t, out, "Acme Co")
	assert.Contains(t, out, "2.00")
	assert.Contains(t, out, "3.00")

	out = execute(t, "runs", "failures", runID)
	assert.Contains(t, out, "gov_2@1.0")
	assert.Contains(t, out, "rate_limited")

	out = execute(t, "runs", "export", runID, "--out", "", "--latest=false")
	assert.Contains(t, out, "Chair is independent.")

	out = execute(t, "runs", "overview")
	assert.Contains(t, out, "Runs:")
	assert.Contains(t, out, runID)
}
