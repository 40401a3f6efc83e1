package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/store"
	"github.com/sells-group/annual-report-eval/internal/workflows"
)

var testNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

type fakeLauncher struct {
	started  *analysis.Plan
	startErr error
	progress *workflows.RunProgress
}

func (f *fakeLauncher) Start(_ context.Context, plan *analysis.Plan) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = plan
	return workflows.WorkflowID(plan.Run.ID), nil
}

func (f *fakeLauncher) Progress(_ context.Context, runID string) (*workflows.RunProgress, error) {
	if f.progress == nil || f.progress.RunID != runID {
		return nil, errors.New("workflow not found")
	}
	return f.progress, nil
}

type fakeCompanies []string

func (f fakeCompanies) Companies(context.Context) ([]string, error) { return f, nil }

type fixture struct {
	srv      *httptest.Server
	st       *store.SQLiteStore
	launcher *fakeLauncher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	_, err = st.UpsertCriteria(ctx, []model.Criterion{
		{ID: "gov_1", Version: "1.0", Question: "Independent board?", Prompt: "p1", Weight: 2, Active: true},
		{ID: "gov_2", Version: "1.0", Question: "Audit committee?", Prompt: "p2", Weight: 1, Active: true},
		{ID: "old_1", Version: "1.0", Question: "Retired?", Prompt: "p3", Weight: 1, Active: false},
	})
	require.NoError(t, err)

	run := model.AnalysisRun{
		ID:           "analysis_aaaaaaaaaaaa_20250301_093000",
		CriteriaIDs:  []string{"gov_1", "gov_2"},
		CompanyNames: []string{"Acme Co"},
		AnalysisType: model.AnalysisTypeCriteriaRAG,
		CreatedAt:    testNow,
	}
	require.NoError(t, st.CreateRun(ctx, run))
	for _, r := range []struct{ id, result string }{{"gov_1", "YES"}, {"gov_2", "NO"}} {
		require.NoError(t, st.AppendResult(ctx, model.EvaluationResult{
			RunID:           run.ID,
			CriteriaID:      r.id,
			CriteriaVersion: "1.0",
			CompanyName:     "Acme Co",
			Question:        "q",
			PromptUsed:      "prompt",
			Result:          r.result,
			Output:          model.OutputSnapshot{RunID: run.ID, Timestamp: testNow, AnalysisType: model.AnalysisTypeCriteriaRAG},
			CreatedAt:       testNow,
		}))
	}
	require.NoError(t, st.RecordFailure(ctx, model.CellFailure{
		RunID:           run.ID,
		CriteriaID:      "gov_2",
		CriteriaVersion: "1.0",
		CompanyName:     "Bolt Ltd",
		Kind:            model.FailureMalformedOutput,
		Message:         "no JSON object",
		CreatedAt:       testNow,
	}))

	launcher := &fakeLauncher{}
	planner := analysis.NewOrchestrator(nil, nil, nil, analysis.Options{Now: func() time.Time { return testNow }})
	h := NewRouter(Deps{
		Store:       st,
		Companies:   fakeCompanies{"Acme Co", "Bolt Ltd"},
		Planner:     planner,
		Launcher:    launcher,
		Gatherer:    prometheus.NewRegistry(),
		CORSOrigins: []string{"*"},
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, st: st, launcher: launcher}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

const runPath = "/v1/runs/analysis_aaaaaaaaaaaa_20250301_093000"

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListRuns(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []model.RunSummary
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].ResultCount)
	assert.Equal(t, 1, runs[0].FailureCount)

	resp, _ = f.get(t, "/v1/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRun(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, runPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var run model.AnalysisRun
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, []string{"gov_1", "gov_2"}, run.CriteriaIDs)

	resp, body = f.get(t, "/v1/runs/analysis_missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"not found"}`, string(body))
}

func TestRunResultsAndFailures(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, runPath+"/results")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var results []model.EvaluationResult
	require.NoError(t, json.Unmarshal(body, &results))
	require.Len(t, results, 2)
	assert.Equal(t, "gov_1", results[0].CriteriaID)
	assert.Equal(t, "gov_2", results[1].CriteriaID)

	resp, body = f.get(t, runPath+"/failures")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var failures []model.CellFailure
	require.NoError(t, json.Unmarshal(body, &failures))
	require.Len(t, failures, 1)
	assert.Equal(t, model.FailureMalformedOutput, failures[0].Kind)

	resp, _ = f.get(t, "/v1/runs/analysis_missing/results")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunScores(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, runPath+"/scores")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var scores []analysis.CompanyScore
	require.NoError(t, json.Unmarshal(body, &scores))
	require.Len(t, scores, 1)
	assert.Equal(t, "Acme Co", scores[0].Company)
	assert.InDelta(t, 2.0, scores[0].Score, 0.0001)
	assert.InDelta(t, 3.0, scores[0].MaxScore, 0.0001)
}

func TestCompanyScores(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/v1/companies/Acme%20Co/scores")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var score analysis.CompanyScore
	require.NoError(t, json.Unmarshal(body, &score))
	assert.Equal(t, 1, score.Affirmative)
	assert.Equal(t, 2, score.Evaluated)

	resp, _ = f.get(t, "/v1/companies/Nobody/scores")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunExportCSV(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, runPath+"/export.csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "analysis_aaaaaaaaaaaa_20250301_093000.csv")

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "RUN_ID,CRITERIA_ID"))
}

func TestOverview(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/v1/overview")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ov overviewResponse
	require.NoError(t, json.Unmarshal(body, &ov))
	assert.Equal(t, 1, ov.Runs)
	assert.Equal(t, 2, ov.Analyses)
	assert.Len(t, ov.RecentRuns, 1)
}

func TestCriteria(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/v1/criteria?status=active")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cs []model.Criterion
	require.NoError(t, json.Unmarshal(body, &cs))
	assert.Len(t, cs, 2)

	resp, _ = f.get(t, "/v1/criteria?status=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompanies(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/v1/companies")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `["Acme Co","Bolt Ltd"]`, string(body))
}

func TestStartRun(t *testing.T) {
	f := newFixture(t)
	resp, body := f.post(t, "/v1/runs", `{"criteria_ids":["gov_1"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var out startRunResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, strings.HasPrefix(out.RunID, "analysis_"))
	assert.Equal(t, workflows.WorkflowID(out.RunID), out.WorkflowID)
	assert.Equal(t, 2, out.Cells)

	require.NotNil(t, f.launcher.started)
	assert.Equal(t, []string{"Acme Co", "Bolt Ltd"}, f.launcher.started.Companies)
	require.Len(t, f.launcher.started.Criteria, 1)
	assert.Equal(t, "gov_1", f.launcher.started.Criteria[0].ID)
}

func TestStartRun_Rejected(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.post(t, "/v1/runs", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Only inactive criteria selected: nothing to evaluate.
	resp, body := f.post(t, "/v1/runs", `{"criteria_ids":["old_1"],"companies":["Acme Co"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "no criteria selected")
	assert.Nil(t, f.launcher.started)

	f.launcher.startErr = errors.New("temporal unavailable")
	resp, _ = f.post(t, "/v1/runs", `{"companies":["Acme Co"]}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRunProgress(t *testing.T) {
	f := newFixture(t)
	f.launcher.progress = &workflows.RunProgress{RunID: "analysis_aaaaaaaaaaaa_20250301_093000", Total: 4, Completed: 3}

	resp, body := f.get(t, runPath+"/progress")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p workflows.RunProgress
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, 3, p.Completed)

	resp, _ = f.get(t, "/v1/runs/other/progress")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestDurableRunsUnconfigured(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "bare.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(NewRouter(Deps{Store: st, Gatherer: prometheus.NewRegistry()}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/runs", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
