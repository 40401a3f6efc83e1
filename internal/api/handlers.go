package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/store"
)

const maxRunsLimit = 100

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) error {
	if err := s.deps.Store.Ping(req.Context()); err != nil {
		return &statusError{status: http.StatusServiceUnavailable, msg: "store unavailable"}
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type overviewResponse struct {
	model.Overview
	RecentRuns []model.RunSummary `json:"recent_runs"`
}

// GET /v1/overview
func (s *Server) handleOverview(w http.ResponseWriter, req *http.Request) error {
	ov, err := s.deps.Store.Overview(req.Context())
	if err != nil {
		return err
	}
	recent, err := s.deps.Store.ListRunSummaries(req.Context(), 10)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, overviewResponse{Overview: *ov, RecentRuns: nonNil(recent)})
}

// GET /v1/criteria?status=&version=&role=&prefix=
func (s *Server) handleCriteria(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	status, err := store.ParseCriteriaStatus(q.Get("status"))
	if err != nil {
		return badRequest(err.Error())
	}
	cs, err := s.deps.Store.ListCriteria(req.Context(), store.CriteriaFilter{
		Status:   status,
		Version:  q.Get("version"),
		Role:     q.Get("role"),
		IDPrefix: q.Get("prefix"),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(cs))
}

// GET /v1/companies
func (s *Server) handleCompanies(w http.ResponseWriter, req *http.Request) error {
	if s.deps.Companies == nil {
		return &statusError{status: http.StatusServiceUnavailable, msg: "document index not configured"}
	}
	names, err := s.deps.Companies.Companies(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(names))
}

// GET /v1/companies/{company}/scores scores a company on the latest result
// of every active criterion across runs.
func (s *Server) handleCompanyScores(w http.ResponseWriter, req *http.Request) error {
	company := chi.URLParam(req, "company")
	results, err := s.deps.Store.ListResults(req.Context(), store.ResultFilter{CompanyName: company})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return &statusError{status: http.StatusNotFound, msg: "no results for " + company}
	}
	scores, err := s.score(req, results)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, scores[0])
}

// GET /v1/runs?limit=
func (s *Server) handleListRuns(w http.ResponseWriter, req *http.Request) error {
	limit := 10
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return badRequest("limit must be a positive integer")
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := s.deps.Store.ListRunSummaries(req.Context(), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(runs))
}

// GET /v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, req *http.Request) error {
	run, err := s.deps.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, run)
}

// runResults returns the results of the run named in the path, ordered by
// criteria id then company. Unknown runs are a 404.
func (s *Server) runResults(req *http.Request) ([]model.EvaluationResult, error) {
	id := chi.URLParam(req, "id")
	if _, err := s.deps.Store.GetRun(req.Context(), id); err != nil {
		return nil, err
	}
	results, err := s.deps.Store.ListResults(req.Context(), store.ResultFilter{RunID: id})
	if err != nil {
		return nil, err
	}
	analysis.SortResults(results)
	return results, nil
}

// GET /v1/runs/{id}/results
func (s *Server) handleRunResults(w http.ResponseWriter, req *http.Request) error {
	results, err := s.runResults(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(results))
}

// GET /v1/runs/{id}/scores
func (s *Server) handleRunScores(w http.ResponseWriter, req *http.Request) error {
	results, err := s.runResults(req)
	if err != nil {
		return err
	}
	scores, err := s.score(req, results)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(scores))
}

// GET /v1/runs/{id}/failures
func (s *Server) handleRunFailures(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if _, err := s.deps.Store.GetRun(req.Context(), id); err != nil {
		return err
	}
	failures, err := s.deps.Store.ListFailures(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(failures))
}

// GET /v1/runs/{id}/export.csv
func (s *Server) handleRunExport(w http.ResponseWriter, req *http.Request) error {
	results, err := s.runResults(req)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+chi.URLParam(req, "id")+`.csv"`)
	return analysis.ExportCSV(w, results)
}

// GET /v1/runs/{id}/progress
func (s *Server) handleRunProgress(w http.ResponseWriter, req *http.Request) error {
	if s.deps.Launcher == nil {
		return &statusError{status: http.StatusServiceUnavailable, msg: "durable runs not configured"}
	}
	p, err := s.deps.Launcher.Progress(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return &statusError{status: http.StatusBadGateway, msg: err.Error()}
	}
	return writeJSON(w, http.StatusOK, p)
}

type startRunRequest struct {
	CriteriaIDs []string `json:"criteria_ids"`
	Companies   []string `json:"companies"`
}

type startRunResponse struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Cells      int    `json:"cells"`
}

// POST /v1/runs starts a durable run. Without criteria ids every active
// criterion is used; without companies every indexed company is.
func (s *Server) handleStartRun(w http.ResponseWriter, req *http.Request) error {
	if s.deps.Launcher == nil || s.deps.Planner == nil {
		return &statusError{status: http.StatusServiceUnavailable, msg: "durable runs not configured"}
	}
	var body startRunRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid request body")
	}

	cs, err := s.deps.Store.ListCriteria(req.Context(), store.CriteriaFilter{
		Status: store.CriteriaActive,
		IDs:    body.CriteriaIDs,
	})
	if err != nil {
		return err
	}

	companies := body.Companies
	if len(companies) == 0 && s.deps.Companies != nil {
		if companies, err = s.deps.Companies.Companies(req.Context()); err != nil {
			return err
		}
	}

	plan, err := s.deps.Planner.Prepare(cs, companies)
	if err != nil {
		return err
	}
	wfID, err := s.deps.Launcher.Start(req.Context(), plan)
	if err != nil {
		return eris.Wrap(err, "api: start run")
	}
	return writeJSON(w, http.StatusAccepted, startRunResponse{
		RunID:      plan.Run.ID,
		WorkflowID: wfID,
		Cells:      plan.Total(),
	})
}

func (s *Server) score(req *http.Request, results []model.EvaluationResult) ([]analysis.CompanyScore, error) {
	cs, err := s.deps.Store.ListCriteria(req.Context(), store.CriteriaFilter{Status: store.CriteriaActive})
	if err != nil {
		return nil, err
	}
	return analysis.Score(results, cs), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
