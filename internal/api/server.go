// Package api serves run results, scores and progress over HTTP and starts
// durable runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/store"
	"github.com/sells-group/annual-report-eval/internal/workflows"
)

// Store is the read side of store.Store the API needs.
type Store interface {
	GetRun(ctx context.Context, runID string) (*model.AnalysisRun, error)
	ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error)
	Overview(ctx context.Context) (*model.Overview, error)
	ListResults(ctx context.Context, filter store.ResultFilter) ([]model.EvaluationResult, error)
	ListFailures(ctx context.Context, runID string) ([]model.CellFailure, error)
	ListCriteria(ctx context.Context, filter store.CriteriaFilter) ([]model.Criterion, error)
	Ping(ctx context.Context) error
}

// CompanyLister lists companies that have indexed documents.
type CompanyLister interface {
	Companies(ctx context.Context) ([]string, error)
}

// Planner validates a selection into a run plan.
type Planner interface {
	Prepare(cs []model.Criterion, companies []string) (*analysis.Plan, error)
}

// Launcher starts durable runs and reports their progress.
type Launcher interface {
	Start(ctx context.Context, plan *analysis.Plan) (string, error)
	Progress(ctx context.Context, runID string) (*workflows.RunProgress, error)
}

// Deps are the collaborators of the router. Launcher may be nil, in which
// case starting runs and progress queries answer 503.
type Deps struct {
	Store       Store
	Companies   CompanyLister
	Planner     Planner
	Launcher    Launcher
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

// Server holds the handlers.
type Server struct {
	deps Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.wrap(s.handleHealth))
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(rt chi.Router) {
		rt.Get("/overview", s.wrap(s.handleOverview))
		rt.Get("/criteria", s.wrap(s.handleCriteria))
		rt.Get("/companies", s.wrap(s.handleCompanies))
		rt.Get("/companies/{company}/scores", s.wrap(s.handleCompanyScores))

		rt.Get("/runs", s.wrap(s.handleListRuns))
		rt.Post("/runs", s.wrap(s.handleStartRun))
		rt.Route("/runs/{id}", func(run chi.Router) {
			run.Get("/", s.wrap(s.handleGetRun))
			run.Get("/results", s.wrap(s.handleRunResults))
			run.Get("/scores", s.wrap(s.handleRunScores))
			run.Get("/failures", s.wrap(s.handleRunFailures))
			run.Get("/export.csv", s.wrap(s.handleRunExport))
			run.Get("/progress", s.wrap(s.handleRunProgress))
		})
	})
	return r
}

// statusError carries an HTTP status with its message.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string { return e.msg }

func badRequest(msg string) error { return &statusError{status: http.StatusBadRequest, msg: msg} }

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var se *statusError
		var ce *analysis.ConfigurationError
		switch {
		case errors.As(err, &se):
			writeError(w, se.status, se.msg)
		case errors.As(err, &ce):
			writeError(w, http.StatusBadRequest, ce.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		default:
			zap.L().Error("api: request failed",
				zap.String("path", req.URL.Path),
				zap.String("request_id", middleware.GetReqID(req.Context())),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
