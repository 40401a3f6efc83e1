package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the run counters exported on /metrics.
type Metrics struct {
	Cells        *prometheus.CounterVec
	CellDuration prometheus.Histogram
	RunsInFlight prometheus.Gauge
}

// NewMetrics registers the run metrics with reg. A nil reg leaves them
// unregistered, which tests use to avoid global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cells: f.NewCounterVec(prometheus.CounterOpts{
			Name: "report_eval_cells_total",
			Help: "Evaluated cells by final status.",
		}, []string{"status"}),
		CellDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "report_eval_cell_duration_seconds",
			Help:    "Wall time to assemble, complete and persist one cell.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		RunsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "report_eval_runs_in_flight",
			Help: "Analysis runs currently executing.",
		}),
	}
}
