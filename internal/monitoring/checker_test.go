package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/annual-report-eval/internal/config"
	"github.com/sells-group/annual-report-eval/internal/model"
)

func TestChecker_CheckAlertsOncePerRun(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := thresholds()
	cfg.WebhookURL = ts.URL
	runs := &fakeRuns{summaries: []model.RunSummary{
		{RunID: "bad", ResultCount: 2, FailureCount: 8},
		{RunID: "good", ResultCount: 10, FailureCount: 0},
	}}
	checker := NewChecker(NewCollector(runs), NewAlerter(cfg), cfg)

	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, 0, checker.Check(context.Background()))
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := thresholds()
	cfg.CheckIntervalSecs = 1
	checker := NewChecker(NewCollector(&fakeRuns{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&fakeRuns{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
