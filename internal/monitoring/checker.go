package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/config"
)

// Checker sweeps recent runs in the background and alerts on each
// breaching run at most once per process.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	mu      sync.Mutex
	alerted map[string]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		alerted:   make(map[string]bool),
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("recent_runs", c.cfg.RecentRuns),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs one sweep and returns the number of alerts sent.
func (c *Checker) Check(ctx context.Context) int {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	stats, err := c.collector.Recent(ctx, c.cfg.RecentRuns)
	if err != nil {
		log.Error("monitoring: failed to collect run stats", zap.Error(err))
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sent := 0
	for i := range stats {
		s := &stats[i]
		if c.alerted[s.RunID] {
			continue
		}
		alerts := c.alerter.Evaluate(s)
		if len(alerts) == 0 {
			continue
		}
		c.alerted[s.RunID] = true
		sent += c.alerter.SendAlerts(ctx, alerts)
	}
	if sent > 0 {
		log.Info("monitoring: alert check complete", zap.Int("alerts_sent", sent))
	}
	return sent
}
