package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/config"
	"github.com/sells-group/annual-report-eval/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertRunIncomplete  AlertType = "run_incomplete"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter checks run stats against the failure thresholds and posts what
// they trigger to the webhook. Deliveries that hit a 5xx or 429 are retried.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
	now    func() time.Time
}

// NewAlerter creates an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			OnRetry:        resilience.RetryLogger("webhook", "alert"),
		},
		now: time.Now,
	}
}

// Evaluate checks one run's stats and returns any alerts.
func (a *Alerter) Evaluate(s *RunStats) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	finished := s.Finished()
	if finished >= a.cfg.MinCells && finished > 0 && s.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			RunID:    s.RunID,
			Message: fmt.Sprintf(
				"Run %s failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d cells)",
				s.RunID, s.FailRate*100, a.cfg.FailureRateThreshold*100, s.Failed, finished,
			),
			Details: map[string]any{
				"failure_rate": s.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       s.Failed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if s.Planned > 0 && s.Succeeded == 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRunIncomplete,
			Severity: "high",
			RunID:    s.RunID,
			Message:  fmt.Sprintf("Run %s saved no results for %d planned cells", s.RunID, s.Planned),
			Details: map[string]any{
				"planned": s.Planned,
				"failed":  s.Failed,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Notify evaluates s and sends whatever it triggers. Returns the number of
// alerts delivered.
func (a *Alerter) Notify(ctx context.Context, s *RunStats) int {
	alerts := a.Evaluate(s)
	if len(alerts) == 0 {
		zap.L().Debug("monitoring: run within thresholds",
			zap.String("run_id", s.RunID),
			zap.Float64("fail_rate", s.FailRate),
		)
		return 0
	}
	return a.SendAlerts(ctx, alerts)
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("run_id", alert.RunID),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("run_id", alert.RunID),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	return resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "monitoring: create webhook request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return eris.Wrap(err, "monitoring: post webhook")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode >= 400 {
			return resilience.FromStatus(eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode), resp.StatusCode)
		}
		return nil
	})
}
