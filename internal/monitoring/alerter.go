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

	"github.com/promptwatch/visibility/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertJobFailureRate AlertType = "job_failure_rate"
	AlertCostOverrun    AlertType = "cost_overrun"
	AlertQueueBacklog   AlertType = "queue_backlog"
)

// minFinishedForRate suppresses failure-rate alerts until enough jobs
// have finished for the rate to mean anything.
const minFinishedForRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any
// alerts. A zero threshold disables its check.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.JobsComplete + snap.JobsFailed
	if a.cfg.FailureRateThreshold > 0 && finished >= minFinishedForRate && snap.JobFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertJobFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Job failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.JobFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.JobsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.JobFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.JobsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.Spend24hUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Sampling spend $%.2f exceeds threshold $%.2f in last 24h",
				snap.Spend24hUSD, a.cfg.CostThresholdUSD,
			),
			Details: map[string]any{
				"spend_24h_usd": snap.Spend24hUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"brands":        snap.Brands,
			},
			Timestamp: now,
		})
	}

	if a.cfg.QueueBacklogThreshold > 0 && snap.JobsQueued > a.cfg.QueueBacklogThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertQueueBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Queue backlog %d exceeds threshold %d",
				snap.JobsQueued, a.cfg.QueueBacklogThreshold,
			),
			Details: map[string]any{
				"queued":    snap.JobsQueued,
				"running":   snap.JobsRunning,
				"threshold": a.cfg.QueueBacklogThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Watch collects a snapshot on the configured interval and sends
// whatever alerts it triggers. Blocks until ctx is cancelled.
func (a *Alerter) Watch(ctx context.Context, collector *Collector) {
	interval := time.Duration(a.cfg.IntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring"))
	log.Info("alert watch started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", a.cfg.LookbackHours))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert watch stopped")
			return
		case <-ticker.C:
			snap, err := collector.Collect(ctx, a.cfg.LookbackHours)
			if err != nil {
				log.Error("collect metrics", zap.Error(err))
				continue
			}
			if alerts := a.Evaluate(snap); len(alerts) > 0 {
				sent := a.SendAlerts(ctx, alerts)
				log.Info("alerts dispatched",
					zap.Int("triggered", len(alerts)),
					zap.Int("sent", sent))
			}
		}
	}
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
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
