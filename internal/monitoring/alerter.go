package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/member-qa/internal/config"
)

// minSample is the fewest answers a rate alert is evaluated on.
const minSample = 5

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertUnresolvedRate AlertType = "unresolved_rate"
	AlertLLMFallback    AlertType = "llm_fallback_rate"
	AlertStaleData      AlertType = "stale_data"
)

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

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.UnresolvedRateThreshold > 0 && snap.Total >= minSample && snap.UnresolvedRate > a.cfg.UnresolvedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertUnresolvedRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Unresolved answer rate %.1f%% exceeds threshold %.1f%% (%d of %d in last %dh)",
				snap.UnresolvedRate*100, a.cfg.UnresolvedRateThreshold*100,
				snap.Unresolved, snap.Total, snap.LookbackHours,
			),
			Details: map[string]any{
				"unresolved_rate": snap.UnresolvedRate,
				"threshold":       a.cfg.UnresolvedRateThreshold,
				"top_reasons":     snap.TopReasons(3),
			},
			Timestamp: now,
		})
	}

	if a.cfg.FallbackRateThreshold > 0 && snap.LLMAttempts >= minSample && snap.FallbackRate > a.cfg.FallbackRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertLLMFallback,
			Severity: "high",
			Message: fmt.Sprintf(
				"LLM fallback rate %.1f%% exceeds threshold %.1f%% (%d of %d in last %dh; top reasons: %s)",
				snap.FallbackRate*100, a.cfg.FallbackRateThreshold*100,
				snap.LLMFallbacks, snap.LLMAttempts, snap.LookbackHours,
				strings.Join(snap.TopReasons(3), ", "),
			),
			Details: map[string]any{
				"fallback_rate": snap.FallbackRate,
				"threshold":     a.cfg.FallbackRateThreshold,
				"attempts":      snap.LLMAttempts,
			},
			Timestamp: now,
		})
	}

	if snap.Stale > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStaleData,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d answer(s) served from a stale snapshot in last %dh",
				snap.Stale, snap.LookbackHours,
			),
			Details: map[string]any{
				"stale": snap.Stale,
				"total": snap.Total,
			},
			Timestamp: now,
		})
	}

	return alerts
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
