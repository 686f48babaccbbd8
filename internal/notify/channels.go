// Package notify implements the alert notification channels. Channels
// perform a single delivery attempt per Send call; retry and backoff policy
// belongs to the router so attempts can be recorded per outcome.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/secmon/internal/models"
)

// Channel names used in routing tables and delivery outcomes.
const (
	ChannelSlack     = "slack"
	ChannelEmail     = "email"
	ChannelPagerDuty = "pagerduty"
	ChannelWebhook   = "webhook"
)

// Channel delivers one alert to one destination. Send must honor ctx
// cancellation; the router bounds each attempt with a timeout.
type Channel interface {
	Send(ctx context.Context, alert *models.SecurityAlert) error
	Name() string
}

// httpClient is shared by all channels. Per-attempt timeouts come from the
// request context, so the client itself carries only a generous upper bound.
var httpClient = &http.Client{Timeout: 30 * time.Second}

func postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "secmon/1.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// SlackChannel posts alerts to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
}

// NewSlack creates a Slack notification channel.
func NewSlack(webhookURL string) *SlackChannel {
	return &SlackChannel{webhookURL: webhookURL}
}

func (s *SlackChannel) Name() string { return ChannelSlack }

func (s *SlackChannel) Send(ctx context.Context, alert *models.SecurityAlert) error {
	fields := []map[string]any{
		{"title": "Severity", "value": string(alert.Severity), "short": true},
		{"title": "Event Type", "value": string(alert.EventType), "short": true},
	}
	if alert.SourceID != "" {
		fields = append(fields, map[string]any{"title": "Source", "value": alert.SourceID, "short": true})
	}
	if alert.RecommendedAction != "" {
		fields = append(fields, map[string]any{"title": "Recommended Action", "value": alert.RecommendedAction, "short": false})
	}

	payload := map[string]any{
		"text": fmt.Sprintf("🚨 %s", alert.Title),
		"attachments": []map[string]any{
			{
				"color":  severityColor(alert.Severity),
				"text":   alert.Description,
				"fields": fields,
				"footer": "secmon",
				"ts":     alert.CreatedAt.Unix(),
			},
		},
	}
	return postJSON(ctx, s.webhookURL, payload)
}

func severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#8B0000"
	case models.SeverityHigh:
		return "#FF0000"
	case models.SeverityMedium:
		return "#FFA500"
	case models.SeverityLow:
		return "#FFFF00"
	case models.SeverityInfo:
		return "#0000FF"
	default:
		return "#808080"
	}
}

// EmailChannel posts alerts to an HTTP mail relay. The concrete SMTP
// transport lives behind the relay; only the message contract is ours.
type EmailChannel struct {
	relayURL string
	from     string
	to       string
}

// NewEmail creates an email notification channel.
func NewEmail(relayURL, from, to string) *EmailChannel {
	return &EmailChannel{relayURL: relayURL, from: from, to: to}
}

func (e *EmailChannel) Name() string { return ChannelEmail }

func (e *EmailChannel) Send(ctx context.Context, alert *models.SecurityAlert) error {
	body := alert.Description
	if alert.RecommendedAction != "" {
		body += "\n\nRecommended action: " + alert.RecommendedAction
	}

	payload := map[string]any{
		"from":    e.from,
		"to":      e.to,
		"subject": fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title),
		"body":    body,
	}
	return postJSON(ctx, e.relayURL, payload)
}

// PagerDutyChannel enqueues alerts on the PagerDuty Events API v2. The
// dedup key is the alert fingerprint, so repeated critical alerts for the
// same fingerprint map to the same incident.
type PagerDutyChannel struct {
	url        string
	routingKey string
}

// NewPagerDuty creates a PagerDuty notification channel.
func NewPagerDuty(url, routingKey string) *PagerDutyChannel {
	return &PagerDutyChannel{url: url, routingKey: routingKey}
}

func (p *PagerDutyChannel) Name() string { return ChannelPagerDuty }

func (p *PagerDutyChannel) Send(ctx context.Context, alert *models.SecurityAlert) error {
	payload := map[string]any{
		"routing_key":  p.routingKey,
		"event_action": "trigger",
		"dedup_key":    alert.Fingerprint(),
		"payload": map[string]any{
			"summary":   alert.Title,
			"source":    sourceOrDefault(alert),
			"severity":  pagerDutySeverity(alert.Severity),
			"timestamp": alert.CreatedAt.UTC().Format(time.RFC3339),
			"custom_details": map[string]any{
				"description":        alert.Description,
				"event_type":         string(alert.EventType),
				"recommended_action": alert.RecommendedAction,
			},
		},
	}
	return postJSON(ctx, p.url, payload)
}

func sourceOrDefault(alert *models.SecurityAlert) string {
	if alert.SourceID != "" {
		return alert.SourceID
	}
	return "secmon"
}

// pagerDutySeverity maps alert severity onto the Events API severity set.
func pagerDutySeverity(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "critical"
	case models.SeverityHigh:
		return "error"
	case models.SeverityMedium:
		return "warning"
	default:
		return "info"
	}
}

// WebhookChannel is the catch-all: a full JSON serialization of the alert
// posted to a configured endpoint.
type WebhookChannel struct {
	url string
}

// NewWebhook creates a generic webhook notification channel.
func NewWebhook(url string) *WebhookChannel {
	return &WebhookChannel{url: url}
}

func (w *WebhookChannel) Name() string { return ChannelWebhook }

func (w *WebhookChannel) Send(ctx context.Context, alert *models.SecurityAlert) error {
	return postJSON(ctx, w.url, alert)
}
