// Package adapter translates third-party webhook payloads into
// fact.CanonicalAlert records. Datadog and PagerDuty get concrete
// field-mapping adapters; Grafana and CloudWatch fall through Generic
// until a provider-specific shape is needed.
package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sentineloop/incident-agent/internal/fact"
)

// Adapter translates a raw webhook body into one or more canonical
// alerts.
type Adapter interface {
	Adapt(body []byte) ([]fact.CanonicalAlert, error)
}

// genericPayload is the shape accepted by the generic webhook endpoint.
type genericPayload struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Severity   string   `json:"severity"`
	Tags       []string `json:"tags"`
	OccurredAt string   `json:"occurred_at"`
}

// Generic adapts the generic JSON alert payload directly.
type Generic struct{}

func (Generic) Adapt(body []byte) ([]fact.CanonicalAlert, error) {
	var p genericPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("generic webhook: %w", err)
	}
	occurredAt := p.OccurredAt
	if occurredAt == "" {
		occurredAt = strconv.FormatInt(time.Now().Unix(), 10)
	}
	return []fact.CanonicalAlert{{
		Schema:     "alert.v1",
		ID:         p.ID,
		Title:      p.Title,
		Severity:   p.Severity,
		Tags:       p.Tags,
		Source:     fact.SourceGeneric,
		OccurredAt: occurredAt,
	}}, nil
}

// alertmanagerPayload mirrors Prometheus Alertmanager's webhook shape.
type alertmanagerPayload struct {
	Alerts []struct {
		Fingerprint string            `json:"fingerprint"`
		Labels      map[string]string `json:"labels"`
		Annotations map[string]string `json:"annotations"`
		StartsAt    string            `json:"startsAt"`
	} `json:"alerts"`
}

// Alertmanager adapts Prometheus Alertmanager's grouped webhook payload
// into one canonical alert per contained alert.
type Alertmanager struct{}

func (Alertmanager) Adapt(body []byte) ([]fact.CanonicalAlert, error) {
	var p alertmanagerPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("alertmanager webhook: %w", err)
	}
	out := make([]fact.CanonicalAlert, 0, len(p.Alerts))
	for _, a := range p.Alerts {
		occurredAt := a.StartsAt
		if occurredAt == "" {
			occurredAt = strconv.FormatInt(time.Now().Unix(), 10)
		}
		tags := make([]string, 0, len(a.Labels))
		for k, v := range a.Labels {
			tags = append(tags, k+"="+v)
		}
		out = append(out, fact.CanonicalAlert{
			Schema:     "alert.v1",
			ID:         a.Fingerprint,
			Title:      a.Labels["alertname"],
			Severity:   a.Labels["severity"],
			Tags:       tags,
			Source:     fact.SourceGeneric,
			OccurredAt: occurredAt,
		})
	}
	return out, nil
}

// datadogPayload mirrors Datadog's monitor-alert webhook shape.
type datadogPayload struct {
	AlertID  string `json:"alert_id"`
	AlertTitle string `json:"alert_title"`
	AlertType  string `json:"alert_type"` // e.g. "error", "warning"
	Tags       []string `json:"tags"`
	Date       int64    `json:"date"` // epoch milliseconds
}

// Datadog adapts Datadog's monitor webhook payload.
type Datadog struct{}

func (Datadog) Adapt(body []byte) ([]fact.CanonicalAlert, error) {
	var p datadogPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("datadog webhook: %w", err)
	}
	occurredAt := strconv.FormatInt(time.Now().Unix(), 10)
	if p.Date > 0 {
		occurredAt = strconv.FormatInt(p.Date/1000, 10)
	}
	return []fact.CanonicalAlert{{
		Schema:     "alert.v1",
		ID:         p.AlertID,
		Title:      p.AlertTitle,
		Severity:   datadogSeverity(p.AlertType),
		Tags:       p.Tags,
		Source:     fact.SourceDatadog,
		OccurredAt: occurredAt,
	}}, nil
}

func datadogSeverity(alertType string) string {
	switch alertType {
	case "error":
		return "high"
	case "warning":
		return "medium"
	default:
		return "info"
	}
}

// pagerdutyPayload mirrors a PagerDuty v3 webhook event.
type pagerdutyPayload struct {
	Event struct {
		Data struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			Urgency  string `json:"urgency"` // "high" or "low"
			CreatedAt string `json:"created_at"`
		} `json:"data"`
	} `json:"event"`
}

// PagerDuty adapts PagerDuty's v3 incident webhook payload.
type PagerDuty struct{}

func (PagerDuty) Adapt(body []byte) ([]fact.CanonicalAlert, error) {
	var p pagerdutyPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("pagerduty webhook: %w", err)
	}
	occurredAt := p.Event.Data.CreatedAt
	if occurredAt == "" {
		occurredAt = strconv.FormatInt(time.Now().Unix(), 10)
	}
	return []fact.CanonicalAlert{{
		Schema:     "alert.v1",
		ID:         p.Event.Data.ID,
		Title:      p.Event.Data.Title,
		Severity:   pagerdutySeverity(p.Event.Data.Urgency),
		Source:     fact.SourcePagerDuty,
		OccurredAt: occurredAt,
	}}, nil
}

func pagerdutySeverity(urgency string) string {
	if urgency == "high" {
		return "critical"
	}
	return "medium"
}

// ForSource returns the adapter registered for a given alert source,
// falling through to Generic for sources without a provider-specific
// field mapping (Grafana, CloudWatch).
func ForSource(source string) Adapter {
	switch source {
	case "datadog":
		return Datadog{}
	case "pagerduty":
		return PagerDuty{}
	case "alertmanager":
		return Alertmanager{}
	default:
		return Generic{}
	}
}
