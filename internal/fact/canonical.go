package fact

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sentineloop/incident-agent/internal/bdierr"
)

// CanonicalAlert is the normalized alert.v1 wire schema every adapter
// produces before a fact is asserted into the rule engine.
type CanonicalAlert struct {
	Schema     string      `json:"schema"`
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Severity   string      `json:"severity"`
	Tags       []string    `json:"tags"`
	Source     AlertSource `json:"source"`
	OccurredAt string      `json:"occurred_at"`
}

var validSeverities = map[string]Severity{
	"info":     SeverityInfo,
	"low":      SeverityLow,
	"medium":   SeverityMedium,
	"high":     SeverityHigh,
	"critical": SeverityCritical,
}

// Validate checks field-level correctness of a canonical alert and
// returns the first violation found, wrapped as *bdierr.ValidationError.
func (c CanonicalAlert) Validate() error {
	if c.Schema != "alert.v1" {
		return &bdierr.ValidationError{Field: "schema", Reason: fmt.Sprintf("unrecognized schema %q", c.Schema)}
	}
	if c.ID == "" {
		return &bdierr.ValidationError{Field: "id", Reason: "required"}
	}
	if c.Title == "" {
		return &bdierr.ValidationError{Field: "title", Reason: "required"}
	}
	if _, ok := validSeverities[strings.ToLower(c.Severity)]; !ok {
		return &bdierr.ValidationError{Field: "severity", Reason: fmt.Sprintf("unrecognized severity %q", c.Severity)}
	}
	if _, err := parseOccurredAt(c.OccurredAt); err != nil {
		return &bdierr.ValidationError{Field: "occurred_at", Reason: err.Error()}
	}
	return nil
}

// ToFact converts a validated canonical alert into a Fact.
func (c CanonicalAlert) ToFact() (Fact, error) {
	if err := c.Validate(); err != nil {
		return Fact{}, err
	}
	occurredAt, _ := parseOccurredAt(c.OccurredAt)
	source := c.Source
	if source == "" {
		source = SourceGeneric
	}
	return NewAlertFact(Alert{
		ID:         c.ID,
		Source:     source,
		Severity:   validSeverities[strings.ToLower(c.Severity)],
		Title:      c.Title,
		Tags:       c.Tags,
		ReceivedAt: occurredAt,
	}), nil
}

// parseOccurredAt accepts Unix seconds or ISO-8601.
func parseOccurredAt(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("required")
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("not parseable as unix seconds or ISO-8601: %w", err)
	}
	return t.UTC(), nil
}
