package fact

import "testing"

func TestCanonicalAlertValidate(t *testing.T) {
	valid := CanonicalAlert{
		Schema:     "alert.v1",
		ID:         "a1",
		Title:      "checkout crashlooping",
		Severity:   "High",
		OccurredAt: "1700000000",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid alert to pass, got %v", err)
	}

	cases := []struct {
		name  string
		alert CanonicalAlert
	}{
		{"bad schema", CanonicalAlert{Schema: "x", ID: "a", Title: "t", Severity: "high", OccurredAt: "1700000000"}},
		{"missing id", CanonicalAlert{Schema: "alert.v1", Title: "t", Severity: "high", OccurredAt: "1700000000"}},
		{"missing title", CanonicalAlert{Schema: "alert.v1", ID: "a", Severity: "high", OccurredAt: "1700000000"}},
		{"bad severity", CanonicalAlert{Schema: "alert.v1", ID: "a", Title: "t", Severity: "urgent", OccurredAt: "1700000000"}},
		{"bad occurred_at", CanonicalAlert{Schema: "alert.v1", ID: "a", Title: "t", Severity: "high", OccurredAt: "not-a-time"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.alert.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestCanonicalAlertToFact(t *testing.T) {
	c := CanonicalAlert{
		Schema:     "alert.v1",
		ID:         "a1",
		Title:      "checkout crashlooping",
		Severity:   "high",
		OccurredAt: "1700000000",
	}
	f, err := c.ToFact()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != KindAlert {
		t.Fatalf("expected KindAlert, got %s", f.Kind)
	}
	if f.Alert.Severity != SeverityHigh {
		t.Errorf("expected severity high, got %s", f.Alert.Severity)
	}
	if f.Alert.Source != SourceGeneric {
		t.Errorf("expected default source generic, got %s", f.Alert.Source)
	}
}

func TestParseOccurredAtISO8601(t *testing.T) {
	c := CanonicalAlert{
		Schema:     "alert.v1",
		ID:         "a1",
		Title:      "t",
		Severity:   "low",
		OccurredAt: "2024-01-15T10:30:00Z",
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected ISO-8601 occurred_at to validate, got %v", err)
	}
}
