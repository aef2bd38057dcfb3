package fact

import "testing"

func TestIncidentIDPerKind(t *testing.T) {
	cases := []struct {
		f    Fact
		want string
	}{
		{NewPodFact(Pod{Namespace: "ns", Name: "p"}), "pod:ns/p"},
		{NewDeployFact(Deploy{Namespace: "ns", Name: "d"}), "deploy:ns/d"},
		{NewAlertFact(Alert{ID: "a1"}), "alert:a1"},
		{NewMetricFact(Metric{Name: "error_rate:svc"}), "metric:error_rate:svc"},
	}
	for _, c := range cases {
		if got := c.f.IncidentID(); got != c.want {
			t.Errorf("IncidentID() = %q, want %q", got, c.want)
		}
	}
}

func TestSummaryMentionsKeyFields(t *testing.T) {
	f := NewPodFact(Pod{Namespace: "ns", Name: "p", Phase: PhaseFailed, RestartCount: 7, TerminationReason: "OOMKilled"})
	summary := f.Summary()
	if summary == "" {
		t.Fatal("expected a non-empty summary")
	}
	for _, want := range []string{"ns/p", "OOMKilled", "7"} {
		if !contains(summary, want) {
			t.Errorf("summary %q missing %q", summary, want)
		}
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
