package rules

import (
	"testing"

	"github.com/sentineloop/incident-agent/internal/fact"
)

func TestCrashloopDetected(t *testing.T) {
	e := NewEngine()
	e.Assert(fact.NewPodFact(fact.Pod{Name: "checkout-7f", Namespace: "default", Phase: fact.PhaseRunning, RestartCount: 6}))
	res := e.Run()
	if !res.State.Has("crashloop_detected(checkout-7f,default)") {
		t.Errorf("expected crashloop_detected, state: %v", res.State.Slice())
	}
}

func TestCrashloopGuardedByAlreadyHandling(t *testing.T) {
	e := NewEngine()
	e.Assert(fact.NewPodFact(fact.Pod{Name: "checkout-7f", Namespace: "default", Phase: fact.PhaseRunning, RestartCount: 6}))
	e.MarkHandling("crashloop:checkout-7f")
	res := e.Run()
	if res.State.Has("crashloop_detected(checkout-7f,default)") {
		t.Errorf("expected crashloop_detected suppressed while already_handling, state: %v", res.State.Slice())
	}
	if !res.State.Has("already_handling(crashloop:checkout-7f)") {
		t.Errorf("expected already_handling asserted, state: %v", res.State.Slice())
	}
}

func TestCrashloopBelowThresholdNotDetected(t *testing.T) {
	e := NewEngine()
	e.Assert(fact.NewPodFact(fact.Pod{Name: "checkout-7f", Namespace: "default", Phase: fact.PhaseRunning, RestartCount: 5}))
	res := e.Run()
	if res.State.Has("crashloop_detected(checkout-7f,default)") {
		t.Errorf("restart_count == 5 should not trigger crashloop_detected")
	}
}

func TestOOMKillDetected(t *testing.T) {
	e := NewEngine()
	e.Assert(fact.NewPodFact(fact.Pod{Name: "worker-2", Namespace: "default", Phase: fact.PhaseFailed, TerminationReason: "OOMKilled"}))
	res := e.Run()
	if !res.State.Has("oomkill_detected(worker-2,default)") {
		t.Errorf("expected oomkill_detected, state: %v", res.State.Slice())
	}
}

func TestDeployCorrelatedError(t *testing.T) {
	e := NewEngine()
	e.Assert(fact.NewDeployFact(fact.Deploy{Name: "checkout", Namespace: "default", Replicas: 3, Available: 1}))
	e.Assert(fact.NewMetricFact(fact.Metric{Name: ErrorRateMetricName("checkout"), Value: 0.12}))
	res := e.Run()
	if !res.State.Has("suspect_bad_deploy(checkout,default)") {
		t.Errorf("expected suspect_bad_deploy, state: %v", res.State.Slice())
	}
	if !res.State.Has("high_error_rate(checkout)") {
		t.Errorf("expected high_error_rate, state: %v", res.State.Slice())
	}
	if !res.State.Has("deploy_correlated_error(checkout,default)") {
		t.Errorf("expected deploy_correlated_error, state: %v", res.State.Slice())
	}
}

func TestBestIncidentPrioritizesCorrelatedOverBareCrashloop(t *testing.T) {
	e := NewEngine()
	e.Assert(fact.NewPodFact(fact.Pod{Name: "checkout-7f", Namespace: "default", Phase: fact.PhaseRunning, RestartCount: 6}))
	e.Assert(fact.NewDeployFact(fact.Deploy{Name: "checkout-7f", Namespace: "default", Replicas: 3, Available: 1}))
	e.Assert(fact.NewMetricFact(fact.Metric{Name: ErrorRateMetricName("checkout"), Value: 0.10}))
	e.Assert(fact.NewPodFact(fact.Pod{Name: "worker-2", Namespace: "default", Phase: fact.PhaseFailed, RestartCount: 8}))

	res := e.Run()
	if len(res.Candidates) < 2 {
		t.Fatalf("expected at least 2 candidates, got %d", len(res.Candidates))
	}
	if res.Candidates[0].IncidentID != "crashloop:checkout-7f" {
		t.Errorf("expected correlated incident to rank first, got %s", res.Candidates[0].IncidentID)
	}
	if res.Candidates[0].Priority != 1 {
		t.Errorf("expected priority 1 for correlated incident, got %d", res.Candidates[0].Priority)
	}
}

func TestBestIncidentTieBreaksLexicographically(t *testing.T) {
	e := NewEngine()
	e.Assert(fact.NewPodFact(fact.Pod{Name: "zeta", Namespace: "default", Phase: fact.PhaseRunning, RestartCount: 6}))
	e.Assert(fact.NewPodFact(fact.Pod{Name: "alpha", Namespace: "default", Phase: fact.PhaseRunning, RestartCount: 6}))

	res := e.Run()
	if len(res.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(res.Candidates))
	}
	if res.Candidates[0].IncidentID != "crashloop:alpha" {
		t.Errorf("expected crashloop:alpha to sort first, got %s", res.Candidates[0].IncidentID)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	e := NewEngine()
	e.Assert(fact.NewPodFact(fact.Pod{Name: "checkout-7f", Namespace: "default", Phase: fact.PhaseRunning, RestartCount: 6}))

	first := e.Run()
	second := e.Run()
	if !first.State.Equal(second.State) {
		t.Errorf("expected identical state across repeated Run() calls on unchanged input")
	}
}

func TestRetractRemovesDerivation(t *testing.T) {
	e := NewEngine()
	pod := fact.Pod{Name: "checkout-7f", Namespace: "default", Phase: fact.PhaseRunning, RestartCount: 6}
	f := fact.NewPodFact(pod)
	e.Assert(f)
	if !e.Run().State.Has("crashloop_detected(checkout-7f,default)") {
		t.Fatal("expected crashloop_detected before retract")
	}
	e.Retract(f)
	if e.Run().State.Has("crashloop_detected(checkout-7f,default)") {
		t.Errorf("expected crashloop_detected gone after retract")
	}
}
