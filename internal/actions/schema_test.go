package actions

import (
	"testing"

	"github.com/sentineloop/incident-agent/internal/belief"
	"github.com/sentineloop/incident-agent/internal/effect"
)

func TestSchemaCheckPreconditions(t *testing.T) {
	s := Schema{Name: "x", Preconditions: []string{"a", "b"}}
	if s.CheckPreconditions(belief.New("a")) {
		t.Error("expected preconditions to fail with b missing")
	}
	if !s.CheckPreconditions(belief.New("a", "b")) {
		t.Error("expected preconditions to hold with a and b present")
	}
}

func TestSchemaApply(t *testing.T) {
	s := Schema{Name: "x", AddEffects: []string{"c"}, DeleteEffects: []string{"a"}}
	out := s.Apply(belief.New("a", "b"))
	if out.Has("a") {
		t.Error("expected a to be deleted")
	}
	if !out.Has("b") || !out.Has("c") {
		t.Error("expected b retained and c added")
	}
}

func TestSchemaWeightedCost(t *testing.T) {
	observe := Schema{Effect: effect.Observe, BaseCost: 1}
	irreversible := Schema{Effect: effect.Irreversible, BaseCost: 1}
	if observe.WeightedCost() >= irreversible.WeightedCost() {
		t.Errorf("expected Observe cost %v < Irreversible cost %v", observe.WeightedCost(), irreversible.WeightedCost())
	}
}

func TestRegistryDedup(t *testing.T) {
	first := Schema{Name: "dup", BaseCost: 1}
	second := Schema{Name: "dup", BaseCost: 2}
	r := NewRegistry(first, second)
	if len(r) != 1 {
		t.Fatalf("expected 1 entry after dedup, got %d", len(r))
	}
	if r["dup"].BaseCost != 2 {
		t.Errorf("expected last write to win, got base cost %v", r["dup"].BaseCost)
	}
}

func TestDefaultRegistryHasRunbookSteps(t *testing.T) {
	r := DefaultRegistry()
	for _, rb := range SeedRunbooks() {
		for _, step := range rb.Steps {
			if !r.Has(step.Name) {
				t.Errorf("runbook %s step %s missing from default registry", rb.Name, step.Name)
			}
		}
	}
}

func TestCrashloopRunbookReachesGoal(t *testing.T) {
	rb := CrashloopRunbook()
	state := belief.New()
	for _, step := range rb.Steps {
		if !step.CheckPreconditions(state) {
			t.Fatalf("step %s preconditions unmet at state %v", step.Name, state.Slice())
		}
		state = step.Apply(state)
	}
	if !state.Has(rb.Goal) {
		t.Errorf("expected goal %s reached, state: %v", rb.Goal, state.Slice())
	}
	if len(rb.Steps) != 6 {
		t.Errorf("expected 6 steps, got %d", len(rb.Steps))
	}
}

func TestOOMKillRunbookReachesGoal(t *testing.T) {
	rb := OOMKillRunbook()
	state := belief.New()
	for _, step := range rb.Steps {
		if !step.CheckPreconditions(state) {
			t.Fatalf("step %s preconditions unmet at state %v", step.Name, state.Slice())
		}
		state = step.Apply(state)
	}
	if !state.Has(rb.Goal) {
		t.Errorf("expected goal %s reached, state: %v", rb.Goal, state.Slice())
	}
	if len(rb.Steps) != 4 {
		t.Errorf("expected 4 steps, got %d", len(rb.Steps))
	}
}

func TestCatalogExcludesIrreversible(t *testing.T) {
	cat := Catalog(DefaultRegistry())
	for _, td := range cat {
		if td.Effect == effect.Irreversible.String() {
			t.Errorf("catalog should never expose Irreversible action %s", td.Name)
		}
	}
}
