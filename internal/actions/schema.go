// Package actions holds the ActionSchema registry, concrete runbooks,
// and the tool-executor interface the planner and executor operate
// against.
package actions

import (
	"github.com/sentineloop/incident-agent/internal/belief"
	"github.com/sentineloop/incident-agent/internal/effect"
)

// Schema is a STRIPS-style action record.
type Schema struct {
	Name           string
	Effect         effect.Effect
	Preconditions  []string
	AddEffects     []string
	DeleteEffects  []string
	BaseCost       float64
	// Description is surfaced to the LLM Proposer/Analyzer for tool
	// discovery; purely informational to the planner.
	Description string
}

// CheckPreconditions reports whether every precondition of a is present
// in state.
func (a Schema) CheckPreconditions(state belief.State) bool {
	return state.HasAll(a.Preconditions)
}

// Apply returns the successor state reached by executing a against
// state, assuming its preconditions hold.
func (a Schema) Apply(state belief.State) belief.State {
	return state.With(a.AddEffects, a.DeleteEffects)
}

// WeightedCost is the planner's transition cost for a.
func (a Schema) WeightedCost() float64 {
	return a.BaseCost * float64(a.Effect.CostWeight())
}

// Runbook is a named ordered sequence of ActionSchemas targeting a goal
// proposition.
type Runbook struct {
	Name  string
	Goal  string
	Steps []Schema
}

// Registry is the full set of ActionSchemas known to the planner and
// the LLM safety gate. Keys are schema names.
type Registry map[string]Schema

// NewRegistry builds a Registry from a list of schemas, deduplicating by
// name (last write wins).
func NewRegistry(schemas ...Schema) Registry {
	r := make(Registry, len(schemas))
	for _, s := range schemas {
		r[s.Name] = s
	}
	return r
}

// Has reports whether name is a registered action.
func (r Registry) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// All returns every schema in the registry.
func (r Registry) All() []Schema {
	out := make([]Schema, 0, len(r))
	for _, s := range r {
		out = append(out, s)
	}
	return out
}
