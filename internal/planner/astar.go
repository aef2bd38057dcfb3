// Package planner searches for an ordered sequence of actions that
// carries a BeliefState to a set of goal propositions at minimum
// weighted cost.
package planner

import (
	"container/heap"
	"sort"
	"time"

	"github.com/sentineloop/incident-agent/internal/actions"
	"github.com/sentineloop/incident-agent/internal/bdierr"
	"github.com/sentineloop/incident-agent/internal/belief"
	"github.com/sentineloop/incident-agent/internal/metrics"
)

// Plan is an ordered sequence of ActionSchemas and its total weighted
// cost.
type Plan struct {
	Steps     []actions.Schema
	TotalCost float64
}

// FindPlan runs A* from initial toward goals over registry's actions.
// Successors are sorted by action name so equal-cost plans resolve
// identically across runs; among equal-priority nodes the search
// additionally prefers the lower-severity effect, so an Observe-only
// path is explored before a Mutate one at the same heuristic rank.
// Returns a *bdierr.PlanningFailure if no plan reaches goals.
func FindPlan(incidentID string, initial belief.State, goals []string, registry actions.Registry) (Plan, error) {
	start := time.Now()
	plan, err := findPlan(incidentID, initial, goals, registry)
	metrics.PlanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PlanningFailures.Inc()
	}
	return plan, err
}

func findPlan(incidentID string, initial belief.State, goals []string, registry actions.Registry) (Plan, error) {
	names := sortedNames(registry)

	start := &node{state: initial, gCost: 0}
	open := &nodeHeap{start}
	heap.Init(open)
	best := map[string]float64{initial.Key(): 0}
	closed := map[string]bool{}

	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		key := cur.state.Key()
		if closed[key] {
			continue
		}
		if belief.MissingGoals(cur.state, goals) == 0 {
			return Plan{Steps: cur.path, TotalCost: cur.gCost}, nil
		}
		closed[key] = true

		for _, name := range names {
			schema := registry[name]
			if !schema.CheckPreconditions(cur.state) {
				continue
			}
			successor := schema.Apply(cur.state)
			successorKey := successor.Key()
			if closed[successorKey] {
				continue
			}
			gCost := cur.gCost + schema.WeightedCost()
			if prev, ok := best[successorKey]; ok && gCost >= prev {
				continue
			}
			best[successorKey] = gCost
			path := make([]actions.Schema, len(cur.path)+1)
			copy(path, cur.path)
			path[len(cur.path)] = schema
			heap.Push(open, &node{
				state:      successor,
				gCost:      gCost,
				path:       path,
				heuristic:  belief.MissingGoals(successor, goals),
				lastEffect: schema.Effect,
				lastName:   schema.Name,
			})
		}
	}

	return Plan{}, &bdierr.PlanningFailure{IncidentID: incidentID, Goal: goals}
}

// ValidateSequence checks a fixed, externally proposed action sequence
// against initial, applying each step's preconditions/effects in order.
// It returns a *bdierr.PlanningFailure the moment a step's preconditions
// are unmet, or if goals are not all satisfied once the sequence is
// exhausted.
func ValidateSequence(incidentID string, initial belief.State, goals []string, names []string, registry actions.Registry) (Plan, error) {
	state := initial
	steps := make([]actions.Schema, 0, len(names))
	var cost float64
	for _, name := range names {
		schema, ok := registry[name]
		if !ok {
			return Plan{}, &bdierr.PlanningFailure{IncidentID: incidentID, Goal: goals}
		}
		if !schema.CheckPreconditions(state) {
			return Plan{}, &bdierr.PlanningFailure{IncidentID: incidentID, Goal: goals}
		}
		state = schema.Apply(state)
		cost += schema.WeightedCost()
		steps = append(steps, schema)
	}
	if belief.MissingGoals(state, goals) != 0 {
		return Plan{}, &bdierr.PlanningFailure{IncidentID: incidentID, Goal: goals}
	}
	return Plan{Steps: steps, TotalCost: cost}, nil
}

func sortedNames(registry actions.Registry) []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
