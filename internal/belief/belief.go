// Package belief defines BeliefState, the set of ground propositions
// derived by the rule engine and consumed by the planner and executor.
package belief

import (
	"sort"
	"strings"
)

// State is a set of ground propositions. Comparable by Equal, small
// (tens of propositions), and cheaply hashable via Key.
type State map[string]struct{}

// New builds a State from the given propositions.
func New(props ...string) State {
	s := make(State, len(props))
	for _, p := range props {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether prop is present in s.
func (s State) Has(prop string) bool {
	_, ok := s[prop]
	return ok
}

// HasAll reports whether every proposition in props is present in s.
func (s State) HasAll(props []string) bool {
	for _, p := range props {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// With returns a new State with add applied and del removed; s is
// unmodified.
func (s State) With(add, del []string) State {
	out := make(State, len(s)+len(add))
	for p := range s {
		out[p] = struct{}{}
	}
	for _, p := range del {
		delete(out, p)
	}
	for _, p := range add {
		out[p] = struct{}{}
	}
	return out
}

// Equal reports whether s and other contain exactly the same
// propositions.
func (s State) Equal(other State) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Key returns a stable string encoding of s suitable for use as a map
// key (e.g. the A* closed set).
func (s State) Key() string {
	props := make([]string, 0, len(s))
	for p := range s {
		props = append(props, p)
	}
	sort.Strings(props)
	return strings.Join(props, "\x1f")
}

// Slice returns the propositions of s in sorted order.
func (s State) Slice() []string {
	props := make([]string, 0, len(s))
	for p := range s {
		props = append(props, p)
	}
	sort.Strings(props)
	return props
}

// MissingGoals returns how many of goals are absent from s — the A*
// heuristic (admissible: each ActionSchema adds at most one goal
// proposition).
func MissingGoals(s State, goals []string) int {
	missing := 0
	for _, g := range goals {
		if !s.Has(g) {
			missing++
		}
	}
	return missing
}
