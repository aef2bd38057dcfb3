// Package effect defines the Effect classification shared by every
// ActionSchema: Pure < Observe < Mutate < Irreversible, along with each
// effect's recovery policy, backtrackability and planner cost weight.
package effect

// Effect classifies the side-effect severity of an action.
type Effect int

const (
	Pure Effect = iota
	Observe
	Mutate
	Irreversible
)

func (e Effect) String() string {
	switch e {
	case Pure:
		return "pure"
	case Observe:
		return "observe"
	case Mutate:
		return "mutate"
	case Irreversible:
		return "irreversible"
	default:
		return "unknown"
	}
}

// Recovery is the retry policy associated with an Effect.
type Recovery int

const (
	Retry Recovery = iota
	CheckAndRetry
	ManualReview
)

func (r Recovery) String() string {
	switch r {
	case Retry:
		return "retry"
	case CheckAndRetry:
		return "check_and_retry"
	case ManualReview:
		return "manual_review"
	default:
		return "unknown"
	}
}

// Recovery returns the retry policy for e.
func (e Effect) Recovery() Recovery {
	switch e {
	case Pure, Observe:
		return Retry
	case Mutate:
		return CheckAndRetry
	default:
		return ManualReview
	}
}

// Backtrackable reports whether a successfully executed step of this
// effect can be undone by a compensation.
func (e Effect) Backtrackable() bool {
	return e != Irreversible
}

// CostWeight is the planner's transition-cost multiplier for e.
func (e Effect) CostWeight() int {
	switch e {
	case Pure:
		return 1
	case Observe:
		return 2
	case Mutate:
		return 10
	default:
		return 100
	}
}
