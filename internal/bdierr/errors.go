// Package bdierr defines the typed error taxonomy of the incident agent:
// validation, tool, planning, execution, compensation, LLM and fatal
// failures. Every type supports errors.As; all but ValidationError and
// PlanningFailure also wrap an underlying cause reachable via Unwrap.
package bdierr

import "fmt"

// ValidationError reports a malformed fact or webhook payload. Rejected
// at the boundary with a 400 response; no event is logged for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// TransientToolError reports a network or provider API hiccup invoking a
// tool. Its retry policy is determined by the step's Effect.
type TransientToolError struct {
	Action string
	Err    error
}

func (e *TransientToolError) Error() string {
	return fmt.Sprintf("transient error invoking %s: %v", e.Action, e.Err)
}

func (e *TransientToolError) Unwrap() error { return e.Err }

// PlanningFailure reports that no plan reaches the goal from the current
// BeliefState.
type PlanningFailure struct {
	IncidentID string
	Goal       []string
}

func (e *PlanningFailure) Error() string {
	return fmt.Sprintf("incident %s: no plan reaches goal %v", e.IncidentID, e.Goal)
}

// ExecutionFailure reports a step that failed. The executor invokes a
// failed Pure or Observe step once more before reporting it; Mutate and
// Irreversible steps are reported after their first failure.
type ExecutionFailure struct {
	IncidentID string
	StepIndex  int
	Action     string
	Err        error
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("incident %s: step %d (%s) failed: %v", e.IncidentID, e.StepIndex, e.Action, e.Err)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }

// CompensationFailure reports a compensation that itself failed. It is
// logged and surfaced but never blocks the remaining compensation stack.
type CompensationFailure struct {
	IncidentID string
	Action     string
	Err        error
}

func (e *CompensationFailure) Error() string {
	return fmt.Sprintf("incident %s: compensation for %s failed: %v", e.IncidentID, e.Action, e.Err)
}

func (e *CompensationFailure) Unwrap() error { return e.Err }

// LLMFailure reports a network error or malformed JSON from an LLM agent.
// The uncertain path aborts for the current fact; this alone never
// triggers escalation.
type LLMFailure struct {
	Agent string
	Err   error
}

func (e *LLMFailure) Error() string {
	return fmt.Sprintf("llm agent %s failed: %v", e.Agent, e.Err)
}

func (e *LLMFailure) Unwrap() error { return e.Err }

// FatalError reports an unrecoverable process-level failure (DB
// corruption, unbindable port). The process exits non-zero.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
