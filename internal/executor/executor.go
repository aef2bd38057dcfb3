// Package executor runs a planner.Plan step by step against a
// ToolExecutor, write-ahead-logging each step to the event log and
// maintaining a compensation stack for backtracking on failure.
package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sentineloop/incident-agent/internal/actions"
	"github.com/sentineloop/incident-agent/internal/audit"
	"github.com/sentineloop/incident-agent/internal/bdierr"
	"github.com/sentineloop/incident-agent/internal/effect"
	"github.com/sentineloop/incident-agent/internal/eventlog"
	"github.com/sentineloop/incident-agent/internal/metrics"
	"github.com/sentineloop/incident-agent/internal/planner"
)

// ApprovalChecker reports whether a human has approved a specific
// Irreversible action for a specific incident. The executor consults
// it before ever invoking one.
type ApprovalChecker interface {
	Approved(incidentID, action string) bool
}

// Outcome is what Execute returns: either the plan resolved cleanly or
// it failed at a specific step.
type Outcome struct {
	Resolved  bool
	StepIndex int
	Err       error
}

// CompensationEntry is one undo-able step recorded on the compensation
// stack.
type CompensationEntry struct {
	StepIndex  int
	ActionName string
	Snapshot   any
}

// Executor runs plans against a concrete ToolExecutor, logging every
// step to an event log.
type Executor struct {
	Tools     actions.ToolExecutor
	Events    *eventlog.Store
	Approvals ApprovalChecker
	Audit     audit.Logger
}

// New returns an Executor wired to tools, an event log, and an
// approval checker. audit may be nil, in which case irreversible-action
// blocks are only written to the event log.
func New(tools actions.ToolExecutor, events *eventlog.Store, approvals ApprovalChecker, auditLog audit.Logger) *Executor {
	return &Executor{Tools: tools, Events: events, Approvals: approvals, Audit: auditLog}
}

// Execute runs plan's steps in order against incidentID. It logs
// ActionIntent before every invocation (the write-ahead barrier),
// SnapshotCaptured before every Mutate invocation, and ActionResult
// after every invocation. A failed Pure or Observe step is invoked once
// more; a failed Mutate step is not retried. On the first failure that
// remains it returns immediately without running further steps; the
// caller is responsible for
// invoking Compensate with the returned stack.
func (e *Executor) Execute(ctx context.Context, incidentID string, plan planner.Plan) (Outcome, []CompensationEntry) {
	var stack []CompensationEntry

	for i, step := range plan.Steps {
		e.logEvent(ctx, incidentID, eventlog.KindActionIntent, step.Name, map[string]any{
			"action": step.Name,
			"effect": step.Effect.String(),
		})

		if step.Effect == effect.Irreversible && !e.Approvals.Approved(incidentID, step.Name) {
			err := fmt.Errorf("irreversible action %s requires approval", step.Name)
			e.logEvent(ctx, incidentID, eventlog.KindActionResult, step.Name, map[string]any{
				"action":  step.Name,
				"success": false,
				"error":   err.Error(),
			})
			if e.Audit != nil {
				_ = e.Audit.LogIrreversibleBlocked(ctx, incidentID, step.Name)
			}
			recordOutcome(step.Name, false)
			return Outcome{StepIndex: i, Err: &bdierr.ExecutionFailure{IncidentID: incidentID, StepIndex: i, Action: step.Name, Err: err}}, stack
		}

		if step.Effect == effect.Mutate {
			snapshot, err := e.Tools.Snapshot(ctx, step.Name)
			if err != nil {
				e.logEvent(ctx, incidentID, eventlog.KindActionResult, step.Name, map[string]any{
					"action": step.Name, "success": false, "error": err.Error(),
				})
				recordOutcome(step.Name, false)
				return Outcome{StepIndex: i, Err: &bdierr.ExecutionFailure{IncidentID: incidentID, StepIndex: i, Action: step.Name, Err: err}}, stack
			}
			e.logEvent(ctx, incidentID, eventlog.KindSnapshotCaptured, step.Name, map[string]any{"action": step.Name})

			_, err = e.Tools.Invoke(ctx, step.Name, nil)
			if err != nil {
				e.logEvent(ctx, incidentID, eventlog.KindActionResult, step.Name, map[string]any{
					"action": step.Name, "success": false, "error": err.Error(),
				})
				recordOutcome(step.Name, false)
				return Outcome{StepIndex: i, Err: &bdierr.ExecutionFailure{IncidentID: incidentID, StepIndex: i, Action: step.Name, Err: err}}, stack
			}
			e.logEvent(ctx, incidentID, eventlog.KindActionResult, step.Name, map[string]any{"action": step.Name, "success": true})
			recordOutcome(step.Name, true)
			stack = append(stack, CompensationEntry{StepIndex: i, ActionName: step.Name, Snapshot: snapshot})
			continue
		}

		_, err := e.Tools.Invoke(ctx, step.Name, nil)
		if err != nil && step.Effect.Recovery() == effect.Retry {
			_, err = e.Tools.Invoke(ctx, step.Name, nil)
		}
		if err != nil {
			e.logEvent(ctx, incidentID, eventlog.KindActionResult, step.Name, map[string]any{
				"action": step.Name, "success": false, "error": err.Error(),
			})
			recordOutcome(step.Name, false)
			return Outcome{StepIndex: i, Err: &bdierr.ExecutionFailure{IncidentID: incidentID, StepIndex: i, Action: step.Name, Err: err}}, stack
		}
		e.logEvent(ctx, incidentID, eventlog.KindActionResult, step.Name, map[string]any{"action": step.Name, "success": true})
		recordOutcome(step.Name, true)
	}

	e.logEvent(ctx, incidentID, eventlog.KindResolved, "plan completed", nil)
	return Outcome{Resolved: true}, stack
}

// Compensate undoes stack in reverse insertion order, per invariant 2
// (CompensationExecuted entries appear in reverse order of their
// originating ActionResults). A compensation that fails is logged as a
// *bdierr.CompensationFailure and does not block the remaining stack.
func (e *Executor) Compensate(ctx context.Context, incidentID string, reason string, stack []CompensationEntry) []error {
	var failures []error
	for i := len(stack) - 1; i >= 0; i-- {
		entry := stack[i]
		e.logEvent(ctx, incidentID, eventlog.KindBacktrackInitiated, entry.ActionName, map[string]any{
			"from_step": entry.StepIndex,
			"reason":    reason,
		})
		if err := e.Tools.Compensate(ctx, entry.ActionName, entry.Snapshot); err != nil {
			failure := &bdierr.CompensationFailure{IncidentID: incidentID, Action: entry.ActionName, Err: err}
			failures = append(failures, failure)
			e.logEvent(ctx, incidentID, eventlog.KindActionResult, entry.ActionName, map[string]any{
				"action": entry.ActionName, "success": false, "error": failure.Error(),
			})
			continue
		}
		e.logEvent(ctx, incidentID, eventlog.KindCompensationExecuted, entry.ActionName, map[string]any{"action": entry.ActionName})
		metrics.CompensationsExecuted.WithLabelValues(entry.ActionName).Inc()
	}
	return failures
}

func (e *Executor) logEvent(ctx context.Context, incidentID string, kind eventlog.Kind, description string, details map[string]any) {
	evt := eventlog.New(incidentID, kind, description)
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			evt = evt.WithDetails(string(b))
		}
	}
	_, _ = e.Events.Append(ctx, evt)
}

func recordOutcome(action string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	metrics.ExecutorOutcomes.WithLabelValues(action, result).Inc()
}
