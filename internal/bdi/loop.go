// Package bdi is the agent's control loop: for every fact pulled off
// the stream multiplexer it asserts into the rule engine, reacts to
// whichever incident the engine ranks highest, falls back to the LLM
// agents when no pattern matches, and escalates to a human once replan
// attempts are exhausted.
package bdi

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sentineloop/incident-agent/internal/actions"
	"github.com/sentineloop/incident-agent/internal/audit"
	"github.com/sentineloop/incident-agent/internal/belief"
	"github.com/sentineloop/incident-agent/internal/escalation"
	"github.com/sentineloop/incident-agent/internal/eventlog"
	"github.com/sentineloop/incident-agent/internal/executor"
	"github.com/sentineloop/incident-agent/internal/fact"
	"github.com/sentineloop/incident-agent/internal/llm"
	"github.com/sentineloop/incident-agent/internal/metrics"
	"github.com/sentineloop/incident-agent/internal/planner"
	"github.com/sentineloop/incident-agent/internal/rules"
)

// LLMAgents bundles the optional uncertain path. A nil *LLMAgents
// disables it: when no pattern matches, Step takes no further action
// for that fact and nothing is escalated.
type LLMAgents struct {
	Interpreter *llm.Interpreter
	Analyzer    *llm.Analyzer
	Proposer    *llm.Proposer
}

// Config carries the handful of tunables the loop needs from the
// agent's configuration file.
type Config struct {
	MaxReplanAttempts int
	RecentFactWindow  int
}

// approvals is the executor.ApprovalChecker the loop owns: a human's
// Approve decision authorizes exactly one Irreversible action for one
// incident, consumed the first time the executor asks about it.
type approvals struct {
	mu      sync.Mutex
	granted map[string]string // incidentID -> approved action name
}

func newApprovals() *approvals {
	return &approvals{granted: make(map[string]string)}
}

func (a *approvals) Grant(incidentID, action string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.granted[incidentID] = action
}

func (a *approvals) Approved(incidentID, action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.granted[incidentID] != action {
		return false
	}
	delete(a.granted, incidentID)
	return true
}

// Loop is the agent's per-fact reasoning cycle.
type Loop struct {
	Engine     *rules.Engine
	Registry   actions.Registry
	Runbooks   map[string]actions.Runbook
	Events     *eventlog.Store
	Executor   *executor.Executor
	Escalation *escalation.Channel
	LLM        *LLMAgents
	Config     Config
	Audit      audit.Logger

	approvals   *approvals
	recentFacts []string
}

// New wires a Loop. tools is handed to a freshly constructed executor
// alongside events, the loop's own ApprovalChecker, and auditLog.
// runbooks is re-keyed by each Runbook's own Name, matching the names
// the rule engine's best_incident candidates carry in their Runbook
// field. auditLog may be nil, in which case escalation and
// irreversible-action events are only written to the event log.
func New(engine *rules.Engine, registry actions.Registry, runbooks map[string]actions.Runbook, events *eventlog.Store, tools actions.ToolExecutor, esc *escalation.Channel, agents *LLMAgents, cfg Config, auditLog audit.Logger) *Loop {
	appr := newApprovals()
	byName := make(map[string]actions.Runbook, len(runbooks))
	for _, rb := range runbooks {
		byName[rb.Name] = rb
	}
	return &Loop{
		Engine:     engine,
		Registry:   registry,
		Runbooks:   byName,
		Events:     events,
		Executor:   executor.New(tools, events, appr, auditLog),
		Escalation: esc,
		LLM:        agents,
		Config:     cfg,
		Audit:      auditLog,
		approvals:  appr,
	}
}

// CommandKind tags which operation a Command carries.
type CommandKind int

const (
	// CommandRetractFact withdraws an alert fact by id.
	CommandRetractFact CommandKind = iota
	// CommandReprocessIncident re-evaluates the rule engine without a
	// new observation.
	CommandReprocessIncident
)

// Command is a query-surface request routed through the same bounded
// queue the stream multiplexer feeds, so it is serialized against fact
// processing rather than racing the BDI task's single writer.
type Command struct {
	Kind       CommandKind
	IncidentID string
	FactID     string // alert id, for CommandRetractFact
}

// HandleCommand dispatches cmd to the matching Loop method. Callers
// (internal/httpapi) enqueue Commands rather than calling Retract or
// Reprocess directly, so every rule-engine mutation is sequenced by
// the one goroutine that owns the BDI task.
func (l *Loop) HandleCommand(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CommandRetractFact:
		l.Retract(ctx, cmd.IncidentID, cmd.FactID)
	case CommandReprocessIncident:
		l.Reprocess(ctx, cmd.IncidentID)
	}
}

// GrantApproval records that a human has approved exactly one
// Irreversible action for incidentID, in response to an escalation's
// Approve decision.
func (l *Loop) GrantApproval(incidentID, action string) {
	l.approvals.Grant(incidentID, action)
}

// Step runs one full cycle of the loop for a single observed fact.
func (l *Loop) Step(ctx context.Context, f fact.Fact) {
	l.Engine.Assert(f)
	metrics.FactsAsserted.WithLabelValues(string(f.Kind)).Inc()
	l.logEvent(ctx, f.IncidentID(), eventlog.KindFactAsserted, f.Summary(), nil)
	l.rememberFact(f)
	l.react(ctx, f.IncidentID(), l.Engine.Run())
}

// Retract removes an alert fact identified by id from the rule
// engine's input relations and reacts to whatever the withdrawal
// changed (a retracted alert can clear deploy_correlated_error and
// let a cheaper crashloop-only remediation take over).
func (l *Loop) Retract(ctx context.Context, incidentID, id string) {
	l.Engine.Retract(fact.NewAlertFact(fact.Alert{ID: id}))
	l.logEvent(ctx, incidentID, eventlog.KindFactRetracted, id, nil)
	l.react(ctx, incidentID, l.Engine.Run())
}

// Reprocess re-evaluates the rule engine against its current inputs
// and reacts again, without asserting or retracting anything — useful
// after an operator has made an out-of-band change and wants the
// agent to notice without waiting for the next poll tick.
func (l *Loop) Reprocess(ctx context.Context, incidentID string) {
	l.react(ctx, incidentID, l.Engine.Run())
}

// react is the shared continuation of Step/Retract/Reprocess: act on
// whichever incident the engine now ranks highest, or fall back to the
// LLM path if nothing matched but beliefs are non-empty.
func (l *Loop) react(ctx context.Context, incidentID string, result rules.Result) {
	if len(result.Candidates) > 0 {
		top := result.Candidates[0]
		l.handlePatternMatch(ctx, top, result.State)
		return
	}

	if l.LLM != nil && len(result.State) > 0 {
		l.handleLLMFallback(ctx, incidentID, result.State)
	}
}

func (l *Loop) handlePatternMatch(ctx context.Context, candidate rules.Candidate, state belief.State) {
	l.Engine.MarkHandling(candidate.IncidentID)
	metrics.PatternMatches.WithLabelValues(candidate.Runbook).Inc()
	l.logEvent(ctx, candidate.IncidentID, eventlog.KindPatternMatched, candidate.Runbook, map[string]any{
		"runbook":  candidate.Runbook,
		"priority": candidate.Priority,
	})

	runbook, ok := l.Runbooks[candidate.Runbook]
	if !ok {
		return
	}
	l.planAndRun(ctx, candidate.IncidentID, state, []string{runbook.Goal})
}

func (l *Loop) handleLLMFallback(ctx context.Context, incidentID string, state belief.State) {
	metrics.LLMFallbacks.Inc()
	interpretation, err := l.LLM.Interpreter.Interpret(ctx, state, l.recentFacts)
	if err != nil {
		l.logEvent(ctx, incidentID, eventlog.KindFactAsserted, "llm interpretation failed", map[string]any{"error": err.Error()})
		return
	}
	if len(interpretation.Goal) == 0 {
		return
	}

	l.Engine.MarkHandling(incidentID)
	proposal, dropped, _ := l.LLM.Proposer.Propose(ctx, l.Registry, interpretation.Hypothesis, interpretation.Goal[0])
	if len(dropped) > 0 {
		l.logEvent(ctx, incidentID, eventlog.KindPatternMatched, "llm proposal safety gate dropped actions", map[string]any{"dropped": dropped})
	}

	plan, err := planner.ValidateSequence(incidentID, state, interpretation.Goal, proposal.Actions, l.Registry)
	if err != nil {
		plan, err = planner.FindPlan(incidentID, state, interpretation.Goal, l.Registry)
		if err != nil {
			l.Engine.ClearHandling(incidentID)
			return
		}
	}
	l.runPlan(ctx, incidentID, plan)
}

func (l *Loop) planAndRun(ctx context.Context, incidentID string, state belief.State, goals []string) {
	plan, err := planner.FindPlan(incidentID, state, goals, l.Registry)
	if err != nil {
		l.Engine.ClearHandling(incidentID)
		return
	}
	l.runPlan(ctx, incidentID, plan)
}

func (l *Loop) runPlan(ctx context.Context, incidentID string, plan planner.Plan) {
	l.logEvent(ctx, incidentID, eventlog.KindPlanSelected, "plan selected", map[string]any{"steps": stepNames(plan)})

	attempts := l.Config.MaxReplanAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastOutcome executor.Outcome
	for attempt := 0; attempt < attempts; attempt++ {
		var stack []executor.CompensationEntry
		lastOutcome, stack = l.Executor.Execute(ctx, incidentID, plan)
		if lastOutcome.Resolved {
			l.Engine.ClearHandling(incidentID)
			metrics.IncidentsResolved.Inc()
			return
		}

		l.Executor.Compensate(ctx, incidentID, "replan after execution failure", stack)

		var err error
		plan, err = planner.FindPlan(incidentID, currentState(l.Engine), []string{goalOf(plan)}, l.Registry)
		if err != nil {
			break
		}
	}

	l.escalate(ctx, incidentID, "replan attempts exhausted", plan, lastOutcome)
}

// escalate hands incidentID to a human and, if approved, authorizes the
// one Irreversible step the blocked plan was waiting on and retries
// execution exactly once.
func (l *Loop) escalate(ctx context.Context, incidentID, reason string, plan planner.Plan, blocked executor.Outcome) {
	l.Engine.ClearHandling(incidentID)
	l.logEvent(ctx, incidentID, eventlog.KindEscalated, reason, nil)
	if l.Audit != nil {
		_ = l.Audit.LogEscalationRaised(ctx, incidentID, reason)
	}

	if l.Escalation == nil {
		metrics.Escalations.WithLabelValues("unconfigured").Inc()
		return
	}
	if err := l.Escalation.Raise(ctx, escalation.Request{IncidentID: incidentID, Reason: reason}); err != nil {
		return
	}

	resp, err := l.Escalation.Await(ctx, incidentID)
	if err != nil {
		return
	}
	metrics.Escalations.WithLabelValues(resp.Decision.String()).Inc()
	if l.Audit != nil {
		_ = l.Audit.LogEscalationResponded(ctx, incidentID, resp.Decision.String(), "operator")
	}
	switch resp.Decision {
	case escalation.TakeOver:
		l.logEvent(ctx, incidentID, eventlog.KindEscalated, "human took over", nil)
	case escalation.Reject:
		l.logEvent(ctx, incidentID, eventlog.KindEscalated, "human rejected: "+resp.Reason, nil)
	case escalation.Approve:
		action := blockedIrreversibleAction(plan, blocked)
		if action == "" {
			return
		}
		l.GrantApproval(incidentID, action)
		l.logEvent(ctx, incidentID, eventlog.KindEscalated, "human approved "+action, nil)
		outcome, stack := l.Executor.Execute(ctx, incidentID, plan)
		if outcome.Resolved {
			metrics.IncidentsResolved.Inc()
			return
		}
		l.Executor.Compensate(ctx, incidentID, "irreversible step failed after approval", stack)
	}
}

// blockedIrreversibleAction reports plan's Irreversible step name if
// blocked.StepIndex points at one; empty otherwise.
func blockedIrreversibleAction(plan planner.Plan, blocked executor.Outcome) string {
	if blocked.StepIndex < 0 || blocked.StepIndex >= len(plan.Steps) {
		return ""
	}
	step := plan.Steps[blocked.StepIndex]
	if step.Effect.String() != "irreversible" {
		return ""
	}
	return step.Name
}

func (l *Loop) rememberFact(f fact.Fact) {
	window := l.Config.RecentFactWindow
	if window <= 0 || window > 50 {
		window = 16
	}
	l.recentFacts = append(l.recentFacts, f.Summary())
	if len(l.recentFacts) > window {
		l.recentFacts = l.recentFacts[len(l.recentFacts)-window:]
	}
}

func (l *Loop) logEvent(ctx context.Context, incidentID string, kind eventlog.Kind, description string, details map[string]any) {
	evt := eventlog.New(incidentID, kind, description)
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			evt = evt.WithDetails(string(b))
		}
	}
	_, _ = l.Events.Append(ctx, evt)
}

func currentState(engine *rules.Engine) belief.State {
	return engine.Run().State
}

func goalOf(plan planner.Plan) string {
	if len(plan.Steps) == 0 {
		return "recovery_verified"
	}
	last := plan.Steps[len(plan.Steps)-1]
	if len(last.AddEffects) > 0 {
		return last.AddEffects[len(last.AddEffects)-1]
	}
	return "recovery_verified"
}

func stepNames(plan planner.Plan) []string {
	names := make([]string, len(plan.Steps))
	for i, s := range plan.Steps {
		names[i] = s.Name
	}
	return names
}
