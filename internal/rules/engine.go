// Package rules implements the deterministic pattern matcher: a small
// Datalog-style evaluator that derives incident-relevant propositions
// from the latest observed facts, plus the priority lattice that picks
// which incident the agent acts on next.
package rules

import (
	"sort"
	"strings"
	"sync"

	"github.com/sentineloop/incident-agent/internal/belief"
	"github.com/sentineloop/incident-agent/internal/fact"
)

// Candidate is one row of the best_incident relation: an incident ready
// to act on, the runbook it maps to, and its priority (lower wins).
type Candidate struct {
	IncidentID string
	Runbook    string
	Priority   int
}

// Result is one evaluation pass: the full set of derived propositions
// plus the ranked incident candidates extracted from them.
type Result struct {
	State      belief.State
	Candidates []Candidate
}

// Engine holds the current input relations (the latest fact per
// identity) and the already_handling guard relation. Run recomputes
// every derived relation from the current inputs; because the input
// relations are small (tens of rows) a full recompute on every tick is
// as cheap as a true delta-based evaluation and stays trivially
// idempotent and deterministic.
// Engine is safe for concurrent use: the query surface reads it
// (get_beliefs) from the HTTP task while the BDI task asserts and
// retracts, the one exception the concurrency model carves out of its
// single-writer rule.
type Engine struct {
	mu sync.RWMutex

	pods    map[string]fact.Pod
	deploys map[string]fact.Deploy
	alerts  map[string]fact.Alert
	metrics map[string]fact.Metric
	handled map[string]struct{}
}

// NewEngine returns an Engine with empty input relations.
func NewEngine() *Engine {
	return &Engine{
		pods:    make(map[string]fact.Pod),
		deploys: make(map[string]fact.Deploy),
		alerts:  make(map[string]fact.Alert),
		metrics: make(map[string]fact.Metric),
		handled: make(map[string]struct{}),
	}
}

// Assert upserts f into its input relation, keyed by identity so a
// later observation of the same pod/deploy/alert/metric replaces the
// earlier one rather than accumulating duplicates.
func (e *Engine) Assert(f fact.Fact) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch f.Kind {
	case fact.KindPod:
		e.pods[podKey(f.Pod.Namespace, f.Pod.Name)] = *f.Pod
	case fact.KindDeploy:
		e.deploys[deployKey(f.Deploy.Namespace, f.Deploy.Name)] = *f.Deploy
	case fact.KindAlert:
		e.alerts[f.Alert.ID] = *f.Alert
	case fact.KindMetric:
		e.metrics[f.Metric.Name] = *f.Metric
	}
}

// Retract removes f's identity from its input relation.
func (e *Engine) Retract(f fact.Fact) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch f.Kind {
	case fact.KindPod:
		delete(e.pods, podKey(f.Pod.Namespace, f.Pod.Name))
	case fact.KindDeploy:
		delete(e.deploys, deployKey(f.Deploy.Namespace, f.Deploy.Name))
	case fact.KindAlert:
		delete(e.alerts, f.Alert.ID)
	case fact.KindMetric:
		delete(e.metrics, f.Metric.Name)
	}
}

// MarkHandling adds incidentID to the already_handling guard relation.
// Invariant: callers add on PlanSelected and remove on Resolved or
// Escalated.
func (e *Engine) MarkHandling(incidentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handled[incidentID] = struct{}{}
}

// ClearHandling removes incidentID from the already_handling guard
// relation.
func (e *Engine) ClearHandling(incidentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handled, incidentID)
}

// Handling reports whether incidentID is currently in the
// already_handling guard relation.
func (e *Engine) Handling(incidentID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.handled[incidentID]
	return ok
}

func podKey(ns, name string) string    { return ns + "/" + name }
func deployKey(ns, name string) string { return ns + "/" + name }

func prop(pred string, args ...string) string {
	return pred + "(" + strings.Join(args, ",") + ")"
}

// Run recomputes every derived relation from the current input
// relations and returns the resulting BeliefState alongside the ranked
// best_incident candidates. Run is a pure function of the engine's
// current inputs: identical inputs always yield identical output.
func (e *Engine) Run() Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state := belief.New()

	crashlooping := e.crashloopDetected()
	for _, c := range crashlooping {
		state[prop("crashloop_detected", c.name, c.ns)] = struct{}{}
	}

	badDeploys := e.suspectBadDeploy()
	for _, d := range badDeploys {
		state[prop("suspect_bad_deploy", d.name, d.ns)] = struct{}{}
	}

	highErrorServices := e.highErrorRate()
	for _, svc := range highErrorServices {
		state[prop("high_error_rate", svc)] = struct{}{}
	}

	correlated := e.deployCorrelatedError(badDeploys, len(highErrorServices) > 0)
	for _, d := range correlated {
		state[prop("deploy_correlated_error", d.name, d.ns)] = struct{}{}
	}

	oomkilled := e.oomkillDetected()
	for _, c := range oomkilled {
		state[prop("oomkill_detected", c.name, c.ns)] = struct{}{}
	}

	for id := range e.handled {
		state[prop("already_handling", id)] = struct{}{}
	}

	candidates := e.bestIncidents(crashlooping, correlated, oomkilled)
	return Result{State: state, Candidates: candidates}
}

type namedPair struct{ name, ns string }

// crashloopDetected: pod with restart_count > 5 and phase in
// {Running, Failed}, guarded by already_handling("crashloop:"+name).
func (e *Engine) crashloopDetected() []namedPair {
	var out []namedPair
	for _, p := range e.pods {
		if p.RestartCount <= 5 {
			continue
		}
		if p.Phase != fact.PhaseRunning && p.Phase != fact.PhaseFailed {
			continue
		}
		if _, handling := e.handled["crashloop:"+p.Name]; handling {
			continue
		}
		out = append(out, namedPair{p.Name, p.Namespace})
	}
	sortPairs(out)
	return out
}

// suspectBadDeploy: deploy with available < replicas.
func (e *Engine) suspectBadDeploy() []namedPair {
	var out []namedPair
	for _, d := range e.deploys {
		if d.Available < d.Replicas {
			out = append(out, namedPair{d.Name, d.Namespace})
		}
	}
	sortPairs(out)
	return out
}

// highErrorRate: metric with name prefix "error_rate:" and value > 0.05,
// projected to the service name suffix rather than inserting the raw
// float into the BeliefState.
func (e *Engine) highErrorRate() []string {
	const prefix = "error_rate:"
	var out []string
	for _, m := range e.metrics {
		if !strings.HasPrefix(m.Name, prefix) {
			continue
		}
		if m.Value > 0.05 {
			out = append(out, strings.TrimPrefix(m.Name, prefix))
		}
	}
	sort.Strings(out)
	return out
}

// deployCorrelatedError: high_error_rate(_) AND suspect_bad_deploy(d,ns).
func (e *Engine) deployCorrelatedError(badDeploys []namedPair, anyHighErrorRate bool) []namedPair {
	if !anyHighErrorRate {
		return nil
	}
	out := make([]namedPair, len(badDeploys))
	copy(out, badDeploys)
	return out
}

// oomkillDetected: pod with termination_reason == "OOMKilled".
func (e *Engine) oomkillDetected() []namedPair {
	var out []namedPair
	for _, p := range e.pods {
		if p.TerminationReason == "OOMKilled" {
			out = append(out, namedPair{p.Name, p.Namespace})
		}
	}
	sortPairs(out)
	return out
}

// bestIncidents builds the best_incident priority lattice. Lower
// priority wins; deploy_correlated_error and oomkill_detected are
// equally high-confidence (priority 1), a bare crashloop_detected
// without deploy correlation is lower confidence (priority 2). Ties
// within a priority break by lexicographic incident_id.
func (e *Engine) bestIncidents(crashlooping, correlated, oomkilled []namedPair) []Candidate {
	correlatedSet := make(map[string]struct{}, len(correlated))
	for _, c := range correlated {
		correlatedSet[podKey(c.ns, c.name)] = struct{}{}
	}

	var out []Candidate
	for _, c := range crashlooping {
		priority := 2
		if _, ok := correlatedSet[podKey(c.ns, c.name)]; ok {
			priority = 1
		}
		out = append(out, Candidate{
			IncidentID: "crashloop:" + c.name,
			Runbook:    "crashloop_runbook",
			Priority:   priority,
		})
	}
	for _, c := range oomkilled {
		out = append(out, Candidate{
			IncidentID: "oomkill:" + c.name,
			Runbook:    "oomkill_runbook",
			Priority:   1,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].IncidentID < out[j].IncidentID
	})
	return out
}

func sortPairs(pairs []namedPair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].ns != pairs[j].ns {
			return pairs[i].ns < pairs[j].ns
		}
		return pairs[i].name < pairs[j].name
	})
}

// ErrorRateMetricName builds the `error_rate:<service>` metric name the
// high_error_rate rule projects against.
func ErrorRateMetricName(service string) string {
	return "error_rate:" + service
}
