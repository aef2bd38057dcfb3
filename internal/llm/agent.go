package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sentineloop/incident-agent/internal/actions"
	"github.com/sentineloop/incident-agent/internal/bdierr"
	"github.com/sentineloop/incident-agent/internal/belief"
)

// maxAnalyzerTurns bounds the Analyzer's autonomous tool-calling loop —
// it is the only agent allowed to call tools, and it must still
// terminate even against a model that never stops asking for more.
const maxAnalyzerTurns = 6

// Interpretation is the Interpreter agent's structured output.
type Interpretation struct {
	Hypothesis       string   `json:"hypothesis"`
	Severity         string   `json:"severity"`
	Goal             []string `json:"goal"`
	SuggestedActions []string `json:"suggested_actions"`
}

// SuggestedFact is one follow-up observation the Interpreter believes
// would raise confidence in its current hypothesis.
type SuggestedFact struct {
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

// Analysis is the Analyzer agent's structured output.
type Analysis struct {
	RootCause         string   `json:"root_cause"`
	Confidence        float64  `json:"confidence"`
	Evidence          []string `json:"evidence"`
	RecommendedAction string   `json:"recommended_action"`
	Reasoning         string   `json:"reasoning"`
}

// Proposal is the Proposer agent's structured output: an ordered
// sequence of action names for the planner to validate or fall back
// from.
type Proposal struct {
	Actions []string `json:"actions"`
}

// Interpreter turns a belief summary and recent facts into a
// hypothesis, with no tool access.
type Interpreter struct {
	Provider Provider
}

func (a *Interpreter) systemPrompt() string {
	return "You are the interpretation stage of an incident response agent. " +
		"Given a summary of current beliefs and recent observed facts, respond with a single " +
		"JSON object: {\"hypothesis\":string,\"severity\":string,\"goal\":[string],\"suggested_actions\":[string]}. " +
		"No prose outside the JSON object."
}

// Interpret summarizes state, the last N recorded facts (N<=50,
// RecentFactWindow in config), into a hypothesis and goal.
func (a *Interpreter) Interpret(ctx context.Context, state belief.State, recentFacts []string) (Interpretation, error) {
	prompt := fmt.Sprintf("Beliefs: %v\nRecent facts: %v", state.Slice(), recentFacts)
	messages := []Message{
		{Role: "system", Content: a.systemPrompt()},
		{Role: "user", Content: prompt},
	}
	completion, err := a.Provider.Complete(ctx, messages, nil)
	if err != nil {
		return Interpretation{}, &bdierr.LLMFailure{Agent: "interpreter", Err: err}
	}
	var out Interpretation
	if err := json.Unmarshal([]byte(completion.Content), &out); err != nil {
		return Interpretation{}, &bdierr.LLMFailure{Agent: "interpreter", Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	return out, nil
}

// SuggestFacts asks the Interpreter for up to three follow-up
// observations that would increase confidence in hypothesis.
func (a *Interpreter) SuggestFacts(ctx context.Context, hypothesis string) ([]SuggestedFact, error) {
	messages := []Message{
		{Role: "system", Content: "Given an incident hypothesis, suggest up to three follow-up observations " +
			"that would increase confidence in it. Respond with a JSON array of " +
			"{\"description\":string,\"kind\":string} objects, at most three entries, no prose."},
		{Role: "user", Content: hypothesis},
	}
	completion, err := a.Provider.Complete(ctx, messages, nil)
	if err != nil {
		return nil, &bdierr.LLMFailure{Agent: "interpreter", Err: err}
	}
	var out []SuggestedFact
	if err := json.Unmarshal([]byte(completion.Content), &out); err != nil {
		return nil, &bdierr.LLMFailure{Agent: "interpreter", Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out, nil
}

// Analyzer is the only agent permitted to call tools. It investigates
// autonomously within a bounded number of turns and emits a root-cause
// analysis.
type Analyzer struct {
	Provider Provider
	Tools    actions.ToolExecutor
}

func (a *Analyzer) systemPrompt(tools []actions.ToolDescriptor) string {
	prompt := "You are the analysis stage of an incident response agent. You may call the following " +
		"Observe-effect tools to investigate before concluding:\n"
	for _, t := range tools {
		prompt += fmt.Sprintf("- %s: %s\n", t.Name, t.Description)
	}
	prompt += "When you are ready, respond with a single JSON object and no further tool calls: " +
		"{\"root_cause\":string,\"confidence\":number,\"evidence\":[string],\"recommended_action\":string,\"reasoning\":string}."
	return prompt
}

// Analyze runs the Analyzer's bounded tool-calling loop against
// registry's Observe-effect actions and returns its final analysis.
func (a *Analyzer) Analyze(ctx context.Context, registry actions.Registry, goal string) (Analysis, error) {
	catalog := actions.Catalog(registry)
	var observeOnly []actions.ToolDescriptor
	var tools []Tool
	for _, d := range catalog {
		if d.Effect != "observe" {
			continue
		}
		observeOnly = append(observeOnly, d)
		tools = append(tools, Tool{Name: d.Name, Description: d.Description})
	}

	messages := []Message{
		{Role: "system", Content: a.systemPrompt(observeOnly)},
		{Role: "user", Content: goal},
	}

	for turn := 0; turn < maxAnalyzerTurns; turn++ {
		completion, err := a.Provider.Complete(ctx, messages, tools)
		if err != nil {
			return Analysis{}, &bdierr.LLMFailure{Agent: "analyzer", Err: err}
		}

		if len(completion.ToolCalls) == 0 {
			var out Analysis
			if err := json.Unmarshal([]byte(completion.Content), &out); err != nil {
				return Analysis{}, &bdierr.LLMFailure{Agent: "analyzer", Err: fmt.Errorf("malformed JSON: %w", err)}
			}
			return out, nil
		}

		messages = append(messages, Message{Role: "assistant", Content: completion.Content})
		for _, call := range completion.ToolCalls {
			result, err := a.Tools.Invoke(ctx, call.Name, call.Args)
			observation := result.Output
			if err != nil {
				observation = fmt.Sprintf("error: %v", err)
			}
			messages = append(messages, Message{Role: "user", Content: fmt.Sprintf("tool %s result: %s", call.Name, observation)})
		}
	}

	return Analysis{}, &bdierr.LLMFailure{Agent: "analyzer", Err: fmt.Errorf("exceeded %d tool-calling turns without a conclusion", maxAnalyzerTurns)}
}

// Proposer proposes an ordered action sequence for the planner to
// validate, with no tool access.
type Proposer struct {
	Provider Provider
}

func (a *Proposer) systemPrompt(registry actions.Registry) string {
	prompt := "You are the proposal stage of an incident response agent. Given a hypothesis and goal, " +
		"propose an ordered sequence of action names from this set that would reach the goal:\n"
	for name := range registry {
		prompt += "- " + name + "\n"
	}
	prompt += "Respond with a single JSON object: {\"actions\":[string]}, no prose."
	return prompt
}

// Propose asks the LLM for an ordered action sequence, then applies
// the safety gate: unregistered action names are dropped with a
// warning (returned as dropped), and any Irreversible action is
// dropped unconditionally.
func (a *Proposer) Propose(ctx context.Context, registry actions.Registry, hypothesis, goal string) (Proposal, []string, error) {
	messages := []Message{
		{Role: "system", Content: a.systemPrompt(registry)},
		{Role: "user", Content: fmt.Sprintf("Hypothesis: %s\nGoal: %s", hypothesis, goal)},
	}
	completion, err := a.Provider.Complete(ctx, messages, nil)
	if err != nil {
		return Proposal{}, nil, &bdierr.LLMFailure{Agent: "proposer", Err: err}
	}
	var raw Proposal
	if err := json.Unmarshal([]byte(completion.Content), &raw); err != nil {
		return Proposal{}, nil, &bdierr.LLMFailure{Agent: "proposer", Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	kept, dropped := SafetyGate(registry, raw)
	return kept, dropped, nil
}

// SafetyGate drops any action name not in registry (returned as
// dropped, with the caller responsible for warning) and unconditionally
// drops Irreversible actions, regardless of registration.
func SafetyGate(registry actions.Registry, proposal Proposal) (Proposal, []string) {
	var kept []string
	var dropped []string
	for _, name := range proposal.Actions {
		schema, ok := registry[name]
		if !ok {
			dropped = append(dropped, name)
			continue
		}
		if schema.Effect.String() == "irreversible" {
			dropped = append(dropped, name)
			continue
		}
		kept = append(kept, name)
	}
	return Proposal{Actions: kept}, dropped
}
