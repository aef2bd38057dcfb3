package actions

import (
	"context"

	"github.com/sentineloop/incident-agent/internal/effect"
)

// ToolResult is what a ToolExecutor returns for one invocation: an
// opaque payload for logging/LLM context, plus an optional snapshot an
// executor can hand back unchanged to undo a Mutate step.
type ToolResult struct {
	Output   string
	Snapshot any
}

// ToolExecutor invokes the side-effecting half of an action schema
// against the real world (or a fake, in tests). Snapshot captures
// pre-mutation state for a Mutate action before Invoke is called on it.
// Compensate undoes a previously applied Mutate action using that
// snapshot; it is never called for Observe or Irreversible actions.
type ToolExecutor interface {
	Snapshot(ctx context.Context, name string) (any, error)
	Invoke(ctx context.Context, name string, params map[string]string) (ToolResult, error)
	Compensate(ctx context.Context, name string, snapshot any) error
}

// Catalog describes the subset of a Registry worth surfacing to the LLM
// Analyzer/Proposer agents for tool discovery: name, effect, and a
// human-readable description, with Irreversible actions always
// excluded — the LLM path never gets to propose one.
func Catalog(r Registry) []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r))
	for _, s := range r {
		if s.Effect == effect.Irreversible {
			continue
		}
		out = append(out, ToolDescriptor{
			Name:        s.Name,
			Effect:      s.Effect.String(),
			Description: s.Description,
		})
	}
	return out
}

// ToolDescriptor is the LLM-facing view of an ActionSchema.
type ToolDescriptor struct {
	Name        string
	Effect      string
	Description string
}
