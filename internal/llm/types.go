// Package llm is the provider-agnostic LLM layer: a small hand-rolled
// HTTP client per vendor plus the three agents (Interpreter, Analyzer,
// Proposer) that make up the agent's optional uncertain path.
package llm

// Message is one turn in a chat-style completion request.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// Config is the provider configuration every agent shares.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
}
