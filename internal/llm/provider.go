package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Tool is a function the Analyzer may call, described in the shape
// each vendor's chat-completions API expects.
type Tool struct {
	Name        string
	Description string
}

// ToolCall is one function invocation an LLM response asked for.
type ToolCall struct {
	Name string
	Args map[string]string
}

// Completion is a single provider response: free text, plus any tool
// calls the model asked to make (Analyzer only).
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider completes a chat turn against one vendor's API. Each
// implementation is a small hand-rolled net/http client — no vendor
// SDK — matching how the rest of this stack talks to external APIs.
type Provider interface {
	Complete(ctx context.Context, messages []Message, tools []Tool) (Completion, error)
}

// NewProvider returns the Provider matching cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	httpClient := &http.Client{Timeout: 60 * time.Second}
	switch cfg.Provider {
	case "openai", "":
		return &openAIProvider{cfg: cfg, http: httpClient}, nil
	case "anthropic":
		return &anthropicProvider{cfg: cfg, http: httpClient}, nil
	case "ollama":
		return &ollamaProvider{cfg: cfg, http: httpClient}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// --- OpenAI ---

type openAIProvider struct {
	cfg  Config
	http *http.Client
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"function"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openAIProvider) Complete(ctx context.Context, messages []Message, tools []Tool) (Completion, error) {
	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	req := openAIRequest{Model: p.cfg.Model, Temperature: p.cfg.Temperature}
	for _, m := range messages {
		req.Messages = append(req.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range tools {
		var ot openAITool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		req.Tools = append(req.Tools, ot)
	}

	var resp openAIResponse
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
	if err := doJSON(ctx, p.http, http.MethodPost, baseURL+"/chat/completions", headers, req, &resp); err != nil {
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("openai: no choices in response")
	}
	choice := resp.Choices[0]
	out := Completion{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]string
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, ToolCall{Name: tc.Function.Name, Args: args})
	}
	return out, nil
}

// --- Anthropic ---

type anthropicProvider struct {
	cfg  Config
	http *http.Client
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *anthropicProvider) Complete(ctx context.Context, messages []Message, tools []Tool) (Completion, error) {
	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	req := anthropicRequest{Model: p.cfg.Model, MaxTokens: 1024, Temperature: p.cfg.Temperature}
	for _, m := range messages {
		if m.Role == "system" {
			req.System = m.Content
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	var resp anthropicResponse
	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}
	if err := doJSON(ctx, p.http, http.MethodPost, baseURL+"/messages", headers, req, &resp); err != nil {
		return Completion{}, err
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return Completion{Content: text}, nil
}

// --- Ollama ---

type ollamaProvider struct {
	cfg  Config
	http *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (p *ollamaProvider) Complete(ctx context.Context, messages []Message, tools []Tool) (Completion, error) {
	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434/api"
	}
	req := ollamaRequest{Model: p.cfg.Model, Stream: false}
	for _, m := range messages {
		req.Messages = append(req.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	var resp ollamaResponse
	if err := doJSON(ctx, p.http, http.MethodPost, baseURL+"/chat", nil, req, &resp); err != nil {
		return Completion{}, err
	}
	return Completion{Content: resp.Message.Content}, nil
}
