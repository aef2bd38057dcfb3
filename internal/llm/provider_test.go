package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewProviderDispatchesByName(t *testing.T) {
	cases := map[string]string{"openai": "*llm.openAIProvider", "anthropic": "*llm.anthropicProvider", "ollama": "*llm.ollamaProvider", "": "*llm.openAIProvider"}
	for provider, want := range cases {
		p, err := NewProvider(Config{Provider: provider})
		if err != nil {
			t.Fatalf("provider %q: %v", provider, err)
		}
		if p == nil {
			t.Errorf("provider %q: expected a non-nil Provider", provider)
		}
		if got := fmt.Sprintf("%T", p); got != want {
			t.Errorf("provider %q: got %s, want %s", provider, got, want)
		}
	}
}

func TestNewProviderRejectsUnknown(t *testing.T) {
	if _, err := NewProvider(Config{Provider: "bogus"}); err == nil {
		t.Fatal("expected unknown provider to fail")
	}
}

func TestOpenAIProviderParsesToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"","tool_calls":[
			{"function":{"name":"get_pod_logs","arguments":"{\"namespace\":\"default\"}"}}
		]}}]}`))
	}))
	defer server.Close()

	p := &openAIProvider{cfg: Config{Provider: "openai", BaseURL: server.URL}, http: server.Client()}
	out, err := p.Complete(context.Background(), []Message{{Role: "user", Content: "diagnose"}}, []Tool{{Name: "get_pod_logs"}})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "get_pod_logs" {
		t.Fatalf("expected one get_pod_logs tool call, got %v", out.ToolCalls)
	}
	if out.ToolCalls[0].Args["namespace"] != "default" {
		t.Errorf("expected namespace arg default, got %v", out.ToolCalls[0].Args)
	}
}
