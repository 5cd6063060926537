package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/tmassist/pkg/provider/llm"
)

// newTestProvider starts a fake Gemini endpoint driven by handler.
func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New(context.Background(), "test-key", "gemini-2.0-flash-001",
		WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), "", "gemini-2.0-flash-001"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New(context.Background(), "key", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash-001:generateContent") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hola"}]}}],
			"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":3}}`)
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hola" {
		t.Errorf("Content = %q, want hola", resp.Content)
	}
	if resp.Usage.PromptTokens != 12 || resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if gotBody["contents"] == nil {
		t.Error("request carried no contents")
	}
}

func TestCountTokens(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":countTokens") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"totalTokens":4242}`)
	})

	n, err := p.CountTokens(context.Background(), []llm.Message{llm.UserMessage("x")})
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 4242 {
		t.Errorf("CountTokens = %d, want 4242", n)
	}
}

func TestComplete_ClassifiesStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		code        int
		status      string
		rateLimited bool
		invalidArg  bool
	}{
		{"resource exhausted", 429, "RESOURCE_EXHAUSTED", true, false},
		{"invalid argument", 400, "INVALID_ARGUMENT", false, true},
		{"internal", 500, "INTERNAL", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.code)
				fmt.Fprintf(w, `{"error":{"code":%d,"message":"nope","status":%q}}`, tc.code, tc.status)
			})
			_, err := p.Complete(context.Background(), llm.CompletionRequest{
				Messages: []llm.Message{llm.UserMessage("hello")},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := llm.IsRateLimited(err); got != tc.rateLimited {
				t.Errorf("IsRateLimited = %v, want %v (err: %v)", got, tc.rateLimited, err)
			}
			if got := llm.IsInvalidArgument(err); got != tc.invalidArg {
				t.Errorf("IsInvalidArgument = %v, want %v", got, tc.invalidArg)
			}
		})
	}
}

func TestListModels(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/models") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"models":[
			{"name":"models/gemini-2.0-flash-001","displayName":"Gemini 2.0 Flash","inputTokenLimit":1048576},
			{"name":"models/gemini-2.5-flash","displayName":"Gemini 2.5 Flash","inputTokenLimit":1048576}]}`)
	})

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}
	if models[0].ID != "gemini-2.0-flash-001" {
		t.Errorf("ID = %q, want prefix stripped", models[0].ID)
	}
	if models[0].InputTokenLimit != 1048576 {
		t.Errorf("InputTokenLimit = %d", models[0].InputTokenLimit)
	}
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	contents, cfg := buildRequest(llm.CompletionRequest{Messages: []llm.Message{
		llm.UserMessage("a"), {Role: "assistant", Content: "b"},
	}})
	if cfg != nil {
		t.Error("expected nil config when no options set")
	}
	if len(contents) != 2 || contents[1].Role != "model" {
		t.Fatalf("unexpected contents: %+v", contents)
	}

	_, cfg = buildRequest(llm.CompletionRequest{SystemPrompt: "sys", Temperature: 0.5, MaxTokens: 10})
	if cfg == nil || cfg.SystemInstruction == nil || cfg.Temperature == nil || cfg.MaxOutputTokens != 10 {
		t.Errorf("config not populated: %+v", cfg)
	}
}
