// Package gemini provides an LLM provider backed by the Google Gemini API via
// google.golang.org/genai.
//
// Unlike the OpenAI-compatible backends it counts tokens with the server-side
// countTokens endpoint, which is what the model gateway uses to pick a model
// whose input budget fits the prompt.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/tmassist/pkg/provider/llm"
)

// Provider implements llm.Provider and llm.Lister using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

type config struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a Gemini Provider for model.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Model returns the configured model identifier.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents, gcfg := buildRequest(req)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, gcfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", classify(err))
	}

	out := &llm.CompletionResponse{Content: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.PromptTokenCount + u.CandidatesTokenCount),
		}
	}
	return out, nil
}

// CountTokens implements llm.Provider using the countTokens endpoint.
func (p *Provider) CountTokens(ctx context.Context, messages []llm.Message) (int, error) {
	resp, err := p.client.Models.CountTokens(ctx, p.model, toContents(messages), nil)
	if err != nil {
		return 0, fmt.Errorf("gemini: count tokens: %w", classify(err))
	}
	return int(resp.TotalTokens), nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

// ListModels implements llm.Lister.
func (p *Provider) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	var out []llm.ModelInfo
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("gemini: list models: %w", classify(err))
		}
		out = append(out, llm.ModelInfo{
			ID:              strings.TrimPrefix(m.Name, "models/"),
			DisplayName:     m.DisplayName,
			InputTokenLimit: int(m.InputTokenLimit),
		})
	}
	return out, nil
}

func buildRequest(req llm.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	var gcfg *genai.GenerateContentConfig
	if req.SystemPrompt != "" || req.Temperature != 0 || req.MaxTokens > 0 {
		gcfg = &genai.GenerateContentConfig{}
		if req.SystemPrompt != "" {
			gcfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
		}
		if req.Temperature != 0 {
			t := float32(req.Temperature)
			gcfg.Temperature = &t
		}
		if req.MaxTokens > 0 {
			gcfg.MaxOutputTokens = int32(req.MaxTokens)
		}
	}
	return toContents(req.Messages), gcfg
}

// toContents maps chat roles onto Gemini's user/model pair. System messages
// are sent as user turns.
func toContents(messages []llm.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

// classify wraps genai API errors in an llm.StatusError. Gemini reports quota
// exhaustion as 429 RESOURCE_EXHAUSTED and oversized or malformed prompts as
// 400 INVALID_ARGUMENT.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		switch apiErr.Status {
		case "RESOURCE_EXHAUSTED":
			code = http.StatusTooManyRequests
		case "INVALID_ARGUMENT":
			code = http.StatusBadRequest
		}
		return llm.NewStatusError("gemini", code, err)
	}
	return err
}

func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gemini-2.5"):
		caps.MaxOutputTokens = 65_536
	case strings.HasPrefix(lower, "gemini-1.5-pro"):
		caps.ContextWindow = 2_097_152
	case strings.HasPrefix(lower, "gemma"):
		caps.ContextWindow = 131_072
	}
	return caps
}

var (
	_ llm.Provider = (*Provider)(nil)
	_ llm.Lister   = (*Provider)(nil)
)
