// Package compat lists models on any endpoint that speaks the OpenAI REST
// dialect: OpenAI itself, Groq, DeepSeek, Mistral, Ollama and llama.cpp
// servers all answer GET /models in the same shape.
package compat

import (
	"context"
	"errors"
	"fmt"
	"sort"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/MrWong99/tmassist/pkg/provider/llm"
)

// Lister implements llm.Lister against an OpenAI-compatible endpoint.
type Lister struct {
	name   string
	client *goopenai.Client
}

// DefaultBaseURLs maps backend names to their OpenAI-compatible API roots.
// Backends not listed here need an explicit base URL.
var DefaultBaseURLs = map[string]string{
	"openai":    "https://api.openai.com/v1",
	"groq":      "https://api.groq.com/openai/v1",
	"deepseek":  "https://api.deepseek.com/v1",
	"mistral":   "https://api.mistral.ai/v1",
	"ollama":    "http://localhost:11434/v1",
	"llamacpp":  "http://127.0.0.1:8080/v1",
	"llamafile": "http://127.0.0.1:8080/v1",
}

// New returns a Lister for backend name. baseURL overrides the default root.
func New(name, apiKey, baseURL string) (*Lister, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURLs[name]
	}
	if baseURL == "" {
		return nil, fmt.Errorf("compat: no OpenAI-compatible endpoint known for %q; set base_url", name)
	}
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Lister{name: name, client: goopenai.NewClientWithConfig(cfg)}, nil
}

// ListModels implements llm.Lister. Results are sorted by ID.
func (l *Lister) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	list, err := l.client.ListModels(ctx)
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			err = llm.NewStatusError(l.name, apiErr.HTTPStatusCode, err)
		}
		return nil, fmt.Errorf("compat: list models: %w", err)
	}
	out := make([]llm.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, llm.ModelInfo{ID: m.ID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ llm.Lister = (*Lister)(nil)
