package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/tmassist/internal/app"
	"github.com/MrWong99/tmassist/internal/config"
	"github.com/MrWong99/tmassist/pkg/provider/llm"
	"github.com/MrWong99/tmassist/pkg/provider/llm/anyllm"
	"github.com/MrWong99/tmassist/pkg/provider/llm/compat"
	"github.com/MrWong99/tmassist/pkg/provider/llm/gemini"
	"github.com/MrWong99/tmassist/pkg/provider/llm/openai"
)

// anyllmBackends are served through any-llm-go. gemini and openai have
// dedicated clients.
var anyllmBackends = []string{"anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// registerBuiltinProviders wires every built-in completion backend and model
// lister into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Completion ────────────────────────────────────────────────────────────

	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []gemini.Option
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(context.Background(), entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if s := optString(entry.Options, "timeout"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("openai: options.timeout: %w", err)
			}
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range anyllmBackends {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── Model listing ─────────────────────────────────────────────────────────

	reg.RegisterLister("gemini", func(entry config.ProviderEntry) (llm.Lister, error) {
		var opts []gemini.Option
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(context.Background(), entry.APIKey, entry.Model, opts...)
	})

	for name := range compat.DefaultBaseURLs {
		reg.RegisterLister(name, func(entry config.ProviderEntry) (llm.Lister, error) {
			return compat.New(name, entry.APIKey, entry.BaseURL)
		})
	}

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildProviders instantiates both model slots named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	primary, err := createSlot(reg, "primary", cfg.Providers.Primary)
	if err != nil {
		return nil, err
	}
	fallback, err := createSlot(reg, "fallback", cfg.Providers.Fallback)
	if err != nil {
		return nil, err
	}
	return &app.Providers{Primary: primary, Fallback: fallback}, nil
}

func createSlot(reg *config.Registry, slot string, entry config.ProviderEntry) (llm.Provider, error) {
	p, err := reg.CreateLLM(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		return nil, fmt.Errorf("%s provider %q is not supported (known: %v): %w", slot, entry.Name, reg.LLMNames(), err)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider %q: %w", slot, entry.Name, err)
	}
	slog.Info("provider created", "slot", slot, "name", entry.Name, "model", entry.Model)
	return p, nil
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
