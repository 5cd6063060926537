package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the backend names known to the default registry.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{
	"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Defaults applied by [ApplyDefaults] for fields left empty.
const (
	DefaultListenAddr     = ":5001"
	DefaultPrimaryModel   = "gemini-2.5-flash-preview-05-20"
	DefaultPrimaryBudget  = 245_000
	DefaultFallbackModel  = "gemini-2.0-flash-001"
	DefaultFallbackBudget = 1_000_000
	DefaultRetryDelay     = 3 * time.Second
	DefaultMaxRetries     = 1
	DefaultMemoryPath     = "translation.txt"
	DefaultSourceLang     = "en"
	DefaultTargetLang     = "es"
	DefaultInstructions   = "instructions.txt"
)

// Load reads the YAML configuration file at path, applies defaults and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string literals.
// An empty document yields the all-defaults configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if err := Finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode reads a YAML config from r without applying defaults or validating.
// Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// Finalize applies defaults to cfg and validates it.
func Finalize(cfg *Config) error {
	ApplyDefaults(cfg)
	return Validate(cfg)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	p := &cfg.Providers.Primary
	if p.Name == "" {
		p.Name = "gemini"
	}
	if p.Model == "" && p.Name == "gemini" {
		p.Model = DefaultPrimaryModel
	}
	if p.TokenBudget == 0 && p.Name == "gemini" {
		p.TokenBudget = DefaultPrimaryBudget
	}

	f := &cfg.Providers.Fallback
	if f.Name == "" {
		f.Name = p.Name
		if f.APIKey == "" {
			f.APIKey = p.APIKey
		}
		if f.BaseURL == "" {
			f.BaseURL = p.BaseURL
		}
	}
	if f.Model == "" && f.Name == "gemini" {
		f.Model = DefaultFallbackModel
	}
	if f.TokenBudget == 0 && f.Name == "gemini" {
		f.TokenBudget = DefaultFallbackBudget
	}

	if cfg.Gateway.RetryDelay == 0 {
		cfg.Gateway.RetryDelay = DefaultRetryDelay
	}
	if cfg.Gateway.MaxRetries == nil {
		n := DefaultMaxRetries
		cfg.Gateway.MaxRetries = &n
	}

	if cfg.Memory.Format == "" {
		cfg.Memory.Format = FormatText
	}
	if cfg.Memory.Path == "" {
		switch cfg.Memory.Format {
		case FormatYAML:
			cfg.Memory.Path = "translation.yaml"
		case FormatTMX:
			cfg.Memory.Path = "translation.tmx"
		default:
			cfg.Memory.Path = DefaultMemoryPath
		}
	}
	if cfg.Memory.SourceLang == "" {
		cfg.Memory.SourceLang = DefaultSourceLang
	}
	if cfg.Memory.TargetLang == "" {
		cfg.Memory.TargetLang = DefaultTargetLang
	}

	if cfg.Prompt.InstructionsPath == "" {
		cfg.Prompt.InstructionsPath = DefaultInstructions
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
	}

	// Providers
	for _, slot := range []struct {
		key   string
		entry ProviderEntry
	}{
		{"providers.primary", cfg.Providers.Primary},
		{"providers.fallback", cfg.Providers.Fallback},
	} {
		validateProviderName(slot.key, slot.entry.Name)
		if slot.entry.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required for provider %q", slot.key, slot.entry.Name))
		}
		if slot.entry.TokenBudget < 0 {
			errs = append(errs, fmt.Errorf("%s.token_budget %d must not be negative", slot.key, slot.entry.TokenBudget))
		}
	}
	if p, f := cfg.Providers.Primary, cfg.Providers.Fallback; f.TokenBudget > 0 && p.TokenBudget > f.TokenBudget {
		slog.Warn("primary token budget exceeds fallback budget; oversized prompts will never escalate",
			"primary", p.TokenBudget,
			"fallback", f.TokenBudget,
		)
	}

	// Gateway
	if cfg.Gateway.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("gateway.retry_delay %s must not be negative", cfg.Gateway.RetryDelay))
	}
	if n := cfg.Gateway.MaxRetries; n != nil && *n < 0 {
		errs = append(errs, fmt.Errorf("gateway.max_retries %d must not be negative", *n))
	}
	if cfg.Gateway.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("gateway.requests_per_minute %.2f must not be negative", cfg.Gateway.RequestsPerMinute))
	}
	if cfg.Gateway.CircuitBreaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("gateway.circuit_breaker.max_failures %d must not be negative", cfg.Gateway.CircuitBreaker.MaxFailures))
	}

	// Memory
	if !cfg.Memory.Format.IsValid() {
		errs = append(errs, fmt.Errorf("memory.format %q is invalid; valid values: text, yaml, tmx", cfg.Memory.Format))
	}
	if cfg.Memory.Path == "" {
		errs = append(errs, fmt.Errorf("memory.path is required"))
	}

	// Glossary
	for i, term := range cfg.Glossary.Reference {
		if term.Term == "" {
			errs = append(errs, fmt.Errorf("glossary.reference[%d].term is required", i))
		}
	}

	if cfg.Source.Path == "" {
		slog.Warn("source.path is empty; the sentence cursor starts out completed")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(key, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"key", key,
		"name", name,
		"known", ValidProviderNames,
	)
}
