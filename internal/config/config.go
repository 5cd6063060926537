// Package config provides the configuration schema, loader, and provider registry
// for the tmassist translation server.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// MemoryFormat selects the on-disk encoding of the translation memory.
type MemoryFormat string

const (
	// FormatText is the labeled plain-text log ("Original: ..." / "Translation: ...").
	FormatText MemoryFormat = "text"

	// FormatYAML is a single YAML list of {original, translation} maps.
	FormatYAML MemoryFormat = "yaml"

	// FormatTMX is a TMX 1.4 translation-memory document.
	FormatTMX MemoryFormat = "tmx"
)

// IsValid reports whether f is a recognised memory format.
func (f MemoryFormat) IsValid() bool {
	switch f {
	case FormatText, FormatYAML, FormatTMX:
		return true
	}
	return false
}

// Config is the root configuration structure for tmassist.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Memory    MemoryConfig    `yaml:"memory"`
	Glossary  GlossaryConfig  `yaml:"glossary"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Source    SourceConfig    `yaml:"source"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":5001").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the two model slots the gateway chooses between.
// Each entry selects a named backend registered in the [Registry].
type ProvidersConfig struct {
	// Primary is tried first whenever the prompt fits its token budget.
	Primary ProviderEntry `yaml:"primary"`

	// Fallback has the larger budget and is used for oversized prompts and
	// for escalation after rate limits or rejected requests.
	Fallback ProviderEntry `yaml:"fallback"`
}

// ProviderEntry is the configuration block for one model slot.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered backend implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gemini-2.0-flash-001").
	Model string `yaml:"model"`

	// TokenBudget is the largest prompt, in tokens, this slot accepts.
	// Gemini slots default to 245000 (primary) and 1000000 (fallback); for
	// other backends zero means the model's advertised context window.
	TokenBudget int `yaml:"token_budget"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// GatewayConfig tunes retry, escalation and pacing of model calls.
type GatewayConfig struct {
	// RetryDelay is the fixed wait before retrying a rate-limited call.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxRetries caps same-model retries after a rate limit. Nil means the
	// default of 1; an explicit 0 disables retries.
	MaxRetries *int `yaml:"max_retries"`

	// RequestsPerMinute paces outgoing completions. 0 disables pacing.
	RequestsPerMinute float64 `yaml:"requests_per_minute"`

	// CircuitBreaker configures the per-slot breaker.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures the breaker guarding each model slot.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that trips the breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the breaker stays open before probing again.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// MemoryConfig selects and parameterises the translation-memory store.
type MemoryConfig struct {
	// Format is one of "text", "yaml" or "tmx".
	Format MemoryFormat `yaml:"format"`

	// Path is the memory file location.
	Path string `yaml:"path"`

	// Labels controls whether the text format writes "Original:"/"Translation:"
	// labels. Nil means true.
	Labels *bool `yaml:"labels"`

	// SourceLang is the language tag recorded for originals.
	SourceLang string `yaml:"source_lang"`

	// TargetLang is the language tag recorded for translations.
	TargetLang string `yaml:"target_lang"`
}

// LabelsEnabled reports the effective value of Labels.
func (m MemoryConfig) LabelsEnabled() bool {
	return m.Labels == nil || *m.Labels
}

// GlossaryConfig points at optional reference terminology for prompts.
type GlossaryConfig struct {
	// Path is a two-column CSV file (term, rendering). Optional.
	Path string `yaml:"path"`

	// Reference lists terms inline. Appended after the CSV entries.
	Reference []GlossaryTerm `yaml:"reference"`
}

// GlossaryTerm is one inline glossary entry.
type GlossaryTerm struct {
	Term      string `yaml:"term"`
	Rendering string `yaml:"rendering"`
}

// PromptConfig controls prompt assembly.
type PromptConfig struct {
	// InstructionsPath is the operator-editable instruction file served by
	// /get_prompt and /update_prompt.
	InstructionsPath string `yaml:"instructions_path"`

	// TargetLanguage, when set, is named in the instruction sentence.
	TargetLanguage string `yaml:"target_language"`
}

// SourceConfig points at the document to translate.
type SourceConfig struct {
	// Path is a local file (text or HTML) or an http(s) URL.
	Path string `yaml:"path"`
}
