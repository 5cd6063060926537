package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override file values.
const EnvPrefix = "TMASSIST"

// envKeys maps viper keys to the config fields they override. Keys are bound
// to TMASSIST_<KEY> with dots replaced by underscores.
var envKeys = []string{
	"listen_addr",
	"log_level",
	"primary.name",
	"primary.api_key",
	"primary.base_url",
	"primary.model",
	"fallback.name",
	"fallback.api_key",
	"fallback.base_url",
	"fallback.model",
	"memory.format",
	"memory.path",
	"source.path",
}

// NewViper returns a viper instance bound to the TMASSIST_* environment.
// Callers may additionally bind command-line flags to the same keys.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// ApplyOverrides copies every key set in v (environment or bound flag) onto
// cfg. It runs after file decoding and before [ApplyDefaults], so an API key
// supplied only for the primary slot still propagates to the fallback.
func ApplyOverrides(cfg *Config, v *viper.Viper) {
	set := func(key string, dst *string) {
		if v.IsSet(key) {
			if s := v.GetString(key); s != "" {
				*dst = s
			}
		}
	}
	set("listen_addr", &cfg.Server.ListenAddr)
	var level string
	set("log_level", &level)
	if level != "" {
		cfg.Server.LogLevel = LogLevel(level)
	}
	set("primary.name", &cfg.Providers.Primary.Name)
	set("primary.api_key", &cfg.Providers.Primary.APIKey)
	set("primary.base_url", &cfg.Providers.Primary.BaseURL)
	set("primary.model", &cfg.Providers.Primary.Model)
	set("fallback.name", &cfg.Providers.Fallback.Name)
	set("fallback.api_key", &cfg.Providers.Fallback.APIKey)
	set("fallback.base_url", &cfg.Providers.Fallback.BaseURL)
	set("fallback.model", &cfg.Providers.Fallback.Model)
	var format string
	set("memory.format", &format)
	if format != "" {
		cfg.Memory.Format = MemoryFormat(format)
	}
	set("memory.path", &cfg.Memory.Path)
	set("source.path", &cfg.Source.Path)
}
