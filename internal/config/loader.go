package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/textfix/internal/patch"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadBytes is [LoadFromReader] over an in-memory document.
func loadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %s must not be negative", cfg.Server.RequestTimeout))
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes %d must not be negative", cfg.Server.MaxBodyBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	for i, o := range cfg.Server.CORSOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, fmt.Errorf("server.cors_origins[%d] %q must be \"*\" or an http(s) origin", i, o))
		}
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		if len(cfg.Providers.Fallbacks) > 0 {
			errs = append(errs, errors.New("providers.fallbacks requires providers.llm to be configured"))
		} else {
			slog.Warn("no LLM provider configured; every correction request will fail as unavailable")
		}
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}

	// Corrector
	if c := cfg.Corrector; c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("corrector.temperature %.2f is out of range [0, 2]", c.Temperature))
	}
	if cfg.Corrector.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("corrector.max_tokens %d must not be negative", cfg.Corrector.MaxTokens))
	}
	if r := cfg.Corrector.Retries; r != nil && *r < 0 {
		errs = append(errs, fmt.Errorf("corrector.retries %d must not be negative", *r))
	}
	if cfg.Corrector.RetryDelay < 0 || cfg.Corrector.Timeout < 0 {
		errs = append(errs, errors.New("corrector.retry_delay and corrector.timeout must not be negative"))
	}
	if cfg.Corrector.Timeout > 0 && cfg.Server.RequestTimeout > 0 && cfg.Corrector.Timeout > cfg.Server.RequestTimeout {
		slog.Warn("corrector.timeout exceeds server.request_timeout; requests will be cut off first",
			"corrector_timeout", cfg.Corrector.Timeout,
			"request_timeout", cfg.Server.RequestTimeout,
		)
	}

	// Guard
	seen := make(map[string]int, len(cfg.Guard.Markers))
	for i, m := range cfg.Guard.Markers {
		if m == "" {
			errs = append(errs, fmt.Errorf("guard.markers[%d] must not be empty", i))
			continue
		}
		if prev, ok := seen[m]; ok {
			errs = append(errs, fmt.Errorf("guard.markers[%d] %q is a duplicate of guard.markers[%d]", i, m, prev))
		}
		seen[m] = i
	}
	if cfg.Guard.Markers != nil && len(cfg.Guard.Markers) == 0 {
		slog.Warn("guard.markers is empty; marker protection is disabled unless requests name a marker")
	}

	// Diff
	if cfg.Diff.MaxEditDistance < 0 {
		errs = append(errs, fmt.Errorf("diff.max_edit_distance %d must not be negative", cfg.Diff.MaxEditDistance))
	}
	if cfg.Diff.OffsetUnits != "" && !cfg.Diff.OffsetUnits.IsValid() {
		errs = append(errs, fmt.Errorf("diff.offset_units %q is invalid; valid values: %s, %s",
			cfg.Diff.OffsetUnits, patch.UnitsCodepoint, patch.UnitsUTF16))
	}

	// Annotations
	if t := cfg.Annotations.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("annotations.fuzzy_threshold %.2f is out of range [0, 1]", t))
	}

	// MCP
	if cfg.MCP.Enabled && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
