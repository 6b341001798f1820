// Package config provides the configuration schema, loader, and provider registry
// for the textfix correction service.
package config

import (
	"time"

	"github.com/MrWong99/textfix/internal/patch"
)

// LogLevel controls log verbosity for the textfix server.
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

// Defaults applied by [ApplyDefaults] to unset fields.
const (
	DefaultListenAddr      = ":8080"
	DefaultRequestTimeout  = 60 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
	DefaultMaxEditDistance = 2048
	DefaultFuzzyThreshold  = 0.85
	DefaultMCPPath         = "/mcp"
	DefaultServiceName     = "textfix"
	DefaultMarker          = "****"
)

// Config is the root configuration structure for textfix.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Corrector   CorrectorConfig   `yaml:"corrector"`
	Guard       GuardConfig       `yaml:"guard"`
	Diff        DiffConfig        `yaml:"diff"`
	Annotations AnnotationsConfig `yaml:"annotations"`
	MCP         MCPConfig         `yaml:"mcp"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the textfix server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists the origins allowed to call the API from a browser.
	// "*" allows any origin. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`

	// RequestTimeout bounds each HTTP request including the corrector call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxBodyBytes caps the size of request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

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

// ProvidersConfig selects the language model backing the corrector. The
// primary entry is tried first, fallbacks in order when it fails.
type ProvidersConfig struct {
	LLM       ProviderEntry   `yaml:"llm"`
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// CorrectorConfig tunes the LLM-backed corrector.
type CorrectorConfig struct {
	// Temperature is the sampling temperature. Zero is deterministic.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the completion length. Zero leaves the provider default.
	MaxTokens int `yaml:"max_tokens"`

	// Retries is the number of retries after a failed provider call. Nil
	// keeps the corrector default of one retry.
	Retries *int `yaml:"retries"`

	// RetryDelay is the pause before each retry.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Timeout bounds one correction including retries.
	Timeout time.Duration `yaml:"timeout"`
}

// GuardConfig lists the literal marker tokens that corrections must preserve.
type GuardConfig struct {
	// Markers are the default protected markers. Hot-reloadable. Nil selects
	// [DefaultMarker]; an explicit empty list disables protection.
	Markers []string `yaml:"markers"`
}

// DiffConfig tunes the diff engine and the encoding of emitted offsets.
type DiffConfig struct {
	// MaxEditDistance caps the diff search.
	MaxEditDistance int `yaml:"max_edit_distance"`

	// OffsetUnits selects "codepoint" or "utf16" offsets.
	OffsetUnits patch.Units `yaml:"offset_units"`
}

// AnnotationsConfig controls post-processing of annotate-mode results.
type AnnotationsConfig struct {
	// Anchor re-anchors reported positions onto the original text.
	Anchor bool `yaml:"anchor"`

	// FuzzyThreshold is the minimum Jaro-Winkler score for a fuzzy anchor.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// MCPConfig controls the MCP endpoint exposing the correction tools.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TelemetryConfig holds OpenTelemetry resource settings.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

// ApplyDefaults fills unset fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Guard.Markers == nil {
		cfg.Guard.Markers = []string{DefaultMarker}
	}
	if cfg.Diff.MaxEditDistance == 0 {
		cfg.Diff.MaxEditDistance = DefaultMaxEditDistance
	}
	if cfg.Diff.OffsetUnits == "" {
		cfg.Diff.OffsetUnits = patch.UnitsCodepoint
	}
	if cfg.Annotations.FuzzyThreshold == 0 {
		cfg.Annotations.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}
