package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/textfix/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Guard:  config.GuardConfig{Markers: []string{"****"}},
	}
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Errorf("expected no hot-reloadable changes, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("expected no restart-only changes, got %v", d.RestartRequired)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level alone must not require a restart, got %v", d.RestartRequired)
	}
}

func TestDiff_Markers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		old, new []string
		want     bool
	}{
		{"identical", []string{"****"}, []string{"****"}, false},
		{"added", []string{"****"}, []string{"****", "##"}, true},
		{"replaced", []string{"****"}, []string{"##"}, true},
		{"reordered", []string{"a", "b"}, []string{"b", "a"}, true},
		{"disabled", []string{"****"}, []string{}, true},
		{"nil versus empty", nil, []string{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := config.Diff(
				&config.Config{Guard: config.GuardConfig{Markers: tt.old}},
				&config.Config{Guard: config.GuardConfig{Markers: tt.new}},
			)
			if d.MarkersChanged != tt.want {
				t.Errorf("MarkersChanged = %v, want %v", d.MarkersChanged, tt.want)
			}
			if d.MarkersChanged && !slices.Equal(d.NewMarkers, tt.new) {
				t.Errorf("NewMarkers = %v, want %v", d.NewMarkers, tt.new)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"}},
		Corrector: config.CorrectorConfig{Timeout: time.Second},
	}
	new := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":9090", LogLevel: config.LogDebug},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o"}},
		Corrector: config.CorrectorConfig{Timeout: time.Second},
	}

	d := config.Diff(old, new)
	want := []string{"server", "providers"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true alongside restart-only changes")
	}
}
