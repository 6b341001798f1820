package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; everything else is
// listed in RestartRequired so the caller can warn about it.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MarkersChanged bool
	NewMarkers     []string

	// RestartRequired names the top-level sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.MarkersChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Markers. Nil and empty differ: nil means defaults, empty disables.
	if !slices.Equal(old.Guard.Markers, new.Guard.Markers) || (old.Guard.Markers == nil) != (new.Guard.Markers == nil) {
		d.MarkersChanged = true
		d.NewMarkers = slices.Clone(new.Guard.Markers)
	}

	// Startup-only sections. The server section is compared without its
	// hot-reloadable log level.
	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"providers", old.Providers, new.Providers},
		{"corrector", old.Corrector, new.Corrector},
		{"diff", old.Diff, new.Diff},
		{"annotations", old.Annotations, new.Annotations},
		{"mcp", old.MCP, new.MCP},
		{"telemetry", old.Telemetry, new.Telemetry},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}

	return d
}
