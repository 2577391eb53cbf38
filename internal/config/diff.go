package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PracticeChanged is set when practice settings changed. They apply to
	// sessions started after the reload.
	PracticeChanged bool

	// RestartRequired names the top-level sections that changed but are only
	// read at startup (server, providers, scenes, telemetry).
	RestartRequired []string
}

// Empty reports whether the diff holds no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.PracticeChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.PracticeChanged = old.Practice != new.Practice

	// Log level is hot; compare the rest of the server block without it.
	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Scenes != new.Scenes {
		d.RestartRequired = append(d.RestartRequired, "scenes")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}
