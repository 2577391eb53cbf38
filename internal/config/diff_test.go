package config_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/MrWong99/rehearsal/internal/config"
)

func diffBase() *config.Config {
	cfg := &config.Config{Scenes: config.ScenesConfig{LibraryFile: "sections.yaml"}}
	cfg.ApplyDefaults()
	return cfg
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*config.Config)
		wantLevel    bool
		wantPractice bool
		wantRestart  []string
	}{
		{name: "no changes", mutate: func(*config.Config) {}},
		{
			name:      "log level",
			mutate:    func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLevel: true,
		},
		{
			name:         "practice",
			mutate:       func(c *config.Config) { c.Practice.TickInterval = 250 * time.Millisecond },
			wantPractice: true,
		},
		{
			name:        "listen address",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":9999" },
			wantRestart: []string{"server"},
		},
		{
			name: "providers and scenes",
			mutate: func(c *config.Config) {
				c.Providers.STT.Fallbacks = []config.ProviderEntry{{Name: "deepgram"}}
				c.Scenes.PollInterval = time.Minute
			},
			wantRestart: []string{"providers", "scenes"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old, updated := diffBase(), diffBase()
			tt.mutate(updated)

			d := config.Diff(old, updated)
			if d.LogLevelChanged != tt.wantLevel {
				t.Errorf("LogLevelChanged = %v", d.LogLevelChanged)
			}
			if tt.wantLevel && d.NewLogLevel != updated.Server.LogLevel {
				t.Errorf("NewLogLevel = %q", d.NewLogLevel)
			}
			if d.PracticeChanged != tt.wantPractice {
				t.Errorf("PracticeChanged = %v", d.PracticeChanged)
			}
			if !reflect.DeepEqual(d.RestartRequired, tt.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.wantRestart)
			}
			wantEmpty := !tt.wantLevel && !tt.wantPractice && len(tt.wantRestart) == 0
			if d.Empty() != wantEmpty {
				t.Errorf("Empty() = %v", d.Empty())
			}
		})
	}
}
