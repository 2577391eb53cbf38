package main

import (
	"log/slog"

	"github.com/MrWong99/rehearsal/internal/config"
	"github.com/MrWong99/rehearsal/pkg/provider/classifier"
	"github.com/MrWong99/rehearsal/pkg/provider/classifier/remote"
	"github.com/MrWong99/rehearsal/pkg/provider/stt"
	"github.com/MrWong99/rehearsal/pkg/provider/stt/deepgram"
)

// registerBuiltinProviders wires the backend factories that ship with the
// server into reg. Names must match config.ValidProviderNames.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterClassifier("remote", func(entry config.ProviderEntry) (classifier.Classifier, error) {
		var opts []remote.Option
		if entry.APIKey != "" {
			opts = append(opts, remote.WithAPIKey(entry.APIKey))
		}
		if entry.Model != "" {
			opts = append(opts, remote.WithModel(entry.Model))
		}
		if entry.Timeout > 0 {
			opts = append(opts, remote.WithTimeout(entry.Timeout))
		}
		return remote.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
