package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in backend names per kind. [Validate]
// warns about others since they may be registered by an embedding program.
var ValidProviderNames = map[string][]string{
	"classifier": {"remote"},
	"stt":        {"deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg is coherent and returns every problem found,
// joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions must not be negative, got %d", cfg.Server.MaxSessions))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	if sim := cfg.Practice.PhoneticSimilarity; sim < 0 || sim > 1 {
		errs = append(errs, fmt.Errorf("practice.phonetic_similarity %.2f is out of range [0, 1]", sim))
	}
	if cfg.Practice.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("practice.sample_rate must not be negative, got %d", cfg.Practice.SampleRate))
	}

	errs = append(errs, validateGroup("classifier", cfg.Providers.Classifier)...)
	errs = append(errs, validateGroup("stt", cfg.Providers.STT)...)
	if cfg.Providers.Classifier.Name == "" {
		slog.Warn("providers.classifier is not configured; clients must submit classified frames themselves")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; clients must submit transcripts themselves")
	}

	switch sc := cfg.Scenes; {
	case sc.LibraryFile == "" && sc.PostgresDSN == "":
		errs = append(errs, errors.New("scenes: one of library_file or postgres_dsn is required"))
	case sc.LibraryFile != "" && sc.PostgresDSN != "":
		errs = append(errs, errors.New("scenes: library_file and postgres_dsn are mutually exclusive"))
	case sc.Migrate && sc.PostgresDSN == "":
		errs = append(errs, errors.New("scenes.migrate requires scenes.postgres_dsn"))
	}

	if p := cfg.Telemetry.MetricsPath; p != "" && p != "-" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", p))
	}
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

func validateGroup(kind string, g ProviderGroup) []error {
	var errs []error
	if g.Name == "" {
		if len(g.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks set without a primary name", kind))
		}
		return errs
	}
	seen := make(map[string]int)
	for i, e := range g.Entries() {
		prefix := fmt.Sprintf("providers.%s", kind)
		if i > 0 {
			prefix = fmt.Sprintf("providers.%s.fallbacks[%d]", kind, i-1)
		}
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[e.Label()]; ok {
			errs = append(errs, fmt.Errorf("%s %q duplicates entry %d; give it a distinct model", prefix, e.Label(), prev))
		}
		seen[e.Label()] = i
		if e.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout must not be negative", prefix))
		}
		validateProviderName(kind, e.Name)
	}
	if g.Breaker.MaxFailures < 0 || g.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("providers.%s.breaker values must not be negative", kind))
	}
	return errs
}

// validateProviderName warns if name is not a built-in backend of kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
