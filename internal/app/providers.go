package app

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/rehearsal/internal/config"
	"github.com/MrWong99/rehearsal/internal/health"
	"github.com/MrWong99/rehearsal/internal/observe"
	"github.com/MrWong99/rehearsal/internal/resilience"
	"github.com/MrWong99/rehearsal/pkg/provider/classifier"
	"github.com/MrWong99/rehearsal/pkg/provider/stt"
)

// Providers holds the inference backends handed to every session. A nil
// field means the backend is not configured and the client reports that
// signal itself.
type Providers struct {
	Classifier  classifier.Classifier
	Transcriber stt.Provider

	classifierGroup *resilience.ClassifierFallback
	sttGroup        *resilience.STTFallback
}

// checkers returns a readiness check per fallback group.
func (p *Providers) checkers() []health.Checker {
	var cs []health.Checker
	if p.classifierGroup != nil {
		cs = append(cs, health.BreakerChecker("classifier", p.classifierGroup))
	}
	if p.sttGroup != nil {
		cs = append(cs, health.BreakerChecker("stt", p.sttGroup))
	}
	return cs
}

// BuildProviders instantiates every configured backend through reg and puts
// each kind behind a fallback group with per-backend circuit breakers.
func BuildProviders(cfg config.ProvidersConfig, reg *config.Registry, m *observe.Metrics, log *slog.Logger) (*Providers, error) {
	ps := &Providers{}

	for _, e := range cfg.Classifier.Entries() {
		c, err := reg.CreateClassifier(e)
		if err != nil {
			return nil, fmt.Errorf("create classifier %q: %w", e.Label(), err)
		}
		if ps.classifierGroup == nil {
			ps.classifierGroup = resilience.NewClassifierFallback(c, e.Label(),
				fallbackConfig(cfg.Classifier.Breaker, m, "classifier", log))
		} else {
			ps.classifierGroup.AddFallback(e.Label(), c)
		}
		log.Info("provider created", "kind", "classifier", "name", e.Label())
	}
	if ps.classifierGroup != nil {
		ps.Classifier = ps.classifierGroup
	}

	for _, e := range cfg.STT.Entries() {
		p, err := reg.CreateSTT(e)
		if err != nil {
			return nil, fmt.Errorf("create stt %q: %w", e.Label(), err)
		}
		if ps.sttGroup == nil {
			ps.sttGroup = resilience.NewSTTFallback(p, e.Label(),
				fallbackConfig(cfg.STT.Breaker, m, "stt", log))
		} else {
			ps.sttGroup.AddFallback(e.Label(), p)
		}
		log.Info("provider created", "kind", "stt", "name", e.Label())
	}
	if ps.sttGroup != nil {
		ps.Transcriber = ps.sttGroup
	}

	return ps, nil
}

func fallbackConfig(b config.BreakerConfig, m *observe.Metrics, kind string, log *slog.Logger) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:   b.MaxFailures,
			ResetTimeout:  b.ResetTimeout,
			OnStateChange: resilience.BreakerObserver(m, kind),
		},
		Observe: resilience.MetricsObserver(m, kind),
		Logger:  log.With("kind", kind),
	}
}
