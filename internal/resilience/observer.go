package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/rehearsal/internal/observe"
	"github.com/MrWong99/rehearsal/pkg/provider/classifier"
)

// MetricsObserver returns a [FallbackConfig.Observe] hook that counts every
// attempt in m under the given provider kind ("classifier", "stt").
func MetricsObserver(m *observe.Metrics, kind string) func(provider string, err error) {
	return func(provider string, err error) {
		ctx := context.Background()
		switch {
		case err == nil:
			m.RecordProviderRequest(ctx, provider, kind, "ok")
		case errors.Is(err, classifier.ErrNoResult):
			m.RecordProviderRequest(ctx, provider, kind, "no_result")
		case errors.Is(err, ErrCallerDone):
			m.RecordProviderRequest(ctx, provider, kind, "cancelled")
		default:
			m.RecordProviderRequest(ctx, provider, kind, "error")
			m.RecordProviderError(ctx, provider, kind)
		}
	}
}

// BreakerObserver returns a [CircuitBreakerConfig.OnStateChange] hook that
// counts transitions into the open state as provider errors of kind.
func BreakerObserver(m *observe.Metrics, kind string) func(name string, from, to State) {
	return func(name string, _, to State) {
		if to == StateOpen {
			m.RecordProviderRequest(context.Background(), name, kind, "circuit_open")
		}
	}
}
