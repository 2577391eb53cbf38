package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/rehearsal/pkg/provider/classifier"
	"github.com/MrWong99/rehearsal/pkg/types"
)

// ClassifierFallback implements [classifier.Classifier] with failover across
// several classification backends.
//
// [classifier.ErrNoResult] is a valid answer about the frame, so it neither
// trips a breaker nor moves the call to the next backend.
type ClassifierFallback struct {
	group *FallbackGroup[classifier.Classifier]
}

var _ classifier.Classifier = (*ClassifierFallback)(nil)

// NewClassifierFallback creates a [ClassifierFallback] with primary as the
// preferred backend. cfg.CircuitBreaker.IsFailure is wrapped so that
// ErrNoResult never counts.
func NewClassifierFallback(primary classifier.Classifier, primaryName string, cfg FallbackConfig) *ClassifierFallback {
	base := cfg.CircuitBreaker.IsFailure
	if base == nil {
		base = CountsAsFailure
	}
	cfg.CircuitBreaker.IsFailure = func(err error) bool {
		return !errors.Is(err, classifier.ErrNoResult) && base(err)
	}
	return &ClassifierFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *ClassifierFallback) AddFallback(name string, c classifier.Classifier) {
	f.group.AddFallback(name, c)
}

// Status reports the breaker state of every backend.
func (f *ClassifierFallback) Status() []EntryStatus { return f.group.Status() }

// Healthy reports whether any backend would accept a frame.
func (f *ClassifierFallback) Healthy() bool { return f.group.Healthy() }

// Classify runs the frame through the first healthy backend.
func (f *ClassifierFallback) Classify(ctx context.Context, frame types.Frame) (classifier.Result, error) {
	return ExecuteWithResult(ctx, f.group, func(c classifier.Classifier) (classifier.Result, error) {
		return c.Classify(ctx, frame)
	})
}
