// Package classifier defines the Classifier interface for visual anxiety
// classification of camera frames.
//
// A classifier is an opaque inference capability: the practice engine hands it
// one frame at a time and receives a label from the five-level relaxed/anxious
// scale. Mapping labels to points is the caller's concern. When the model
// cannot produce a label for a frame (no face, bad exposure) the classifier
// returns ErrNoResult, which callers must treat as "skip this frame" rather
// than as a low score.
//
// Implementations must be safe for concurrent use.
package classifier

import (
	"context"
	"errors"

	"github.com/MrWong99/rehearsal/pkg/types"
)

// ErrNoResult is returned by Classify when the frame yielded no usable label.
var ErrNoResult = errors.New("classifier: no result")

// Labels produced by the built-in backends, most to least confident.
const (
	LabelVeryRelaxed   = "very_relaxed"
	LabelRelaxed       = "relaxed"
	LabelMildlyAnxious = "mildly_anxious"
	LabelAnxious       = "anxious"
	LabelVeryAnxious   = "very_anxious"
)

// Result is the outcome of classifying a single frame.
type Result struct {
	// Label is the predicted class, normally one of the Label* constants.
	// Backends may return labels outside that set; callers decide how to
	// score them.
	Label string

	// Confidence is the model's probability for Label (0.0–1.0). Zero when
	// the backend does not report it.
	Confidence float64
}

// Classifier is the abstraction over any frame classification backend.
type Classifier interface {
	// Classify runs inference on frame. It returns ErrNoResult (possibly
	// wrapped) when no label could be produced.
	Classify(ctx context.Context, frame types.Frame) (Result, error)
}
