// Package types defines the shared types used across rehearsal packages.
//
// These types form the lingua franca between capability providers (camera
// classifiers, speech-to-text backends), the practice engine, and the host
// bridge. Each package defines its own domain types; cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// Frame is a single camera frame handed to a visual classifier.
// Frames are delivered by the host in capture order while a capture window is
// open and are never retained after classification.
type Frame struct {
	// Data is the encoded image payload (see Format).
	Data []byte

	// Format names the encoding of Data, e.g. "jpeg", "png" or "nv21".
	Format string

	// Width and Height are the frame dimensions in pixels. Zero when unknown.
	Width  int
	Height int

	// Timestamp marks when the frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Transcript represents a speech-to-text result from a transcriber.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the provider
	// does not report confidence.
	Confidence float64

	// Words contains per-word detail when available.
	// May be nil for providers that don't support word-level output.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from transcribers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost represents a keyword to boost in speech recognition.
// The practice engine boosts the words of the reference sentence so that the
// recogniser favours the vocabulary the learner is expected to say.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "apples").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Capability is a device capability the engine needs permission for.
type Capability string

const (
	CapabilityCamera     Capability = "camera"
	CapabilityMicrophone Capability = "microphone"
)
