// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider wraps a streaming transcription service (e.g., Deepgram or an
// on-device recogniser reachable through the host) and exposes a uniform
// streaming interface. The central abstraction is SessionHandle: once opened,
// a session accepts raw PCM audio chunks and emits two streams of Transcript
// values: low-latency partials and authoritative finals.
//
// The practice engine opens one stream per capture window and closes it when
// the window is finalised. A stream that ends because the backend failed
// reports the cause through SessionHandle.Err.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/rehearsal/pkg/types"
)

// ErrNotSupported is returned by optional SessionHandle operations that the
// backend does not implement.
var ErrNotSupported = errors.New("stt: operation not supported")

// StreamConfig describes the audio format and recognition hints for a new
// stream.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider pick its default.
	Language string

	// Keywords is a list of vocabulary hints, typically the words of the
	// reference sentence for the current scene.
	Keywords []types.KeywordBoost
}

// SessionHandle represents an open streaming session. It is an interface so
// that tests can provide mock implementations without a live backend.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio. Calling SendAudio after
	// Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a channel of interim transcripts. The channel is
	// closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals returns a channel of final transcripts. The channel is closed
	// when the session ends.
	Finals() <-chan types.Transcript

	// Err reports why the session ended. It returns nil while the session is
	// running and after a clean Close.
	Err() error

	// SetKeywords replaces the active keyword boost list. Providers that do
	// not support mid-session updates return ErrNotSupported.
	SetKeywords(keywords []types.KeywordBoost) error

	// Close terminates the session and releases all resources. After Close
	// returns, Partials and Finals are closed. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The caller
	// owns the returned SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
