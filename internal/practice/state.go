package practice

import (
	"strings"

	"github.com/MrWong99/rehearsal/internal/scene"
)

// State is the lifecycle state of a [Runner].
type State int

const (
	StateIdle State = iota
	StatePlayingMedia
	StateAwaitingInput
	StatePreparing
	StateCapturing
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StatePlayingMedia:  "playing_media",
	StateAwaitingInput: "awaiting_input",
	StatePreparing:     "preparing",
	StateCapturing:     "capturing",
	StateCompleted:     "completed",
	StateFailed:        "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further scene will run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Outcome labels how a capture went. It selects the response variant of a
// speech practice scene.
type Outcome string

const (
	OutcomeFluent   Outcome = "fluent"
	OutcomeNoSpeech Outcome = "no_speech"

	// OutcomeNervous is accepted as a variant key but never selected: there
	// is no speech signal for nervousness yet.
	OutcomeNervous Outcome = "nervous"
)

// SelectOutcome returns no_speech when nothing usable was heard (empty
// transcript or a failed transcriber) and fluent otherwise.
func SelectOutcome(transcript string, transcriberErr error) Outcome {
	if transcriberErr != nil || strings.TrimSpace(transcript) == "" {
		return OutcomeNoSpeech
	}
	return OutcomeFluent
}

// variantFor looks up the response clip for o. Sections authored before the
// no_speech key existed file that clip under "nervous".
func variantFor(sc scene.Scene, o Outcome) (string, bool) {
	if ref, ok := sc.ResponseVariants[string(o)]; ok && ref != "" {
		return ref, true
	}
	if o == OutcomeNoSpeech {
		if ref, ok := sc.ResponseVariants[string(OutcomeNervous)]; ok && ref != "" {
			return ref, true
		}
	}
	return "", false
}
