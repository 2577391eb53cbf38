package practice

import (
	"github.com/MrWong99/rehearsal/internal/scene"
	"github.com/MrWong99/rehearsal/internal/scoring"
)

// Effect is a side effect requested by the [Runner]. The runner never
// performs I/O; its owner executes effects in the order returned.
type Effect interface {
	effect()
}

// Phase distinguishes the two countdowns of capture scenes.
type Phase string

const (
	PhasePrep    Phase = "prep"
	PhaseCapture Phase = "capture"
)

// PlayMedia asks the host to play Ref and report MediaEnded(Token).
type PlayMedia struct {
	Token uint64
	Ref   string

	// Response is set when Ref is a response variant inserted after a
	// capture.
	Response bool
}

// StartTimer asks for a countdown of Seconds steps. Ticks and the finish are
// reported with ID. Starting a timer replaces any running one.
type StartTimer struct {
	ID      uint64
	Seconds int
	Phase   Phase
}

// CancelTimer asks for the timer with ID to stop early. Its finish is still
// reported.
type CancelTimer struct {
	ID uint64
}

// OpenCapture announces a new capture window. The owner starts feeding it
// frames and transcripts.
type OpenCapture struct {
	Window *CaptureWindow
	Scene  scene.Scene
}

// CloseCapture announces that Window no longer accepts input. Producers
// feeding it must be stopped.
type CloseCapture struct {
	Window *CaptureWindow
	Result WindowResult
}

// CaptureScored carries the score of a finalised capture window.
type CaptureScored struct {
	SceneIndex int
	SceneType  scene.Type
	Outcome    Outcome
	Score      scoring.SessionScore
	Result     WindowResult
}

// SectionCompleted is emitted exactly once per run with the aggregate score.
type SectionCompleted struct {
	Score scoring.SessionScore
}

// SceneSkipped reports a malformed scene that was not executed.
type SceneSkipped struct {
	Index int
	Err   error
}

func (PlayMedia) effect()        {}
func (StartTimer) effect()       {}
func (CancelTimer) effect()      {}
func (OpenCapture) effect()      {}
func (CloseCapture) effect()     {}
func (CaptureScored) effect()    {}
func (SectionCompleted) effect() {}
func (SceneSkipped) effect()     {}
