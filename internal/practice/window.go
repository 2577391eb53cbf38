package practice

import (
	"sync"
	"time"

	"github.com/MrWong99/rehearsal/internal/scoring"
)

// CaptureWindow collects the frame scores and transcript of one capture.
//
// Producers write to it from their own goroutines; the runner is the only
// reader and finaliser. Once closed, every write is rejected and the
// collected data is frozen.
type CaptureWindow struct {
	ID         uint64
	SceneIndex int
	StartedAt  time.Time

	agg scoring.Aggregator

	mu         sync.Mutex
	transcript string
	final      bool
	err        error
	closed     bool
	result     WindowResult
}

// WindowResult is the frozen content of a closed window.
type WindowResult struct {
	// Mean is the aggregated frame score, or scoring.MinMean without frames.
	Mean   float64
	Frames int

	// Transcript is the latest text seen; Final reports whether it was an
	// authoritative result.
	Transcript string
	Final      bool

	// TranscriberErr is the error that ended the transcript stream, if any.
	TranscriberErr error

	// Cancelled is set when the window was closed by teardown rather than
	// by the end of its countdown.
	Cancelled bool

	Duration time.Duration
}

func newWindow(id uint64, sceneIndex int, now time.Time) *CaptureWindow {
	w := &CaptureWindow{ID: id, SceneIndex: sceneIndex, StartedAt: now}
	w.agg.Open()
	return w
}

// SubmitFrame appends a frame score (0..5) and reports whether it was
// accepted.
func (w *CaptureWindow) SubmitFrame(score int) bool {
	return w.agg.Submit(score)
}

// UpdateTranscript replaces the latest transcript. Once a final transcript
// has been recorded, later updates are ignored.
func (w *CaptureWindow) UpdateTranscript(text string, isFinal bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.final {
		return false
	}
	w.transcript = text
	w.final = isFinal
	return true
}

// FailTranscriber records the error that ended the transcript stream. It is
// ignored after a final transcript or once closed.
func (w *CaptureWindow) FailTranscriber(err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.final || w.err != nil || err == nil {
		return false
	}
	w.err = err
	return true
}

// Transcript returns the latest transcript and whether it is final.
func (w *CaptureWindow) Transcript() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transcript, w.final
}

// close freezes the window. Later calls return the first result.
func (w *CaptureWindow) close(now time.Time, cancelled bool) WindowResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.result
	}
	w.closed = true
	mean := w.agg.Close()
	w.result = WindowResult{
		Mean:           mean,
		Frames:         w.agg.Len(),
		Transcript:     w.transcript,
		Final:          w.final,
		TranscriberErr: w.err,
		Cancelled:      cancelled,
		Duration:       now.Sub(w.StartedAt),
	}
	return w.result
}
