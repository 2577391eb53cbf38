// Package practice implements the scene runner: the state machine that walks
// a section scene by scene, opens capture windows, and scores them.
//
// The [Runner] is driven entirely by explicit events (media ended, timer
// finished, final transcript, ...) and answers each event with a list of
// [Effect] values for its owner to execute. It performs no I/O, starts no
// goroutines and is not safe for concurrent use; the session controller
// serialises calls into it.
//
// Stale events are harmless: every media request, timer and capture window
// carries an ID, and events naming an ID that is no longer current are
// ignored.
package practice

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/rehearsal/internal/scene"
	"github.com/MrWong99/rehearsal/internal/scoring"
)

// ErrInvalidState is returned when an operation is not allowed in the
// runner's current state.
var ErrInvalidState = errors.New("practice: invalid state")

// Option configures a [Runner].
type Option func(*Runner)

// WithScorer sets the transcript scorer. The default matches tokens exactly.
func WithScorer(s *scoring.TranscriptScorer) Option {
	return func(r *Runner) {
		r.scorer = s
	}
}

// WithLogger sets the logger used for skipped scenes.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner executes one section.
type Runner struct {
	scorer *scoring.TranscriptScorer
	log    *slog.Logger
	now    func() time.Time

	section *scene.Section
	state   State
	index   int
	err     error

	seq        uint64
	mediaToken uint64
	timerID    uint64
	remaining  int
	finalizing bool
	response   bool

	window   *CaptureWindow
	captures []scoring.SessionScore
	last     *scoring.SessionScore
	final    *scoring.SessionScore
}

// New returns an idle Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		scorer: scoring.NewTranscriptScorer(),
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// View is a read-only snapshot of the runner for observers.
type View struct {
	State      State
	SceneIndex int
	SceneCount int
	SceneType  scene.Type
	PromptText string

	// ShowMicControls is set while a speech practice scene waits for, or
	// runs, its recording. MicSeconds is the recording length.
	ShowMicControls bool
	MicSeconds      int

	// SecondsRemaining is the countdown of the active timer.
	SecondsRemaining int

	// PlayingResponse is set while an inserted response clip plays.
	PlayingResponse bool

	WindowID   uint64
	Captures   int
	LastScore  *scoring.SessionScore
	FinalScore *scoring.SessionScore
	Err        error
}

// View returns the current state for observers.
func (r *Runner) View() View {
	v := View{
		State:            r.state,
		SceneIndex:       r.index,
		SecondsRemaining: r.remaining,
		PlayingResponse:  r.response,
		Captures:         len(r.captures),
		LastScore:        r.last,
		FinalScore:       r.final,
		Err:              r.err,
	}
	if r.window != nil {
		v.WindowID = r.window.ID
	}
	if r.section == nil {
		return v
	}
	v.SceneCount = len(r.section.Scenes)
	if sc, ok := r.current(); ok {
		v.SceneType = sc.Type
		v.PromptText = sc.PromptText
		if sc.Type == scene.TypeSpeechPractice && (r.state == StateAwaitingInput || r.state == StateCapturing) {
			v.ShowMicControls = true
			v.MicSeconds = *sc.DurationSeconds
		}
	}
	return v
}

// State returns the current state.
func (r *Runner) State() State { return r.state }

// Window returns the open capture window, or nil.
func (r *Runner) Window() *CaptureWindow { return r.window }

// Start begins sec at scene 0. It fails unless the runner is idle or the
// section has no scenes.
func (r *Runner) Start(sec *scene.Section) ([]Effect, error) {
	if r.state != StateIdle || r.section != nil {
		return nil, fmt.Errorf("%w: start while %s", ErrInvalidState, r.state)
	}
	if err := sec.Validate(); err != nil {
		return nil, err
	}
	r.section = sec.Clone()
	r.index = 0
	return r.dispatch(nil), nil
}

// Advance abandons the current scene and moves on. An open capture is
// finalised and scored first. Advance after completion is a no-op.
func (r *Runner) Advance() []Effect {
	if r.section == nil || r.state.Terminal() {
		return nil
	}
	if r.state == StateCapturing {
		return r.finalize(nil)
	}
	effects := r.stopTimer(nil)
	r.mediaToken = 0
	return r.next(effects)
}

// MediaEnded reports that the clip requested with token finished.
func (r *Runner) MediaEnded(token uint64) []Effect {
	if r.state != StatePlayingMedia || token == 0 || token != r.mediaToken {
		return nil
	}
	r.mediaToken = 0
	return r.next(nil)
}

// AcknowledgeInstruction reports that the learner dismissed an instruction.
func (r *Runner) AcknowledgeInstruction() []Effect {
	sc, ok := r.current()
	if r.state != StateAwaitingInput || !ok || sc.Type != scene.TypeShowInstruction {
		return nil
	}
	return r.next(nil)
}

// CanBeginCapture reports whether BeginCapture would open a window.
func (r *Runner) CanBeginCapture() bool {
	sc, ok := r.current()
	if !ok {
		return false
	}
	switch r.state {
	case StateAwaitingInput:
		return sc.Type == scene.TypeSpeechPractice
	case StatePreparing:
		return true
	}
	return false
}

// BeginCapture opens the capture window of the current speech practice scene,
// or cuts a shadowing prep short. It is a no-op when a window is already
// open or the current scene does not capture.
func (r *Runner) BeginCapture() []Effect {
	if !r.CanBeginCapture() {
		return nil
	}
	effects := r.stopTimer(nil)
	return r.openCapture(effects)
}

// TimerTick records the remaining steps of timer id.
func (r *Runner) TimerTick(id uint64, remaining int) bool {
	if id == 0 || id != r.timerID {
		return false
	}
	r.remaining = remaining
	return true
}

// TimerFinished reports that timer id elapsed or was cancelled.
func (r *Runner) TimerFinished(id uint64) []Effect {
	if id == 0 || id != r.timerID {
		return nil
	}
	r.timerID = 0
	r.remaining = 0
	switch r.state {
	case StatePreparing:
		return r.openCapture(nil)
	case StateCapturing:
		return r.finalize(nil)
	}
	return nil
}

// TranscriptFinal reports that window windowID received its final
// transcript. The capture countdown is cancelled so the window finalises
// through the regular timer path.
func (r *Runner) TranscriptFinal(windowID uint64) []Effect {
	return r.endEarly(windowID)
}

// TranscriberFailed reports that the transcript stream of window windowID
// broke. The window finalises early with whatever partial text it holds.
func (r *Runner) TranscriberFailed(windowID uint64, err error) []Effect {
	if r.window == nil || r.window.ID != windowID {
		return nil
	}
	r.window.FailTranscriber(err)
	return r.endEarly(windowID)
}

func (r *Runner) endEarly(windowID uint64) []Effect {
	if r.state != StateCapturing || r.window == nil || r.window.ID != windowID || r.finalizing {
		return nil
	}
	if r.timerID == 0 {
		return r.finalize(nil)
	}
	r.finalizing = true
	return []Effect{CancelTimer{ID: r.timerID}}
}

// Complete finishes the section now. An open capture is finalised and scored
// first. Calling Complete again, or after the last scene, is a no-op.
func (r *Runner) Complete() []Effect {
	if r.section == nil || r.state.Terminal() {
		return nil
	}
	var effects []Effect
	if r.window != nil {
		effects = append(effects, r.closeWindow(false)...)
	}
	effects = r.stopTimer(effects)
	r.mediaToken = 0
	return r.complete(effects)
}

// Cancel tears the run down with reason: timers are cancelled and the
// runner moves to StateFailed. The open window is closed and scored with
// whatever it collected; the score shows up as LastScore but emits no
// CaptureScored and does not count toward a section score. It is a no-op
// once the runner is terminal.
func (r *Runner) Cancel(reason error) []Effect {
	if r.state.Terminal() {
		return nil
	}
	var effects []Effect
	if r.window != nil {
		w := r.window
		r.window = nil
		res := w.close(r.now(), true)
		score := r.scoreWindow(w, res)
		r.last = &score
		effects = append(effects, CloseCapture{Window: w, Result: res})
	}
	effects = r.stopTimer(effects)
	r.mediaToken = 0
	r.response = false
	r.finalizing = false
	r.state = StateFailed
	r.err = reason
	return effects
}

func (r *Runner) current() (scene.Scene, bool) {
	if r.section == nil || r.index < 0 || r.index >= len(r.section.Scenes) {
		return scene.Scene{}, false
	}
	return r.section.Scenes[r.index], true
}

func (r *Runner) nextID() uint64 {
	r.seq++
	return r.seq
}

func (r *Runner) next(effects []Effect) []Effect {
	r.response = false
	r.index++
	return r.dispatch(effects)
}

// dispatch runs scenes from r.index until one needs to wait for an event.
func (r *Runner) dispatch(effects []Effect) []Effect {
	for {
		sc, ok := r.current()
		if !ok {
			return r.complete(effects)
		}
		if err := sc.Validate(); err != nil {
			r.log.Warn("practice: skipping malformed scene", "section", r.section.ID, "index", r.index, "err", err)
			effects = append(effects, SceneSkipped{Index: r.index, Err: err})
			r.index++
			continue
		}

		switch sc.Type {
		case scene.TypePlayVideo:
			return r.play(effects, sc.VideoRef, false)
		case scene.TypeShowInstruction, scene.TypeSpeechPractice:
			r.state = StateAwaitingInput
			return effects
		case scene.TypeShadowingPractice:
			if prep := sc.Prep(); prep > 0 {
				r.state = StatePreparing
				return r.startTimer(effects, prep, PhasePrep)
			}
			return r.openCapture(effects)
		}
	}
}

func (r *Runner) play(effects []Effect, ref string, response bool) []Effect {
	r.state = StatePlayingMedia
	r.mediaToken = r.nextID()
	r.response = response
	return append(effects, PlayMedia{Token: r.mediaToken, Ref: ref, Response: response})
}

func (r *Runner) startTimer(effects []Effect, seconds int, phase Phase) []Effect {
	r.timerID = r.nextID()
	r.remaining = seconds
	return append(effects, StartTimer{ID: r.timerID, Seconds: seconds, Phase: phase})
}

func (r *Runner) stopTimer(effects []Effect) []Effect {
	if r.timerID == 0 {
		return effects
	}
	effects = append(effects, CancelTimer{ID: r.timerID})
	r.timerID = 0
	r.remaining = 0
	return effects
}

func (r *Runner) openCapture(effects []Effect) []Effect {
	if r.window != nil {
		// At most one window; the open one keeps collecting.
		return effects
	}
	sc, _ := r.current()
	r.window = newWindow(r.nextID(), r.index, r.now())
	r.finalizing = false
	r.state = StateCapturing
	effects = append(effects, OpenCapture{Window: r.window, Scene: sc})
	return r.startTimer(effects, *sc.DurationSeconds, PhaseCapture)
}

// closeWindow closes and scores the open window.
func (r *Runner) closeWindow(cancelled bool) []Effect {
	w := r.window
	r.window = nil
	r.finalizing = false
	res := w.close(r.now(), cancelled)

	sc := r.section.Scenes[w.SceneIndex]
	score := r.scoreWindow(w, res)
	r.captures = append(r.captures, score)
	r.last = &score

	return []Effect{
		CloseCapture{Window: w, Result: res},
		CaptureScored{
			SceneIndex: w.SceneIndex,
			SceneType:  sc.Type,
			Outcome:    SelectOutcome(res.Transcript, res.TranscriberErr),
			Score:      score,
			Result:     res,
		},
	}
}

func (r *Runner) scoreWindow(w *CaptureWindow, res WindowResult) scoring.SessionScore {
	sc := r.section.Scenes[w.SceneIndex]
	return scoring.CaptureScore(res.Mean, r.scorer.Score(res.Transcript, sc.ReferenceSentence))
}

// finalize closes the window, then either plays the response variant for
// the outcome or moves to the next scene.
func (r *Runner) finalize(effects []Effect) []Effect {
	if r.window == nil {
		return effects
	}
	closed := r.closeWindow(false)
	effects = append(effects, closed...)
	effects = r.stopTimer(effects)

	sc, _ := r.current()
	scored := closed[1].(CaptureScored)
	if sc.Type == scene.TypeSpeechPractice {
		if ref, ok := variantFor(sc, scored.Outcome); ok {
			return r.play(effects, ref, true)
		}
	}
	return r.next(effects)
}

func (r *Runner) complete(effects []Effect) []Effect {
	score := scoring.SectionScore(r.captures)
	r.final = &score
	r.state = StateCompleted
	r.remaining = 0
	return append(effects, SectionCompleted{Score: score})
}
