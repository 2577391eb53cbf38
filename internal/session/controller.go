// Package session implements the practice session controller: the object
// the host UI talks to.
//
// A [Controller] owns one [practice.Runner] and executes the effects it
// requests. It starts phase timers, feeds camera frames through the visual
// classifier and streams microphone audio to the transcriber while a capture
// window is open. Playback and permission prompts are delegated to the host
// through [host.MediaPlayer] and [host.PermissionGate].
//
// All runner transitions happen under the controller's lock. Calls towards
// the host (media playback and the score callbacks) are queued and delivered
// in order from a separate goroutine, so the host may call straight back into
// the controller from any of them.
//
// Every goroutine, timer and transcriber stream started for a run belongs to
// the controller's resource scope and is gone once [Controller.Close]
// returns.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/rehearsal/internal/observe"
	"github.com/MrWong99/rehearsal/internal/phasetimer"
	"github.com/MrWong99/rehearsal/internal/practice"
	"github.com/MrWong99/rehearsal/internal/scene"
	"github.com/MrWong99/rehearsal/internal/scoring"
	"github.com/MrWong99/rehearsal/pkg/host"
	"github.com/MrWong99/rehearsal/pkg/provider/classifier"
	"github.com/MrWong99/rehearsal/pkg/provider/stt"
	"github.com/MrWong99/rehearsal/pkg/types"
)

var (
	// ErrSectionLoad is reported when no usable section could be loaded. The
	// controller refuses to start in this state.
	ErrSectionLoad = errors.New("session: section not loaded")

	// ErrPermissionDenied is the terminal state after the learner refused
	// camera or microphone access. It is never retried silently.
	ErrPermissionDenied = errors.New("session: permission denied")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("session: controller closed")
)

const (
	defaultFrameQueue = 8
	defaultSampleRate = 16000

	// maxPendingAudio bounds the audio buffered while a transcriber stream is
	// still connecting.
	maxPendingAudio = 64

	referenceBoost = 2.0
)

// Config holds the collaborators and settings of a [Controller].
type Config struct {
	// SessionID identifies the session in logs and telemetry. A random UUID
	// is used when empty.
	SessionID string

	// Media plays video clips. Required.
	Media host.MediaPlayer

	// Permissions asks for camera and microphone access. When nil the host
	// reports the outcome itself through SubmitPermissionResult.
	Permissions host.PermissionGate

	// Classifier scores camera frames passed to OnCameraFrame. When nil,
	// frame scores can still be reported with OnClassifierFrame.
	Classifier classifier.Classifier

	// Transcriber receives the audio passed to OnAudio. When nil,
	// transcripts can still be reported with OnTranscript.
	Transcriber stt.Provider

	// Language is the BCP-47 tag handed to the transcriber.
	Language string

	// SampleRate of the audio passed to OnAudio. Defaults to 16000.
	SampleRate int

	// TickInterval is the length of one countdown step. Defaults to one
	// second.
	TickInterval time.Duration

	// FrameQueueSize bounds the camera frames waiting for the classifier.
	// Frames arriving while the queue is full are dropped. Defaults to 8.
	FrameQueueSize int

	// Scorer scores transcripts. Defaults to exact token matching.
	Scorer *scoring.TranscriptScorer

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// OnCaptureScore is called after every shadowing capture.
	OnCaptureScore func(confidencePoints, speechPoints int)

	// OnSectionComplete is called once with the section score.
	OnSectionComplete func(scoring.SessionScore)
}

// Controller runs one section for one learner. All methods are safe for
// concurrent use. Callers must call Close when done.
type Controller struct {
	id      string
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics
	timer   *phasetimer.Timer
	notify  *notifier

	mu                 sync.Mutex
	runner             *practice.Runner
	section            *scene.Section
	loadErr            error
	started            bool
	awaitingPermission bool
	closed             bool
	counted            bool
	mediaToken         uint64
	run                *resources
	frames             chan frameJob
	capture            *captureState
	subs               subscribers
}

// captureState tracks the producers feeding one capture window.
type captureState struct {
	windowID uint64
	cancel   context.CancelFunc
	span     trace.Span
	stream   stt.SessionHandle
	pending  [][]byte
}

type frameJob struct {
	windowID uint64
	frame    types.Frame
}

// New creates an idle Controller. Load a section, then call Start.
func New(cfg Config) (*Controller, error) {
	if cfg.Media == nil {
		return nil, errors.New("session: media player is required")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.FrameQueueSize <= 0 {
		cfg.FrameQueueSize = defaultFrameQueue
	}
	if cfg.Scorer == nil {
		cfg.Scorer = scoring.NewTranscriptScorer()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger.With("session_id", cfg.SessionID)

	return &Controller{
		id:      cfg.SessionID,
		cfg:     cfg,
		log:     log,
		metrics: cfg.Metrics,
		timer:   phasetimer.New(phasetimer.WithInterval(cfg.TickInterval)),
		notify:  newNotifier(),
		runner: practice.New(
			practice.WithScorer(cfg.Scorer),
			practice.WithLogger(log),
		),
	}, nil
}

// ID returns the session ID.
func (c *Controller) ID() string { return c.id }

// LoadSection sets the section to run. An invalid section puts the controller
// into the ErrSectionLoad state. Loading is only possible before Start.
func (c *Controller) LoadSection(sec *scene.Section) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return fmt.Errorf("%w: load after start", practice.ErrInvalidState)
	}

	switch {
	case sec == nil:
		c.setLoadErr(fmt.Errorf("%w: no section", ErrSectionLoad))
	default:
		if err := sec.Validate(); err != nil {
			c.setLoadErr(fmt.Errorf("%w: %s: %w", ErrSectionLoad, sec.ID, err))
		} else {
			c.section = sec.Clone()
			c.loadErr = nil
			c.log.Info("section loaded", "section", sec.ID, "scenes", len(sec.Scenes))
		}
	}
	c.publish()
	return c.loadErr
}

// LoadSectionFrom loads a section from src. A lookup failure puts the
// controller into the ErrSectionLoad state.
func (c *Controller) LoadSectionFrom(ctx context.Context, src scene.Source, levelID, sectionID string) error {
	sec, err := src.LoadSection(ctx, levelID, sectionID)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return ErrClosed
		}
		if c.started {
			return fmt.Errorf("%w: load after start", practice.ErrInvalidState)
		}
		c.setLoadErr(fmt.Errorf("%w: %s/%s: %w", ErrSectionLoad, levelID, sectionID, err))
		c.publish()
		return c.loadErr
	}
	return c.LoadSection(sec)
}

func (c *Controller) setLoadErr(err error) {
	c.section = nil
	c.loadErr = err
	c.log.Error("section load failed", "err", err)
}

// Start runs the loaded section. Sections with capture scenes first ask for
// camera and microphone access; the first scene starts once access is
// granted. ctx bounds every background task of the run.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case c.started:
		return fmt.Errorf("%w: already started", practice.ErrInvalidState)
	case c.loadErr != nil:
		return c.loadErr
	case c.section == nil:
		return fmt.Errorf("%w: no section", ErrSectionLoad)
	}

	c.started = true
	c.run = newResources(observe.WithSessionID(ctx, c.id))
	c.counted = true
	c.metrics.ActiveSessions.Add(ctx, 1)

	if c.cfg.Classifier != nil {
		frames := make(chan frameJob, c.cfg.FrameQueueSize)
		c.frames = frames
		c.run.Go(func(ctx context.Context) { c.classifyLoop(ctx, frames) })
	}

	caps := requiredCapabilities(c.section)
	if len(caps) == 0 {
		c.begin()
		return nil
	}

	c.awaitingPermission = true
	c.publish()
	if gate := c.cfg.Permissions; gate != nil {
		c.run.Go(func(ctx context.Context) {
			granted, err := gate.Request(ctx, caps)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Warn("permission request failed", "err", err)
				granted = false
			}
			c.SubmitPermissionResult(granted)
		})
	}
	return nil
}

// begin starts the runner. Must be called with c.mu held.
func (c *Controller) begin() {
	effects, err := c.runner.Start(c.section)
	if err != nil {
		c.loadErr = fmt.Errorf("%w: %w", ErrSectionLoad, err)
		c.log.Error("section start failed", "err", err)
		c.finishRun()
		c.publish()
		return
	}
	c.log.Info("section started", "section", c.section.ID)
	c.apply(effects)
	c.publish()
}

// SubmitPermissionResult reports the outcome of the permission prompt. A
// denial, including one that revokes access mid-section, ends the session in
// the ErrPermissionDenied state. An open capture is closed and scored into
// LastScore without counting toward the section.
func (c *Controller) SubmitPermissionResult(granted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.started {
		return
	}
	if c.awaitingPermission {
		c.awaitingPermission = false
		if granted {
			c.begin()
			return
		}
		c.fail(ErrPermissionDenied)
		return
	}
	if !granted && !c.runner.State().Terminal() {
		c.fail(ErrPermissionDenied)
	}
}

// fail tears the run down with reason. Must be called with c.mu held.
func (c *Controller) fail(reason error) {
	c.log.Warn("session failed", "err", reason)
	c.apply(c.runner.Cancel(reason))
	c.finishRun()
	c.publish()
}

// BeginCapture opens the capture of the current speech practice scene, or
// cuts a shadowing prep short. It is a no-op while a capture is open.
func (c *Controller) BeginCapture() {
	c.do(c.runner.BeginCapture)
}

// AcknowledgeInstruction dismisses the current instruction scene.
func (c *Controller) AcknowledgeInstruction() {
	c.do(c.runner.AcknowledgeInstruction)
}

// Advance skips the current scene. An open capture is scored first.
func (c *Controller) Advance() {
	c.do(c.runner.Advance)
}

// MediaEnded reports that the clip currently playing has finished. Hosts
// that invoke the onEnded callback passed to Play do not need it.
func (c *Controller) MediaEnded() {
	c.do(func() []practice.Effect {
		return c.runner.MediaEnded(c.mediaToken)
	})
}

// CompleteSection ends the section now and reports its score. An open
// capture is scored first.
func (c *Controller) CompleteSection() {
	c.do(c.runner.Complete)
}

func (c *Controller) mediaEnded(token uint64) {
	c.do(func() []practice.Effect {
		return c.runner.MediaEnded(token)
	})
}

func (c *Controller) timerTick(id uint64, remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.runner.TimerTick(id, remaining) {
		c.publish()
	}
}

func (c *Controller) timerFinished(id uint64) {
	c.do(func() []practice.Effect {
		return c.runner.TimerFinished(id)
	})
}

// do runs a runner transition and executes its effects.
func (c *Controller) do(fn func() []practice.Effect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.started {
		return
	}
	c.apply(fn())
	c.publish()
}

// OnClassifierFrame submits a frame score (0..5) computed by the host. It
// reports whether the score reached an open capture window.
func (c *Controller) OnClassifierFrame(score int) bool {
	c.mu.Lock()
	var id uint64
	if c.capture != nil && !c.closed {
		id = c.capture.windowID
	}
	c.mu.Unlock()
	if id == 0 {
		c.metrics.RecordFrame(c.ctx(), observe.FrameLate)
		return false
	}
	return c.submitFrame(id, score)
}

// OnCameraFrame queues a camera frame for the classifier. Frames outside a
// capture window, or arriving while the queue is full, are dropped.
func (c *Controller) OnCameraFrame(frame types.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.frames == nil || c.capture == nil {
		c.metrics.RecordFrame(c.ctx(), observe.FrameLate)
		return false
	}
	select {
	case c.frames <- frameJob{windowID: c.capture.windowID, frame: frame}:
		return true
	default:
		c.metrics.RecordFrame(c.ctx(), observe.FrameDropped)
		return false
	}
}

func (c *Controller) submitFrame(windowID uint64, score int) bool {
	c.mu.Lock()
	w := c.runner.Window()
	c.mu.Unlock()

	if w == nil || w.ID != windowID || !w.SubmitFrame(score) {
		c.metrics.RecordFrame(c.ctx(), observe.FrameLate)
		return false
	}
	c.metrics.RecordFrame(c.ctx(), observe.FrameAccepted)
	return true
}

// OnAudio forwards a chunk of PCM audio to the transcriber stream of the open
// capture window. Audio outside a capture window is discarded.
func (c *Controller) OnAudio(chunk []byte) {
	c.mu.Lock()
	cs := c.capture
	if c.closed || cs == nil {
		c.mu.Unlock()
		return
	}
	h := cs.stream
	if h == nil {
		if len(cs.pending) < maxPendingAudio {
			cs.pending = append(cs.pending, bytes.Clone(chunk))
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := h.SendAudio(chunk); err != nil {
		c.log.Debug("send audio failed", "err", err)
	}
}

// OnTranscript records a transcript reported by the host for the open
// capture window. A final transcript ends the capture early.
func (c *Controller) OnTranscript(text string, isFinal bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return
	}
	c.transcriptLocked(c.capture.windowID, text, isFinal)
}

// OnTranscriberError reports that the host's transcriber failed. The open
// capture ends early and scores as no speech.
func (c *Controller) OnTranscriberError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return
	}
	c.transcriberFailedLocked(c.capture.windowID, err)
}

func (c *Controller) transcript(windowID uint64, text string, isFinal bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcriptLocked(windowID, text, isFinal)
}

func (c *Controller) transcriptLocked(windowID uint64, text string, isFinal bool) {
	if c.closed {
		return
	}
	w := c.runner.Window()
	if w == nil || w.ID != windowID || !w.UpdateTranscript(text, isFinal) {
		return
	}
	if !isFinal {
		c.metrics.RecordTranscript(c.ctx(), observe.TranscriptPartial)
		return
	}
	c.metrics.RecordTranscript(c.ctx(), observe.TranscriptFinal)
	c.apply(c.runner.TranscriptFinal(windowID))
	c.publish()
}

func (c *Controller) transcriberFailed(windowID uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcriberFailedLocked(windowID, err)
}

func (c *Controller) transcriberFailedLocked(windowID uint64, err error) {
	if c.closed || err == nil {
		return
	}
	c.metrics.RecordTranscript(c.ctx(), observe.TranscriptError)
	c.log.Warn("transcriber failed", "window", windowID, "err", err)
	c.apply(c.runner.TranscriberFailed(windowID, err))
	c.publish()
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Subscribe returns a channel that receives the current state and every
// change after it. Slow readers only see the latest state. The channel is
// closed by the returned cancel function or by Close.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ch := c.subs.add()
	ch <- c.snapshot()
	if c.closed {
		c.subs.remove(id)
		return ch, func() {}
	}
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.subs.remove(id)
	}
}

// Close stops the session. An open capture is scored into the final
// snapshot's LastScore but does not count toward the section and fires no
// callback. Host calls queued but not yet started are dropped; one already
// running finishes on its own. Close waits for every background task of the
// run and is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.started {
		c.apply(c.runner.Cancel(ErrClosed))
	}
	c.closed = true
	c.finishRun()
	c.publish()
	c.subs.closeAll()
	run := c.run
	c.mu.Unlock()

	if run != nil {
		run.Release()
	}
	c.timer.Cancel()
	c.timer.Wait()
	c.notify.stop()
	c.log.Info("session closed")
	return nil
}

// finishRun stops the producers of a run that reached a terminal state.
// Must be called with c.mu held.
func (c *Controller) finishRun() {
	if c.run != nil {
		c.run.Cancel()
	}
	c.timer.Cancel()
	if c.counted {
		c.counted = false
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

func (c *Controller) ctx() context.Context {
	if c.run != nil {
		return c.run.Context()
	}
	return context.Background()
}

func (c *Controller) snapshot() Snapshot {
	v := c.runner.View()
	s := Snapshot{
		SessionID:          c.id,
		Phase:              v.State,
		AwaitingPermission: c.awaitingPermission,
		SceneIndex:         v.SceneIndex,
		SceneCount:         v.SceneCount,
		SceneType:          v.SceneType,
		PromptText:         v.PromptText,
		ShowMicControls:    v.ShowMicControls,
		MicSeconds:         v.MicSeconds,
		SecondsRemaining:   v.SecondsRemaining,
		ShowAnalysisButton: v.Captures > 0,
		PlayingResponse:    v.PlayingResponse,
		LastScore:          v.LastScore,
		FinalScore:         v.FinalScore,
		Err:                v.Err,
	}
	if c.loadErr != nil {
		s.Err = c.loadErr
	}
	if s.SceneCount == 0 && c.section != nil {
		s.SceneCount = len(c.section.Scenes)
	}
	return s
}

func (c *Controller) publish() {
	c.subs.publish(c.snapshot())
}

func requiredCapabilities(sec *scene.Section) []types.Capability {
	for _, sc := range sec.Scenes {
		if sc.Type.IsCapture() {
			return []types.Capability{types.CapabilityCamera, types.CapabilityMicrophone}
		}
	}
	return nil
}
