package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/rehearsal/internal/observe"
	"github.com/MrWong99/rehearsal/internal/practice"
	"github.com/MrWong99/rehearsal/internal/scene"
	"github.com/MrWong99/rehearsal/internal/scoring"
	"github.com/MrWong99/rehearsal/pkg/provider/classifier"
	"github.com/MrWong99/rehearsal/pkg/provider/stt"
	"github.com/MrWong99/rehearsal/pkg/types"
)

// apply executes runner effects in order. Must be called with c.mu held.
// Nothing here blocks: host calls are queued on the notifier and producers
// run in the resource scope.
func (c *Controller) apply(effects []practice.Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case practice.PlayMedia:
			c.mediaToken = e.Token
			token, ref := e.Token, e.Ref
			c.log.Debug("play media", "ref", ref, "response", e.Response)
			c.notify.push(func() {
				c.cfg.Media.Play(ref, func() { c.mediaEnded(token) })
			})

		case practice.StartTimer:
			id := e.ID
			c.timer.Start(e.Seconds,
				func(remaining int) { c.timerTick(id, remaining) },
				func() { c.timerFinished(id) },
			)

		case practice.CancelTimer:
			c.timer.Cancel()

		case practice.OpenCapture:
			c.openCapture(e)

		case practice.CloseCapture:
			c.closeCapture(e)

		case practice.CaptureScored:
			c.captureScored(e)

		case practice.SectionCompleted:
			c.sectionCompleted(e)

		case practice.SceneSkipped:
			c.metrics.RecordSceneSkipped(c.ctx(), skipReason(e.Err))
		}
	}
}

func (c *Controller) openCapture(e practice.OpenCapture) {
	ctx, cancel := context.WithCancel(c.ctx())
	ctx, span := observe.StartSpan(ctx, "practice.capture")
	span.SetAttributes(
		observe.Attr("scene.type", string(e.Scene.Type)),
		observe.Attr("section.id", c.section.ID),
	)

	cs := &captureState{windowID: e.Window.ID, cancel: cancel, span: span}
	c.capture = cs
	c.metrics.ActiveCaptures.Add(ctx, 1)
	c.log.Debug("capture opened", "window", e.Window.ID, "scene", e.Window.SceneIndex)

	if c.cfg.Transcriber == nil {
		return
	}
	cfg := stt.StreamConfig{
		SampleRate: c.cfg.SampleRate,
		Channels:   1,
		Language:   c.cfg.Language,
		Keywords:   referenceKeywords(e.Scene.ReferenceSentence),
	}
	id := e.Window.ID
	c.run.Go(func(context.Context) { c.pumpTranscripts(ctx, id, cfg) })
}

func (c *Controller) closeCapture(e practice.CloseCapture) {
	cs := c.capture
	if cs == nil || cs.windowID != e.Window.ID {
		return
	}
	c.capture = nil
	cs.cancel()

	cs.span.SetAttributes(
		attribute.Int("capture.frames", e.Result.Frames),
		attribute.Bool("capture.cancelled", e.Result.Cancelled),
	)
	cs.span.End()
	c.metrics.ActiveCaptures.Add(context.Background(), -1)
	c.log.Debug("capture closed",
		"window", e.Window.ID,
		"frames", e.Result.Frames,
		"mean", e.Result.Mean,
		"final", e.Result.Final,
		"cancelled", e.Result.Cancelled,
	)
}

func (c *Controller) captureScored(e practice.CaptureScored) {
	pct := scoring.Percentage(e.Result.Mean)
	c.metrics.RecordCapture(c.ctx(), string(e.SceneType), string(e.Outcome), e.Result.Duration, pct, e.Score.SpeechPoints)
	c.log.Info("capture scored",
		"scene", e.SceneIndex,
		"type", e.SceneType,
		"outcome", e.Outcome,
		"confidence", e.Score.ConfidencePoints,
		"speech", e.Score.SpeechPoints,
	)

	if e.SceneType != scene.TypeShadowingPractice || c.cfg.OnCaptureScore == nil {
		return
	}
	cb := c.cfg.OnCaptureScore
	conf, speech := e.Score.ConfidencePoints, e.Score.SpeechPoints
	c.notify.push(func() { cb(conf, speech) })
}

func (c *Controller) sectionCompleted(e practice.SectionCompleted) {
	c.metrics.RecordSectionCompleted(c.ctx())
	c.log.Info("section completed",
		"total", e.Score.TotalPoints,
		"captures", e.Score.Captures,
	)
	if cb := c.cfg.OnSectionComplete; cb != nil {
		score := e.Score
		c.notify.push(func() { cb(score) })
	}
	c.finishRun()
}

// classifyLoop classifies queued frames one at a time until ctx ends.
func (c *Controller) classifyLoop(ctx context.Context, frames <-chan frameJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-frames:
			c.classify(ctx, job)
		}
	}
}

func (c *Controller) classify(ctx context.Context, job frameJob) {
	start := time.Now()
	res, err := c.cfg.Classifier.Classify(ctx, job.frame)
	c.metrics.ClassifierDuration.Record(ctx, time.Since(start).Seconds())

	switch {
	case errors.Is(err, classifier.ErrNoResult):
		c.metrics.RecordFrame(ctx, observe.FrameNoResult)
		return
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordFrame(ctx, observe.FrameError)
		c.log.Debug("classify frame failed", "err", err)
		return
	}
	c.submitFrame(job.windowID, scoring.LabelPoints(scoring.Label(res.Label)))
}

// pumpTranscripts opens a transcriber stream for one capture window and
// relays its transcripts until the window closes or the stream ends.
func (c *Controller) pumpTranscripts(ctx context.Context, windowID uint64, cfg stt.StreamConfig) {
	h, err := c.cfg.Transcriber.StartStream(ctx, cfg)
	if err != nil {
		if ctx.Err() == nil {
			c.transcriberFailed(windowID, err)
		}
		return
	}
	defer func() {
		if err := h.Close(); err != nil {
			c.log.Debug("close transcriber stream", "err", err)
		}
	}()

	c.mu.Lock()
	cs := c.capture
	if cs == nil || cs.windowID != windowID {
		c.mu.Unlock()
		return
	}
	cs.stream = h
	pending := cs.pending
	cs.pending = nil
	c.mu.Unlock()

	for _, chunk := range pending {
		if err := h.SendAudio(chunk); err != nil {
			c.log.Debug("send buffered audio failed", "err", err)
			break
		}
	}

	partials, finals := h.Partials(), h.Finals()
	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			c.transcript(windowID, t.Text, false)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			c.transcript(windowID, t.Text, true)
		}
	}
	if err := h.Err(); err != nil && ctx.Err() == nil {
		c.transcriberFailed(windowID, err)
	}
}

// referenceKeywords boosts every distinct word of the reference sentence.
func referenceKeywords(reference string) []types.KeywordBoost {
	set := scoring.TokenSet(reference)
	if len(set) == 0 {
		return nil
	}
	words := make([]string, 0, len(set))
	for w := range set {
		words = append(words, w)
	}
	sort.Strings(words)

	kw := make([]types.KeywordBoost, len(words))
	for i, w := range words {
		kw[i] = types.KeywordBoost{Keyword: w, Boost: referenceBoost}
	}
	return kw
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, scene.ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, scene.ErrMissingDuration):
		return "missing_duration"
	case errors.Is(err, scene.ErrMissingMedia):
		return "missing_media"
	}
	return "invalid"
}
