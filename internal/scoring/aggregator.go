// Package scoring turns raw capture signals into points: per-frame
// classifier scores are averaged into a confidence percentage, spoken
// transcripts are matched against a reference sentence, and both are combined
// into a [SessionScore].
package scoring

import "sync"

// MinMean is the mean reported by an aggregator that received no frames.
const MinMean = 1.0

// MaxFrameScore is the highest per-frame score a classifier label maps to.
const MaxFrameScore = 5

type aggState int

const (
	aggIdle aggState = iota
	aggOpen
	aggClosed
)

// Aggregator collects per-frame confidence scores during one capture window
// and reduces them to their arithmetic mean. An Aggregator is single-use:
// Open, any number of Submit calls, then Close. All methods are safe for
// concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	state  aggState
	sum    int
	scores []int
	mean   float64
}

// Open starts accepting scores. It has no effect once the aggregator has
// been opened.
func (a *Aggregator) Open() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == aggIdle {
		a.state = aggOpen
	}
}

// Submit appends score and reports whether it was accepted. Scores are
// rejected before Open, after Close, and outside 0..5. A zero is a valid
// submission for a label the caller could not map.
func (a *Aggregator) Submit(score int) bool {
	if score < 0 || score > MaxFrameScore {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != aggOpen {
		return false
	}
	a.scores = append(a.scores, score)
	a.sum += score
	return true
}

// Close stops accepting scores and returns the mean, or [MinMean] when no
// score was submitted. Later calls return the same value.
func (a *Aggregator) Close() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == aggClosed {
		return a.mean
	}
	a.state = aggClosed
	a.mean = MinMean
	if n := len(a.scores); n > 0 {
		a.mean = float64(a.sum) / float64(n)
	}
	return a.mean
}

// Len returns the number of accepted scores.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.scores)
}

// Percentage maps a mean on the 1..5 scale to 0..100.
func Percentage(mean float64) float64 {
	return min(max((mean-1)/4*100, 0), 100)
}
