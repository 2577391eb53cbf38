// Package mock provides a test double for the classifier package interface.
//
// Results are served from a queue in call order; once the queue is empty
// every call returns Default. Use Errs to inject ErrNoResult or transport
// failures at specific positions.
//
// Example:
//
//	c := &mock.Classifier{Results: []classifier.Result{{Label: "relaxed"}}}
//	res, _ := c.Classify(ctx, frame)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/rehearsal/pkg/provider/classifier"
	"github.com/MrWong99/rehearsal/pkg/types"
)

// ClassifyCall records a single invocation of Classifier.Classify.
type ClassifyCall struct {
	// Frame is the frame passed to Classify.
	Frame types.Frame
}

// Classifier is a mock implementation of classifier.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Results is consumed front to back, one entry per call.
	Results []classifier.Result

	// Errs is consumed in lockstep with Results. A nil entry means success.
	// Calls beyond len(Errs) return Err.
	Errs []error

	// Default is returned once Results is exhausted.
	Default classifier.Result

	// Err is returned once Errs is exhausted.
	Err error

	// Block, if non-nil, is received from before every call returns. Tests
	// use it to hold the classifier busy.
	Block chan struct{}

	// Calls records every call to Classify.
	Calls []ClassifyCall
}

// Classify records the call and returns the next queued result.
func (c *Classifier) Classify(ctx context.Context, frame types.Frame) (classifier.Result, error) {
	if c.Block != nil {
		select {
		case <-c.Block:
		case <-ctx.Done():
			return classifier.Result{}, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, ClassifyCall{Frame: frame})

	res := c.Default
	if len(c.Results) > 0 {
		res = c.Results[0]
		c.Results = c.Results[1:]
	}
	err := c.Err
	if len(c.Errs) > 0 {
		err = c.Errs[0]
		c.Errs = c.Errs[1:]
	}
	if err != nil {
		return classifier.Result{}, err
	}
	return res, nil
}

// CallCount returns the number of Classify calls. Thread-safe.
func (c *Classifier) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Ensure Classifier implements classifier.Classifier at compile time.
var _ classifier.Classifier = (*Classifier)(nil)
