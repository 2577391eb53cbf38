// Package remote provides a Classifier that calls an inference service over
// HTTP.
//
// The service exposes POST {baseURL}/classify accepting a JSON frame and
// answering with {"label": "...", "confidence": 0.87}. A 204 response, an
// empty label, or the label "none" means the frame produced no result.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/rehearsal/pkg/provider/classifier"
	"github.com/MrWong99/rehearsal/pkg/types"
)

const defaultTimeout = 5 * time.Second

// Option is a functional option for configuring the Classifier.
type Option func(*Classifier)

// WithHTTPClient replaces the HTTP client. The client's Timeout is left as is.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Classifier) {
		r.client = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(r *Classifier) {
		r.client.Timeout = d
	}
}

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(r *Classifier) {
		r.apiKey = key
	}
}

// WithModel asks the service for a specific model.
func WithModel(model string) Option {
	return func(r *Classifier) {
		r.model = model
	}
}

// Classifier implements classifier.Classifier against a remote service.
type Classifier struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

var _ classifier.Classifier = (*Classifier)(nil)

// New creates a remote Classifier. baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Classifier, error) {
	if baseURL == "" {
		return nil, errors.New("remote classifier: base URL must not be empty")
	}
	r := &Classifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

type classifyRequest struct {
	Image  []byte `json:"image"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Model  string `json:"model,omitempty"`
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify posts frame to the service and returns its label.
func (r *Classifier) Classify(ctx context.Context, frame types.Frame) (classifier.Result, error) {
	b, err := json.Marshal(classifyRequest{
		Image:  frame.Data,
		Format: frame.Format,
		Width:  frame.Width,
		Height: frame.Height,
		Model:  r.model,
	})
	if err != nil {
		return classifier.Result{}, fmt.Errorf("remote classifier: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/classify", bytes.NewReader(b))
	if err != nil {
		return classifier.Result{}, fmt.Errorf("remote classifier: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return classifier.Result{}, fmt.Errorf("remote classifier: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return classifier.Result{}, classifier.ErrNoResult
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return classifier.Result{}, fmt.Errorf("remote classifier: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return classifier.Result{}, fmt.Errorf("remote classifier: decode: %w", err)
	}
	label := strings.ToLower(strings.TrimSpace(out.Label))
	if label == "" || label == "none" {
		return classifier.Result{}, classifier.ErrNoResult
	}
	return classifier.Result{Label: label, Confidence: out.Confidence}, nil
}
