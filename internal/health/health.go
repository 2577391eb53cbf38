// Package health serves the liveness and readiness checks of the rehearsal
// server.
//
// /healthz answers 200 while the process can serve HTTP. /readyz answers 200
// only when every registered [Checker] passes and the server is not
// draining. Both respond with a JSON object carrying a top-level "status"
// ("ok" or "fail"), the per-check results and the number of live practice
// sessions when a counter is installed.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// ErrDraining is reported by /readyz after [Handler.SetDraining].
var ErrDraining = errors.New("health: server is draining")

// Checker is a named readiness check. Check returns nil when the dependency
// is healthy and must respect ctx.
type Checker struct {
	// Name appears as a key in the JSON response (e.g. "scenes",
	// "classifier").
	Name string

	Check func(ctx context.Context) error
}

// Pinger is a dependency that can be pinged, such as the Postgres scene
// source.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps p as a [Checker].
func PingChecker(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Breaker is anything that reports per-backend circuit state, such as the
// classifier and transcriber fallback groups.
type Breaker interface {
	Healthy() bool
}

// BreakerChecker fails while every backend behind b has an open circuit.
func BreakerChecker(name string, b Breaker) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !b.Healthy() {
			return fmt.Errorf("all %s backends have open circuits", name)
		}
		return nil
	}}
}

type result struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Sessions *int64            `json:"sessions,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	draining atomic.Bool
	sessions func() int64
}

// New creates a [Handler] that runs the given checkers concurrently on each
// /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// WithSessionCount installs a counter reported as "sessions" in both
// responses.
func (h *Handler) WithSessionCount(fn func() int64) *Handler {
	h.sessions = fn
	return h
}

// SetDraining marks the server as shutting down. Readiness fails from then
// on so load balancers stop routing new practice sessions here.
func (h *Handler) SetDraining(v bool) {
	h.draining.Store(v)
}

// Healthz is the liveness check.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.result("ok", nil))
}

// Readyz is the readiness check. Each checker gets its own [checkTimeout]
// derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers)+1)
		failed bool
	)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			checks[name] = "fail: " + err.Error()
			failed = true
			return
		}
		checks[name] = "ok"
	}

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			record(c.Name, c.Check(ctx))
			return nil
		})
	}
	_ = g.Wait()

	if h.draining.Load() {
		record("draining", ErrDraining)
	}

	if failed {
		writeJSON(w, http.StatusServiceUnavailable, h.result("fail", checks))
		return
	}
	writeJSON(w, http.StatusOK, h.result("ok", checks))
}

func (h *Handler) result(status string, checks map[string]string) result {
	res := result{Status: status, Checks: checks}
	if h.sessions != nil {
		n := h.sessions()
		res.Sessions = &n
	}
	return res
}

// Failing lists the names of failing checks in a /readyz body, sorted by
// name. The server binary uses it for its -healthcheck mode.
func Failing(body []byte) ([]string, error) {
	var res result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("health: decode response: %w", err)
	}
	var out []string
	for name, v := range res.Checks {
		if strings.HasPrefix(v, "fail") {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
