// Package bridge connects browser clients to practice sessions over a
// websocket.
//
// Each connection owns one [session.Controller]. The client drives it with
// JSON text messages ("load", "start", "begin_capture", ...), streams camera
// frames as "frame" messages and microphone audio as binary PCM messages.
// The server pushes "state" snapshots, "play" requests for the host media
// player, "permission_request" prompts and the score results. The bridge
// itself implements [host.MediaPlayer] and [host.PermissionGate] by
// round-tripping through the client.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/rehearsal/internal/observe"
	"github.com/MrWong99/rehearsal/internal/scene"
	"github.com/MrWong99/rehearsal/internal/session"
)

const (
	defaultReadLimit = 1 << 20
	writeTimeout     = 5 * time.Second
	outboxSize       = 64
)

// ErrShuttingDown is the close reason sent to clients on server shutdown.
var ErrShuttingDown = errors.New("bridge: server shutting down")

// Config configures a [Server].
type Config struct {
	// Source loads the sections clients ask for. Required.
	Source scene.Source

	// Session returns the template for each new controller. The bridge sets
	// SessionID, Media, Permissions and the score callbacks itself. It is
	// called once per connection so settings may change between sessions.
	Session func() session.Config

	// OriginPatterns lists extra host patterns allowed to open the
	// websocket. The request's own host is always allowed.
	OriginPatterns []string

	// MaxSessions caps concurrent connections. Zero means unlimited.
	MaxSessions int

	// ReadLimit caps a single client message in bytes. Default 1 MiB.
	ReadLimit int64

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Server is an http.Handler that upgrades requests to practice sessions.
type Server struct {
	cfg Config
	log *slog.Logger

	base   context.Context
	cancel context.CancelFunc

	active atomic.Int64

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New validates cfg and returns a [Server].
func New(cfg Config) (*Server, error) {
	if cfg.Source == nil {
		return nil, errors.New("bridge: Source is required")
	}
	if cfg.Session == nil {
		cfg.Session = func() session.Config { return session.Config{} }
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		log:    cfg.Logger,
		base:   base,
		cancel: cancel,
	}, nil
}

// ActiveSessions returns the number of open practice connections.
func (s *Server) ActiveSessions() int64 { return s.active.Load() }

// ServeHTTP upgrades the request and runs a practice session until the
// client disconnects or the server shuts down.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	n := s.active.Add(1)
	defer s.active.Add(-1)
	if s.cfg.MaxSessions > 0 && n > int64(s.cfg.MaxSessions) {
		s.log.Warn("rejecting practice session, at capacity", "max_sessions", s.cfg.MaxSessions)
		http.Error(w, "too many practice sessions", http.StatusServiceUnavailable)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.OriginPatterns,
	})
	if err != nil {
		s.log.Debug("websocket accept failed", "err", err)
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Close with a status before cancelling: a cancelled read drops the
	// connection without one.
	stop := context.AfterFunc(s.base, func() {
		ws.Close(websocket.StatusGoingAway, ErrShuttingDown.Error())
		cancel()
	})
	defer stop()

	id := r.Header.Get(observe.SessionHeader)
	if id == "" {
		id = uuid.NewString()
	}
	ctx = observe.WithSessionID(ctx, id)

	c, err := s.newConn(ctx, id, ws)
	if err != nil {
		s.log.Error("create practice session", "err", err)
		ws.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	err = c.run(ctx)

	switch {
	case s.base.Err() != nil:
		ws.Close(websocket.StatusGoingAway, ErrShuttingDown.Error())
	case err != nil && !errors.Is(err, errClientGone):
		c.log.Warn("practice connection ended", "err", err)
		ws.Close(websocket.StatusInternalError, "internal error")
	default:
		ws.Close(websocket.StatusNormalClosure, "")
	}
}

// Shutdown stops accepting sessions, ends the open ones and waits for them
// or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bridge: shutdown: %w", ctx.Err())
	}
}
