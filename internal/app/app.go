// Package app wires the rehearsal subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the scene source,
// provider fallback groups, health checks and the practice bridge; Run serves
// HTTP until its context ends; Shutdown drains sessions and tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithSource,
// WithProviders, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/rehearsal/internal/bridge"
	"github.com/MrWong99/rehearsal/internal/config"
	"github.com/MrWong99/rehearsal/internal/health"
	"github.com/MrWong99/rehearsal/internal/observe"
	"github.com/MrWong99/rehearsal/internal/scene"
	"github.com/MrWong99/rehearsal/internal/scoring"
	"github.com/MrWong99/rehearsal/internal/session"
)

// SectionSource is what the app needs from a scene store: loading for the
// practice bridge and listing for the sections API.
type SectionSource interface {
	scene.Source
	scene.Lister
}

const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	log       *slog.Logger
	level     *slog.LevelVar
	metrics   *observe.Metrics
	providers *Providers

	// practice holds the hot-reloadable session settings.
	practice atomic.Pointer[config.PracticeConfig]

	source SectionSource
	health *health.Handler
	bridge *bridge.Server
	server *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects a scene source instead of building one from
// cfg.Scenes.
func WithSource(s SectionSource) Option {
	return func(a *App) { a.source = s }
}

// WithProviders injects inference backends instead of building them from
// cfg.Providers.
func WithProviders(p *Providers) Option {
	return func(a *App) { a.providers = p }
}

// WithMetrics replaces observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets hot reloads change the log level of a handler built on
// v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Providers are built
// from cfg with reg unless injected with [WithProviders]; reg may be nil in
// that case.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	practice := cfg.Practice
	a.practice.Store(&practice)

	// ── 1. Providers ─────────────────────────────────────────────────────
	if a.providers == nil {
		if reg == nil {
			return nil, errors.New("app: a provider registry is required when providers are not injected")
		}
		ps, err := BuildProviders(cfg.Providers, reg, a.metrics, a.log)
		if err != nil {
			return nil, fmt.Errorf("app: build providers: %w", err)
		}
		a.providers = ps
	}

	// ── 2. Scene source ──────────────────────────────────────────────────
	checkers, err := a.initScenes(ctx)
	if err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init scenes: %w", err)
	}

	// ── 3. Practice bridge ───────────────────────────────────────────────
	a.bridge, err = bridge.New(bridge.Config{
		Source:         a.source,
		Session:        a.sessionConfig,
		OriginPatterns: cfg.Server.AllowedOrigins,
		MaxSessions:    cfg.Server.MaxSessions,
		Metrics:        a.metrics,
		Logger:         a.log,
	})
	if err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init bridge: %w", err)
	}

	// ── 4. Health ────────────────────────────────────────────────────────
	checkers = append(checkers, a.providers.checkers()...)
	a.health = health.New(checkers...).WithSessionCount(a.bridge.ActiveSessions)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}
	return a, nil
}

// initScenes opens the configured section store and returns its readiness
// checkers.
func (a *App) initScenes(ctx context.Context) ([]health.Checker, error) {
	if a.source != nil {
		return nil, nil
	}
	sc := a.cfg.Scenes

	switch {
	case sc.LibraryFile != "":
		w, err := scene.NewLibraryWatcher(sc.LibraryFile,
			scene.WithPollInterval(sc.PollInterval),
			scene.WithOnChange(func(lib *scene.Library) {
				a.log.Info("section library reloaded", "path", sc.LibraryFile, "levels", len(lib.Levels()))
			}),
		)
		if err != nil {
			return nil, err
		}
		a.source = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
		a.log.Info("serving sections from library", "path", sc.LibraryFile, "levels", len(w.Current().Levels()))
		return nil, nil

	case sc.PostgresDSN != "":
		pool, err := pgxpool.New(ctx, sc.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		src := scene.NewPostgresSource(pool)
		if sc.Migrate {
			if err := src.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		a.source = src
		a.log.Info("serving sections from postgres")
		return []health.Checker{health.PingChecker("scenes", src)}, nil
	}
	return nil, errors.New("no scene source configured (scenes.library_file or scenes.postgres_dsn)")
}

// sessionConfig builds the controller config for a new practice connection
// from the current practice settings.
func (a *App) sessionConfig() session.Config {
	p := a.practice.Load()
	var scorerOpts []scoring.ScorerOption
	if p.PhoneticSimilarity > 0 {
		scorerOpts = append(scorerOpts, scoring.WithPhoneticTolerance(p.PhoneticSimilarity))
	}
	return session.Config{
		Classifier:     a.providers.Classifier,
		Transcriber:    a.providers.Transcriber,
		Language:       p.Language,
		SampleRate:     p.SampleRate,
		TickInterval:   p.TickInterval,
		FrameQueueSize: p.FrameQueueSize,
		Scorer:         scoring.NewTranscriptScorer(scorerOpts...),
		Metrics:        a.metrics,
		Logger:         a.log,
	}
}

// Handler returns the HTTP routes of the server, wrapped in the telemetry
// middleware:
//
//	/healthz, /readyz          liveness and readiness
//	/ws                        practice sessions
//	/api/levels/{level}/sections  section listing
//	/metrics                   Prometheus scrape endpoint (configurable)
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /ws", a.bridge)
	mux.Handle("GET /api/", http.StripPrefix("/api", bridge.SectionsHandler(a.source, a.log)))
	if path := a.cfg.Telemetry.MetricsPath; path != "" && path != "-" {
		mux.Handle("GET "+path, promhttp.Handler())
	}
	return observe.Middleware(a.metrics)(mux)
}

// ApplyConfig applies a reloaded config. It matches the callback signature of
// [config.NewWatcher]. Only the log level and the practice settings change
// at runtime; everything else is reported and left for the next restart.
func (a *App) ApplyConfig(_, next *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged {
		a.level.Set(SlogLevel(diff.NewLogLevel))
		a.log.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.PracticeChanged {
		p := next.Practice
		a.practice.Store(&p)
		a.log.Info("practice settings reloaded; new sessions use them",
			"language", p.Language,
			"tick_interval", p.TickInterval,
			"phonetic_similarity", p.PhoneticSimilarity,
		)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully. It returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.log.Info("server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown marks the server as draining, closes practice sessions, stops the
// HTTP server and runs the closers. It respects the context deadline and is
// safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "sessions", a.bridge.ActiveSessions(), "closers", len(a.closers))
		a.health.SetDraining(true)

		// Websockets are hijacked, so the HTTP server does not wait for them.
		var errs []error
		if err := a.bridge.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: http shutdown: %w", err))
		}
		if err := a.runClosers(); err != nil {
			errs = append(errs, err)
		}
		a.stopErr = errors.Join(errs...)
		a.log.Info("shutdown complete")
	})
	return a.stopErr
}

func (a *App) runClosers() error {
	var errs []error
	for i, closer := range a.closers {
		if err := closer(); err != nil {
			a.log.Warn("closer error", "index", i, "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// SlogLevel converts a config log level. Unknown values map to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
