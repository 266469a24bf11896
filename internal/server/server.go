// Package server is the WebSocket front end of parrot.
//
// A Server owns the HTTP listener and turns every accepted connection on
// /v1/realtime into one simulated session: it builds a sim.Client from the
// current configuration snapshot, pumps inbound frames into it, and writes
// its outbound events back as JSON text frames. The same mux also serves
// the health probes and the Prometheus metrics endpoint.
//
// Configuration is hot-swappable: ApplyConfig installs a rebuilt template
// registry and adjusts the log level without touching live sessions. New
// connections pick up the new snapshot; established ones keep the registry
// they were created with.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/parrotlabs/parrot/internal/config"
	"github.com/parrotlabs/parrot/internal/health"
	"github.com/parrotlabs/parrot/internal/observe"
	"github.com/parrotlabs/parrot/pkg/audio/cache"
	"github.com/parrotlabs/parrot/pkg/provider/transcribe"
	"github.com/parrotlabs/parrot/pkg/provider/vad"
	"github.com/parrotlabs/parrot/pkg/realtime"
	"github.com/parrotlabs/parrot/pkg/respond"
	"github.com/parrotlabs/parrot/pkg/sim"
)

// shutdownTimeout bounds graceful HTTP shutdown once the run context ends.
const shutdownTimeout = 5 * time.Second

// snapshot is the immutable per-connection view of the configuration. New
// sessions copy the current snapshot under the server lock; ApplyConfig
// replaces it wholesale.
type snapshot struct {
	registry    *respond.Registry
	fallback    respond.Template
	hasFallback bool
	defaults    realtime.SessionConfig
}

// Server accepts realtime WebSocket sessions and serves the operational
// endpoints. Create one with New, then call Run.
type Server struct {
	listenAddr string

	mu   sync.RWMutex
	snap snapshot

	cache       *cache.Cache
	vadEngine   vad.Engine
	trEngine    transcribe.Engine
	observer    sim.Observer
	timingSink  sim.TimingSink
	logLevel    *slog.LevelVar
	healthcheck *health.Handler
}

// Option configures a Server during construction.
type Option func(*Server)

// WithObserver sets the lifecycle observer attached to every session.
// Defaults to an observer backed by the process-wide metrics.
func WithObserver(obs sim.Observer) Option {
	return func(s *Server) {
		if obs != nil {
			s.observer = obs
		}
	}
}

// WithTimingSink persists per-response timing records for every session.
func WithTimingSink(sink sim.TimingSink) Option {
	return func(s *Server) { s.timingSink = sink }
}

// WithVAD overrides the speech-activity backend built from the config.
func WithVAD(engine vad.Engine) Option {
	return func(s *Server) { s.vadEngine = engine }
}

// WithTranscriber overrides the transcription backend built from the config.
func WithTranscriber(engine transcribe.Engine) Option {
	return func(s *Server) { s.trEngine = engine }
}

// WithLogLevelVar hands the server the level var behind the process logger,
// so ApplyConfig can follow log level changes in the config file.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(s *Server) { s.logLevel = v }
}

// WithHealthCheckers adds readiness checks to /readyz, e.g. a timing store
// ping.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.healthcheck = health.New(checkers...) }
}

// New builds a Server from the configuration: the template registry, audio
// cache, and the configured VAD/transcription backends. Options can inject
// replacements for any of them.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	reg, err := cfg.BuildRegistry()
	if err != nil {
		return nil, fmt.Errorf("server: build template registry: %w", err)
	}

	s := &Server{
		listenAddr:  cfg.Server.ListenAddr,
		cache:       cache.New(),
		observer:    observe.NewSimObserver(nil),
		healthcheck: health.New(),
	}
	s.snap = snapshot{
		registry: reg,
		defaults: cfg.Session.ToWire(),
	}
	s.snap.fallback, s.snap.hasFallback = cfg.FallbackTemplate()

	backends := config.DefaultRegistry()
	if s.vadEngine, err = backends.CreateVAD(cfg.Backends.VAD); err != nil {
		return nil, fmt.Errorf("server: create vad backend: %w", err)
	}
	if s.trEngine, err = backends.CreateTranscriber(cfg.Backends.Transcriber); err != nil {
		return nil, fmt.Errorf("server: create transcriber backend: %w", err)
	}

	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Handler returns the full HTTP surface: the realtime WebSocket endpoint,
// health probes, and Prometheus metrics, all wrapped in the tracing and
// request-metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/realtime", s.handleRealtime)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.healthcheck.Register(mux)
	return observe.Middleware(observe.DefaultMetrics())(mux)
}

// Run serves HTTP on the configured listen address until ctx is cancelled,
// then shuts the listener down gracefully. Run returns nil on a clean
// shutdown.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", s.listenAddr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen on %s: %w", s.listenAddr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// ApplyConfig installs the parts of a reloaded configuration that can change
// at runtime: the template registry, the fallback template, the session
// defaults, and the log level. Intended as a config.Watcher callback.
func (s *Server) ApplyConfig(old, cfg *config.Config) {
	diff := config.Diff(old, cfg)

	if diff.TemplatesChanged || diff.FallbackChanged {
		reg, err := cfg.BuildRegistry()
		if err != nil {
			slog.Warn("config reload: keeping previous templates", "err", err)
		} else {
			s.mu.Lock()
			s.snap.registry = reg
			s.snap.fallback, s.snap.hasFallback = cfg.FallbackTemplate()
			s.snap.defaults = cfg.Session.ToWire()
			s.mu.Unlock()

			for _, tc := range diff.TemplateChanges {
				slog.Info("template reloaded",
					"key", tc.Key,
					"added", tc.Added,
					"removed", tc.Removed,
					"modified", tc.Modified,
				)
			}
		}
	}

	if diff.LogLevelChanged && s.logLevel != nil {
		s.logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", string(diff.NewLogLevel))
	}
}

// currentSnapshot copies the live configuration view for a new session.
func (s *Server) currentSnapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// slogLevel maps a config log level to its slog value. Unknown levels fall
// back to info.
func slogLevel(l config.LogLevel) slog.Level {
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
