// Package app wires all Heartmirror subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithHistoryStore, WithLogger, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"heartmirror/internal/config"
	"heartmirror/internal/health"
	"heartmirror/internal/history"
	"heartmirror/internal/history/postgres"
	"heartmirror/internal/observe"
	"heartmirror/internal/resilience"
	"heartmirror/internal/server"
	"heartmirror/internal/transcript"
	"heartmirror/pkg/provider/sentiment"
	"heartmirror/pkg/provider/stt"
)

// shutdownGrace is how long the HTTP server gets to drain on a normal stop.
const shutdownGrace = 10 * time.Second

// Providers holds one interface value per provider slot. Both are required.
// Populated by main.go via the config registry.
type Providers struct {
	STT       stt.Recognizer
	Sentiment sentiment.Classifier
}

// App owns all subsystem lifetimes and orchestrates the reaction pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	metrics   *observe.Metrics

	filter *transcript.Filter
	store  history.Store
	health *health.Handler
	ws     *server.Server
	srv    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a history store instead of creating one from the
// configured DSN.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLogger sets the logger for the app and everything beneath it.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithMetrics injects a metrics set instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: transcript filter
// construction, history store connection, health checker registration, and
// HTTP server assembly. Once New returns, the App owns the recognizer and
// closes it during Shutdown.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: a speech recognition provider is required")
	}
	if providers.Sentiment == nil {
		return nil, errors.New("app: a sentiment provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.closers = append(a.closers, providers.STT.Close)

	a.initFilter()

	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	a.initHealth()
	a.initServer()

	return a, nil
}

// initFilter builds the transcript filter from config.
func (a *App) initFilter() {
	a.filter = transcript.New(a.cfg.Filter.Denylist,
		transcript.WithMaxDistance(a.cfg.Filter.MaxDistance))
}

// initHistory connects the PostgreSQL history store, or leaves persistence
// disabled when no DSN is configured and no store was injected.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}
	dsn := a.cfg.History.PostgresDSN
	if dsn == "" {
		a.log.Info("no history DSN configured, persistence disabled")
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	// The breaker keeps a dead database from stalling every utterance.
	a.store = resilience.NewHistoryStore(store, resilience.BreakerConfig{Name: "history"})
	a.closers = append(a.closers, store.Close)
	return nil
}

// initHealth registers readiness checkers for the configured dependencies.
func (a *App) initHealth() {
	checkers := []health.Checker{
		{Name: "sentiment", Check: a.providers.Sentiment.Check},
	}
	if a.store != nil {
		checkers = append(checkers, health.Checker{Name: "history", Check: a.store.Ping})
	}
	a.health = health.New(checkers...)
}

// initServer assembles the websocket server and its HTTP front.
func (a *App) initServer() {
	a.ws = server.New(server.Options{
		VAD:        a.cfg.VAD,
		Recognizer: a.providers.STT,
		Classifier: a.providers.Sentiment,
		Filter:     a.filter,
		Store:      a.store,
		Metrics:    a.metrics,
		Logger:     a.log,
	})
	a.srv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.ws.Handler(a.health),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ApplyConfig applies a hot-reloadable config change. Segmentation and
// filter updates reach new connections only; established connections keep
// the values they started with.
func (a *App) ApplyConfig(d config.ConfigDiff, cfg *config.Config) {
	if d.VADChanged {
		a.ws.SetVAD(cfg.VAD)
		a.log.Info("segmentation parameters updated")
	}
	if d.FilterChanged {
		a.ws.SetFilter(transcript.New(cfg.Filter.Denylist,
			transcript.WithMaxDistance(cfg.Filter.MaxDistance)))
		a.log.Info("transcript filter updated", "entries", len(cfg.Filter.Denylist))
	}
}

// Run serves HTTP until ctx is cancelled, then drains the server and returns
// the context's error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tls := a.cfg.Server.TLS
		a.log.Info("app running", "addr", a.srv.Addr, "tls", tls != nil)

		var err error
		if tls != nil {
			err = a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()

		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.srv.Shutdown(drainCtx); err != nil {
			a.log.Warn("server drain failed, closing", "error", err)
			a.srv.Close()
		}
		return ctx.Err()
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
