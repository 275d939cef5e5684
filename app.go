package warden

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aquamarinepk/warden/catalog"
	"github.com/go-chi/chi/v5"
)

// App is the composition root. It wires dependencies and features, manages
// runner lifecycle and runs shutdown hooks.
type App struct {
	deps     *Deps
	runners  []Runner
	shutdown []ShutdownFunc

	mu              sync.RWMutex
	httpConfigured  bool
	httpMiddlewares []func(http.Handler) http.Handler
	routerConfig    []func(*chi.Mux)
	router          *chi.Mux

	features []FeatureFactory
	panels   *catalog.Panels
	services *catalog.Services

	healthChecks    []healthCheckRegistration
	healthReporters []HealthReporter
	debugRoutes     bool

	startFuncs []func(context.Context) error
	stopFuncs  []func(context.Context) error
}

type healthCheckRegistration struct {
	name      string
	liveness  HealthCheck
	readiness HealthCheck
}

// ShutdownFunc is executed when Run exits, giving modules a chance to release resources.
type ShutdownFunc func(context.Context) error

// NewApp builds an App applying the provided options sequentially.
// It panics when an option returns an error or mandatory dependencies are missing.
func NewApp(opts ...Option) *App {
	app := &App{
		deps: DefaultDeps(),
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			panic(fmt.Errorf("applying option: %w", err))
		}
	}
	app.ensureCoreDependencies()
	return app
}

// Run starts lifecycle hooks and runners, blocks until ctx is cancelled, then
// stops everything in reverse order. Stop and shutdown errors are joined.
func (app *App) Run(ctx context.Context) error {
	app.mu.RLock()
	runners := append([]Runner(nil), app.runners...)
	shutdown := append([]ShutdownFunc(nil), app.shutdown...)
	startFns := append([]func(context.Context) error(nil), app.startFuncs...)
	stopFns := append([]func(context.Context) error(nil), app.stopFuncs...)
	app.mu.RUnlock()

	for i, start := range startFns {
		if err := start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := stopFns[j](context.Background()); stopErr != nil {
					err = errors.Join(err, fmt.Errorf("lifecycle rollback: %w", stopErr))
				}
			}
			return fmt.Errorf("lifecycle start: %w", err)
		}
	}

	for _, runner := range runners {
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("runner start: %w", err)
		}
	}

	<-ctx.Done()

	stopCtx := context.WithoutCancel(ctx)
	var aggErr error
	for i := len(runners) - 1; i >= 0; i-- {
		if err := runners[i].Stop(stopCtx); err != nil {
			aggErr = errors.Join(aggErr, fmt.Errorf("runner stop: %w", err))
		}
	}
	for i := len(stopFns) - 1; i >= 0; i-- {
		if err := stopFns[i](stopCtx); err != nil {
			aggErr = errors.Join(aggErr, fmt.Errorf("lifecycle stop: %w", err))
		}
	}
	for _, hook := range shutdown {
		if err := hook(stopCtx); err != nil {
			aggErr = errors.Join(aggErr, fmt.Errorf("shutdown hook: %w", err))
		}
	}
	return aggErr
}

// Deps exposes the wired dependency container.
func (app *App) Deps() *Deps {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.deps
}

// Handler returns the router built by WithHTTPServer, or nil when no HTTP
// server was configured.
func (app *App) Handler() http.Handler {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.router == nil {
		return nil
	}
	return app.router
}

// AdminContext reports whether an admin surface was configured.
func (app *App) AdminContext() bool {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.panels != nil && app.services != nil
}

func (app *App) addRunner(r Runner) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.runners = append(app.runners, r)
}

func (app *App) addShutdown(fn ShutdownFunc) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.shutdown = append(app.shutdown, fn)
}

func (app *App) addHealthCheck(reg healthCheckRegistration) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.healthChecks = append(app.healthChecks, reg)
}

func (app *App) ensureCoreDependencies() {
	app.mu.RLock()
	logger := app.deps.Logger
	config := app.deps.Config
	app.mu.RUnlock()

	if logger == nil {
		panic("logger dependency must be configured")
	}
	if config == nil {
		panic("config dependency must be configured")
	}
}

// addStart and addStop are called with app.mu held by options.
func (app *App) addStart(fn func(context.Context) error) {
	if fn == nil {
		return
	}
	app.startFuncs = append(app.startFuncs, fn)
}

func (app *App) addStop(fn func(context.Context) error) {
	if fn == nil {
		return
	}
	app.stopFuncs = append(app.stopFuncs, fn)
}
