package warden

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aquamarinepk/warden/catalog"
	"github.com/go-chi/chi/v5"
)

// Option mutates the App during construction.
type Option func(*App) error

// WithLogger installs the shared logger instance.
func WithLogger(logger Logger) Option {
	return func(app *App) error {
		if logger == nil {
			return errors.New("nil logger provided")
		}
		app.mu.Lock()
		defer app.mu.Unlock()
		app.deps.Logger = logger
		return nil
	}
}

// WithConfig wires the property-based configuration.
func WithConfig(cfg *Config) Option {
	return func(app *App) error {
		if cfg == nil {
			return errors.New("nil config provided")
		}
		app.mu.Lock()
		defer app.mu.Unlock()
		app.deps.Config = cfg
		return nil
	}
}

// WithMetrics installs the shared metrics collector.
func WithMetrics(metrics Metrics) Option {
	return func(app *App) error {
		if metrics == nil {
			metrics = NoopMetrics{}
		}
		app.mu.Lock()
		defer app.mu.Unlock()
		app.deps.Metrics = metrics
		return nil
	}
}

// WithTracer installs the shared tracer.
func WithTracer(tracer Tracer) Option {
	return func(app *App) error {
		if tracer == nil {
			tracer = NoopTracer{}
		}
		app.mu.Lock()
		defer app.mu.Unlock()
		app.deps.Tracer = tracer
		return nil
	}
}

// WithErrorReporter installs the shared error reporter.
func WithErrorReporter(reporter ErrorReporter) Option {
	return func(app *App) error {
		if reporter == nil {
			reporter = NoopErrorReporter{}
		}
		app.mu.Lock()
		defer app.mu.Unlock()
		app.deps.Errors = reporter
		return nil
	}
}

// WithPubSub installs the event publisher.
func WithPubSub(ps PubSub) Option {
	return func(app *App) error {
		if ps == nil {
			ps = NoopPubSub{}
		}
		app.mu.Lock()
		defer app.mu.Unlock()
		app.deps.PubSub = ps
		return nil
	}
}

// WithAdminSurface marks the process as running an admin context. Features
// receive the given registries on Register; without this option they get nil.
func WithAdminSurface(panels *catalog.Panels, services *catalog.Services) Option {
	return func(app *App) error {
		if panels == nil || services == nil {
			return errors.New("admin surface requires panels and services registries")
		}
		app.mu.Lock()
		defer app.mu.Unlock()
		app.panels = panels
		app.services = services
		return nil
	}
}

// WithFeatures queues features for registration. They are registered on the
// router built by WithHTTPServer, so this option must precede it.
func WithFeatures(features ...Feature) Option {
	factories := make([]FeatureFactory, len(features))
	for i, feature := range features {
		f := feature
		factories[i] = func(*Deps) (Feature, error) {
			if f == nil {
				return nil, errors.New("nil feature provided")
			}
			return f, nil
		}
	}
	return WithFeatureFactories(factories...)
}

// WithFeatureFactories is WithFeatures for features that need the dependency
// container during construction.
func WithFeatureFactories(factories ...FeatureFactory) Option {
	return func(app *App) error {
		app.mu.Lock()
		defer app.mu.Unlock()
		if app.httpConfigured {
			return errors.New("features must be configured before the http server")
		}
		app.features = append(app.features, factories...)
		return nil
	}
}

// WithHealthChecks registers service-level liveness/readiness probes. Nil
// checks default to HealthStatusOK.
func WithHealthChecks(name string, checks ...HealthCheck) Option {
	return func(app *App) error {
		if name == "" {
			return errors.New("health check name required")
		}
		liveness := HealthStatusOK
		readiness := HealthStatusOK
		if len(checks) > 0 && checks[0] != nil {
			liveness = checks[0]
		}
		if len(checks) > 1 && checks[1] != nil {
			readiness = checks[1]
		}
		app.addHealthCheck(healthCheckRegistration{
			name:      name,
			liveness:  liveness,
			readiness: readiness,
		})
		return nil
	}
}

// WithHealthReporters registers the probes of components that are not
// features or HTTP modules, such as a storage backend. It must precede
// WithHTTPServer.
func WithHealthReporters(reporters ...HealthReporter) Option {
	return func(app *App) error {
		app.mu.Lock()
		defer app.mu.Unlock()
		if app.httpConfigured {
			return errors.New("health reporters must be configured before the http server")
		}
		for _, reporter := range reporters {
			if reporter != nil {
				app.healthReporters = append(app.healthReporters, reporter)
			}
		}
		return nil
	}
}

// WithDebugRoutes enables GET /debug/routes on the HTTP server.
func WithDebugRoutes() Option {
	return func(app *App) error {
		app.mu.Lock()
		app.debugRoutes = true
		app.mu.Unlock()
		return nil
	}
}

// WithLifecycle registers components whose Start/Stop methods run alongside
// the runners.
func WithLifecycle(components ...any) Option {
	return func(app *App) error {
		app.mu.Lock()
		defer app.mu.Unlock()
		for _, component := range components {
			if component == nil {
				continue
			}
			if startable, ok := component.(Startable); ok {
				app.addStart(startable.Start)
			}
			if stoppable, ok := component.(Stoppable); ok {
				app.addStop(stoppable.Stop)
			}
		}
		return nil
	}
}

// WithRunner appends a lifecycle-managed component.
func WithRunner(r Runner) Option {
	return func(app *App) error {
		if r == nil {
			return errors.New("nil runner provided")
		}
		app.addRunner(r)
		return nil
	}
}

// WithHTTPMiddleware registers middlewares applied, in order, to the HTTP server.
func WithHTTPMiddleware(middlewares ...func(http.Handler) http.Handler) Option {
	return func(app *App) error {
		app.mu.Lock()
		defer app.mu.Unlock()
		app.httpMiddlewares = append(app.httpMiddlewares, middlewares...)
		return nil
	}
}

// WithRouterConfigurator lets callers mutate the *chi.Mux before features
// and modules register.
func WithRouterConfigurator(configurer func(*chi.Mux)) Option {
	return func(app *App) error {
		if configurer == nil {
			return errors.New("nil router configurator provided")
		}
		app.mu.Lock()
		defer app.mu.Unlock()
		app.routerConfig = append(app.routerConfig, configurer)
		return nil
	}
}

// WithShutdown registers a hook that runs after the runners stop.
func WithShutdown(fn ShutdownFunc) Option {
	return func(app *App) error {
		if fn == nil {
			return errors.New("nil shutdown hook provided")
		}
		app.addShutdown(fn)
		return nil
	}
}

// WithDeps allows bulk mutation of the dependency container.
func WithDeps(configurer func(*Deps) error) Option {
	return func(app *App) error {
		if configurer == nil {
			return errors.New("nil dependency configurer provided")
		}
		app.mu.Lock()
		defer app.mu.Unlock()
		if err := configurer(app.deps); err != nil {
			return fmt.Errorf("configuring dependencies: %w", err)
		}
		return nil
	}
}
