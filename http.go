package warden

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aquamarinepk/warden/catalog"
	"github.com/go-chi/chi/v5"
)

// HTTPModule exposes a route registration entrypoint for HTTP transports.
type HTTPModule interface {
	RegisterRoutes(router chi.Router)
}

// HTTPModuleFactory constructs an HTTPModule from the shared dependency container.
type HTTPModuleFactory func(*Deps) (HTTPModule, error)

// WithHTTPServerModules wraps ready-made modules into factories and delegates
// to WithHTTPServer.
func WithHTTPServerModules(addrKey string, modules ...HTTPModule) Option {
	factories := make([]HTTPModuleFactory, len(modules))
	for i, module := range modules {
		mod := module
		factories[i] = func(*Deps) (HTTPModule, error) {
			if mod == nil {
				return nil, errors.New("nil http module provided")
			}
			return mod, nil
		}
	}
	return WithHTTPServer(addrKey, factories...)
}

// WithHTTPServer builds the chi router, registers queued features and the
// provided modules, and mounts the server as a lifecycle-managed runner.
//
// Registration order: middlewares, health and debug endpoints, the host
// not-found target, router configurers, features, modules.
func WithHTTPServer(addrKey string, factories ...HTTPModuleFactory) Option {
	return func(app *App) error {
		if addrKey == "" {
			return errors.New("http addr property key required")
		}

		app.mu.Lock()
		defer app.mu.Unlock()
		if app.httpConfigured {
			return errors.New("http server already configured")
		}
		app.httpConfigured = true

		router := chi.NewRouter()
		for _, mw := range app.httpMiddlewares {
			if mw == nil {
				continue
			}
			router.Use(mw)
		}

		healthRegistry := NewHealthRegistry()
		RegisterHealthEndpoints(router, healthRegistry)
		healthRegistry.RegisterLiveness("core", HealthStatusOK)
		healthRegistry.RegisterReadiness("core", HealthStatusOK)
		RegisterDebugRoutes(router, app.debugRoutes)
		if target := app.deps.Config.GetStringOrDef(NotFoundTargetKey, ""); target != "" {
			RedirectNotFound(router, target)
		}
		for _, configurer := range app.routerConfig {
			if configurer != nil {
				configurer(router)
			}
		}

		for _, reg := range app.healthChecks {
			if reg.liveness != nil {
				healthRegistry.RegisterLiveness(reg.name, reg.liveness)
			}
			if reg.readiness != nil {
				healthRegistry.RegisterReadiness(reg.name, reg.readiness)
			}
		}

		for _, reporter := range app.healthReporters {
			healthRegistry.RegisterChecks(reporter.HealthChecks())
		}

		if err := app.registerFeatures(router, healthRegistry); err != nil {
			return err
		}

		for _, factory := range factories {
			if factory == nil {
				return errors.New("nil http module factory")
			}
			module, err := factory(app.deps)
			if err != nil {
				return fmt.Errorf("building http module: %w", err)
			}
			if module == nil {
				return errors.New("http module factory returned nil module")
			}
			module.RegisterRoutes(router)
			app.attachComponent(module, healthRegistry)
		}

		addr := app.deps.Config.GetPort(addrKey, ":8080")
		server := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		app.router = router
		app.runners = append(app.runners, newHTTPServerRunner(server))
		return nil
	}
}

// registerFeatures runs with app.mu held.
func (app *App) registerFeatures(router chi.Router, health *HealthRegistry) error {
	// Typed nils must not leak into the interfaces handed to features.
	var panels catalog.PanelRegistrar
	var services catalog.ServiceCatalog
	if app.panels != nil && app.services != nil {
		panels = app.panels
		services = app.services
	}

	for _, factory := range app.features {
		if factory == nil {
			return errors.New("nil feature factory")
		}
		feature, err := factory(app.deps)
		if err != nil {
			return fmt.Errorf("building feature: %w", err)
		}
		if feature == nil {
			return errors.New("feature factory returned nil feature")
		}
		feature.Register(router, panels, services)
		app.attachComponent(feature, health)
	}
	return nil
}

func (app *App) attachComponent(component any, health *HealthRegistry) {
	if reporter, ok := component.(HealthReporter); ok {
		health.RegisterChecks(reporter.HealthChecks())
	}
	if startable, ok := component.(Startable); ok {
		app.addStart(startable.Start)
	}
	if stoppable, ok := component.(Stoppable); ok {
		app.addStop(stoppable.Stop)
	}
}

type httpServerRunner struct {
	server *http.Server
	errCh  chan error
}

func newHTTPServerRunner(server *http.Server) Runner {
	return &httpServerRunner{server: server, errCh: make(chan error, 1)}
}

func (r *httpServerRunner) Start(_ context.Context) error {
	go func() {
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.errCh <- err
		}
		close(r.errCh)
	}()
	return nil
}

func (r *httpServerRunner) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := r.server.Shutdown(shutdownCtx)
	select {
	case srvErr, ok := <-r.errCh:
		if ok && srvErr != nil {
			err = errors.Join(err, srvErr)
		}
	default:
	}
	return err
}
