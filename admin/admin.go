// Package admin mounts the admin surface: the services list, the registered
// panels with their routes and an HTML overview, behind basic auth.
package admin

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/auth"
	"github.com/aquamarinepk/warden/catalog"
	"github.com/aquamarinepk/warden/fileserver"
	"github.com/aquamarinepk/warden/middleware"
	"github.com/aquamarinepk/warden/telemetry"
	"github.com/aquamarinepk/warden/template"
)

const defaultRealm = "warden admin"

// Config is decoded from the "admin" subtree.
type Config struct {
	Enabled      bool       `koanf:"enabled"`
	Realm        string     `koanf:"realm"`
	InternalOnly bool       `koanf:"internal_only"`
	Networks     []string   `koanf:"networks"`
	CORS         CORSConfig `koanf:"cors"`
	UI           struct {
		Enabled bool `koanf:"enabled"`
	} `koanf:"ui"`
}

// CORSConfig enables cross-origin access for a settings UI hosted elsewhere.
type CORSConfig struct {
	Enabled                bool `koanf:"enabled"`
	middleware.CORSOptions `koanf:",squash"`
}

// ConfigFrom reads the admin subtree. admin.enabled and admin.ui.enabled
// default to true; networks may be given as one comma separated value.
func ConfigFrom(cfg *warden.Config) (Config, error) {
	if cfg == nil {
		cfg = warden.NewConfig()
	}
	c := Config{CORS: CORSConfig{CORSOptions: middleware.DefaultCORSOptions()}}
	if err := cfg.Unmarshal("admin", &c); err != nil {
		return Config{}, fmt.Errorf("admin config: %w", err)
	}
	c.Enabled = cfg.GetBoolOrTrue("admin.enabled")
	c.UI.Enabled = cfg.GetBoolOrTrue("admin.ui.enabled")
	if c.Realm == "" {
		c.Realm = defaultRealm
	}
	c.Networks = splitList(c.Networks)
	c.CORS.AllowedOrigins = splitList(c.CORS.AllowedOrigins)
	return c, nil
}

// Module is the admin warden.HTTPModule.
type Module struct {
	cfg       Config
	deps      *warden.Deps
	log       warden.Logger
	panels    *catalog.Panels
	services  *catalog.Services
	creds     *auth.Credentials
	networks  []*net.IPNet
	templates *template.Manager
	static    *fileserver.Server
	telemetry *telemetry.HTTP
}

// Option configures a Module.
type Option func(*Module)

// WithCredentials guards the surface with basic auth.
func WithCredentials(creds auth.Credentials) Option {
	return func(m *Module) {
		m.creds = &creds
	}
}

// WithUI serves the HTML overview at /admin/ and its static files. templates
// must be started by the caller. Ignored when the UI is disabled in config.
func WithUI(templates *template.Manager, static *fileserver.Server) Option {
	return func(m *Module) {
		m.templates = templates
		m.static = static
	}
}

// New builds the module around the registries features registered into.
// Without credentials the surface only answers private networks.
func New(panels *catalog.Panels, services *catalog.Services, cfg Config, deps *warden.Deps, opts ...Option) (*Module, error) {
	if panels == nil || services == nil {
		return nil, errors.New("admin: panels and services registries are required")
	}
	networks, err := middleware.ParseNetworks(cfg.Networks)
	if err != nil {
		return nil, fmt.Errorf("admin networks: %w", err)
	}
	if cfg.Realm == "" {
		cfg.Realm = defaultRealm
	}
	deps = deps.Normalize()

	m := &Module{
		cfg:       cfg,
		deps:      deps,
		log:       deps.Logger.With("module", "admin"),
		panels:    panels,
		services:  services,
		networks:  networks,
		telemetry: telemetry.FromDeps("admin", deps),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if !cfg.UI.Enabled {
		m.templates, m.static = nil, nil
	}
	if m.creds == nil && len(m.networks) == 0 && !m.cfg.InternalOnly {
		m.log.Info("admin credentials not configured, restricting admin to private networks")
		m.cfg.InternalOnly = true
	}
	return m, nil
}

// Factory adapts New to warden.HTTPModuleFactory.
func Factory(panels *catalog.Panels, services *catalog.Services, cfg Config, opts ...Option) warden.HTTPModuleFactory {
	return func(deps *warden.Deps) (warden.HTTPModule, error) {
		return New(panels, services, cfg, deps, opts...)
	}
}

// RegisterRoutes mounts the surface at catalog.AdminPath. Panels must be
// registered before, which the App guarantees by registering features
// ahead of HTTP modules.
func (m *Module) RegisterRoutes(r chi.Router) {
	r.Route(catalog.AdminPath, func(r chi.Router) {
		if m.cfg.CORS.Enabled {
			r.Use(middleware.CORS(m.cfg.CORS.CORSOptions))
		}
		switch {
		case len(m.networks) > 0:
			r.Use(middleware.AllowFromNetworks(m.networks...))
		case m.cfg.InternalOnly:
			r.Use(middleware.InternalOnly())
		}
		if m.creds != nil {
			r.Use(auth.BasicAuth(*m.creds, m.cfg.Realm))
		}
		r.Use(m.telemetry.Middleware)
		r.Use(middleware.AllowContentType("application/json"))

		// Own handlers so admin misses never reach the frontend redirect hook.
		r.NotFound(handleNotFound)
		r.MethodNotAllowed(handleMethodNotAllowed)

		r.Get("/services", m.handleServices)
		r.Get("/panels", m.handlePanels)
		for _, entry := range m.panels.Entries() {
			if entry.Routes == nil {
				continue
			}
			r.Route(panelRoute(entry.Panel.ID), entry.Routes)
			m.log.Debug("admin panel mounted", "panel", entry.Panel.ID)
		}

		if m.templates != nil {
			r.Get("/", m.handleOverview)
		}
		if m.static != nil {
			m.static.RegisterRoutes(r)
		}
	})
	m.log.Info("admin surface mounted", "path", catalog.AdminPath, "auth", m.creds != nil, "internal_only", m.cfg.InternalOnly)
}

func panelRoute(id string) string {
	return strings.TrimPrefix(catalog.PanelPath(id), catalog.AdminPath)
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	warden.RespondError(w, http.StatusNotFound, "no admin resource at "+r.URL.Path)
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	warden.RespondError(w, http.StatusMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
}
