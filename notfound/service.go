// Package notfound implements the 404 redirect feature: on a not-found
// response it looks up the visitor's redirect rule and hands non-default rules
// to a redirect executor.
package notfound

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/catalog"
	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/rulestore"
	"github.com/aquamarinepk/warden/subject"
)

// FlagKey toggles the feature. It defaults to enabled.
const FlagKey = "core.service.404-redirect.enabled"

const (
	PanelID     = "404-redirect"
	Title       = "404 Redirect"
	Description = "Manage frontend 404 (Not Found) redirect for any group of users or individual user."

	// ServicePriority orders the entry on the services list.
	ServicePriority = 40

	EventRedirected   = "notfound.redirected"
	EventRulesChanged = "notfound.rules.changed"
	MetricRedirects   = "notfound_redirects_total"
)

// Invalidator drops cached rules whose subject key starts with prefix.
type Invalidator interface {
	Invalidate(prefix string)
}

// Service is the 404 redirect feature.
type Service struct {
	deps     *warden.Deps
	log      warden.Logger
	store    rulestore.Store
	executor redirect.Executor
	resolver subject.Resolver
	cache    Invalidator
	fallback http.Handler
	enabled  bool
}

// Option configures a Service.
type Option func(*Service)

// WithResolver overrides the header based subject resolver.
func WithResolver(resolver subject.Resolver) Option {
	return func(s *Service) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithCache lets the panel flush the rule cache in front of the store.
func WithCache(cache Invalidator) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// New builds the service. The feature flag is read once from deps.Config.
func New(store rulestore.Store, executor redirect.Executor, deps *warden.Deps, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("notfound: rule store is required")
	}
	if executor == nil {
		return nil, errors.New("notfound: redirect executor is required")
	}
	deps = deps.Normalize()

	s := &Service{
		deps:     deps,
		log:      deps.Logger.With("feature", PanelID),
		store:    store,
		executor: executor,
		resolver: subject.NewHeaderResolver(
			deps.Config.GetStringOrDef("subject.header.user", subject.DefaultUserHeader),
			deps.Config.GetStringOrDef("subject.header.roles", subject.DefaultRolesHeader),
		),
		fallback: warden.FallbackHandler(deps.Config.GetStringOrDef(warden.NotFoundTargetKey, "")),
		enabled:  deps.Config.GetBoolOrTrue(FlagKey),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Factory adapts New to warden.FeatureFactory.
func Factory(store rulestore.Store, executor redirect.Executor, opts ...Option) warden.FeatureFactory {
	return func(deps *warden.Deps) (warden.Feature, error) {
		return New(store, executor, deps, opts...)
	}
}

// Enabled reports the value of the feature flag.
func (s *Service) Enabled() bool {
	return s.enabled
}

// Register attaches the feature. The services entry is added whenever a
// catalog is given so administrators can find and toggle the feature. The
// frontend hook and the settings panel are attached only when enabled.
func (s *Service) Register(router chi.Router, panels catalog.PanelRegistrar, services catalog.ServiceCatalog) {
	if services != nil {
		services.AddService(catalog.Service{
			Title:       Title,
			Description: Description,
			Setting:     FlagKey,
		}, ServicePriority)
	}

	if !s.enabled {
		s.log.Info("404 redirect disabled", "flag", FlagKey)
		return
	}

	if router != nil {
		router.NotFound(s.NotFoundHandler(s.fallback))
	}
	if panels != nil {
		panels.RegisterPanel(catalog.Panel{
			ID:          PanelID,
			Title:       Title,
			Description: Description,
		}, s.PanelRoutes)
	}
	s.log.Info("404 redirect enabled", "admin", panels != nil)
}
