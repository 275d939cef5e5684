package warden

import (
	"github.com/aquamarinepk/warden/catalog"
	"github.com/go-chi/chi/v5"
)

// Feature is a toggleable capability wired once at startup by the App.
//
// router is the frontend router. panels and services are nil when the
// process does not expose an admin surface; implementations must tolerate
// that.
type Feature interface {
	Register(router chi.Router, panels catalog.PanelRegistrar, services catalog.ServiceCatalog)
}

// FeatureFactory builds a Feature from the shared dependency container.
type FeatureFactory func(*Deps) (Feature, error)
