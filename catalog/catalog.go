// Package catalog holds the admin-side registries features contribute to:
// the list of services shown on the settings screen and the admin panels.
package catalog

import (
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Service describes a feature on the settings screen so administrators can
// discover and toggle it.
type Service struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Setting     string `json:"setting"`
}

// ServiceCatalog receives service descriptors. Lower priorities are listed first.
type ServiceCatalog interface {
	AddService(service Service, priority int)
}

// Panel describes an admin UI panel.
type Panel struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// PanelRegistrar receives admin panels along with the routes that back them.
// routes may be nil for purely informational panels.
type PanelRegistrar interface {
	RegisterPanel(panel Panel, routes func(chi.Router))
}

type serviceEntry struct {
	service  Service
	priority int
	seq      int
}

// Services is the in-process ServiceCatalog.
type Services struct {
	mu      sync.RWMutex
	entries []serviceEntry
}

// NewServices returns an empty catalog.
func NewServices() *Services {
	return &Services{}
}

func (s *Services) AddService(service Service, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, serviceEntry{service: service, priority: priority, seq: len(s.entries)})
}

// List returns the services ordered by priority, then registration order.
func (s *Services) List() []Service {
	s.mu.RLock()
	entries := append([]serviceEntry(nil), s.entries...)
	s.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].seq < entries[j].seq
	})

	out := make([]Service, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.service)
	}
	return out
}

// PanelEntry pairs a panel with its route configurer.
type PanelEntry struct {
	Panel  Panel
	Routes func(chi.Router)
}

// Panels is the in-process PanelRegistrar. Registering the same panel ID
// twice replaces the earlier entry.
type Panels struct {
	mu      sync.RWMutex
	entries []PanelEntry
}

// NewPanels returns an empty registrar.
func NewPanels() *Panels {
	return &Panels{}
}

func (p *Panels) RegisterPanel(panel Panel, routes func(chi.Router)) {
	if panel.ID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.entries {
		if p.entries[i].Panel.ID == panel.ID {
			p.entries[i] = PanelEntry{Panel: panel, Routes: routes}
			return
		}
	}
	p.entries = append(p.entries, PanelEntry{Panel: panel, Routes: routes})
}

// Entries returns a snapshot of the registered panels in registration order.
func (p *Panels) Entries() []PanelEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PanelEntry(nil), p.entries...)
}

// List returns the registered panel descriptors.
func (p *Panels) List() []Panel {
	entries := p.Entries()
	out := make([]Panel, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Panel)
	}
	return out
}

// Has reports whether a panel with the given ID is registered.
func (p *Panels) Has(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		if e.Panel.ID == id {
			return true
		}
	}
	return false
}

// AdminPath is where the admin surface is mounted.
const AdminPath = "/admin"

// PanelPath returns the mount path of a panel's routes.
func PanelPath(id string) string {
	return AdminPath + "/panels/" + id
}
