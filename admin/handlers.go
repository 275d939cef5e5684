package admin

import (
	"net/http"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/catalog"
)

const (
	serviceResource = "service"
	panelResource   = "panel"
)

// ServiceView is a catalog entry with the current value of its setting.
type ServiceView struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Setting     string `json:"setting"`
	Enabled     bool   `json:"enabled"`
}

// PanelView is a registered panel and where its routes live.
type PanelView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path"`
}

type overviewView struct {
	Services []ServiceView
	Panels   []PanelView
}

func (m *Module) serviceViews() []ServiceView {
	services := m.services.List()
	views := make([]ServiceView, 0, len(services))
	for _, svc := range services {
		views = append(views, ServiceView{
			Title:       svc.Title,
			Description: svc.Description,
			Setting:     svc.Setting,
			Enabled:     svc.Setting == "" || m.deps.Config.GetBoolOrTrue(svc.Setting),
		})
	}
	return views
}

func (m *Module) panelViews() []PanelView {
	panels := m.panels.List()
	views := make([]PanelView, 0, len(panels))
	for _, p := range panels {
		views = append(views, PanelView{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Path:        catalog.PanelPath(p.ID),
		})
	}
	return views
}

func (m *Module) handleServices(w http.ResponseWriter, r *http.Request) {
	warden.RespondSuccess(w, m.serviceViews(), warden.CollectionLinksFor(catalog.AdminPath, serviceResource)...)
}

func (m *Module) handlePanels(w http.ResponseWriter, r *http.Request) {
	warden.RespondSuccess(w, m.panelViews(), warden.CollectionLinksFor(catalog.AdminPath, panelResource)...)
}

func (m *Module) handleOverview(w http.ResponseWriter, r *http.Request) {
	name, err := m.templates.NameFor(serviceResource, "list")
	if err == nil {
		err = m.templates.Render(w, name, http.StatusOK, overviewView{
			Services: m.serviceViews(),
			Panels:   m.panelViews(),
		})
	}
	if err != nil {
		m.log.Error("cannot render admin overview", "error", err)
		m.deps.Errors.Report(r.Context(), err, map[string]any{"module": "admin", "path": r.URL.Path})
		warden.RespondError(w, http.StatusInternalServerError, "cannot render overview")
	}
}
