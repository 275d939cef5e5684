package catalog

import (
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestServicesListOrdersByPriority(t *testing.T) {
	s := NewServices()
	s.AddService(Service{Title: "late"}, 90)
	s.AddService(Service{Title: "first"}, 10)
	s.AddService(Service{Title: "second"}, 40)
	s.AddService(Service{Title: "third"}, 40)

	got := s.List()
	want := []string{"first", "second", "third", "late"}
	if len(got) != len(want) {
		t.Fatalf("expected %d services, got %d", len(want), len(got))
	}
	for i, title := range want {
		if got[i].Title != title {
			t.Errorf("position %d: expected %q, got %q", i, title, got[i].Title)
		}
	}
}

func TestServicesListEmpty(t *testing.T) {
	if got := NewServices().List(); len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}
}

func TestPanelsRegister(t *testing.T) {
	p := NewPanels()
	p.RegisterPanel(Panel{ID: "a", Title: "A"}, nil)
	p.RegisterPanel(Panel{ID: "b", Title: "B"}, func(chi.Router) {})

	if !p.Has("a") || !p.Has("b") {
		t.Fatal("expected both panels to be registered")
	}
	if p.Has("c") {
		t.Error("unexpected panel c")
	}

	list := p.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("unexpected panel list %v", list)
	}
}

func TestPanelsRegisterReplacesSameID(t *testing.T) {
	p := NewPanels()
	p.RegisterPanel(Panel{ID: "a", Title: "old"}, nil)
	p.RegisterPanel(Panel{ID: "a", Title: "new"}, nil)

	list := p.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 panel, got %d", len(list))
	}
	if list[0].Title != "new" {
		t.Errorf("expected replaced title, got %q", list[0].Title)
	}
}

func TestPanelsRegisterIgnoresEmptyID(t *testing.T) {
	p := NewPanels()
	p.RegisterPanel(Panel{Title: "nameless"}, nil)
	if len(p.List()) != 0 {
		t.Error("panel without ID should be ignored")
	}
}
