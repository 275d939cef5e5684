package warden

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRegisterDebugRoutes(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		wantStatus int
	}{
		{name: "enabled", enabled: true, wantStatus: http.StatusOK},
		{name: "disabled", enabled: false, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Get("/admin/services", func(w http.ResponseWriter, r *http.Request) {})
			RegisterDebugRoutes(r, tt.enabled)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/routes", nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !tt.enabled {
				return
			}

			var routes []RouteInfo
			if err := json.NewDecoder(rec.Body).Decode(&routes); err != nil {
				t.Fatalf("decode: %v", err)
			}
			patterns := map[string]bool{}
			for _, route := range routes {
				patterns[route.Method+" "+route.Pattern] = true
			}
			for _, want := range []string{"GET /admin/services", "GET /debug/routes"} {
				if !patterns[want] {
					t.Errorf("route %q not listed in %v", want, routes)
				}
			}
		})
	}
}

func TestRegisterDebugRoutesNilRouter(t *testing.T) {
	RegisterDebugRoutes(nil, true)
}

func TestEnumerateRoutesMiddlewares(t *testing.T) {
	r := chi.NewRouter()
	r.Use(testDebugMiddleware)
	r.Route("/admin", func(r chi.Router) {
		r.Get("/panels", func(w http.ResponseWriter, r *http.Request) {})
	})

	routes := enumerateRoutes(r)
	if len(routes) != 1 {
		t.Fatalf("routes = %v, want one", routes)
	}
	if routes[0].Pattern != "/admin/panels" {
		t.Errorf("pattern = %q", routes[0].Pattern)
	}
	if len(routes[0].Middlewares) != 1 || !strings.HasSuffix(routes[0].Middlewares[0], "testDebugMiddleware") {
		t.Errorf("middlewares = %v", routes[0].Middlewares)
	}
}

func TestFuncName(t *testing.T) {
	var nilFunc func()
	tests := []struct {
		name string
		fn   any
		want string
	}{
		{name: "nil", fn: nil, want: "<nil>"},
		{name: "nil func", fn: nilFunc, want: "<nil>"},
		{name: "not a func", fn: 42, want: "<nil>"},
	}
	for _, tt := range tests {
		if got := funcName(tt.fn); got != tt.want {
			t.Errorf("%s: funcName() = %q, want %q", tt.name, got, tt.want)
		}
	}

	if got := funcName(testDebugMiddleware); !strings.Contains(got, "testDebugMiddleware") {
		t.Errorf("funcName() = %q", got)
	}
}

func testDebugMiddleware(next http.Handler) http.Handler {
	return next
}
