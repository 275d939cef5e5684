package fileserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/go-chi/chi/v5"

	"github.com/aquamarinepk/warden"
)

var _ warden.HTTPModule = (*Server)(nil)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"static/admin.css":    {Data: []byte("body{}")},
		"static/img/logo.svg": {Data: []byte("<svg/>")},
		"other/secret.txt":    {Data: []byte("secret")},
		"custom/files/app.js": {Data: []byte("app()")},
	}
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantDir    string
		wantPrefix string
		wantCache  string
	}{
		{name: "defaults", wantDir: "static", wantPrefix: "/static", wantCache: defaultCacheControl},
		{name: "nil option", opts: []Option{nil}, wantDir: "static", wantPrefix: "/static", wantCache: defaultCacheControl},
		{name: "directory", opts: []Option{WithDirectory("/custom/files/")}, wantDir: "custom/files", wantPrefix: "/static", wantCache: defaultCacheControl},
		{name: "prefix", opts: []Option{WithURLPrefix("assets/")}, wantDir: "static", wantPrefix: "/assets", wantCache: defaultCacheControl},
		{name: "empty prefix ignored", opts: []Option{WithURLPrefix("/")}, wantDir: "static", wantPrefix: "/static", wantCache: defaultCacheControl},
		{name: "no cache", opts: []Option{WithCacheControl("")}, wantDir: "static", wantPrefix: "/static", wantCache: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(testFS(), append([]Option{WithLogger(nil)}, tt.opts...)...)
			if srv.log == nil {
				t.Error("logger should not be nil")
			}
			if srv.dir != tt.wantDir || srv.urlPrefix != tt.wantPrefix || srv.cacheControl != tt.wantCache {
				t.Errorf("server = dir %q prefix %q cache %q", srv.dir, srv.urlPrefix, srv.cacheControl)
			}
		})
	}
}

func TestRegisterRoutesNil(t *testing.T) {
	New(testFS()).RegisterRoutes(nil)

	router := chi.NewRouter()
	New(nil).RegisterRoutes(router)
	if len(router.Routes()) != 0 {
		t.Errorf("routes registered without a filesystem")
	}
}

func TestServe(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/admin", func(r chi.Router) {
		New(testFS()).RegisterRoutes(r)
	})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "file", method: http.MethodGet, path: "/admin/static/admin.css", wantStatus: http.StatusOK, wantBody: "body{}"},
		{name: "nested", method: http.MethodGet, path: "/admin/static/img/logo.svg", wantStatus: http.StatusOK, wantBody: "<svg/>"},
		{name: "head", method: http.MethodHead, path: "/admin/static/admin.css", wantStatus: http.StatusOK},
		{name: "missing", method: http.MethodGet, path: "/admin/static/nope.css", wantStatus: http.StatusNotFound},
		{name: "directory", method: http.MethodGet, path: "/admin/static/img/", wantStatus: http.StatusNotFound},
		{name: "root", method: http.MethodGet, path: "/admin/static/", wantStatus: http.StatusNotFound},
		{name: "outside dir", method: http.MethodGet, path: "/admin/static/../other/secret.txt", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantStatus == http.StatusOK && rec.Header().Get("Cache-Control") != defaultCacheControl {
				t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestServeCustomDirectory(t *testing.T) {
	router := chi.NewRouter()
	New(testFS(), WithDirectory("custom/files"), WithURLPrefix("/js")).RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/js/app.js", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "app()" {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestInvalidDirectory(t *testing.T) {
	router := chi.NewRouter()
	New(testFS(), WithDirectory("../escape")).RegisterRoutes(router)
	if len(router.Routes()) != 0 {
		t.Errorf("routes registered for an invalid directory")
	}
}
