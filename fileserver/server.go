// Package fileserver serves the static assets of the admin settings UI.
package fileserver

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aquamarinepk/warden"
)

const (
	defaultStaticDir    = "static"
	defaultURLPrefix    = "/static"
	defaultCacheControl = "public, max-age=3600"
)

// Server mounts files from an fs.FS under a URL prefix. Directories are
// never listed.
type Server struct {
	fs           fs.FS
	log          warden.Logger
	dir          string
	urlPrefix    string
	cacheControl string
}

// Option configures a static file server.
type Option func(*Server)

// New serves assets/static under /static unless overridden.
func New(assets fs.FS, opts ...Option) *Server {
	srv := &Server{
		fs:           assets,
		log:          warden.NewNoopLogger(),
		dir:          defaultStaticDir,
		urlPrefix:    defaultURLPrefix,
		cacheControl: defaultCacheControl,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(srv)
		}
	}
	return srv
}

func WithLogger(logger warden.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithDirectory overrides the asset directory inside the filesystem.
func WithDirectory(dir string) Option {
	return func(s *Server) {
		if dir != "" {
			s.dir = strings.Trim(dir, "/")
		}
	}
}

// WithURLPrefix overrides the mount point relative to the router the server
// is registered on.
func WithURLPrefix(prefix string) Option {
	return func(s *Server) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			s.urlPrefix = "/" + prefix
		}
	}
}

// WithCacheControl sets the Cache-Control header; empty disables it.
func WithCacheControl(value string) Option {
	return func(s *Server) {
		s.cacheControl = value
	}
}

// RegisterRoutes implements warden.HTTPModule. It works on sub-routers too:
// the prefix to strip is taken from the matched route pattern.
func (s *Server) RegisterRoutes(r chi.Router) {
	if r == nil || s.fs == nil {
		return
	}

	staticFS, err := fs.Sub(s.fs, s.dir)
	if err != nil {
		s.log.Error("fileserver: cannot create sub filesystem", "dir", s.dir, "error", err)
		return
	}

	files := http.FileServer(http.FS(staticFS))
	handler := func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		if name == "" || isDir(staticFS, name) {
			http.NotFound(w, r)
			return
		}
		if s.cacheControl != "" {
			w.Header().Set("Cache-Control", s.cacheControl)
		}
		prefix := strings.TrimSuffix(chi.RouteContext(r.Context()).RoutePattern(), "/*")
		http.StripPrefix(prefix, files).ServeHTTP(w, r)
	}

	s.log.Info("Registering static file server", "prefix", s.urlPrefix, "dir", path.Join("/", s.dir))
	r.Get(s.urlPrefix+"/*", handler)
	r.Head(s.urlPrefix+"/*", handler)
}

func isDir(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, path.Clean(name))
	return err == nil && info.IsDir()
}
