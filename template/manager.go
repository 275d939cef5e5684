// Package template renders the HTML pages served by warden: the admin
// settings overview and the page shown for message redirects.
package template

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/gertd/go-pluralize"

	"github.com/aquamarinepk/warden"
)

const (
	defaultBasePath  = "templates"
	defaultSharedDir = "shared"
	defaultExtension = ".html"
)

// ErrTemplateNotFound is returned for names that were not loaded.
var ErrTemplateNotFound = errors.New("template: not found")

// Manager parses every page under basePath together with the layouts in
// sharedDir and keeps the result in memory. It is a warden.Startable.
type Manager struct {
	fs         fs.FS
	log        warden.Logger
	basePath   string
	sharedDir  string
	extension  string
	pluralizer *pluralize.Client
	funcs      template.FuncMap

	mu        sync.RWMutex
	templates map[string]*template.Template
}

// Option configures a Manager instance.
type Option func(*Manager)

// NewManager reads templates/*.html pages and templates/shared/*.html
// layouts from assets unless overridden.
func NewManager(assets fs.FS, opts ...Option) *Manager {
	mgr := &Manager{
		fs:         assets,
		log:        warden.NewNoopLogger(),
		basePath:   defaultBasePath,
		sharedDir:  defaultSharedDir,
		extension:  defaultExtension,
		pluralizer: pluralize.NewClient(),
		funcs:      template.FuncMap{},
		templates:  make(map[string]*template.Template),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr
}

func WithLogger(logger warden.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logger
		}
	}
}

func WithBasePath(base string) Option {
	return func(m *Manager) {
		if base != "" {
			m.basePath = strings.Trim(base, "/")
		}
	}
}

func WithSharedDir(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.sharedDir = strings.Trim(name, "/")
		}
	}
}

// WithExtension changes the file extension filter (defaults to .html).
func WithExtension(ext string) Option {
	return func(m *Manager) {
		if ext != "" {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			m.extension = ext
		}
	}
}

// WithFuncs adds template functions; "plural" is always available.
func WithFuncs(funcs template.FuncMap) Option {
	return func(m *Manager) {
		for name, fn := range funcs {
			m.funcs[name] = fn
		}
	}
}

// Start loads all templates into memory.
func (m *Manager) Start(context.Context) error {
	if err := m.parseTemplates(); err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	m.log.Info("template manager ready", "count", len(m.templates))
	return nil
}

// Reload reparses all templates.
func (m *Manager) Reload() error {
	m.log.Info("Reloading templates")
	return m.parseTemplates()
}

// Get retrieves a parsed page by file name.
func (m *Manager) Get(name string) (*template.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return tmpl, nil
}

// NameFor maps a resource and action to a page name: "list" uses the plural
// ("service" -> services.html), other actions are "<action>-<resource>".
func (m *Manager) NameFor(resource, action string) (string, error) {
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if resource == "" || action == "" {
		return "", errors.New("resource and action required")
	}
	if action == "list" {
		return m.pluralizer.Plural(resource) + m.extension, nil
	}
	return action + "-" + resource + m.extension, nil
}

// Render executes the page into a buffer and only then writes status and
// body, so a failing template never leaves a half written response.
func (m *Manager) Render(w http.ResponseWriter, name string, status int, data any) error {
	tmpl, err := m.Get(name)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}

func (m *Manager) parseTemplates() error {
	if m.fs == nil {
		return errors.New("template filesystem not configured")
	}

	pages, err := m.listFiles(m.basePath)
	if err != nil {
		return fmt.Errorf("reading template base path %s: %w", m.basePath, err)
	}
	if len(pages) == 0 {
		return errors.New("no templates found")
	}
	shared, err := m.listFiles(path.Join(m.basePath, m.sharedDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading shared templates: %w", err)
	}

	funcs := template.FuncMap{"plural": m.pluralizer.Plural}
	for name, fn := range m.funcs {
		funcs[name] = fn
	}

	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		name := path.Base(page)
		files := append(append([]string(nil), shared...), page)
		parsed, err := template.New(name).Funcs(funcs).ParseFS(m.fs, files...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		templates[name] = parsed
		m.log.Debug("loaded template", "name", name)
	}

	m.mu.Lock()
	m.templates = templates
	m.mu.Unlock()
	return nil
}

// listFiles returns the template files directly under dir, sorted.
func (m *Manager) listFiles(dir string) ([]string, error) {
	entries, err := fs.ReadDir(m.fs, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), m.extension) {
			continue
		}
		files = append(files, path.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
