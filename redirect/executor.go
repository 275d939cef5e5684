package redirect

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

var (
	ErrDefaultRule      = errors.New("redirect: default rule has nothing to execute")
	ErrPageNotFound     = errors.New("redirect: page not found")
	ErrCallbackNotFound = errors.New("redirect: callback not registered")
)

const (
	DefaultStatus        = http.StatusTemporaryRedirect
	DefaultLoginURL      = "/login"
	DefaultMessageStatus = http.StatusNotFound
)

// Executor writes the response for a non-default rule. It is the only
// component that writes to w.
type Executor interface {
	Execute(w http.ResponseWriter, r *http.Request, rule Rule) error
}

// ExecutorFunc adapts a function into an Executor.
type ExecutorFunc func(w http.ResponseWriter, r *http.Request, rule Rule) error

func (f ExecutorFunc) Execute(w http.ResponseWriter, r *http.Request, rule Rule) error {
	return f(w, r, rule)
}

// PageResolver maps a page identifier to a path or URL.
type PageResolver interface {
	PagePath(ctx context.Context, id string) (string, error)
}

// PageMap is a static PageResolver, usually loaded from redirect.pages.
type PageMap map[string]string

func (m PageMap) PagePath(_ context.Context, id string) (string, error) {
	path, ok := m[strings.ToLower(strings.TrimSpace(id))]
	if !ok || path == "" {
		return "", fmt.Errorf("%w: %q", ErrPageNotFound, id)
	}
	return path, nil
}

// Callbacks is a registry of named handlers a callback rule can invoke.
type Callbacks struct {
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
}

func NewCallbacks() *Callbacks {
	return &Callbacks{handlers: make(map[string]http.HandlerFunc)}
}

// Register adds or replaces the handler for name.
func (c *Callbacks) Register(name string, fn http.HandlerFunc) {
	if name == "" || fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = fn
}

// Lookup returns the handler registered under name.
func (c *Callbacks) Lookup(name string) (http.HandlerFunc, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.handlers[name]
	return fn, ok
}

// MessageRenderer writes the page for a message rule.
type MessageRenderer interface {
	RenderMessage(w http.ResponseWriter, r *http.Request, status int, message string) error
}

// MessageRendererFunc adapts a function into a MessageRenderer.
type MessageRendererFunc func(w http.ResponseWriter, r *http.Request, status int, message string) error

func (f MessageRendererFunc) RenderMessage(w http.ResponseWriter, r *http.Request, status int, message string) error {
	return f(w, r, status, message)
}

// PlainMessage writes the HTML escaped message as the whole body.
func PlainMessage(w http.ResponseWriter, _ *http.Request, status int, message string) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, err := w.Write([]byte(template.HTMLEscapeString(message)))
	return err
}

// Config is decoded from the "redirect" config subtree.
type Config struct {
	Status int               `koanf:"status"`
	Pages  map[string]string `koanf:"pages"`
	Login  struct {
		URL string `koanf:"url"`
	} `koanf:"login"`
	Message struct {
		Status int `koanf:"status"`
	} `koanf:"message"`
}

// HTTPExecutor is the stock Executor.
type HTTPExecutor struct {
	status        int
	loginURL      string
	messageStatus int
	pages         PageResolver
	callbacks     *Callbacks
	messages      MessageRenderer
}

// ExecutorOption configures an HTTPExecutor.
type ExecutorOption func(*HTTPExecutor)

// WithStatus sets the redirect status code; only 3xx codes are accepted.
func WithStatus(code int) ExecutorOption {
	return func(e *HTTPExecutor) {
		if code >= 300 && code < 400 {
			e.status = code
		}
	}
}

func WithLoginURL(u string) ExecutorOption {
	return func(e *HTTPExecutor) {
		if u != "" {
			e.loginURL = u
		}
	}
}

func WithMessageStatus(code int) ExecutorOption {
	return func(e *HTTPExecutor) {
		if code >= 200 && code < 600 {
			e.messageStatus = code
		}
	}
}

func WithPages(pages PageResolver) ExecutorOption {
	return func(e *HTTPExecutor) {
		if pages != nil {
			e.pages = pages
		}
	}
}

// WithMessageRenderer replaces PlainMessage for message rules.
func WithMessageRenderer(renderer MessageRenderer) ExecutorOption {
	return func(e *HTTPExecutor) {
		if renderer != nil {
			e.messages = renderer
		}
	}
}

func WithCallbacks(callbacks *Callbacks) ExecutorOption {
	return func(e *HTTPExecutor) {
		if callbacks != nil {
			e.callbacks = callbacks
		}
	}
}

// NewExecutor builds an HTTPExecutor with 307 redirects, /login as login page
// and 404 for message responses unless overridden.
func NewExecutor(opts ...ExecutorOption) *HTTPExecutor {
	e := &HTTPExecutor{
		status:        DefaultStatus,
		loginURL:      DefaultLoginURL,
		messageStatus: DefaultMessageStatus,
		pages:         PageMap{},
		callbacks:     NewCallbacks(),
		messages:      MessageRendererFunc(PlainMessage),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// NewExecutorFromConfig builds an HTTPExecutor from a decoded Config; opts
// are applied last.
func NewExecutorFromConfig(cfg Config, callbacks *Callbacks, opts ...ExecutorOption) *HTTPExecutor {
	pages := make(PageMap, len(cfg.Pages))
	for id, path := range cfg.Pages {
		pages[strings.ToLower(id)] = path
	}
	return NewExecutor(append([]ExecutorOption{
		WithStatus(cfg.Status),
		WithLoginURL(cfg.Login.URL),
		WithMessageStatus(cfg.Message.Status),
		WithPages(pages),
		WithCallbacks(callbacks),
	}, opts...)...)
}

func (e *HTTPExecutor) Execute(w http.ResponseWriter, r *http.Request, rule Rule) error {
	if rule.IsDefault() {
		return ErrDefaultRule
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	switch rule.Type {
	case TypeURL:
		http.Redirect(w, r, rule.URL, e.status)
	case TypePage:
		path, err := e.pages.PagePath(r.Context(), rule.Page)
		if err != nil {
			return err
		}
		http.Redirect(w, r, path, e.status)
	case TypeCallback:
		fn, ok := e.callbacks.Lookup(rule.Callback)
		if !ok {
			return fmt.Errorf("%w: %q", ErrCallbackNotFound, rule.Callback)
		}
		fn(w, r)
	case TypeLogin:
		target, err := loginTarget(e.loginURL, r)
		if err != nil {
			return err
		}
		http.Redirect(w, r, target, e.status)
	case TypeMessage:
		return e.messages.RenderMessage(w, r, e.messageStatus, rule.Message)
	}
	return nil
}

// loginTarget appends redirect_to and reason to the login URL, keeping any
// query it already has.
func loginTarget(loginURL string, r *http.Request) (string, error) {
	u, err := url.Parse(loginURL)
	if err != nil {
		return "", fmt.Errorf("%w: login url: %v", ErrInvalidURL, err)
	}
	q := u.Query()
	q.Set("redirect_to", r.URL.RequestURI())
	q.Set("reason", "restricted")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
