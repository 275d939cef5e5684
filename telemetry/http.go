// Package telemetry instruments the admin API with spans and request metrics
// through the tracer and metrics carried by warden.Deps.
package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/aquamarinepk/warden"
)

// MetricRequests counts instrumented requests by surface, route and status.
const MetricRequests = "admin_requests_total"

// HTTP instruments handlers of one surface, e.g. "admin".
type HTTP struct {
	surface string
	tracer  warden.Tracer
	metrics warden.Metrics
}

// Option mutates HTTP configuration.
type Option func(*HTTP)

// NewHTTP builds an instrumentation helper for surface. Without options
// spans and metrics are discarded.
func NewHTTP(surface string, opts ...Option) *HTTP {
	if surface == "" {
		surface = "http"
	}
	h := &HTTP{
		surface: surface,
		tracer:  warden.NoopTracer{},
		metrics: warden.NoopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// FromDeps uses the tracer and metrics of deps.
func FromDeps(surface string, deps *warden.Deps) *HTTP {
	deps = deps.Normalize()
	return NewHTTP(surface, WithTracer(deps.Tracer), WithMetrics(deps.Metrics))
}

func WithTracer(t warden.Tracer) Option {
	return func(h *HTTP) {
		if t == nil {
			t = warden.NoopTracer{}
		}
		h.tracer = t
	}
}

func WithMetrics(m warden.Metrics) Option {
	return func(h *HTTP) {
		if m == nil {
			m = warden.NoopMetrics{}
		}
		h.metrics = m
	}
}

// Start opens a span for the request and returns the wrapped writer and
// request plus a finish func that closes the span and records the outcome.
func (h *HTTP) Start(w http.ResponseWriter, r *http.Request, spanName string) (http.ResponseWriter, *http.Request, func()) {
	ctx, span := h.tracer.Start(r.Context(), spanName, map[string]any{
		"surface": h.surface,
		"method":  r.Method,
		"path":    r.URL.Path,
	})
	rw := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
	start := time.Now()
	req := r.WithContext(ctx)

	finish := func() {
		status := rw.Status()
		if status == 0 {
			status = http.StatusOK
		}
		var err error
		if status >= http.StatusInternalServerError {
			err = fmt.Errorf("%s: http %d", h.surface, status)
		}
		span.End(err)

		h.metrics.Counter(req.Context(), MetricRequests, 1, map[string]string{
			"surface": h.surface,
			"method":  req.Method,
			"route":   routePattern(req),
			"status":  strconv.Itoa(status),
		})
		h.metrics.ObserveHTTPRequest(req.URL.Path, req.Method, status, time.Since(start))
	}
	return rw, req, finish
}

// Middleware instruments every request of the router it is used on. Spans
// are named "<surface> <METHOD>".
func (h *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, req, finish := h.Start(w, r, h.surface+" "+r.Method)
		defer finish()
		next.ServeHTTP(rw, req)
	})
}

// routePattern is only complete once routing is done, so it is read when
// the request finishes.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return r.URL.Path
}
