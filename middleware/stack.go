package middleware

import (
	"compress/gzip"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aquamarinepk/warden"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
)

// StackOptions configures the default middleware bundle.
type StackOptions struct {
	Logger              warden.Logger
	Metrics             warden.Metrics
	Errors              warden.ErrorReporter
	TimeoutDuration     time.Duration
	DisableTimeout      bool
	CompressLevel       int
	AllowedContentTypes []string
	CORS                *CORSOptions
}

// DefaultStack wires the middleware order used by the HTTP server. The
// content type gate is only added when AllowedContentTypes is set, since the
// frontend hook must see every request that ends in a 404.
func DefaultStack(opts StackOptions) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		RequestID(),
		RealIP(),
		Compress(opts.CompressLevel),
		Recoverer(),
		ErrorReporter(opts.Errors),
	}
	if !opts.DisableTimeout {
		timeout := opts.TimeoutDuration
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		stack = append(stack, Timeout(timeout))
	}
	stack = append(stack, RequestLogger(opts.Logger), Metrics(opts.Metrics))
	if opts.CORS != nil {
		stack = append(stack, CORS(*opts.CORS))
	}
	if len(opts.AllowedContentTypes) > 0 {
		stack = append(stack, AllowContentType(opts.AllowedContentTypes...))
	}
	return stack
}

// RequestID ensures every request carries a correlation identifier.
func RequestID() func(http.Handler) http.Handler {
	return warden.RequestIDMiddleware
}

// RealIP resolves the actual remote IP when behind proxies/load balancers.
func RealIP() func(http.Handler) http.Handler {
	return chimiddleware.RealIP
}

// Compress gzips responses larger than gzhttp's minimum size. Levels outside
// the gzip range fall back to 5.
func Compress(level int) func(http.Handler) http.Handler {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = 5
	}
	wrap, err := gzhttp.NewWrapper(gzhttp.CompressionLevel(level))
	if err != nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return wrap(next)
	}
}

// Recoverer prevents panics from tearing down the server.
func Recoverer() func(http.Handler) http.Handler {
	return chimiddleware.Recoverer
}

// Timeout aborts requests that exceed duration. A zero duration disables it.
func Timeout(duration time.Duration) func(http.Handler) http.Handler {
	if duration <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return chimiddleware.Timeout(duration)
}

// RequestLogger emits structured request lifecycle logs.
func RequestLogger(logger warden.Logger) func(http.Handler) http.Handler {
	return warden.NewRequestLogger(normalizeLogger(logger))
}

// Metrics publishes request counters and latencies using the shared Metrics.
func Metrics(metrics warden.Metrics) func(http.Handler) http.Handler {
	if metrics == nil {
		metrics = warden.NoopMetrics{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(recorder, r)

			labels := map[string]string{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": strconv.Itoa(recorder.Status()),
			}
			metrics.Counter(r.Context(), "http_requests_total", 1, labels)
			metrics.ObserveHTTPRequest(r.URL.Path, r.Method, recorder.Status(), time.Since(start))
		})
	}
}

// ErrorReporter forwards 5xx responses and panics to the configured reporter.
func ErrorReporter(reporter warden.ErrorReporter) func(http.Handler) http.Handler {
	if reporter == nil {
		reporter = warden.NoopErrorReporter{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				if rec := recover(); rec != nil {
					reporter.Report(r.Context(), toError(rec), errorFields(r, 0))
					panic(rec)
				}
			}()

			next.ServeHTTP(recorder, r)

			status := recorder.Status()
			if status >= http.StatusInternalServerError {
				reporter.Report(r.Context(), fmt.Errorf("http %d", status), errorFields(r, status))
			}
		})
	}
}

// AllowContentType gate-keeps supported media types.
func AllowContentType(types ...string) func(http.Handler) http.Handler {
	if len(types) == 0 {
		types = []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"}
	}
	return chimiddleware.AllowContentType(types...)
}

func normalizeLogger(logger warden.Logger) warden.Logger {
	if logger == nil {
		return warden.NewNoopLogger()
	}
	return logger
}

func errorFields(r *http.Request, status int) map[string]any {
	fields := map[string]any{
		"request_id": warden.RequestIDFrom(r.Context()),
		"path":       r.URL.Path,
		"method":     r.Method,
	}
	if status != 0 {
		fields["status"] = status
	}
	return fields
}

func toError(v any) error {
	switch err := v.(type) {
	case error:
		return err
	default:
		return fmt.Errorf("panic: %v", err)
	}
}
