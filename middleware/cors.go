package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aquamarinepk/warden"
)

// CORSOptions configures cross-origin access, used by the admin API when the
// settings UI is served from another origin.
type CORSOptions struct {
	AllowedOrigins   []string      `koanf:"origins"`
	AllowedMethods   []string      `koanf:"methods"`
	AllowedHeaders   []string      `koanf:"headers"`
	ExposedHeaders   []string      `koanf:"exposed_headers"`
	AllowCredentials bool          `koanf:"allow_credentials"`
	MaxAge           time.Duration `koanf:"max_age"`
}

func DefaultCORSOptions() CORSOptions {
	return CORSOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", warden.RequestIDHeader},
		ExposedHeaders: []string{warden.RequestIDHeader},
		MaxAge:         10 * time.Minute,
	}
}

// CORS answers preflight requests and decorates responses for allowed
// origins. Requests from other origins get 403.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = DefaultCORSOptions().AllowedMethods
	}
	methods := strings.Join(opts.AllowedMethods, ", ")
	headers := strings.Join(opts.AllowedHeaders, ", ")
	exposed := strings.Join(opts.ExposedHeaders, ", ")
	maxAge := ""
	if opts.MaxAge > 0 {
		maxAge = strconv.Itoa(int(opts.MaxAge.Seconds()))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			setVaryHeaders(h)
			if !originAllowed(origin, opts.AllowedOrigins) {
				warden.RespondError(w, http.StatusForbidden, "origin not allowed")
				return
			}

			allowOrigin := originHeaderValue(origin, opts.AllowedOrigins)
			if opts.AllowCredentials {
				allowOrigin = origin
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Origin", allowOrigin)
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}
			if maxAge != "" {
				h.Set("Access-Control-Max-Age", maxAge)
			}

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", methods)
				if headers != "" {
					h.Set("Access-Control-Allow-Headers", headers)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// originHeaderValue returns "*" for wildcard configs and the request origin
// otherwise.
func originHeaderValue(origin string, allowed []string) string {
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
	}
	return origin
}

func setVaryHeaders(h http.Header) {
	present := map[string]bool{}
	for _, v := range h.Values("Vary") {
		present[v] = true
	}
	for _, v := range []string{"Origin", "Access-Control-Request-Method", "Access-Control-Request-Headers"} {
		if !present[v] {
			h.Add("Vary", v)
		}
	}
}
