package warden

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NotFoundTargetKey names the config setting for the host's own 404
// behaviour. When set, unmatched routes are redirected there.
const NotFoundTargetKey = "http.not_found.target"

// FallbackHandler is the host's normal not-found behaviour: a 302 to target
// when set, http.NotFound otherwise.
func FallbackHandler(target string) http.HandlerFunc {
	if target == "" {
		return http.NotFound
	}
	return func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, target, http.StatusFound)
	}
}

// RedirectNotFound configures the router to send unmatched routes to target,
// "/" when empty. Features installed later may replace the NotFound handler
// and should fall back to FallbackHandler.
func RedirectNotFound(r chi.Router, target string) {
	if target == "" {
		target = "/"
	}
	r.NotFound(FallbackHandler(target))
	r.MethodNotAllowed(FallbackHandler(target))
}
