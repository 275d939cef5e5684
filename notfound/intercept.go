package notfound

import (
	"net/http"
	"strings"

	"github.com/aquamarinepk/warden/catalog"
)

// Intercept covers handlers that match a route but then find nothing to
// serve. When the wrapped handler writes a 404 the redirect dispatch runs
// before the status is sent; if a redirect is executed whatever the handler
// writes afterwards is dropped. Other responses, and anything under the
// admin mount, pass through untouched.
func (s *Service) Intercept(next http.Handler) http.Handler {
	if !s.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAdminPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		iw := &interceptWriter{
			ResponseWriter: w,
			header:         w.Header().Clone(),
		}
		iw.dispatch = func() bool { return s.serve(w, r) }
		next.ServeHTTP(iw, r)
	})
}

func isAdminPath(path string) bool {
	return path == catalog.AdminPath || strings.HasPrefix(path, catalog.AdminPath+"/")
}

type interceptWriter struct {
	http.ResponseWriter
	dispatch func() bool
	header   http.Header

	bypass      bool
	wroteHeader bool
	redirected  bool
}

func (w *interceptWriter) WriteHeader(code int) {
	if w.wroteHeader {
		if !w.redirected {
			w.ResponseWriter.WriteHeader(code)
		}
		return
	}
	w.wroteHeader = true

	if code == http.StatusNotFound && !w.bypass {
		// Headers the handler set for its own 404 body must not leak into the
		// redirect; they are put back when dispatch declines.
		h := w.ResponseWriter.Header()
		handlerHeader := h.Clone()
		replaceHeader(h, w.header)
		if w.dispatch() {
			w.redirected = true
			return
		}
		replaceHeader(h, handlerHeader)
	}
	w.ResponseWriter.WriteHeader(code)
}

func replaceHeader(dst, src http.Header) {
	for k := range dst {
		delete(dst, k)
	}
	for k, v := range src {
		dst[k] = v
	}
}

func (w *interceptWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.redirected {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func (w *interceptWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.redirected {
		return
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *interceptWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
