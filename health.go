package warden

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthCheck represents a liveness or readiness probe.
type HealthCheck func(context.Context) error

// HealthChecks aggregates liveness and readiness probes.
type HealthChecks struct {
	Liveness  map[string]HealthCheck
	Readiness map[string]HealthCheck
}

// HealthReporter lets features and modules expose probes, e.g. rule store pings.
type HealthReporter interface {
	HealthChecks() HealthChecks
}

// HealthRegistry stores registered probes and serves them over HTTP.
type HealthRegistry struct {
	mu        sync.RWMutex
	liveness  map[string]HealthCheck
	readiness map[string]HealthCheck
}

func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{
		liveness:  map[string]HealthCheck{},
		readiness: map[string]HealthCheck{},
	}
}

// RegisterChecks installs both kinds of checks from the reporter.
func (hr *HealthRegistry) RegisterChecks(checks HealthChecks) {
	for name, check := range checks.Liveness {
		hr.RegisterLiveness(name, check)
	}
	for name, check := range checks.Readiness {
		hr.RegisterReadiness(name, check)
	}
}

func (hr *HealthRegistry) RegisterLiveness(name string, check HealthCheck) {
	if check == nil || name == "" {
		return
	}
	hr.mu.Lock()
	hr.liveness[name] = check
	hr.mu.Unlock()
}

func (hr *HealthRegistry) RegisterReadiness(name string, check HealthCheck) {
	if check == nil || name == "" {
		return
	}
	hr.mu.Lock()
	hr.readiness[name] = check
	hr.mu.Unlock()
}

// RegisterHealthEndpoints mounts /healthz, /livez, /readyz and /ping.
func RegisterHealthEndpoints(r chi.Router, registry *HealthRegistry) {
	if registry == nil {
		registry = NewHealthRegistry()
	}
	live := registry.handler(func() map[string]HealthCheck { return registry.liveness })
	ready := registry.handler(func() map[string]HealthCheck { return registry.readiness })

	r.Get("/healthz", live)
	r.Get("/livez", live)
	r.Get("/readyz", ready)
	r.Get("/ping", pingHandler)
}

func pingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

func (hr *HealthRegistry) handler(checks func() map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hr.mu.RLock()
		snapshot := make(map[string]HealthCheck, len(checks()))
		for name, check := range checks() {
			snapshot[name] = check
		}
		hr.mu.RUnlock()

		summary := runChecks(r.Context(), snapshot)
		status := http.StatusOK
		if summary.Status != "ok" {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(summary)
	}
}

func runChecks(ctx context.Context, checks map[string]HealthCheck) ProbeResponse {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	results := make([]HealthResult, 0, len(checks))
	for _, name := range names {
		result := HealthResult{Name: name}
		if err := checks[name](ctx); err != nil {
			result.Error = err.Error()
			status = "degraded"
		}
		results = append(results, result)
	}

	return ProbeResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Results:   results,
	}
}

// HealthStatusOK always reports a healthy state.
func HealthStatusOK(context.Context) error { return nil }

// HealthResult captures the outcome of a single probe.
type HealthResult struct {
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// ProbeResponse wraps probe results in a standard JSON envelope.
type ProbeResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Results   []HealthResult `json:"results,omitempty"`
}
