package warden

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultDeps(t *testing.T) {
	deps := DefaultDeps()
	if deps.Metrics == nil || deps.Tracer == nil || deps.Errors == nil || deps.PubSub == nil {
		t.Errorf("DefaultDeps() left collaborators nil: %+v", deps)
	}
	if deps.Logger != nil || deps.Config != nil {
		t.Error("logger and config are set by Normalize")
	}
}

func TestDepsNormalize(t *testing.T) {
	tests := []struct {
		name string
		deps *Deps
	}{
		{name: "nil", deps: nil},
		{name: "empty", deps: &Deps{}},
		{name: "defaults", deps: DefaultDeps()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.deps.Normalize()
			if got == nil {
				t.Fatal("Normalize() returned nil")
			}
			if got.Logger == nil || got.Config == nil || got.Metrics == nil ||
				got.Tracer == nil || got.Errors == nil || got.PubSub == nil {
				t.Errorf("Normalize() left collaborators nil: %+v", got)
			}
		})
	}
}

func TestDepsNormalizeKeepsValues(t *testing.T) {
	cfg := NewConfig()
	cfg.Set("core.service.404-redirect.enabled", false)
	log := &recordLogger{}
	reporter := LogErrorReporter{Logger: log}

	deps := (&Deps{Logger: log, Config: cfg, Errors: reporter}).Normalize()
	if deps.Logger != log || deps.Config != cfg {
		t.Error("Normalize() replaced provided collaborators")
	}
	if _, ok := deps.Errors.(LogErrorReporter); !ok {
		t.Errorf("Errors = %T, want LogErrorReporter", deps.Errors)
	}
}

func TestNoops(t *testing.T) {
	ctx := context.Background()

	NoopMetrics{}.Counter(ctx, "redirects_total", 1, map[string]string{"type": "login"})
	NoopMetrics{}.ObserveHTTPRequest("/missing", "GET", 307, time.Millisecond)

	spanCtx, span := NoopTracer{}.Start(ctx, "notfound", nil)
	if spanCtx != ctx {
		t.Error("NoopTracer should return the given context")
	}
	span.End(errors.New("ignored"))

	if err := (NoopPubSub{}).Publish(ctx, "notfound.redirected", []byte("{}")); err != nil {
		t.Errorf("NoopPubSub.Publish() error = %v", err)
	}
}
