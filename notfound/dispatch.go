package notfound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/rulestore"
	"github.com/aquamarinepk/warden/subject"
)

// ErrInvalidRule wraps a stored rule that fails validation.
var ErrInvalidRule = errors.New("notfound: stored rule is invalid")

// Request is the request state dispatch needs. NotFound is set by the host
// once routing decided nothing matched.
type Request struct {
	NotFound bool
	Method   string
	Path     string
}

// RequestFrom builds a Request for r.
func RequestFrom(r *http.Request, notFound bool) Request {
	return Request{NotFound: notFound, Method: r.Method, Path: r.URL.Path}
}

// Instruction is what the executor is asked to do: Type with its payload in
// Metadata, e.g. ("url", {"url": "https://example.com"}). Source is the
// subject key the rule was stored under.
type Instruction struct {
	Type     redirect.Type
	Metadata map[string]string
	Rule     redirect.Rule
	Source   subject.Key
}

// HandleNotFound decides whether a redirect is due. It only reads; the
// boolean is true when the caller should execute the returned instruction.
func (s *Service) HandleNotFound(ctx context.Context, req Request, visitor subject.Subject) (Instruction, bool, error) {
	if !req.NotFound {
		return Instruction{}, false, nil
	}

	ctx, span := s.deps.Tracer.Start(ctx, "notfound.dispatch", map[string]any{"path": req.Path})
	inst, ok, err := s.lookup(ctx, visitor)
	span.End(err)
	return inst, ok, err
}

func (s *Service) lookup(ctx context.Context, visitor subject.Subject) (Instruction, bool, error) {
	rec, found, err := rulestore.Effective(ctx, s.store, visitor.Chain())
	if err != nil {
		return Instruction{}, false, err
	}
	if !found || rec.Rule.IsDefault() {
		return Instruction{}, false, nil
	}

	source, err := rec.Subject()
	if err != nil {
		return Instruction{}, false, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if err := rec.Rule.Validate(); err != nil {
		return Instruction{}, false, fmt.Errorf("%w: %s: %w", ErrInvalidRule, rec.Key, err)
	}
	return Instruction{
		Type:     rec.Rule.Type,
		Metadata: rec.Rule.Metadata(),
		Rule:     rec.Rule,
		Source:   source,
	}, true, nil
}

// NotFoundHandler is the frontend hook installed as the router's NotFound
// handler. Requests without a redirect get fallback, http.NotFound when nil.
func (s *Service) NotFoundHandler(fallback http.Handler) http.HandlerFunc {
	if fallback == nil {
		fallback = http.HandlerFunc(http.NotFound)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// The 404 written by fallback must not be dispatched a second time.
		if iw, ok := w.(*interceptWriter); ok {
			iw.bypass = true
		}
		if s.serve(w, r) {
			return
		}
		fallback.ServeHTTP(w, r)
	}
}

// serve runs dispatch for a not-found request and executes the result. It
// returns false when nothing was written and the caller must answer itself.
func (s *Service) serve(w http.ResponseWriter, r *http.Request) bool {
	ctx := r.Context()
	visitor := s.visitor(r)

	inst, ok, err := s.HandleNotFound(ctx, RequestFrom(r, true), visitor)
	if err != nil {
		s.report(ctx, err, r, visitor)
		return false
	}
	if !ok {
		return false
	}

	if err := s.executor.Execute(w, r, inst.Rule); err != nil {
		s.report(ctx, fmt.Errorf("execute %s redirect: %w", inst.Type, err), r, visitor)
		return false
	}

	s.deps.Metrics.Counter(ctx, MetricRedirects, 1, map[string]string{"type": string(inst.Type)})
	s.publish(ctx, r, inst)
	s.log.Debug("404 redirected", "path", r.URL.Path, "type", inst.Type, "source", inst.Source.String())
	return true
}

func (s *Service) visitor(r *http.Request) subject.Subject {
	if v, ok := subject.From(r.Context()); ok {
		return v
	}
	v, err := s.resolver.Resolve(r)
	if err != nil {
		s.log.Error("cannot resolve visitor, treating as anonymous", "error", err)
		return subject.Subject{}
	}
	return v
}

func (s *Service) report(ctx context.Context, err error, r *http.Request, visitor subject.Subject) {
	s.log.Error("404 redirect failed, serving default 404", "path", r.URL.Path, "error", err)
	s.deps.Errors.Report(ctx, err, map[string]any{
		"feature": PanelID,
		"path":    r.URL.Path,
		"user":    visitor.UserID,
	})
}

// RedirectedEvent is published after a redirect was executed.
type RedirectedEvent struct {
	ID        string            `json:"id"`
	Type      redirect.Type     `json:"type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Source    string            `json:"source"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	RequestID string            `json:"request_id,omitempty"`
	At        time.Time         `json:"at"`
}

func (s *Service) publish(ctx context.Context, r *http.Request, inst Instruction) {
	payload, err := json.Marshal(RedirectedEvent{
		ID:        uuid.NewString(),
		Type:      inst.Type,
		Metadata:  inst.Metadata,
		Source:    inst.Source.String(),
		Method:    r.Method,
		Path:      r.URL.Path,
		RequestID: warden.RequestIDFrom(ctx),
		At:        time.Now().UTC(),
	})
	if err != nil {
		s.log.Error("cannot encode redirect event", "error", err)
		return
	}
	if err := s.deps.PubSub.Publish(ctx, EventRedirected, payload); err != nil {
		s.log.Error("cannot publish redirect event", "error", err)
	}
}
