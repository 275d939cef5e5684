package notfound

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/rulestore"
	"github.com/aquamarinepk/warden/subject"
)

type executorCall struct {
	Type     redirect.Type
	Metadata map[string]string
}

// recordingExecutor records calls and answers like a redirecting executor.
type recordingExecutor struct {
	mu    sync.Mutex
	calls []executorCall
	err   error
}

func (e *recordingExecutor) Execute(w http.ResponseWriter, r *http.Request, rule redirect.Rule) error {
	e.mu.Lock()
	e.calls = append(e.calls, executorCall{Type: rule.Type, Metadata: rule.Metadata()})
	e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	w.Header().Set("Location", rule.Payload())
	w.WriteHeader(http.StatusTemporaryRedirect)
	return nil
}

func (e *recordingExecutor) Calls() []executorCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]executorCall(nil), e.calls...)
}

type countingStore struct {
	rulestore.Store
	mu   sync.Mutex
	gets int
}

func (c *countingStore) Get(ctx context.Context, key subject.Key) (rulestore.Record, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Store.Get(ctx, key)
}

func (c *countingStore) Gets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}

// rawStore serves records without validating them, like a backend holding
// data written by an older release.
type rawStore struct {
	rulestore.Store
	records map[string]rulestore.Record
}

func (s rawStore) Get(_ context.Context, key subject.Key) (rulestore.Record, error) {
	rec, ok := s.records[key.String()]
	if !ok {
		return rulestore.Record{}, rulestore.ErrNotFound
	}
	return rec, nil
}

type recordingMetrics struct {
	warden.NoopMetrics
	mu       sync.Mutex
	counters []map[string]string
	names    []string
}

func (m *recordingMetrics) Counter(_ context.Context, name string, _ float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	m.counters = append(m.counters, labels)
}

type published struct {
	subject string
	payload []byte
}

type recordingPubSub struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPubSub) Publish(_ context.Context, subject string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{subject: subject, payload: payload})
	return nil
}

type reported struct {
	err    error
	fields map[string]any
}

type fixture struct {
	service  *Service
	store    *countingStore
	executor *recordingExecutor
	metrics  *recordingMetrics
	pubsub   *recordingPubSub
	reports  *[]reported
}

func newFixture(t *testing.T, settings map[string]any, opts ...Option) *fixture {
	t.Helper()
	cfg := warden.NewConfig()
	for k, v := range settings {
		cfg.Set(k, v)
	}
	var reports []reported
	var mu sync.Mutex
	f := &fixture{
		store:    &countingStore{Store: rulestore.NewMemory()},
		executor: &recordingExecutor{},
		metrics:  &recordingMetrics{},
		pubsub:   &recordingPubSub{},
		reports:  &reports,
	}
	deps := &warden.Deps{
		Config:  cfg,
		Metrics: f.metrics,
		PubSub:  f.pubsub,
		Errors: warden.ErrorReporterFunc(func(_ context.Context, err error, fields map[string]any) {
			mu.Lock()
			defer mu.Unlock()
			reports = append(reports, reported{err: err, fields: fields})
		}),
	}
	svc, err := New(f.store, f.executor, deps, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.service = svc
	return f
}

func (f *fixture) save(t *testing.T, key subject.Key, rule redirect.Rule) {
	t.Helper()
	if _, err := f.store.Save(context.Background(), key, rule); err != nil {
		t.Fatalf("Save %s: %v", key, err)
	}
}

func rawRecord(key subject.Key, rule redirect.Rule) rulestore.Record {
	return rulestore.Record{Key: key.String(), Rule: rule, UpdatedAt: time.Now()}
}
