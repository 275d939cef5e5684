// Package seed applies versioned, run-once data mutations, such as the
// initial redirect rules of a deployment.
package seed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Seed is a mutation that runs once per application. A seed whose Digest
// changes since it was recorded runs again.
type Seed struct {
	ID          string
	Description string
	Digest      string
	Run         func(ctx context.Context) error
}

// Record tracks the execution metadata for a seed. Records are keyed by
// Application and ID, so several applications can share one tracker.
type Record struct {
	Application string
	ID          string
	Description string
	Digest      string
	AppliedAt   time.Time
}

// Key is the storage key of the record.
func (r Record) Key() string {
	return recordKey(r.Application, r.ID)
}

func recordKey(application, id string) string {
	return application + "/" + id
}

func (r Record) validate() error {
	if r.ID == "" {
		return errors.New("seed record ID is required")
	}
	if r.Application == "" {
		return errors.New("seed record application is required")
	}
	return nil
}

// Tracker persists which seeds have executed.
type Tracker interface {
	// Lookup returns the record of a seed, reporting false when it never ran.
	Lookup(ctx context.Context, application, id string) (Record, bool, error)
	// MarkRun stores the record, replacing a previous run of the same seed.
	MarkRun(ctx context.Context, record Record) error
}

// Apply executes the provided seeds once per application, rerunning those
// whose digest changed.
func Apply(ctx context.Context, tracker Tracker, seeds []Seed, application string) error {
	if tracker == nil {
		return errors.New("seed tracker is required")
	}
	if application == "" {
		return errors.New("seed application is required")
	}

	for i, s := range seeds {
		if s.ID == "" {
			return fmt.Errorf("seed at index %d missing ID", i)
		}
		if s.Run == nil {
			return fmt.Errorf("seed %s missing Run function", s.ID)
		}

		prev, ran, err := tracker.Lookup(ctx, application, s.ID)
		if err != nil {
			return fmt.Errorf("check seed %s status: %w", s.ID, err)
		}
		if ran && prev.Digest == s.Digest {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.Run(ctx); err != nil {
			return fmt.Errorf("seed %s failed: %w", s.ID, err)
		}

		record := Record{
			Application: application,
			ID:          s.ID,
			Description: s.Description,
			Digest:      s.Digest,
			AppliedAt:   time.Now().UTC(),
		}
		if err := tracker.MarkRun(ctx, record); err != nil {
			return fmt.Errorf("mark seed %s as complete: %w", s.ID, err)
		}
	}

	return nil
}

// MemoryTracker keeps seed records for the life of the process. Backends
// without durable storage, like the in-memory rule store, reseed on restart.
type MemoryTracker struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{records: make(map[string]Record)}
}

func (t *MemoryTracker) Lookup(_ context.Context, application, id string) (Record, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[recordKey(application, id)]
	return rec, ok, nil
}

func (t *MemoryTracker) MarkRun(_ context.Context, record Record) error {
	if err := record.validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[record.Key()] = record
	return nil
}

// Records returns a copy of the applied seeds.
func (t *MemoryTracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec)
	}
	return out
}
