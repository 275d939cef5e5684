// Package rulestore persists redirect rules per subject. Backends: memory,
// MongoDB, SQLite and a watched YAML file, optionally behind a TTL cache.
package rulestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/subject"
)

var ErrNotFound = errors.New("rulestore: rule not found")

// Record is a stored rule. Key is the subject key in string form and doubles
// as the storage identifier.
type Record struct {
	Key       string        `json:"key" bson:"_id" yaml:"subject"`
	Rule      redirect.Rule `json:"rule" bson:"rule" yaml:",inline"`
	UpdatedAt time.Time     `json:"updated_at" bson:"updated_at" yaml:"updated_at,omitempty"`
}

// ID implements warden.Identifiable.
func (r *Record) ID() string { return r.Key }

// Subject parses Key back into a subject key.
func (r Record) Subject() (subject.Key, error) {
	return subject.ParseKey(r.Key)
}

// Store persists one rule per subject key. A stored default rule is a real
// record; Delete removes the record so lookups fall through the chain.
type Store interface {
	Get(ctx context.Context, key subject.Key) (Record, error)
	Save(ctx context.Context, key subject.Key, rule redirect.Rule) (Record, error)
	Delete(ctx context.Context, key subject.Key) error
	List(ctx context.Context) ([]Record, error)
}

func newRecord(key subject.Key, rule redirect.Rule, now time.Time) (Record, error) {
	if err := key.Validate(); err != nil {
		return Record{}, err
	}
	if rule.Type == "" {
		rule.Type = redirect.TypeDefault
	}
	if err := rule.Validate(); err != nil {
		return Record{}, fmt.Errorf("rulestore: %s: %w", key, err)
	}
	return Record{Key: key.String(), Rule: rule, UpdatedAt: now.UTC()}, nil
}

// Effective walks chain and returns the first stored record. The boolean is
// false when no key in the chain has a record.
func Effective(ctx context.Context, store Store, chain []subject.Key) (Record, bool, error) {
	for _, key := range chain {
		rec, err := store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Record{}, false, fmt.Errorf("rulestore: lookup %s: %w", key, err)
		}
		return rec, true, nil
	}
	return Record{}, false, nil
}
