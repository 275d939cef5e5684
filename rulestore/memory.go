package rulestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/subject"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key subject.Key) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key.String()]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Save(_ context.Context, key subject.Key, rule redirect.Rule) (Record, error) {
	rec, err := newRecord(key, rule, m.now())
	if err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key] = rec
	return rec, nil
}

func (m *Memory) Delete(_ context.Context, key subject.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key.String()]; !ok {
		return ErrNotFound
	}
	delete(m.records, key.String())
	return nil
}

func (m *Memory) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// replace swaps the whole content; used by the file store on reload.
func (m *Memory) replace(records []Record) {
	next := make(map[string]Record, len(records))
	for _, rec := range records {
		next[rec.Key] = rec
	}
	m.mu.Lock()
	m.records = next
	m.mu.Unlock()
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
}
