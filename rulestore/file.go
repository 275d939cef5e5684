package rulestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/subject"
)

const defaultReloadDelay = 250 * time.Millisecond

type fileDocument struct {
	Rules []Record `yaml:"rules"`
}

// File keeps rules in a YAML document:
//
//	rules:
//	  - subject: role:editor
//	    type: url
//	    url: https://example.com/help
//
// Reads are served from memory. Start watches the file and reloads it when it
// changes on disk; a document that fails to parse keeps the previous rules.
type File struct {
	path        string
	log         warden.Logger
	mem         *Memory
	reloadDelay time.Duration

	writeMu  sync.Mutex
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	done     chan struct{}
	onReload []func()
}

// OpenFile loads path. A missing file starts an empty store; the file is
// created on the first Save.
func OpenFile(path string, log warden.Logger) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("rule file path: %w", err)
	}
	if log == nil {
		log = warden.NewNoopLogger()
	}
	f := &File{path: abs, log: log, mem: NewMemory(), reloadDelay: defaultReloadDelay}
	records, err := f.read()
	if err != nil {
		return nil, err
	}
	f.mem.replace(records)
	return f, nil
}

// OnReload registers fn to run after the file was reloaded from disk.
func (f *File) OnReload(fn func()) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.onReload = append(f.onReload, fn)
	f.mu.Unlock()
}

func (f *File) Path() string { return f.path }

func (f *File) Get(ctx context.Context, key subject.Key) (Record, error) {
	return f.mem.Get(ctx, key)
}

func (f *File) List(ctx context.Context) ([]Record, error) {
	return f.mem.List(ctx)
}

func (f *File) Save(ctx context.Context, key subject.Key, rule redirect.Rule) (Record, error) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	rec, err := f.mem.Save(ctx, key, rule)
	if err != nil {
		return Record{}, err
	}
	if err := f.flush(ctx); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (f *File) Delete(ctx context.Context, key subject.Key) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.mem.Delete(ctx, key); err != nil {
		return err
	}
	return f.flush(ctx)
}

// Start watches the parent directory so editors that replace the file on save
// are noticed too.
func (f *File) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rule file watcher: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = w.Close()
		return fmt.Errorf("create rule file directory: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	f.watcher = w
	f.done = make(chan struct{})
	go f.watch(w, f.done)
	f.log.Info("watching rule file", "path", f.path)
	return nil
}

func (f *File) Stop(ctx context.Context) error {
	f.mu.Lock()
	w, done := f.watcher, f.done
	f.watcher, f.done = nil, nil
	f.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (f *File) watch(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(f.reloadDelay, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			f.reload()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.log.Error("rule file watcher error", "error", err)
		}
	}
}

// reload replaces the in-memory rules with the file content.
func (f *File) reload() {
	f.writeMu.Lock()
	records, err := f.read()
	if err != nil {
		f.writeMu.Unlock()
		f.log.Error("cannot reload rule file, keeping previous rules", "path", f.path, "error", err)
		return
	}
	f.mem.replace(records)
	f.writeMu.Unlock()

	f.log.Info("rule file reloaded", "path", f.path, "rules", len(records))
	f.mu.Lock()
	listeners := append([]func(){}, f.onReload...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (f *File) read() ([]Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", f.path, err)
	}
	records := make([]Record, 0, len(doc.Rules))
	seen := make(map[string]bool, len(doc.Rules))
	for i, rec := range doc.Rules {
		key, err := subject.ParseKey(rec.Key)
		if err != nil {
			return nil, fmt.Errorf("rule file entry %d: %w", i, err)
		}
		valid, err := newRecord(key, rec.Rule, rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("rule file entry %d: %w", i, err)
		}
		if seen[valid.Key] {
			return nil, fmt.Errorf("rule file entry %d: duplicate subject %s", i, valid.Key)
		}
		seen[valid.Key] = true
		records = append(records, valid)
	}
	return records, nil
}

// flush writes the current rules to a temp file and renames it over path.
func (f *File) flush(ctx context.Context) error {
	records, err := f.mem.List(ctx)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(fileDocument{Rules: records})
	if err != nil {
		return fmt.Errorf("encode rule file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create rule file directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".rules-*.yaml")
	if err != nil {
		return fmt.Errorf("write rule file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write rule file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write rule file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace rule file: %w", err)
	}
	return nil
}
