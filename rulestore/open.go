package rulestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/seed"
)

const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

const (
	defaultSQLitePath = "data/warden.db"
	defaultFilePath   = "data/rules.yaml"
)

// Config is decoded from the "store" config subtree.
type Config struct {
	Driver string             `koanf:"driver"`
	Mongo  warden.MongoConfig `koanf:"mongo"`
	SQLite struct {
		Path string `koanf:"path"`
	} `koanf:"sqlite"`
	File struct {
		Path string `koanf:"path"`
	} `koanf:"file"`
	Cache struct {
		Enabled bool          `koanf:"enabled"`
		TTL     time.Duration `koanf:"ttl"`
	} `koanf:"cache"`
}

// ConfigFrom reads the store section. The cache is on unless
// store.cache.enabled is false.
func ConfigFrom(cfg *warden.Config) (Config, error) {
	var c Config
	if cfg == nil {
		c.Driver = DriverMemory
		return c, nil
	}
	if err := cfg.Unmarshal("store", &c); err != nil {
		return Config{}, fmt.Errorf("store config: %w", err)
	}
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	c.Cache.Enabled = cfg.GetBoolOrTrue("store.cache.enabled")
	return c, nil
}

// Backend is an opened Store with its seed tracker and lifecycle. It
// implements warden.Startable, warden.Stoppable and warden.HealthReporter.
type Backend struct {
	Store   Store
	Tracker seed.Tracker
	Driver  string

	cached *Cached
	file   *File
	ping   warden.HealthCheck
	close  func(context.Context) error
}

// Open connects the configured driver. Mongo and SQLite stores are fronted by
// a Cached store when the cache is enabled.
func Open(ctx context.Context, cfg Config, log warden.Logger) (*Backend, error) {
	if log == nil {
		log = warden.NewNoopLogger()
	}
	b := &Backend{Driver: cfg.Driver}

	switch cfg.Driver {
	case "", DriverMemory:
		b.Driver = DriverMemory
		b.Store = NewMemory()
		b.Tracker = seed.NewMemoryTracker()

	case DriverMongo:
		client, err := warden.NewMongoClient(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		store, err := NewMongo(client.Collection(MongoCollection))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		b.Store = store
		b.Tracker = seed.NewMongoTracker(client.Database())
		b.ping = client.Ping
		b.close = client.Disconnect

	case DriverSQLite:
		path := cfg.SQLite.Path
		if path == "" {
			path = defaultSQLitePath
		}
		store, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		tracker, err := seed.NewSQLTracker(ctx, store.DB())
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		b.Store = store
		b.Tracker = tracker
		b.ping = store.Ping
		b.close = func(context.Context) error { return store.Close() }

	case DriverFile:
		path := cfg.File.Path
		if path == "" {
			path = defaultFilePath
		}
		store, err := OpenFile(path, log.With("component", "rulestore"))
		if err != nil {
			return nil, err
		}
		b.Store = store
		b.Tracker = seed.NewMemoryTracker()
		b.file = store

	default:
		return nil, fmt.Errorf("rulestore: unknown driver %q", cfg.Driver)
	}

	if cfg.Cache.Enabled && (b.Driver == DriverMongo || b.Driver == DriverSQLite) {
		b.cached = NewCached(b.Store, cfg.Cache.TTL)
		b.Store = b.cached
	}
	log.Info("rule store opened", "driver", b.Driver, "cached", b.cached != nil)
	return b, nil
}

// Cache returns the cache in front of the store, or nil.
func (b *Backend) Cache() *Cached { return b.cached }

// OnReload registers fn to run after the file driver reloaded its rules
// from disk. Other drivers never reload, so fn is dropped.
func (b *Backend) OnReload(fn func()) {
	if b.file != nil {
		b.file.OnReload(fn)
	}
}

// Seed applies the configured initial rules once per backend.
func (b *Backend) Seed(ctx context.Context, rules []SeedRule, application string) error {
	if len(rules) == 0 {
		return nil
	}
	seeds, err := Seeds(b.Store, rules)
	if err != nil {
		return err
	}
	return seed.Apply(ctx, b.Tracker, seeds, application)
}

// Start begins watching the rule file when the file driver is in use.
func (b *Backend) Start(ctx context.Context) error {
	if b.file == nil {
		return nil
	}
	return b.file.Start(ctx)
}

// Stop releases the watcher and the connection.
func (b *Backend) Stop(ctx context.Context) error {
	var err error
	if b.file != nil {
		err = errors.Join(err, b.file.Stop(ctx))
	}
	if b.close != nil {
		err = errors.Join(err, b.close(ctx))
	}
	return err
}

func (b *Backend) HealthChecks() warden.HealthChecks {
	checks := warden.HealthChecks{Readiness: map[string]warden.HealthCheck{}}
	if b.ping != nil {
		checks.Readiness["rulestore"] = b.ping
	}
	return checks
}
