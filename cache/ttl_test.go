package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(ttl time.Duration) (*TTLCache[string, int], *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewTTLCache[string, int](ttl)
	c.now = clock.now
	return c, clock
}

func TestTTLCacheSetGet(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("a", 1)

	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Errorf("expected (1, true), got (%d, %v)", v, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("unexpected hit for missing key")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Set("a", 1)
	c.SetWithTTL("b", 2, time.Hour)

	clock.advance(2 * time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be expired")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Error("expected b to survive")
	}
	if removed := c.ClearExpired(); removed != 1 {
		t.Errorf("expected 1 removed entry, got %d", removed)
	}
	if c.Size() != 1 {
		t.Errorf("expected size 1, got %d", c.Size())
	}
}

func TestTTLCacheDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be deleted")
	}
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("expected empty cache, got %d", c.Size())
	}
}

func TestStringTTLCacheDeleteByPrefix(t *testing.T) {
	c := NewStringTTLCache[string](time.Minute)
	c.Set("user:1", "x")
	c.Set("user:2", "y")
	c.Set("role:editor", "z")

	c.DeleteByPrefix("user:")

	if c.Size() != 1 {
		t.Errorf("expected 1 entry left, got %d", c.Size())
	}
	if _, ok := c.Get("role:editor"); !ok {
		t.Error("role entry should remain")
	}
}
