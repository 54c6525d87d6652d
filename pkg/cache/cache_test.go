package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(max int) (*Cache[string, int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, int](max, 0)
	c.now = clock.now
	return c, clock
}

func TestCache_GetRespectsExpiry(t *testing.T) {
	c, clock := newTestCache(0)

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clock.advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "expired entries stay until swept")
	assert.Equal(t, 1, c.RemoveExpired())
	assert.Equal(t, 0, c.Len())
}

func TestCache_SetInThePastDeletes(t *testing.T) {
	c, clock := newTestCache(0)
	c.Set("a", 1, time.Minute)
	c.SetUntil("a", 2, clock.now().Add(-time.Second))

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsWhenFull(t *testing.T) {
	c, clock := newTestCache(2)

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)
	c.Set("new", 3, time.Minute)
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("short")
	assert.False(t, ok, "entry closest to expiry is evicted")

	clock.advance(2 * time.Minute)
	c.Set("fresh", 4, time.Minute)
	_, ok = c.Get("long")
	assert.True(t, ok, "expired entries are dropped before live ones")
	v, _ := c.Get("fresh")
	assert.Equal(t, 4, v)

	// Overwriting an existing key never evicts.
	c.Set("long", 5, time.Hour)
	assert.Equal(t, 2, c.Len())
}

func TestCache_StopIsIdempotent(t *testing.T) {
	c := New[string, int](0, time.Millisecond)
	c.Stop()
	c.Stop()
	c.Set("a", 1, time.Minute)
	_, ok := c.Get("a")
	assert.True(t, ok)
}
