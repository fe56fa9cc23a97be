package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedTTL lets tests pick the TTL directly instead of going through
// the query classifier.
type fixedTTL struct{ ttl time.Duration }

func (f fixedTTL) TTL(string) time.Duration { return f.ttl }

func newTestCache(maxSize int, cl Classifier) *Cache {
	return New(Config{Enabled: true, MaxSize: maxSize, DefaultTTL: 5 * time.Minute}, cl)
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestCache(10, NewQueryClassifier())

	c.Set("kolik je hodin", "Je 10:30")
	got, ok := c.Get("kolik je hodin")

	require.True(t, ok)
	assert.Equal(t, "Je 10:30", got)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := newTestCache(10, NewQueryClassifier())
	base := time.Now()
	c.now = func() time.Time { return base }

	// "kolik je hodin" classifies as time-of-day: 30 second TTL.
	c.Set("kolik je hodin", "Je 10:30")

	_, ok := c.Get("kolik je hodin")
	require.True(t, ok, "fresh entry must be served")

	c.now = func() time.Time { return base.Add(31 * time.Second) }
	_, ok = c.Get("kolik je hodin")
	assert.False(t, ok, "entry older than its TTL must be gone")
	assert.Equal(t, 0, c.Stats().Size, "expired entry is removed, not just hidden")
}

func TestForeverEntryNeverExpires(t *testing.T) {
	c := newTestCache(10, fixedTTL{TTLForever})
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("2+2", "4")
	c.now = func() time.Time { return base.Add(1000 * time.Hour) }

	got, ok := c.Get("2+2")
	require.True(t, ok)
	assert.Equal(t, "4", got)
}

func TestZeroTTLIsNotCached(t *testing.T) {
	c := newTestCache(10, fixedTTL{0})

	c.Set("ahoj, jak se máš", "Dobře!")

	_, ok := c.Get("ahoj, jak se máš")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestKeyNormalization(t *testing.T) {
	c := newTestCache(10, fixedTTL{time.Minute})

	c.Set("  Kolik Je HODIN  ", "Je 10:30")

	got, ok := c.Get("kolik je hodin")
	require.True(t, ok, "case and whitespace must not split cache entries")
	assert.Equal(t, "Je 10:30", got)
}

func TestLRUEvictionOnOverflow(t *testing.T) {
	c := newTestCache(3, fixedTTL{time.Minute})

	c.Set("q1", "a1")
	c.Set("q2", "a2")
	c.Set("q3", "a3")
	c.Set("q4", "a4")

	_, ok := c.Get("q1")
	assert.False(t, ok, "oldest entry was evicted")
	for _, q := range []string{"q2", "q3", "q4"} {
		_, ok := c.Get(q)
		assert.True(t, ok, "%s should survive", q)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestGetProtectsEntryFromEviction(t *testing.T) {
	c := newTestCache(3, fixedTTL{time.Minute})

	c.Set("q1", "a1")
	c.Set("q2", "a2")
	c.Set("q3", "a3")

	// Touch q1: q2 becomes the LRU entry.
	_, ok := c.Get("q1")
	require.True(t, ok)

	c.Set("q4", "a4")

	_, ok = c.Get("q1")
	assert.True(t, ok, "recently touched entry survives")
	_, ok = c.Get("q2")
	assert.False(t, ok, "least recently touched entry was evicted")
}

func TestSetTouchesRecency(t *testing.T) {
	c := newTestCache(3, fixedTTL{time.Minute})

	c.Set("q1", "a1")
	c.Set("q2", "a2")
	c.Set("q3", "a3")
	c.Set("q1", "a1-updated") // overwrite refreshes q1's position
	c.Set("q4", "a4")

	got, ok := c.Get("q1")
	require.True(t, ok)
	assert.Equal(t, "a1-updated", got)
	_, ok = c.Get("q2")
	assert.False(t, ok, "q2 was the oldest after q1's refresh")
}

func TestCapacityNeverExceeded(t *testing.T) {
	c := newTestCache(5, fixedTTL{time.Minute})

	for i := range 20 {
		c.Set(fmt.Sprintf("q%d", i), "a")
	}
	assert.Equal(t, 5, c.Stats().Size)
	assert.Equal(t, uint64(15), c.Stats().Evictions)
}

func TestStatsCounters(t *testing.T) {
	c := newTestCache(10, fixedTTL{time.Minute})

	c.Set("q1", "a1")
	c.Get("q1")
	c.Get("q1")
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 0.67, s.HitRate, 0.001)
}

func TestExpiredLookupCountsAsMiss(t *testing.T) {
	c := newTestCache(10, fixedTTL{10 * time.Second})
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("q1", "a1")
	c.now = func() time.Time { return base.Add(time.Minute) }
	c.Get("q1")

	s := c.Stats()
	assert.Equal(t, uint64(0), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
}

func TestClearResetsEverything(t *testing.T) {
	c := newTestCache(10, fixedTTL{time.Minute})

	c.Set("q1", "a1")
	c.Get("q1")
	c.Get("missing")
	c.Clear()

	s := c.Stats()
	assert.Equal(t, 0, s.Size)
	assert.Zero(t, s.Hits)
	assert.Zero(t, s.Misses)
	assert.Zero(t, s.Evictions)

	_, ok := c.Get("q1")
	assert.False(t, ok)
}

func TestDisabledCacheServesNothing(t *testing.T) {
	c := New(Config{Enabled: false, MaxSize: 10}, fixedTTL{time.Minute})

	c.Set("q1", "a1")
	_, ok := c.Get("q1")

	assert.False(t, ok)
	assert.Zero(t, c.Stats().Misses, "disabled cache does not count traffic")
}
