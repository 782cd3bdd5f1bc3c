package enrich

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryCacheTTL(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Hour, 100)
	c.now = func() time.Time { return current }
	ctx := context.Background()

	c.Set(ctx, "geo:203.0.113.7", []byte(`{"country":"US"}`))

	if got, ok := c.Get(ctx, "geo:203.0.113.7"); !ok || string(got) != `{"country":"US"}` {
		t.Fatalf("Get before expiry = %q, %v", got, ok)
	}

	current = current.Add(time.Hour + time.Second)
	if _, ok := c.Get(ctx, "geo:203.0.113.7"); ok {
		t.Error("Get after expiry still returned a value")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed on read, len = %d", c.Len())
	}
}

func TestMemoryCacheMissingKey(t *testing.T) {
	c := NewMemoryCache(time.Hour, 100)
	if _, ok := c.Get(context.Background(), "absent"); ok {
		t.Error("Get on missing key returned ok")
	}
}

func TestMemoryCacheBoundedEviction(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Hour, 3)
	c.now = func() time.Time { return current }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Set(ctx, fmt.Sprintf("key-%d", i), []byte("v"))
		current = current.Add(time.Minute)
	}
	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}

	// Nothing expired, so the insert evicts the entry closest to expiry.
	c.Set(ctx, "key-3", []byte("v"))
	if c.Len() != 3 {
		t.Errorf("len = %d, want 3 after bounded insert", c.Len())
	}
	if _, ok := c.Get(ctx, "key-0"); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok := c.Get(ctx, "key-3"); !ok {
		t.Error("new entry missing after insert")
	}
}

func TestMemoryCacheEvictionPrefersExpired(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute, 2)
	c.now = func() time.Time { return current }
	ctx := context.Background()

	c.Set(ctx, "stale", []byte("v"))
	current = current.Add(2 * time.Minute)
	c.Set(ctx, "fresh", []byte("v"))

	c.Set(ctx, "newer", []byte("v"))
	if _, ok := c.Get(ctx, "fresh"); !ok {
		t.Error("fresh entry evicted while an expired one existed")
	}
	if _, ok := c.Get(ctx, "stale"); ok {
		t.Error("expired entry survived eviction")
	}
}

func TestMemoryCacheOverwriteDoesNotEvict(t *testing.T) {
	c := NewMemoryCache(time.Hour, 2)
	ctx := context.Background()
	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("1"))
	c.Set(ctx, "a", []byte("2"))

	if got, ok := c.Get(ctx, "a"); !ok || string(got) != "2" {
		t.Errorf("overwritten value = %q, %v", got, ok)
	}
	if _, ok := c.Get(ctx, "b"); !ok {
		t.Error("unrelated entry evicted on overwrite")
	}
}

func TestMemoryCacheSweep(t *testing.T) {
	var mu sync.Mutex
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute, 100)
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Set(ctx, "a", []byte("v"))
	mu.Lock()
	current = current.Add(2 * time.Minute)
	mu.Unlock()

	c.StartSweep(ctx, 10*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep never removed expired entry, len = %d", c.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
