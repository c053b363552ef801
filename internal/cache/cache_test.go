package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := New(true)

	etag := c.Set(ctx, "k", []byte(`{"distance":1}`), time.Minute)
	data, got, ok := c.Get(ctx, "k")
	if !ok || string(data) != `{"distance":1}` || got != etag {
		t.Fatalf("unexpected get: %q %q %v", data, got, ok)
	}

	c.Delete(ctx, "k")
	if _, _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestMemoryExpiryAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(true)
	c.now = func() time.Time { return now }

	c.Set(ctx, "short", []byte("a"), time.Second)
	c.Set(ctx, "long", []byte("b"), time.Hour)
	now = now.Add(time.Minute)

	if _, _, ok := c.Get(ctx, "short"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if n := c.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept entry, got %d", n)
	}
	if stats := c.Stats(ctx); stats["total_keys"] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestDisabledMemoryNeverHits(t *testing.T) {
	ctx := context.Background()
	c := New(false)
	if etag := c.Set(ctx, "k", []byte("x"), time.Minute); etag != ComputeETag([]byte("x")) {
		t.Fatalf("disabled cache must still compute etag")
	}
	if _, _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("disabled cache must miss")
	}
}

func TestCheckETagMatch(t *testing.T) {
	etag := ComputeETag([]byte("x"))
	if !CheckETagMatch(etag, etag) || !CheckETagMatch("*", etag) {
		t.Fatalf("expected match")
	}
	if CheckETagMatch("", etag) || CheckETagMatch(`W/"other"`, etag) {
		t.Fatalf("unexpected match")
	}
}
