package display

import (
	"bytes"
	"context"
	"testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache("")
	if err != nil {
		t.Fatalf("failed to start cache: %v", err)
	}
	t.Cleanup(func() {
		if err := cache.Close(); err != nil {
			t.Errorf("failed to close cache: %v", err)
		}
	})
	return cache
}

func TestCache_HandleFor(t *testing.T) {
	cache := newTestCache(t)

	if handle := cache.HandleFor("abc-123"); handle != "/display/abc-123" {
		t.Errorf("unexpected handle %q", handle)
	}
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	payload := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}

	if _, found, err := cache.Get(ctx, "image-1"); err != nil || found {
		t.Fatalf("expected cold miss, got found=%v err=%v", found, err)
	}

	if err := cache.Set(ctx, "image-1", payload); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	cached, found, err := cache.Get(ctx, "image-1")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if !bytes.Equal(cached, payload) {
		t.Errorf("payload changed in cache: %v != %v", cached, payload)
	}
}

func TestCache_Invalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "image-1", []byte("data")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	cache.Invalidate(ctx, "image-1")

	if _, found, err := cache.Get(ctx, "image-1"); err != nil || found {
		t.Errorf("expected entry to be gone, got found=%v err=%v", found, err)
	}

	// Invalidating an absent entry is harmless
	cache.Invalidate(ctx, "never-existed")
}

func TestCache_Clear(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := cache.Set(ctx, id, []byte(id)); err != nil {
			t.Fatalf("failed to set %s: %v", id, err)
		}
	}
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, found, _ := cache.Get(ctx, id); found {
			t.Errorf("expected %s to be cleared", id)
		}
	}
}
