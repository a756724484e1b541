package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func newTestMemoryCache(maxSize int) *MemoryCache {
	return NewMemoryCache(
		WithMemoryMaxSize(maxSize),
		WithMemoryCleanupInterval(time.Hour),
	)
}

func TestMemorySetGet(t *testing.T) {
	mc := newTestMemoryCache(10)
	defer mc.Close()
	ctx := context.Background()

	in := payload{Name: "btc", Value: 42.5}
	if err := mc.Set(ctx, "k", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out payload
	if err := mc.Get(ctx, "k", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestMemoryGetMiss(t *testing.T) {
	mc := newTestMemoryCache(10)
	defer mc.Close()

	var out payload
	if err := mc.Get(context.Background(), "absent", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryExpiration(t *testing.T) {
	mc := newTestMemoryCache(10)
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	var out string
	if err := mc.Get(ctx, "k", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("err = %v, want ErrCacheMiss after expiry", err)
	}
}

func TestMemoryLRUEviction(t *testing.T) {
	mc := newTestMemoryCache(2)
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "a", "1", time.Minute); err != nil {
		t.Fatalf("set a: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := mc.Set(ctx, "b", "2", time.Minute); err != nil {
		t.Fatalf("set b: %v", err)
	}
	time.Sleep(time.Millisecond)

	// touch a so b becomes the eviction victim
	var s string
	if err := mc.Get(ctx, "a", &s); err != nil {
		t.Fatalf("get a: %v", err)
	}
	time.Sleep(time.Millisecond)

	if err := mc.Set(ctx, "c", "3", time.Minute); err != nil {
		t.Fatalf("set c: %v", err)
	}

	if err := mc.Get(ctx, "b", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("b should have been evicted, err = %v", err)
	}
	if err := mc.Get(ctx, "a", &s); err != nil {
		t.Fatalf("a should survive: %v", err)
	}
	if err := mc.Get(ctx, "c", &s); err != nil {
		t.Fatalf("c should be present: %v", err)
	}
}

func TestMemoryOverwriteDoesNotEvict(t *testing.T) {
	mc := newTestMemoryCache(2)
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "a", "1", time.Minute); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if err := mc.Set(ctx, "b", "2", time.Minute); err != nil {
		t.Fatalf("set b: %v", err)
	}
	if err := mc.Set(ctx, "a", "changed", time.Minute); err != nil {
		t.Fatalf("overwrite a: %v", err)
	}

	var s string
	if err := mc.Get(ctx, "b", &s); err != nil {
		t.Fatalf("b should survive an overwrite of a: %v", err)
	}
	if err := mc.Get(ctx, "a", &s); err != nil || s != "changed" {
		t.Fatalf("a = %q, err = %v", s, err)
	}
}
