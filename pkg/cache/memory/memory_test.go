package memory

import (
	"context"
	"testing"

	"github.com/ashgrove/imaged/pkg/cache"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New(cache.Policy{MaxBytes: 1 << 20, MaxElements: 100}, nil)
	ctx := context.Background()

	ent := &cache.Entry{Key: "a/b#w=100.jpg", Data: []byte("hello"), Size: 5}
	if err := c.Put(ctx, ent); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := c.Get(ctx, ent.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Data) != "hello" {
		t.Errorf("Data = %q, want %q", got.Data, "hello")
	}
}

func TestGetMissReturnsNotFound(t *testing.T) {
	c := New(cache.Policy{}, nil)
	_, err := c.Get(context.Background(), "missing")
	if cache.CodeOf(err) != cache.CodeNotFound {
		t.Errorf("expected CodeNotFound, got %v", err)
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New(cache.Policy{}, nil)
	ctx := context.Background()
	ent := &cache.Entry{Key: "k", Data: []byte("x"), Size: 1}
	_ = c.Put(ctx, ent)

	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := c.Get(ctx, "k"); cache.CodeOf(err) != cache.CodeNotFound {
		t.Errorf("expected not found after invalidate")
	}
}

func TestInvalidatePrefixRemovesDerivativesAndOriginal(t *testing.T) {
	c := New(cache.Policy{}, nil)
	ctx := context.Background()
	_ = c.Put(ctx, &cache.Entry{Key: "a/b", Data: []byte("orig"), Size: 4})
	_ = c.Put(ctx, &cache.Entry{Key: "a/b#w=100", Data: []byte("thumb"), Size: 5})
	_ = c.Put(ctx, &cache.Entry{Key: "a/bc#w=100", Data: []byte("other"), Size: 5})

	if err := c.InvalidatePrefix(ctx, "a/b"); err != nil {
		t.Fatalf("InvalidatePrefix: %v", err)
	}

	if _, err := c.Get(ctx, "a/b"); cache.CodeOf(err) != cache.CodeNotFound {
		t.Errorf("expected original removed")
	}
	if _, err := c.Get(ctx, "a/b#w=100"); cache.CodeOf(err) != cache.CodeNotFound {
		t.Errorf("expected shared-identity derivative removed")
	}
	if _, err := c.Get(ctx, "a/bc#w=100"); err != nil {
		t.Errorf("expected unrelated identity to survive: %v", err)
	}
}

func TestStatReflectsSize(t *testing.T) {
	c := New(cache.Policy{MaxBytes: 1000}, nil)
	ctx := context.Background()
	_ = c.Put(ctx, &cache.Entry{Key: "a", Data: make([]byte, 100), Size: 100})
	_ = c.Put(ctx, &cache.Entry{Key: "b", Data: make([]byte, 200), Size: 200})

	stat, err := c.Stat(ctx)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat.Bytes != 300 {
		t.Errorf("Bytes = %d, want 300", stat.Bytes)
	}
	if stat.Elements != 2 {
		t.Errorf("Elements = %d, want 2", stat.Elements)
	}
}

func TestPutTriggersEvictionUnderPressure(t *testing.T) {
	c := New(cache.Policy{
		MaxBytes: 100, MaxElements: 10,
		EvictStartRatio: 0.5, EvictStopRatio: 0.2,
		Priority: cache.PrioritySmallest, Writeback: cache.WritebackNever,
	}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		_ = c.Put(ctx, &cache.Entry{Key: key, Data: make([]byte, 30), Size: 30})
	}

	stat, _ := c.Stat(ctx)
	if stat.Bytes > 100 {
		t.Errorf("expected eviction to keep bytes near budget, got %d", stat.Bytes)
	}
}

func TestWritebackEagerPushesToNext(t *testing.T) {
	next := New(cache.Policy{MaxBytes: 1 << 20}, nil)
	c := New(cache.Policy{
		MaxBytes: 10, EvictStartRatio: 0.1, EvictStopRatio: 0.01,
		Priority: cache.PrioritySmallest, Writeback: cache.WritebackEager,
	}, nil)
	c.setNext(next)
	ctx := context.Background()

	_ = c.Put(ctx, &cache.Entry{Key: "a", Data: make([]byte, 8), Size: 8})
	_ = c.Put(ctx, &cache.Entry{Key: "b", Data: make([]byte, 8), Size: 8})

	if _, err := next.Get(ctx, "a"); err != nil {
		t.Errorf("expected evicted entry written back to next level, got %v", err)
	}
}
