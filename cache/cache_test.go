package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/metrics"
)

type greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
}

func newLocal(t *testing.T) *BigCache {
	t.Helper()
	c, err := NewBigCache(config.BigCacheConfig{LifeWindow: time.Minute, Shards: 16}, metrics.NewMetrics("test"))
	if err != nil {
		t.Fatalf("NewBigCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBigCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newLocal(t)

	var out greeks
	if err := c.Get(ctx, "k", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get on empty cache: %v, want ErrCacheMiss", err)
	}
	if err := c.Set(ctx, "k", greeks{Delta: 0.5, Gamma: 0.02}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Get(ctx, "k", &out); err != nil || out.Delta != 0.5 {
		t.Fatalf("Get = %+v, %v", out, err)
	}
	ok, err := c.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if err := c.Delete(ctx, "k", "missing"); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Error("key still present after Delete")
	}
}

func TestMultiLevelWithoutL2(t *testing.T) {
	ctx := context.Background()
	c := NewMultiLevelCache(newLocal(t), nil, nil)

	if err := c.Set(ctx, "a", greeks{Delta: 1}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var out greeks
	if err := c.Get(ctx, "a", &out); err != nil || out.Delta != 1 {
		t.Fatalf("Get = %+v, %v", out, err)
	}
	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Get(ctx, "a", &out); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after Delete: %v", err)
	}
}

func TestMultiLevelBackfillsL1(t *testing.T) {
	ctx := context.Background()
	l1, l2 := newLocal(t), newLocal(t)
	c := NewMultiLevelCache(l1, l2, nil)

	if err := l2.Set(ctx, "b", greeks{Gamma: 0.03}, 0); err != nil {
		t.Fatalf("seed L2: %v", err)
	}
	var out greeks
	if err := c.Get(ctx, "b", &out); err != nil || out.Gamma != 0.03 {
		t.Fatalf("Get = %+v, %v", out, err)
	}
	if ok, _ := l1.Exists(ctx, "b"); !ok {
		t.Error("L1 was not backfilled")
	}
}

func TestGetOrSetComputesOnce(t *testing.T) {
	ctx := context.Background()
	c := NewMultiLevelCache(newLocal(t), nil, nil)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func() (any, error) {
		calls.Add(1)
		<-release
		return greeks{Delta: 0.42}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]greeks, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.GetOrSet(ctx, "same", &results[i], time.Minute, fn)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range n {
		if errs[i] != nil || results[i].Delta != 0.42 {
			t.Errorf("caller %d: %+v, %v", i, results[i], errs[i])
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fn called %d times, want 1", calls.Load())
	}

	var again greeks
	if err := c.GetOrSet(ctx, "same", &again, time.Minute, func() (any, error) {
		return nil, errors.New("should not be called")
	}); err != nil || again.Delta != 0.42 {
		t.Errorf("cached GetOrSet = %+v, %v", again, err)
	}
}

func TestGetOrSetPropagatesError(t *testing.T) {
	c := NewMultiLevelCache(newLocal(t), nil, nil)
	boom := errors.New("boom")
	var out greeks
	if err := c.GetOrSet(context.Background(), "x", &out, 0, func() (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
