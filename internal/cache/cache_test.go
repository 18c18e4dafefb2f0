package cache

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLRUCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[[]int](2, time.Minute)

	if _, ok := c.Get(ctx, "runs"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set(ctx, "runs", []int{1, 2})
	got, ok := c.Get(ctx, "runs")
	if !ok || len(got) != 2 {
		t.Fatalf("Get() = %v, %v", got, ok)
	}

	c.Set(ctx, "runs", []int{3})
	if got, _ := c.Get(ctx, "runs"); len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected last write to win, got %v", got)
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[string](2, time.Minute)

	c.Set(ctx, "a", "1")
	c.Set(ctx, "b", "2")
	c.Get(ctx, "a")
	c.Set(ctx, "c", "3")

	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Error("expected a to survive")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Set(ctx, "a", "1")
	c.Set(ctx, "b", "2")
	now = now.Add(2 * time.Minute)
	c.Set(ctx, "c", "3")

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected a to be expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
	if got := c.Stats(); got.Evictions != 2 || got.Misses != 1 {
		t.Errorf("Stats() = %+v, want 2 evictions and 1 miss", got)
	}
}

func TestCollector(t *testing.T) {
	ctx := context.Background()
	runs := NewLRUCache[string](1, time.Minute)
	runs.Get(ctx, "runs")
	runs.Set(ctx, "runs", "1")
	runs.Get(ctx, "runs")
	runs.Get(ctx, "runs")
	runs.Set(ctx, "other", "2")

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(map[string]StatsSource{"runs": runs}))

	want := `
# HELP gravl_cache_evictions_total Entries dropped for capacity or expiry.
# TYPE gravl_cache_evictions_total counter
gravl_cache_evictions_total{table="runs"} 1
# HELP gravl_cache_hits_total Resident cache lookups that found a live entry.
# TYPE gravl_cache_hits_total counter
gravl_cache_hits_total{table="runs"} 2
# HELP gravl_cache_misses_total Resident cache lookups that missed or found an expired entry.
# TYPE gravl_cache_misses_total counter
gravl_cache_misses_total{table="runs"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"gravl_cache_hits_total", "gravl_cache_misses_total", "gravl_cache_evictions_total"); err != nil {
		t.Error(err)
	}
}

func TestLRUCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[string](4, time.Minute)
	c.Set(ctx, "a", "1")
	c.Delete(ctx, "a")
	c.Delete(ctx, "missing")
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestManager_CleansRegisteredCaches(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[string](4, time.Millisecond)
	c.Set(ctx, "a", "1")

	m := NewManager(nil)
	m.Register(c)
	m.StartCleanup(5 * time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	if c.Size() != 0 {
		t.Errorf("expected expired entry to be cleaned, size = %d", c.Size())
	}
}

func TestManager_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	runs := NewLRUCache[string](4, time.Minute)
	companies := NewLRUCache[string](4, time.Hour)
	runs.now = func() time.Time { return now }
	companies.now = func() time.Time { return now }
	runs.Set(ctx, "runs", "1")
	companies.Set(ctx, "companies", "2")

	m := NewManager(nil)
	m.Register(runs)
	m.Register(companies)
	now = now.Add(2 * time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if companies.Size() != 1 {
		t.Error("unexpired entry was swept")
	}

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestResident_FetchesOnceAndInvalidates(t *testing.T) {
	ctx := context.Background()
	var fetches atomic.Int32
	r := NewResident("runs", Cache[[]string](NewLRUCache[[]string](4, time.Minute)), func(context.Context) ([]string, error) {
		fetches.Add(1)
		return []string{"a", "b"}, nil
	}, nil)

	for i := 0; i < 3; i++ {
		got, err := r.Get(ctx)
		if err != nil || len(got) != 2 {
			t.Fatalf("Get() = %v, %v", got, err)
		}
	}
	if fetches.Load() != 1 {
		t.Fatalf("expected a single fetch, got %d", fetches.Load())
	}

	r.Invalidate(ctx)
	if _, err := r.Get(ctx); err != nil {
		t.Fatal(err)
	}
	if fetches.Load() != 2 {
		t.Fatalf("expected refetch after invalidation, got %d", fetches.Load())
	}
}

func TestResident_SharesConcurrentFetch(t *testing.T) {
	ctx := context.Background()
	var fetches atomic.Int32
	release := make(chan struct{})
	r := NewResident("companies", Cache[[]int](NewLRUCache[[]int](4, time.Minute)), func(context.Context) ([]int, error) {
		fetches.Add(1)
		<-release
		return []int{1}, nil
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Get(ctx); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := fetches.Load(); n < 1 || n > 8 {
		t.Fatalf("unexpected fetch count %d", n)
	}
	if got, _ := r.Get(ctx); len(got) != 1 {
		t.Fatalf("expected cached value, got %v", got)
	}
}

func TestResident_InvalidateDuringFetchDropsStaleResult(t *testing.T) {
	ctx := context.Background()
	var version, fetches atomic.Int32
	version.Store(1)
	started := make(chan struct{})
	release := make(chan struct{})
	r := NewResident("runs", Cache[[]int](NewLRUCache[[]int](4, time.Minute)), func(context.Context) ([]int, error) {
		v := version.Load()
		if fetches.Add(1) == 1 {
			close(started)
			<-release
		}
		return []int{int(v)}, nil
	}, nil)

	done := make(chan []int, 1)
	go func() {
		got, err := r.Get(ctx)
		if err != nil {
			t.Error(err)
		}
		done <- got
	}()

	<-started
	version.Store(2)
	r.Invalidate(ctx)
	close(release)
	if got := <-done; len(got) != 1 || got[0] != 1 {
		t.Fatalf("in-flight Get() = %v, want [1]", got)
	}

	got, err := r.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("Get() after invalidation = %v, want [2]", got)
	}
	if fetches.Load() != 2 {
		t.Fatalf("expected a second fetch, got %d", fetches.Load())
	}
}

func TestResident_FetchErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("store down")
	fail := true
	r := NewResident("runs", Cache[[]int](NewLRUCache[[]int](4, time.Minute)), func(context.Context) ([]int, error) {
		if fail {
			return nil, boom
		}
		return []int{7}, nil
	}, nil)

	if _, err := r.Get(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	fail = false
	if got, err := r.Get(ctx); err != nil || len(got) != 1 {
		t.Fatalf("expected recovery, got %v %v", got, err)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("GRAVL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GRAVL_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := Dial(ctx, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	c := NewRedisCache[[]string](client, "gravl-test:", time.Minute, nil)
	c.Delete(ctx, "runs")
	if _, ok := c.Get(ctx, "runs"); ok {
		t.Fatal("expected miss")
	}
	c.Set(ctx, "runs", []string{"RUN-1"})
	got, ok := c.Get(ctx, "runs")
	if !ok || len(got) != 1 || got[0] != "RUN-1" {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
	c.Delete(ctx, "runs")
}
