package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)}
}

func (clock *manualClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *manualClock) Advance(duration time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(duration)
}

func TestGetOrComputeCachesWithinTTL(test *testing.T) {
	test.Parallel()

	clock := newManualClock()
	cache := New[string, int](WithClock[string, int](clock.Now))

	var computes atomic.Int64
	compute := func() (int, error) {
		computes.Add(1)
		return 42, nil
	}

	for index := 0; index < 5; index++ {
		value, err := cache.GetOrCompute("key", time.Hour, compute)
		if err != nil || value != 42 {
			test.Fatalf("lookup %d: value=%d err=%v", index, value, err)
		}
	}
	if got := computes.Load(); got != 1 {
		test.Fatalf("expected a single compute within the TTL, got %d", got)
	}
}

func TestGetOrComputeRecomputesAfterExpiry(test *testing.T) {
	test.Parallel()

	clock := newManualClock()
	cache := New[string, int](WithClock[string, int](clock.Now))

	var computes atomic.Int64
	compute := func() (int, error) {
		computes.Add(1)
		return int(computes.Load()), nil
	}

	first, _ := cache.GetOrCompute("key", time.Hour, compute)
	clock.Advance(2 * time.Hour)
	second, _ := cache.GetOrCompute("key", time.Hour, compute)
	if first != 1 || second != 2 {
		test.Fatalf("expected fresh value after expiry, got %d then %d", first, second)
	}
}

func TestGetOrComputeDoesNotCacheFailures(test *testing.T) {
	test.Parallel()

	clock := newManualClock()
	cache := New[string, int](WithClock[string, int](clock.Now))
	transient := errors.New("provider down")

	calls := 0
	_, err := cache.GetOrCompute("key", time.Hour, func() (int, error) {
		calls++
		return 0, transient
	})
	if !errors.Is(err, transient) {
		test.Fatalf("expected transient error, got %v", err)
	}

	value, err := cache.GetOrCompute("key", time.Hour, func() (int, error) {
		calls++
		return 7, nil
	})
	if err != nil || value != 7 {
		test.Fatalf("expected immediate retry to succeed, got value=%d err=%v", value, err)
	}
	if calls != 2 {
		test.Fatalf("expected 2 computes, got %d", calls)
	}
}

func TestGetOrComputeDeduplicatesConcurrentLookups(test *testing.T) {
	test.Parallel()

	cache := New[string, int]()
	started := make(chan struct{})
	release := make(chan struct{})
	var computes atomic.Int64

	const waiters = 8
	var wg sync.WaitGroup
	results := make(chan int, waiters)
	for index := 0; index < waiters; index++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := cache.GetOrCompute("shared", time.Hour, func() (int, error) {
				computes.Add(1)
				close(started)
				<-release
				return 99, nil
			})
			if err != nil {
				test.Errorf("lookup: %v", err)
				return
			}
			results <- value
		}()
	}

	<-started
	close(release)
	wg.Wait()
	close(results)

	if got := computes.Load(); got != 1 {
		test.Fatalf("expected one shared compute, got %d", got)
	}
	for value := range results {
		if value != 99 {
			test.Fatalf("waiter got %d, want 99", value)
		}
	}
}

func TestPurgeExpiredAndLen(test *testing.T) {
	test.Parallel()

	clock := newManualClock()
	cache := New[string, int](WithClock[string, int](clock.Now))

	if _, err := cache.GetOrCompute("short", time.Minute, func() (int, error) { return 1, nil }); err != nil {
		test.Fatalf("compute short: %v", err)
	}
	if _, err := cache.GetOrCompute("long", time.Hour, func() (int, error) { return 2, nil }); err != nil {
		test.Fatalf("compute long: %v", err)
	}
	clock.Advance(10 * time.Minute)
	if purged := cache.PurgeExpired(); purged != 1 {
		test.Fatalf("expected 1 purged entry, got %d", purged)
	}
	if cache.Len() != 1 {
		test.Fatalf("expected 1 surviving entry, got %d", cache.Len())
	}
}

func TestEvictForcesRecompute(test *testing.T) {
	test.Parallel()

	cache := New[string, int]()
	calls := 0
	compute := func() (int, error) {
		calls++
		return calls, nil
	}

	first, _ := cache.GetOrCompute("key", time.Hour, compute)
	cache.Evict("key")
	second, _ := cache.GetOrCompute("key", time.Hour, compute)
	if first != 1 || second != 2 {
		test.Fatalf("expected recompute after evict, got %d then %d", first, second)
	}
}
