// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package cache

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestLRU(capacity int, ttl time.Duration) (*LRU[string, int], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[string, int](capacity, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRU_BasicOperations(t *testing.T) {
	c, _ := newTestLRU(3, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		got, found := c.Get(key)
		if !found || got != want {
			t.Errorf("Get(%q) = %d, %v; want %d, true", key, got, found, want)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Expected len 3, got %d", c.Len())
	}
}

func TestLRU_Eviction(t *testing.T) {
	c, _ := newTestLRU(3, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	// Access 'a' to make it most recently used
	c.Get("a")

	// 'b' is now least recently used
	c.Add("d", 4)

	if _, found := c.Get("b"); found {
		t.Error("Expected 'b' to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, found := c.Get(key); !found {
			t.Errorf("Expected %q to be present", key)
		}
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", s.Evictions)
	}
}

func TestLRU_TTLExpiration(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)

	c.Add("a", 1)
	if _, found := c.Get("a"); !found {
		t.Fatal("Expected to find key 'a' immediately")
	}

	clock.Advance(61 * time.Second)

	if _, found := c.Get("a"); found {
		t.Error("Expected 'a' to be expired")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry to be dropped, len = %d", c.Len())
	}
}

func TestLRU_UpdateRefreshesTTL(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)

	c.Add("a", 1)
	clock.Advance(45 * time.Second)
	c.Add("a", 2)
	clock.Advance(45 * time.Second)

	got, found := c.Get("a")
	if !found || got != 2 {
		t.Errorf("Get(a) = %d, %v; want 2, true", got, found)
	}
}

func TestLRU_Remove(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)
	c.Add("a", 1)

	if !c.Remove("a") {
		t.Error("Remove(a) = false, want true")
	}
	if c.Remove("a") {
		t.Error("second Remove(a) = true, want false")
	}
}

func TestLRU_RemoveFunc(t *testing.T) {
	c := NewLRU[ProfileKey, string](10, time.Minute)
	c.Add(ProfileKey{UserID: 1, Fingerprint: 10}, "old")
	c.Add(ProfileKey{UserID: 1, Fingerprint: 11}, "new")
	c.Add(ProfileKey{UserID: 2, Fingerprint: 10}, "other")

	removed := c.RemoveFunc(func(k ProfileKey) bool { return k.UserID == 1 })
	if removed != 2 {
		t.Errorf("RemoveFunc() = %d, want 2", removed)
	}
	if _, found := c.Get(ProfileKey{UserID: 2, Fingerprint: 10}); !found {
		t.Error("entry for another user was removed")
	}
}

func TestLRU_CleanupExpired(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	clock.Advance(30 * time.Second)
	c.Add("c", 3)
	clock.Advance(45 * time.Second)

	if removed := c.CleanupExpired(); removed != 2 {
		t.Errorf("CleanupExpired() = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestLRU_Clear(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)
	c.Add("a", 1)
	c.Add("b", 2)

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
	c.Add("c", 3)
	if _, found := c.Get("c"); !found {
		t.Error("cache unusable after Clear")
	}
}

func TestLRU_Stats(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)
	c.Add("a", 1)

	c.Get("a")
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Size != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if rate := s.HitRate(); rate < 0.66 || rate > 0.67 {
		t.Errorf("HitRate() = %f, want 2/3", rate)
	}
	if (Stats{}).HitRate() != 0 {
		t.Error("HitRate() on empty stats should be 0")
	}
}

func TestLRU_Defaults(t *testing.T) {
	c := NewLRU[string, int](0, 0)
	if c.capacity != 10000 || c.ttl != 5*time.Minute {
		t.Errorf("defaults = %d, %v", c.capacity, c.ttl)
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[int, int](100, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				key := (g*1000 + i) % 250
				c.Add(key, i)
				c.Get(key)
				if i%50 == 0 {
					c.Remove(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
