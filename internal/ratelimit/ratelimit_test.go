package ratelimit

import (
	"testing"
	"time"

	"github.com/coldkeep/vaultengine/internal/principal"
)

func TestAllowConsumesBurstThenDenies(t *testing.T) {
	b := New(Config{Burst: 2, RefillPerSecond: 0, IdleEvictAfter: time.Minute})
	caller, _ := principal.New(principal.TagVault)

	if !b.Allow(caller) {
		t.Fatalf("first call should be allowed")
	}
	if !b.Allow(caller) {
		t.Fatalf("second call should be allowed (burst of 2)")
	}
	if b.Allow(caller) {
		t.Fatalf("third call should be denied, no refill configured")
	}
}

func TestAllowTracksCallersIndependently(t *testing.T) {
	b := New(Config{Burst: 1, RefillPerSecond: 0, IdleEvictAfter: time.Minute})
	a, _ := principal.New(principal.TagVault)
	c, _ := principal.New(principal.TagVault)

	if !b.Allow(a) {
		t.Fatalf("a's first call should be allowed")
	}
	if !b.Allow(c) {
		t.Fatalf("c should have its own independent bucket")
	}
	if b.Allow(a) {
		t.Fatalf("a's bucket should be exhausted")
	}
}

func TestEvictDropsIdleBuckets(t *testing.T) {
	b := New(Config{Burst: 1, RefillPerSecond: 0, IdleEvictAfter: time.Millisecond})
	caller, _ := principal.New(principal.TagVault)
	b.Allow(caller)

	time.Sleep(5 * time.Millisecond)
	dropped := b.Evict(time.Now())
	if dropped != 1 {
		t.Fatalf("Evict dropped %d, want 1", dropped)
	}
	if len(b.m) != 0 {
		t.Fatalf("bucket map should be empty after eviction")
	}
}

func TestEvictKeepsRecentlyTouchedBuckets(t *testing.T) {
	b := New(Config{Burst: 1, RefillPerSecond: 0, IdleEvictAfter: time.Hour})
	caller, _ := principal.New(principal.TagVault)
	b.Allow(caller)

	if dropped := b.Evict(time.Now()); dropped != 0 {
		t.Fatalf("Evict dropped %d, want 0", dropped)
	}
}
