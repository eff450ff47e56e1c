// Package ratelimit implements the per-caller token bucket gating write
// operations (spec.md §5). Bucket state is volatile: it does not survive
// a process restart and is never persisted through a region.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coldkeep/vaultengine/internal/principal"
)

// Config holds the bucket shape. Defaults match spec.md §5's example:
// 20 tokens, refill 1/s.
type Config struct {
	Burst            int
	RefillPerSecond  float64
	IdleEvictAfter   time.Duration
}

func DefaultConfig() Config {
	return Config{Burst: 20, RefillPerSecond: 1, IdleEvictAfter: 10 * time.Minute}
}

type entry struct {
	limiter    *rate.Limiter
	lastTouch  time.Time
}

// Buckets owns one token bucket per caller Principal.
type Buckets struct {
	cfg Config
	mu  sync.Mutex
	m   map[principal.Principal]*entry
}

func New(cfg Config) *Buckets {
	return &Buckets{cfg: cfg, m: make(map[principal.Principal]*entry)}
}

// Allow reports whether caller may proceed with a write operation right
// now, consuming one token if so.
func (b *Buckets) Allow(caller principal.Principal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.m[caller]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(b.cfg.RefillPerSecond), b.cfg.Burst)}
		b.m[caller] = e
	}
	e.lastTouch = time.Now()
	return e.limiter.Allow()
}

// Evict drops buckets untouched for longer than IdleEvictAfter, called
// from the maintenance sweep so long-lived processes don't accumulate
// one limiter per caller forever.
func (b *Buckets) Evict(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var dropped int
	for k, e := range b.m {
		if now.Sub(e.lastTouch) > b.cfg.IdleEvictAfter {
			delete(b.m, k)
			dropped++
		}
	}
	return dropped
}
