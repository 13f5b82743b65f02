package limiter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// Memory is an in-process token bucket limiter. The registry lock only guards
// map lookups and inserts; refill and deduction take the per-bucket lock, so
// different addresses never contend on the hot path.
type Memory struct {
	limit         Limit
	pruneInterval time.Duration
	idleTTL       time.Duration
	log           *zap.Logger

	mu      sync.RWMutex
	buckets map[string]*bucket
}

func NewMemory(limit Limit, pruneInterval, idleTTL time.Duration, log *zap.Logger) *Memory {
	return &Memory{
		limit:         limit,
		pruneInterval: pruneInterval,
		idleTTL:       idleTTL,
		log:           log,
		buckets:       make(map[string]*bucket),
	}
}

func (m *Memory) Admit(ctx context.Context, source string) (bool, error) {
	b := m.bucketFor(source)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed > 0 {
		b.tokens += elapsed.Seconds() * m.limit.Rate
		if b.tokens > float64(m.limit.Burst) {
			b.tokens = float64(m.limit.Burst)
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

func (m *Memory) bucketFor(source string) *bucket {
	m.mu.RLock()
	b, ok := m.buckets[source]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[source]; ok {
		return b
	}
	b = &bucket{tokens: float64(m.limit.Burst), lastRefill: time.Now()}
	m.buckets[source] = b
	return b
}

// Run prunes buckets for addresses unseen past the idle TTL until ctx is
// cancelled. An idle bucket is full, so dropping it is indistinguishable from
// keeping it.
func (m *Memory) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.prune(time.Now())
		}
	}
}

func (m *Memory) prune(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for source, b := range m.buckets {
		b.mu.Lock()
		stale := now.Sub(b.lastRefill) > m.idleTTL
		b.mu.Unlock()
		if stale {
			delete(m.buckets, source)
		}
	}
	m.log.Debug("rate limiter buckets pruned", zap.Int("remaining", len(m.buckets)))
}

// Len reports the number of tracked source addresses.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets)
}
