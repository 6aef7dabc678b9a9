package registry

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond applies to sources without an explicit limit.
const DefaultRequestsPerSecond = 2

// RateLimiterMap holds one rate.Limiter per source.
type RateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiterMap creates limiters for the given per-source limits
// (requests per second). Non-positive limits use the default.
func NewRateLimiterMap(limits map[string]float64) *RateLimiterMap {
	m := &RateLimiterMap{
		limiters: make(map[string]*rate.Limiter, len(limits)),
	}
	for id, rps := range limits {
		m.Set(id, rps)
	}
	return m
}

// Set installs or replaces the limiter for sourceID.
func (m *RateLimiterMap) Set(sourceID string, rps float64) {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[sourceID] = rate.NewLimiter(rate.Limit(rps), 1)
}

// Wait blocks until the limiter for sourceID allows a request, or the
// context is canceled. Sources without a limiter are not throttled.
func (m *RateLimiterMap) Wait(ctx context.Context, sourceID string) error {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	limiter, ok := m.limiters[sourceID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}
