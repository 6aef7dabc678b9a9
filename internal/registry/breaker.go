package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/metrics"
)

// BreakerSettings configures the per-source circuit breakers.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit after this many failures in a row.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before a probe.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerSettings returns 5 failures / 1 minute / 1 probe.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         time.Minute,
		HalfOpenRequests:    1,
	}
}

// BreakerClient wraps a Client with one circuit breaker per source, so a
// source that keeps failing is short-circuited instead of being waited on
// for every entity in a batch.
type BreakerClient struct {
	inner    Client
	settings BreakerSettings
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]RemoteEntity]
}

var _ TestableClient = (*BreakerClient)(nil)

// NewBreakerClient wraps inner.
func NewBreakerClient(inner Client, settings BreakerSettings, logger *slog.Logger) *BreakerClient {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultBreakerSettings().ConsecutiveFailures
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = DefaultBreakerSettings().OpenTimeout
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = 1
	}
	return &BreakerClient{
		inner:    inner,
		settings: settings,
		logger:   logger.With(slog.String("component", "circuit-breaker")),
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]RemoteEntity]),
	}
}

// Search runs the inner search through the source's breaker. An open
// circuit is reported as ErrSourceUnavailable.
func (c *BreakerClient) Search(ctx context.Context, source Source, kind catalog.Kind, query string, limit int) ([]RemoteEntity, error) {
	cb := c.breaker(source.ID)
	results, err := cb.Execute(func() ([]RemoteEntity, error) {
		return c.inner.Search(ctx, source, kind, query, limit)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ErrSourceUnavailable{
			SourceID:   source.ID,
			Cause:      err,
			RetryAfter: c.settings.OpenTimeout,
		}
	}
	return results, err
}

// TestConnection delegates to the inner client when it supports it. It
// bypasses the breaker so an operator can probe an open source.
func (c *BreakerClient) TestConnection(ctx context.Context, source Source) error {
	if tc, ok := c.inner.(TestableClient); ok {
		return tc.TestConnection(ctx, source)
	}
	_, err := c.inner.Search(ctx, source, catalog.KindTag, "test", 1)
	return err
}

// State returns the breaker state for sourceID.
func (c *BreakerClient) State(sourceID string) gobreaker.State {
	return c.breaker(sourceID).State()
}

func (c *BreakerClient) breaker(sourceID string) *gobreaker.CircuitBreaker[[]RemoteEntity] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[sourceID]; ok {
		return cb
	}

	threshold := c.settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker[[]RemoteEntity](gobreaker.Settings{
		Name:        sourceID,
		MaxRequests: c.settings.HalfOpenRequests,
		Timeout:     c.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up is not the source's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit state changed",
				slog.String("source", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(sourceID).Set(0)
	c.breakers[sourceID] = cb
	return cb
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
