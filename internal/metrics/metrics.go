// Package metrics holds the Prometheus collectors for remote searches,
// matching runs and applied links.
//
// The CLI is short-lived, so metrics are exported by writing the default
// gatherer to a node_exporter textfile (see WriteTextfile) rather than
// served over HTTP.
//
// Remote source metrics:
//   - stashlink_remote_searches_total{source,kind,outcome}
//   - stashlink_remote_search_duration_seconds{source}
//   - stashlink_remote_candidates_total{source,kind}
//   - stashlink_circuit_breaker_state{source} (0=closed, 1=half-open, 2=open)
//
// Reconciliation metrics:
//   - stashlink_matches_total{kind,status}
//   - stashlink_applies_total{kind,outcome}
//   - stashlink_parents_resolved_total{outcome}
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemoteSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stashlink_remote_searches_total",
			Help: "Remote registry searches by outcome (ok, error)",
		},
		[]string{"source", "kind", "outcome"},
	)

	RemoteSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stashlink_remote_search_duration_seconds",
			Help:    "Duration of remote registry searches in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	RemoteCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stashlink_remote_candidates_total",
			Help: "Candidates returned by remote registries",
		},
		[]string{"source", "kind"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stashlink_circuit_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	Matches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stashlink_matches_total",
			Help: "Entity matches produced by status",
		},
		[]string{"kind", "status"},
	)

	Applies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stashlink_applies_total",
			Help: "Match applications by outcome (ok, error)",
		},
		[]string{"kind", "outcome"},
	)

	ParentsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stashlink_parents_resolved_total",
			Help: "Parent studio resolutions by outcome (reused, linked, created)",
		},
		[]string{"outcome"},
	)
)

// Outcome returns the outcome label for err.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format, atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
