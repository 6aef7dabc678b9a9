package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/metrics"
	"github.com/sydlexius/stashlink/internal/registry"
	"github.com/sydlexius/stashlink/internal/similarity"
)

// DefaultSearchLimit is the number of results requested per source.
const DefaultSearchLimit = 10

// ScoreFunc scores a remote record against the local entity's names.
type ScoreFunc func(localNames []string, remoteName string, remoteAliases []string) int

// Matcher finds remote candidates for local entities of one kind.
type Matcher struct {
	kind       catalog.Kind
	client     registry.Client
	sources    []registry.Source
	limit      int
	thresholds similarity.Thresholds
	score      ScoreFunc
	logger     *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithSearchLimit sets the per-source result limit.
func WithSearchLimit(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithThresholds sets the confidence bucket boundaries.
func WithThresholds(t similarity.Thresholds) Option {
	return func(m *Matcher) { m.thresholds = t }
}

// WithScorer replaces the scoring function.
func WithScorer(f ScoreFunc) Option {
	return func(m *Matcher) {
		if f != nil {
			m.score = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMatcher creates a matcher for kind that searches sources, in order,
// through client.
func NewMatcher(kind catalog.Kind, client registry.Client, sources []registry.Source, opts ...Option) *Matcher {
	m := &Matcher{
		kind:       kind,
		client:     client,
		sources:    append([]registry.Source(nil), sources...),
		limit:      DefaultSearchLimit,
		thresholds: similarity.DefaultThresholds(),
		score:      similarity.BestMatch,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "matcher"), slog.String("kind", string(kind)))
	return m
}

// NewStudioMatcher creates a matcher for studios.
func NewStudioMatcher(client registry.Client, sources []registry.Source, opts ...Option) *Matcher {
	return NewMatcher(catalog.KindStudio, client, sources, opts...)
}

// NewPerformerMatcher creates a matcher for performers. Local aliases are
// scored alongside the local name.
func NewPerformerMatcher(client registry.Client, sources []registry.Source, opts ...Option) *Matcher {
	return NewMatcher(catalog.KindPerformer, client, sources, opts...)
}

// NewTagMatcher creates a matcher for tags.
func NewTagMatcher(client registry.Client, sources []registry.Source, opts ...Option) *Matcher {
	return NewMatcher(catalog.KindTag, client, sources, opts...)
}

// Kind returns the entity kind this matcher handles.
func (m *Matcher) Kind() catalog.Kind { return m.kind }

// Sources returns the configured sources in declaration order.
func (m *Matcher) Sources() []registry.Source {
	return append([]registry.Source(nil), m.sources...)
}

// FindMatches matches entities one at a time, so at most one request per
// source is in flight. Once ctx is done the remaining entities are marked
// as errors.
func (m *Matcher) FindMatches(ctx context.Context, entities []catalog.Entity) ([]*EntityMatch, error) {
	if len(m.sources) == 0 {
		return nil, ErrNoSources
	}

	matches := make([]*EntityMatch, 0, len(entities))
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			match := &EntityMatch{Local: e, Status: StatusPending}
			_ = match.MarkError(err.Error())
			metrics.Matches.WithLabelValues(string(m.kind), string(match.Status)).Inc()
			matches = append(matches, match)
			continue
		}
		matches = append(matches, m.FindMatch(ctx, e))
	}
	return matches, nil
}

// FindMatch searches every source concurrently for entity and returns the
// ranked candidates. A failing source contributes nothing. It never
// returns nil; failures are reported through StatusError.
func (m *Matcher) FindMatch(ctx context.Context, entity catalog.Entity) (match *EntityMatch) {
	match = &EntityMatch{Local: entity, Status: StatusPending}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("matching panicked",
				slog.String("entity", entity.ID),
				slog.Any("panic", r))
			match.Candidates = nil
			match.Status = StatusPending
			_ = match.MarkError(fmt.Sprintf("matching %q: %v", entity.Name, r))
		}
		metrics.Matches.WithLabelValues(string(m.kind), string(match.Status)).Inc()
	}()

	if strings.TrimSpace(entity.Name) == "" {
		_ = match.MarkError("entity has no name")
		return match
	}

	results := m.searchAll(ctx, entity.Name)
	match.Candidates = m.rank(entity, results)

	m.logger.Debug("matched",
		slog.String("entity", entity.ID),
		slog.String("name", entity.Name),
		slog.Int("candidates", len(match.Candidates)),
		slog.Int("top_score", match.TopScore()))
	return match
}

type sourceResult struct {
	entities []registry.RemoteEntity
	err      error
}

// searchAll queries every source in parallel and waits for all of them.
// Results are indexed by source position.
func (m *Matcher) searchAll(ctx context.Context, query string) []sourceResult {
	results := make([]sourceResult, len(m.sources))

	var wg sync.WaitGroup
	for i, src := range m.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = sourceResult{err: fmt.Errorf("search panicked: %v", r)}
				}
			}()

			start := time.Now()
			found, err := m.client.Search(ctx, src, m.kind, query, m.limit)
			metrics.RemoteSearchDuration.WithLabelValues(src.ID).Observe(time.Since(start).Seconds())
			metrics.RemoteSearches.WithLabelValues(src.ID, string(m.kind), metrics.Outcome(err)).Inc()
			results[i] = sourceResult{entities: found, err: err}
		}()
	}
	wg.Wait()

	for i, r := range results {
		if r.err != nil {
			m.logger.Warn("source search failed",
				slog.String("source", m.sources[i].ID),
				slog.String("query", query),
				slog.String("error", r.err.Error()))
			continue
		}
		metrics.RemoteCandidates.WithLabelValues(m.sources[i].ID, string(m.kind)).Add(float64(len(r.entities)))
	}
	return results
}

// rank scores every remote record and sorts by descending score. Equal
// scores keep source declaration order, then the source's own result
// order. A remote ID repeated by one source keeps its best score.
func (m *Matcher) rank(entity catalog.Entity, results []sourceResult) []Candidate {
	localNames := []string{entity.Name}
	if m.kind == catalog.KindPerformer {
		localNames = append(localNames, entity.Aliases...)
	}

	var candidates []Candidate
	for i, r := range results {
		if r.err != nil {
			continue
		}
		src := m.sources[i]
		seen := make(map[string]int)
		for _, remote := range r.entities {
			score := m.score(localNames, remote.Name, remote.Aliases)
			if j, ok := seen[remote.ID]; ok {
				if score > candidates[j].Score {
					candidates[j].Score = score
					candidates[j].Confidence = m.thresholds.Level(score)
					candidates[j].Remote = remote
				}
				continue
			}
			seen[remote.ID] = len(candidates)
			candidates = append(candidates, Candidate{
				Remote:     remote,
				Score:      score,
				Confidence: m.thresholds.Level(score),
				Source:     src,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}
