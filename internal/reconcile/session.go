package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/event"
)

// SkipSet remembers which entities an operator skipped. catalog.SkipStore
// persists it in SQLite.
type SkipSet interface {
	Skip(ctx context.Context, kind catalog.Kind, entityID string) error
	Skipped(ctx context.Context, kind catalog.Kind) (map[string]bool, error)
	Clear(ctx context.Context, kind catalog.Kind) (int, error)
}

var _ SkipSet = (*catalog.SkipStore)(nil)

// MemorySkipSet is a SkipSet that lives only as long as the process.
type MemorySkipSet struct {
	mu  sync.Mutex
	ids map[catalog.Kind]map[string]bool
}

// NewMemorySkipSet creates an empty skip set.
func NewMemorySkipSet() *MemorySkipSet {
	return &MemorySkipSet{ids: make(map[catalog.Kind]map[string]bool)}
}

// Skip records entityID.
func (s *MemorySkipSet) Skip(_ context.Context, kind catalog.Kind, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[kind] == nil {
		s.ids[kind] = make(map[string]bool)
	}
	s.ids[kind][entityID] = true
	return nil
}

// Skipped returns a copy of the skipped IDs for kind.
func (s *MemorySkipSet) Skipped(_ context.Context, kind catalog.Kind) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.ids[kind]))
	for id := range s.ids[kind] {
		out[id] = true
	}
	return out, nil
}

// Clear forgets every skipped ID for kind.
func (s *MemorySkipSet) Clear(_ context.Context, kind catalog.Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ids[kind])
	delete(s.ids, kind)
	return n, nil
}

// SessionConfig holds the per-session knobs.
type SessionConfig struct {
	Threshold int
	Apply     ApplyOptions
}

// Session is one matching run over a page of local entities of a single
// kind. It owns the batch of matches and the skip set.
type Session struct {
	store   catalog.Store
	matcher *Matcher
	engine  *ApplyEngine
	skips   SkipSet
	cfg     SessionConfig
	logger  *slog.Logger

	matches []*EntityMatch
	total   int
}

// NewSession creates a session.
func NewSession(store catalog.Store, matcher *Matcher, engine *ApplyEngine, skips SkipSet, cfg SessionConfig, logger *slog.Logger) *Session {
	return &Session{
		store:   store,
		matcher: matcher,
		engine:  engine,
		skips:   skips,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "session"), slog.String("kind", string(matcher.Kind()))),
	}
}

// Run loads a page of entities, matches them and marks the ones in the
// skip set as skipped. It replaces any previous batch.
func (s *Session) Run(ctx context.Context, params catalog.ListParams) ([]*EntityMatch, error) {
	kind := s.matcher.Kind()
	entities, total, err := s.store.ListUnlinkedEntities(ctx, kind, params)
	if err != nil {
		return nil, fmt.Errorf("loading %s entities: %w", kind, err)
	}

	skipped, err := s.skips.Skipped(ctx, kind)
	if err != nil {
		return nil, err
	}

	// Skipped entities are not searched.
	search := make([]catalog.Entity, 0, len(entities))
	for _, e := range entities {
		if !skipped[e.ID] {
			search = append(search, e)
		}
	}
	found, err := s.matcher.FindMatches(ctx, search)
	if err != nil {
		return nil, err
	}

	matches := make([]*EntityMatch, 0, len(entities))
	for _, e := range entities {
		if skipped[e.ID] {
			m := &EntityMatch{Local: e, Status: StatusPending}
			_ = m.MarkSkipped()
			matches = append(matches, m)
			continue
		}
		matches = append(matches, found[0])
		found = found[1:]
	}

	s.matches = matches
	s.total = total

	stats := s.Stats()
	s.logger.Info("batch matched",
		slog.Int("entities", len(matches)),
		slog.Int("total", total),
		slog.Int("auto_eligible", stats.AutoMatchEligible),
		slog.Int("skipped", stats.Skipped))
	s.engine.bus.Publish(event.Event{
		Type: event.BatchMatched,
		Data: map[string]any{"kind": string(kind), "entities": len(matches), "total": total},
	})
	return matches, nil
}

// Matches returns the current batch.
func (s *Session) Matches() []*EntityMatch { return s.matches }

// Total returns the catalog-wide count reported by the last Run.
func (s *Session) Total() int { return s.total }

// Threshold returns the auto-apply threshold.
func (s *Session) Threshold() int { return s.cfg.Threshold }

// Categorize buckets the current batch.
func (s *Session) Categorize() Categorized {
	return Categorize(s.matches, s.cfg.Threshold)
}

// Stats summarizes the current batch.
func (s *Session) Stats() MatchStats {
	return CalculateStats(s.matches, s.cfg.Threshold)
}

// Apply applies c to match with the session's apply options.
func (s *Session) Apply(ctx context.Context, match *EntityMatch, c Candidate) error {
	return s.engine.Apply(ctx, match, c, s.cfg.Apply)
}

// ApplyAllAuto applies the auto bucket and returns the success count.
func (s *Session) ApplyAllAuto(ctx context.Context) int {
	return s.engine.ApplyAllAuto(ctx, s.Categorize().Auto, s.cfg.Apply)
}

// Skip marks match skipped and persists it in the skip set.
func (s *Session) Skip(ctx context.Context, match *EntityMatch) error {
	if err := s.engine.Skip(match); err != nil {
		return err
	}
	if err := s.skips.Skip(ctx, match.Local.Kind, match.Local.ID); err != nil {
		_ = match.ClearSkip()
		return err
	}
	return nil
}

// ClearSkipped empties the skip set for the session's kind and moves every
// skipped match in the batch back to pending. Matches that were skipped
// before they were searched are searched now.
func (s *Session) ClearSkipped(ctx context.Context) (int, error) {
	kind := s.matcher.Kind()
	n, err := s.skips.Clear(ctx, kind)
	if err != nil {
		return 0, err
	}
	for _, m := range s.matches {
		if m.Status != StatusSkipped {
			continue
		}
		_ = m.ClearSkip()
		if len(m.Candidates) == 0 && len(s.matcher.Sources()) > 0 {
			*m = *s.matcher.FindMatch(ctx, m.Local)
		}
	}
	s.engine.bus.Publish(event.Event{
		Type: event.SkipsCleared,
		Data: map[string]any{"kind": string(kind), "cleared": n},
	})
	return n, nil
}
