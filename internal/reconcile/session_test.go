package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/database"
	"github.com/sydlexius/stashlink/internal/event"
	"github.com/sydlexius/stashlink/internal/registry"
)

func setupCatalog(t *testing.T) (*catalog.Service, *catalog.SkipStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return catalog.NewService(db), catalog.NewSkipStore(db)
}

func TestParentCreatedInCatalog(t *testing.T) {
	svc, _ := setupCatalog(t)
	ctx := context.Background()

	child, err := svc.CreateEntity(ctx, catalog.KindStudio, catalog.Fields{Name: "Brazzers Exxtra"})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	engine := NewApplyEngine(svc, testLogger())
	c := candidate("stashdb", "bx", "Brazzers Exxtra", 100)
	c.Remote.Parent = &registry.RemoteEntity{ID: "bz", Name: "Brazzers"}

	if err := engine.Apply(ctx, newMatch(child, c), c, ApplyOptions{IncludeParent: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	all, total, err := svc.ListUnlinkedEntities(ctx, catalog.KindStudio, catalog.ListParams{All: true})
	if err != nil {
		t.Fatalf("ListUnlinkedEntities: %v", err)
	}
	if total != 2 {
		t.Fatalf("studios = %d, want 2", total)
	}
	var parent, stored catalog.Entity
	for _, e := range all {
		switch e.Name {
		case "Brazzers":
			parent = e
		case "Brazzers Exxtra":
			stored = e
		}
	}
	if !parent.HasLink("stashdb", "bz") || len(parent.Links) != 1 {
		t.Errorf("parent links = %+v", parent.Links)
	}
	if stored.ParentID != parent.ID {
		t.Errorf("child parent_id = %q, want %q", stored.ParentID, parent.ID)
	}
	if !stored.HasLink("stashdb", "bx") {
		t.Errorf("child links = %+v", stored.Links)
	}

	// Applying a sibling reuses the now-linked parent.
	sibling, _ := svc.CreateEntity(ctx, catalog.KindStudio, catalog.Fields{Name: "Brazzers Live"})
	c2 := candidate("stashdb", "bl", "Brazzers Live", 100)
	c2.Remote.Parent = &registry.RemoteEntity{ID: "bz", Name: "Brazzers"}
	if err := engine.Apply(ctx, newMatch(sibling, c2), c2, ApplyOptions{IncludeParent: true}); err != nil {
		t.Fatalf("Apply sibling: %v", err)
	}
	if _, total, _ := svc.ListUnlinkedEntities(ctx, catalog.KindStudio, catalog.ListParams{All: true}); total != 3 {
		t.Errorf("studios = %d, want 3 (parent reused)", total)
	}
}

func TestApplyAllAutoKeepsParentLinkOnListedStudio(t *testing.T) {
	svc, skips := setupCatalog(t)
	ctx := context.Background()
	for _, name := range []string{"Alpha Studio", "Beta"} {
		if _, err := svc.CreateEntity(ctx, catalog.KindStudio, catalog.Fields{Name: name}); err != nil {
			t.Fatalf("CreateEntity: %v", err)
		}
	}

	client := &mockClient{
		searchFn: func(_ context.Context, s registry.Source, _ catalog.Kind, query string, _ int) ([]registry.RemoteEntity, error) {
			switch {
			case s.ID == "s1" && query == "Alpha Studio":
				return []registry.RemoteEntity{{ID: "a1", Name: "Alpha Studio", Parent: &registry.RemoteEntity{ID: "b1", Name: "Beta"}}}, nil
			case s.ID == "s2" && query == "Beta":
				return []registry.RemoteEntity{{ID: "b2", Name: "Beta"}}, nil
			}
			return []registry.RemoteEntity{}, nil
		},
	}
	matcher := NewStudioMatcher(client, sources("s1", "s2"), WithLogger(testLogger()))
	engine := NewApplyEngine(svc, testLogger())
	sess := NewSession(svc, matcher, engine, skips, SessionConfig{Threshold: 95, Apply: DefaultApplyOptions()}, testLogger())

	if _, err := sess.Run(ctx, catalog.ListParams{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := sess.ApplyAllAuto(ctx); n != 2 {
		t.Fatalf("ApplyAllAuto = %d, want 2", n)
	}

	beta, err := svc.FindEntityByExactName(ctx, catalog.KindStudio, "Beta")
	if err != nil || beta == nil {
		t.Fatalf("FindEntityByExactName: %v", err)
	}
	if len(beta.Links) != 2 || !beta.HasLink("s1", "b1") || !beta.HasLink("s2", "b2") {
		t.Errorf("beta links = %+v, want s1/b1 and s2/b2", beta.Links)
	}
	alpha, _ := svc.FindEntityByExactName(ctx, catalog.KindStudio, "Alpha Studio")
	if alpha.ParentID != beta.ID {
		t.Errorf("alpha parent = %q, want %q", alpha.ParentID, beta.ID)
	}
}

func TestSessionRunDoesNotSearchSkipped(t *testing.T) {
	var mu sync.Mutex
	queries := map[string]int{}
	client := &mockClient{
		searchFn: func(_ context.Context, _ registry.Source, _ catalog.Kind, query string, _ int) ([]registry.RemoteEntity, error) {
			mu.Lock()
			queries[query]++
			mu.Unlock()
			return []registry.RemoteEntity{{ID: "r-" + query, Name: query}}, nil
		},
	}
	skips := NewMemorySkipSet()
	sess, svc := newTestSession(t, client, skips)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"A Keep", "B Ignore", "C Keep"} {
		e, err := svc.CreateEntity(ctx, catalog.KindTag, catalog.Fields{Name: name})
		if err != nil {
			t.Fatalf("CreateEntity: %v", err)
		}
		ids = append(ids, e.ID)
	}
	_ = skips.Skip(ctx, catalog.KindTag, ids[1])

	matches, err := sess.Run(ctx, catalog.ListParams{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("matches = %d, want 3", len(matches))
	}
	for i, m := range matches {
		if m.Local.ID != ids[i] {
			t.Errorf("matches[%d] = %s, want name order", i, m.Local.Name)
		}
	}
	if matches[1].Status != StatusSkipped || len(matches[1].Candidates) != 0 {
		t.Errorf("skipped match = %+v", matches[1])
	}
	mu.Lock()
	if queries["B Ignore"] != 0 || queries["A Keep"] != 1 || queries["C Keep"] != 1 {
		t.Errorf("queries = %v, skipped entity must not be searched", queries)
	}
	mu.Unlock()

	if _, err := sess.ClearSkipped(ctx); err != nil {
		t.Fatalf("ClearSkipped: %v", err)
	}
	if matches[1].Status != StatusPending || matches[1].TopScore() != 100 {
		t.Errorf("cleared match should be searched: status=%s top=%d", matches[1].Status, matches[1].TopScore())
	}
	if c := sess.Categorize(); len(c.Auto) != 3 {
		t.Errorf("auto = %d, want 3 after clear", len(c.Auto))
	}
}

func newTestSession(t *testing.T, client registry.Client, skips SkipSet, opts ...EngineOption) (*Session, *catalog.Service) {
	t.Helper()
	svc, store := setupCatalog(t)
	if skips == nil {
		skips = store
	}
	matcher := NewTagMatcher(client, sources("stashdb"), WithLogger(testLogger()))
	engine := NewApplyEngine(svc, testLogger(), opts...)
	return NewSession(svc, matcher, engine, skips, SessionConfig{Threshold: 95}, testLogger()), svc
}

func TestSessionRunAndApplyAuto(t *testing.T) {
	client := bySource(map[string][]registry.RemoteEntity{
		"stashdb": {{ID: "t-outdoors", Name: "Outdoors"}, {ID: "t-outdoor", Name: "Outdoor"}},
	})
	sess, svc := newTestSession(t, client, nil)
	ctx := context.Background()

	for _, name := range []string{"Outdoors", "Outdoor Sex", "Zzzz"} {
		if _, err := svc.CreateEntity(ctx, catalog.KindTag, catalog.Fields{Name: name}); err != nil {
			t.Fatalf("CreateEntity: %v", err)
		}
	}
	// Already linked entities are not part of the batch.
	if _, err := svc.CreateEntity(ctx, catalog.KindTag, catalog.Fields{
		Name:  "Linked",
		Links: []catalog.ExternalLink{{SourceID: "stashdb", RemoteID: "x"}},
	}); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	matches, err := sess.Run(ctx, catalog.ListParams{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(matches) != 3 || sess.Total() != 3 {
		t.Fatalf("matches = %d total = %d, want 3/3", len(matches), sess.Total())
	}

	stats := sess.Stats()
	if stats.AutoMatchEligible != 1 || stats.Unmatched != 3 {
		t.Errorf("stats = %+v", stats)
	}

	if n := sess.ApplyAllAuto(ctx); n != 1 {
		t.Fatalf("ApplyAllAuto = %d, want 1", n)
	}
	if sess.Stats().Matched != 1 {
		t.Errorf("matched = %d, want 1", sess.Stats().Matched)
	}

	// The applied entity drops out of the next unlinked page.
	if _, err := sess.Run(ctx, catalog.ListParams{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sess.Total() != 2 {
		t.Errorf("total after apply = %d, want 2", sess.Total())
	}
}

func TestSessionRunNoSources(t *testing.T) {
	svc, skips := setupCatalog(t)
	matcher := NewTagMatcher(&mockClient{}, nil, WithLogger(testLogger()))
	sess := NewSession(svc, matcher, NewApplyEngine(svc, testLogger()), skips, SessionConfig{Threshold: 95}, testLogger())

	if _, err := sess.Run(context.Background(), catalog.ListParams{}); !errors.Is(err, ErrNoSources) {
		t.Errorf("err = %v, want ErrNoSources", err)
	}
}

func TestSessionSkipPersistsAcrossRuns(t *testing.T) {
	client := bySource(map[string][]registry.RemoteEntity{
		"stashdb": {{ID: "r", Name: "Foo"}},
	})
	sess, svc := newTestSession(t, client, nil)
	ctx := context.Background()
	if _, err := svc.CreateEntity(ctx, catalog.KindTag, catalog.Fields{Name: "Foo"}); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	matches, err := sess.Run(ctx, catalog.ListParams{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := sess.Skip(ctx, matches[0]); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	matches, err = sess.Run(ctx, catalog.ListParams{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if matches[0].Status != StatusSkipped {
		t.Fatalf("status = %s, want skipped on the next run", matches[0].Status)
	}
	if c := sess.Categorize(); len(c.Skipped) != 1 || len(c.Auto) != 0 {
		t.Errorf("categorized = %+v", c)
	}
	if n := sess.ApplyAllAuto(ctx); n != 0 {
		t.Errorf("skipped entity must not be auto-applied, got %d", n)
	}

	n, err := sess.ClearSkipped(ctx)
	if err != nil {
		t.Fatalf("ClearSkipped: %v", err)
	}
	if n != 1 {
		t.Errorf("cleared = %d, want 1", n)
	}
	if matches[0].Status != StatusPending {
		t.Errorf("status = %s, want pending after clear", matches[0].Status)
	}
	if c := sess.Categorize(); len(c.Auto) != 1 {
		t.Errorf("cleared match should be auto again: %+v", c)
	}
}

// failingSkipSet refuses to persist.
type failingSkipSet struct{ *MemorySkipSet }

func (failingSkipSet) Skip(context.Context, catalog.Kind, string) error {
	return errors.New("read-only database")
}

func TestSessionSkipFailureRevertsStatus(t *testing.T) {
	client := bySource(map[string][]registry.RemoteEntity{"stashdb": {{ID: "r", Name: "Foo"}}})
	sess, svc := newTestSession(t, client, failingSkipSet{NewMemorySkipSet()})
	ctx := context.Background()
	if _, err := svc.CreateEntity(ctx, catalog.KindTag, catalog.Fields{Name: "Foo"}); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	matches, err := sess.Run(ctx, catalog.ListParams{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := sess.Skip(ctx, matches[0]); err == nil {
		t.Fatal("expected skip error")
	}
	if matches[0].Status != StatusPending {
		t.Errorf("status = %s, want pending", matches[0].Status)
	}
}

func TestMemorySkipSet(t *testing.T) {
	s := NewMemorySkipSet()
	ctx := context.Background()
	_ = s.Skip(ctx, catalog.KindTag, "a")
	_ = s.Skip(ctx, catalog.KindTag, "a")
	_ = s.Skip(ctx, catalog.KindStudio, "b")

	got, _ := s.Skipped(ctx, catalog.KindTag)
	if len(got) != 1 || !got["a"] {
		t.Errorf("skipped = %v", got)
	}
	if n, _ := s.Clear(ctx, catalog.KindTag); n != 1 {
		t.Errorf("cleared = %d, want 1", n)
	}
	if got, _ := s.Skipped(ctx, catalog.KindStudio); !got["b"] {
		t.Error("clearing tags must not touch studios")
	}
}

func TestSessionPublishesEvents(t *testing.T) {
	bus := event.NewBus(slog.New(slog.DiscardHandler), 16)

	var mu sync.Mutex
	seen := make(map[event.Type]int)
	for _, typ := range []event.Type{event.BatchMatched, event.MatchApplied, event.AutoApplied, event.MatchSkipped, event.SkipsCleared} {
		bus.Subscribe(typ, func(e event.Event) {
			mu.Lock()
			defer mu.Unlock()
			seen[e.Type]++
		})
	}

	bus.Start()
	defer bus.Stop()

	client := bySource(map[string][]registry.RemoteEntity{"stashdb": {{ID: "r", Name: "Foo"}}})
	sess, svc := newTestSession(t, client, nil, WithEventBus(bus))
	ctx := context.Background()
	for _, name := range []string{"Foo", "Bar"} {
		if _, err := svc.CreateEntity(ctx, catalog.KindTag, catalog.Fields{Name: name}); err != nil {
			t.Fatalf("CreateEntity: %v", err)
		}
	}

	matches, err := sess.Run(ctx, catalog.ListParams{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sess.ApplyAllAuto(ctx)
	for _, m := range matches {
		if m.Status == StatusPending {
			if err := sess.Skip(ctx, m); err != nil {
				t.Fatalf("Skip: %v", err)
			}
		}
	}
	if _, err := sess.ClearSkipped(ctx); err != nil {
		t.Fatalf("ClearSkipped: %v", err)
	}

	bus.Stop()
	mu.Lock()
	defer mu.Unlock()
	for _, typ := range []event.Type{event.BatchMatched, event.MatchApplied, event.AutoApplied, event.MatchSkipped, event.SkipsCleared} {
		if seen[typ] != 1 {
			t.Errorf("%s events = %d, want 1", typ, seen[typ])
		}
	}
}
