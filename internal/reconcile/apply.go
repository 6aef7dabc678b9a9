package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/event"
	"github.com/sydlexius/stashlink/internal/metrics"
)

// ApplyOptions selects which remote fields are merged into the local entity.
// The external link is always recorded.
type ApplyOptions struct {
	IncludeImage   bool `yaml:"include_image"`
	IncludeAliases bool `yaml:"include_aliases"`
	IncludeParent  bool `yaml:"include_parent"`
	// IncludeDetails fills empty kind-specific attributes: studio URL, tag
	// description and performer demographics. Existing values are kept.
	IncludeDetails bool `yaml:"include_details"`
}

// DefaultApplyOptions merges image, aliases and parent.
func DefaultApplyOptions() ApplyOptions {
	return ApplyOptions{IncludeImage: true, IncludeAliases: true, IncludeParent: true}
}

// ApplyEngine writes chosen candidates back to the catalog.
type ApplyEngine struct {
	store  catalog.Store
	bus    *event.Bus
	logger *slog.Logger
}

// EngineOption configures an ApplyEngine.
type EngineOption func(*ApplyEngine)

// WithEventBus publishes apply and skip events to bus.
func WithEventBus(bus *event.Bus) EngineOption {
	return func(e *ApplyEngine) { e.bus = bus }
}

// NewApplyEngine creates an apply engine backed by store.
func NewApplyEngine(store catalog.Store, logger *slog.Logger, opts ...EngineOption) *ApplyEngine {
	e := &ApplyEngine{
		store:  store,
		logger: logger.With(slog.String("component", "apply")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply links match's local entity to c and merges the fields selected by
// opts in a single catalog update. Applying the same candidate twice leaves
// one link. A link to a different record in the same source is replaced.
// Merges are computed against the stored entity, not the listed snapshot,
// so changes made earlier in a batch survive. On success the match is
// marked matched and holds the stored entity.
func (e *ApplyEngine) Apply(ctx context.Context, match *EntityMatch, c Candidate, opts ApplyOptions) (err error) {
	kind := match.Local.Kind
	defer func() {
		metrics.Applies.WithLabelValues(string(kind), metrics.Outcome(err)).Inc()
	}()

	if match.Status != StatusPending && match.Status != StatusMatched {
		return fmt.Errorf("applying %s %s: %w: status is %s", kind, match.Local.ID, ErrInvalidTransition, match.Status)
	}
	if c.Source.ID == "" || c.Remote.ID == "" {
		return fmt.Errorf("applying %s %s: candidate has no source or remote id", kind, match.Local.ID)
	}

	current, err := e.store.GetEntity(ctx, kind, match.Local.ID)
	if err != nil {
		return fmt.Errorf("applying %s %s: %w", kind, match.Local.ID, err)
	}
	local := *current

	var upd catalog.Update

	if links, changed := withLink(local.Links, c.Source.ID, c.Remote.ID); changed {
		upd.Links = &links
	}

	if opts.IncludeImage && local.ImageURL == "" {
		if img := c.Remote.Image(); img != "" {
			upd.ImageURL = &img
		}
	}

	if opts.IncludeAliases && kind.HasAliases() {
		if aliases, changed := mergeAliases(local.Name, local.Aliases, c.Remote.Aliases); changed {
			upd.Aliases = &aliases
		}
	}

	if opts.IncludeDetails {
		fillDetails(&upd, local, c)
	}

	if kind == catalog.KindStudio && opts.IncludeParent && c.Remote.Parent != nil && c.Remote.Parent.Name != "" {
		if c.Remote.Parent.Name == local.Name {
			e.logger.Warn("remote parent has the studio's own name, parent not set",
				slog.String("entity", local.ID),
				slog.String("source", c.Source.ID),
				slog.String("parent_remote_id", c.Remote.Parent.ID))
		} else {
			parent, err := e.GetOrCreateParent(ctx, c.Remote.Parent.Name, c.Source.ID, c.Remote.Parent.ID)
			if err != nil {
				return fmt.Errorf("applying %s %s: %w", kind, local.ID, err)
			}
			if local.ParentID != parent.ID {
				upd.ParentID = &parent.ID
			}
		}
	}

	updated, err := e.store.UpdateEntity(ctx, kind, local.ID, upd)
	if err != nil {
		return fmt.Errorf("applying %s %s: %w", kind, local.ID, err)
	}

	match.Local = *updated
	if err := match.MarkMatched(c); err != nil {
		return err
	}

	e.logger.Info("match applied",
		slog.String("kind", string(kind)),
		slog.String("entity", local.ID),
		slog.String("source", c.Source.ID),
		slog.String("remote_id", c.Remote.ID),
		slog.Int("score", c.Score))
	e.bus.Publish(event.Event{
		Type: event.MatchApplied,
		Data: map[string]any{
			"kind":      string(kind),
			"entity_id": local.ID,
			"source_id": c.Source.ID,
			"remote_id": c.Remote.ID,
		},
	})
	return nil
}

// GetOrCreateParent resolves a remote parent to a local studio by exact
// name. An existing studio is linked to remoteParentID when it has no link
// for sourceID yet; otherwise a new studio carrying that link is created.
// Only this one level is resolved.
func (e *ApplyEngine) GetOrCreateParent(ctx context.Context, name, sourceID, remoteParentID string) (*catalog.Entity, error) {
	existing, err := e.store.FindEntityByExactName(ctx, catalog.KindStudio, name)
	if err != nil {
		metrics.ParentsResolved.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("looking up parent studio %q: %w", name, err)
	}

	if existing != nil {
		if _, linked := existing.LinkFor(sourceID); linked || remoteParentID == "" {
			metrics.ParentsResolved.WithLabelValues("reused").Inc()
			return existing, nil
		}
		links := append(slices.Clone(existing.Links), catalog.ExternalLink{SourceID: sourceID, RemoteID: remoteParentID})
		updated, err := e.store.UpdateEntity(ctx, catalog.KindStudio, existing.ID, catalog.Update{Links: &links})
		if err != nil {
			metrics.ParentsResolved.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("linking parent studio %q: %w", name, err)
		}
		metrics.ParentsResolved.WithLabelValues("linked").Inc()
		return updated, nil
	}

	fields := catalog.Fields{Name: name}
	if remoteParentID != "" {
		fields.Links = []catalog.ExternalLink{{SourceID: sourceID, RemoteID: remoteParentID}}
	}
	created, err := e.store.CreateEntity(ctx, catalog.KindStudio, fields)
	if err != nil {
		metrics.ParentsResolved.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("creating parent studio %q: %w", name, err)
	}
	metrics.ParentsResolved.WithLabelValues("created").Inc()

	e.logger.Info("parent studio created",
		slog.String("entity", created.ID),
		slog.String("name", name),
		slog.String("source", sourceID))
	e.bus.Publish(event.Event{
		Type: event.ParentCreated,
		Data: map[string]any{
			"kind":      string(catalog.KindStudio),
			"entity_id": created.ID,
			"name":      name,
			"source_id": sourceID,
			"remote_id": remoteParentID,
		},
	})
	return created, nil
}

// ApplyAllAuto applies each match's top candidate in order and returns how
// many succeeded. Failures are logged and do not stop the batch.
func (e *ApplyEngine) ApplyAllAuto(ctx context.Context, auto []*EntityMatch, opts ApplyOptions) int {
	applied := 0
	for _, m := range auto {
		top, ok := m.Top()
		if !ok {
			e.logger.Warn("auto match has no candidates", slog.String("entity", m.Local.ID))
			continue
		}
		if err := e.Apply(ctx, m, top, opts); err != nil {
			e.logger.Error("auto apply failed",
				slog.String("entity", m.Local.ID),
				slog.String("name", m.Local.Name),
				slog.String("error", err.Error()))
			continue
		}
		applied++
	}

	e.bus.Publish(event.Event{
		Type: event.AutoApplied,
		Data: map[string]any{"eligible": len(auto), "applied": applied},
	})
	return applied
}

// Skip marks match as skipped. Links are not touched.
func (e *ApplyEngine) Skip(match *EntityMatch) error {
	if err := match.MarkSkipped(); err != nil {
		return fmt.Errorf("skipping %s %s: %w", match.Local.Kind, match.Local.ID, err)
	}
	e.bus.Publish(event.Event{
		Type: event.MatchSkipped,
		Data: map[string]any{"kind": string(match.Local.Kind), "entity_id": match.Local.ID},
	})
	return nil
}

// withLink returns links with sourceID pointing at remoteID, replacing any
// other remote ID for that source.
func withLink(links []catalog.ExternalLink, sourceID, remoteID string) ([]catalog.ExternalLink, bool) {
	out := make([]catalog.ExternalLink, 0, len(links)+1)
	found, changed := false, false
	for _, l := range links {
		if l.SourceID == sourceID {
			if found {
				changed = true
				continue
			}
			found = true
			if l.RemoteID != remoteID {
				l.RemoteID = remoteID
				changed = true
			}
		}
		out = append(out, l)
	}
	if !found {
		out = append(out, catalog.ExternalLink{SourceID: sourceID, RemoteID: remoteID})
		changed = true
	}
	return out, changed
}

// mergeAliases appends remote aliases not already present, keeping local
// aliases first. The entity's own name is never added.
func mergeAliases(name string, local, remote []string) ([]string, bool) {
	out := slices.Clone(local)
	seen := make(map[string]bool, len(local)+1)
	seen[name] = true
	for _, a := range local {
		seen[a] = true
	}
	changed := false
	for _, a := range remote {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
		changed = true
	}
	return out, changed
}

func fillDetails(upd *catalog.Update, local catalog.Entity, c Candidate) {
	fill := func(dst **string, current, remote string) {
		if current == "" && remote != "" {
			v := remote
			*dst = &v
		}
	}
	r := c.Remote
	switch local.Kind {
	case catalog.KindStudio:
		if len(r.URLs) > 0 {
			fill(&upd.URL, local.URL, r.URLs[0])
		}
	case catalog.KindTag:
		fill(&upd.Description, local.Description, r.Description)
	case catalog.KindPerformer:
		fill(&upd.Disambiguation, local.Disambiguation, r.Disambiguation)
		fill(&upd.Gender, local.Gender, r.Gender)
		fill(&upd.Birthdate, local.Birthdate, r.Birthdate)
		fill(&upd.Country, local.Country, r.Country)
		fill(&upd.Ethnicity, local.Ethnicity, r.Ethnicity)
	}
}
