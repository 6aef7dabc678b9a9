package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// entityColumns is the ordered list of columns for SELECT queries.
const entityColumns = `id, kind, name, aliases, COALESCE(parent_id, ''),
	image_url, url, description, disambiguation,
	gender, birthdate, country, ethnicity,
	created_at, updated_at`

// Service is the SQLite-backed catalog store.
type Service struct {
	db *sql.DB
}

var _ Store = (*Service)(nil)

// NewService creates a catalog service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateEntity inserts a new entity together with its external links.
func (s *Service) CreateEntity(ctx context.Context, kind Kind, fields Fields) (*Entity, error) {
	if strings.TrimSpace(fields.Name) == "" {
		return nil, fmt.Errorf("creating %s: name is required", kind)
	}
	if err := validateLinks(fields.Links); err != nil {
		return nil, fmt.Errorf("creating %s: %w", kind, err)
	}

	now := time.Now().UTC()
	e := &Entity{
		ID:             uuid.New().String(),
		Kind:           kind,
		Name:           fields.Name,
		Aliases:        fields.Aliases,
		Links:          fields.Links,
		ParentID:       fields.ParentID,
		ImageURL:       fields.ImageURL,
		URL:            fields.URL,
		Description:    fields.Description,
		Disambiguation: fields.Disambiguation,
		Gender:         fields.Gender,
		Birthdate:      fields.Birthdate,
		Country:        fields.Country,
		Ethnicity:      fields.Ethnicity,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if !kind.HasAliases() {
		e.Aliases = nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is a no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (
			id, kind, name, aliases, parent_id,
			image_url, url, description, disambiguation,
			gender, birthdate, country, ethnicity,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, string(kind), e.Name, marshalStringSlice(e.Aliases), nullIfEmpty(e.ParentID),
		e.ImageURL, e.URL, e.Description, e.Disambiguation,
		e.Gender, e.Birthdate, e.Country, e.Ethnicity,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", kind, err)
	}

	if err := upsertLinks(ctx, tx, e.ID, e.Links, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing %s: %w", kind, err)
	}
	return e, nil
}

// GetEntity retrieves an entity by ID.
func (s *Service) GetEntity(ctx context.Context, kind Kind, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND id = ?`, string(kind), id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s by id: %w", kind, err)
	}

	entities := []Entity{*e}
	if err := s.loadLinks(ctx, entities); err != nil {
		return nil, err
	}
	return &entities[0], nil
}

// FindEntityByExactName returns the oldest entity of kind named exactly
// name, or nil. The comparison is case-sensitive.
func (s *Service) FindEntityByExactName(ctx context.Context, kind Kind, name string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE kind = ? AND name = ?
		ORDER BY created_at, id LIMIT 1`, string(kind), name)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s by name: %w", kind, err)
	}

	entities := []Entity{*e}
	if err := s.loadLinks(ctx, entities); err != nil {
		return nil, err
	}
	return &entities[0], nil
}

// ListUnlinkedEntities returns a page of entities ordered by name.
func (s *Service) ListUnlinkedEntities(ctx context.Context, kind Kind, params ListParams) ([]Entity, int, error) {
	params.Validate()

	where := ` WHERE kind = ?`
	if !params.All {
		where += ` AND NOT EXISTS (SELECT 1 FROM external_links l WHERE l.entity_id = entities.id)`
	}
	args := []any{string(kind)}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting %s entities: %w", kind, err)
	}

	offset := (params.Page - 1) * params.PageSize
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities`+where+ //nolint:gosec // G202: where is built from static fragments
			` ORDER BY name, id LIMIT ? OFFSET ?`,
		append(args, params.PageSize, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing %s entities: %w", kind, err)
	}

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			_ = rows.Close()
			return nil, 0, fmt.Errorf("scanning %s row: %w", kind, err)
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, 0, fmt.Errorf("iterating %s rows: %w", kind, err)
	}
	// Close before loading links: the pool holds a single connection.
	_ = rows.Close()

	if err := s.loadLinks(ctx, entities); err != nil {
		return nil, 0, err
	}
	return entities, total, nil
}

// UpdateEntity applies upd to the entity and returns the stored result.
func (s *Service) UpdateEntity(ctx context.Context, kind Kind, id string, upd Update) (*Entity, error) {
	current, err := s.GetEntity(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return current, nil
	}

	e := applyUpdate(*current, upd)
	if strings.TrimSpace(e.Name) == "" {
		return nil, fmt.Errorf("updating %s %s: name is required", kind, id)
	}
	if e.ParentID == e.ID {
		return nil, fmt.Errorf("updating %s %s: entity cannot be its own parent", kind, id)
	}
	if err := validateLinks(e.Links); err != nil {
		return nil, fmt.Errorf("updating %s %s: %w", kind, id, err)
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is a no-op after commit

	_, err = tx.ExecContext(ctx, `
		UPDATE entities SET
			name = ?, aliases = ?, parent_id = ?,
			image_url = ?, url = ?, description = ?, disambiguation = ?,
			gender = ?, birthdate = ?, country = ?, ethnicity = ?,
			updated_at = ?
		WHERE kind = ? AND id = ?
	`,
		e.Name, marshalStringSlice(e.Aliases), nullIfEmpty(e.ParentID),
		e.ImageURL, e.URL, e.Description, e.Disambiguation,
		e.Gender, e.Birthdate, e.Country, e.Ethnicity,
		now.Format(time.RFC3339),
		string(kind), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating %s %s: %w", kind, id, err)
	}

	if upd.Links != nil {
		if err := replaceLinks(ctx, tx, id, e.Links, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing %s %s: %w", kind, id, err)
	}

	e.UpdatedAt = now
	return &e, nil
}

// applyUpdate returns e with every non-nil field of upd applied.
func applyUpdate(e Entity, upd Update) Entity {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&e.Name, upd.Name)
	set(&e.ParentID, upd.ParentID)
	set(&e.ImageURL, upd.ImageURL)
	set(&e.URL, upd.URL)
	set(&e.Description, upd.Description)
	set(&e.Disambiguation, upd.Disambiguation)
	set(&e.Gender, upd.Gender)
	set(&e.Birthdate, upd.Birthdate)
	set(&e.Country, upd.Country)
	set(&e.Ethnicity, upd.Ethnicity)
	if upd.Aliases != nil && e.Kind.HasAliases() {
		e.Aliases = append([]string(nil), (*upd.Aliases)...)
	}
	if upd.Links != nil {
		e.Links = append([]ExternalLink(nil), (*upd.Links)...)
	}
	return e
}

// loadLinks fills in Links for every entity in place.
func (s *Service) loadLinks(ctx context.Context, entities []Entity) error {
	if len(entities) == 0 {
		return nil
	}

	index := make(map[string]int, len(entities))
	placeholders := make([]string, len(entities))
	args := make([]any, len(entities))
	for i, e := range entities {
		index[e.ID] = i
		placeholders[i] = "?"
		args[i] = e.ID
		entities[i].Links = nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, source_id, remote_id FROM external_links
		WHERE entity_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY entity_id, source_id`, args...) //nolint:gosec // G202: placeholders only
	if err != nil {
		return fmt.Errorf("loading external links: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var entityID string
		var l ExternalLink
		if err := rows.Scan(&entityID, &l.SourceID, &l.RemoteID); err != nil {
			return fmt.Errorf("scanning external link: %w", err)
		}
		i := index[entityID]
		entities[i].Links = append(entities[i].Links, l)
	}
	return rows.Err()
}

func upsertLinks(ctx context.Context, tx *sql.Tx, entityID string, links []ExternalLink, now time.Time) error {
	for _, l := range links {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO external_links (entity_id, source_id, remote_id, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(entity_id, source_id) DO UPDATE SET remote_id = excluded.remote_id
		`, entityID, l.SourceID, l.RemoteID, now.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("storing link %s/%s: %w", l.SourceID, l.RemoteID, err)
		}
	}
	return nil
}

// replaceLinks makes the stored link set for entityID equal to links,
// keeping created_at for links whose source is unchanged.
func replaceLinks(ctx context.Context, tx *sql.Tx, entityID string, links []ExternalLink, now time.Time) error {
	keep := make([]any, 0, len(links)+1)
	keep = append(keep, entityID)
	placeholders := make([]string, 0, len(links))
	for _, l := range links {
		keep = append(keep, l.SourceID)
		placeholders = append(placeholders, "?")
	}

	query := `DELETE FROM external_links WHERE entity_id = ?`
	if len(placeholders) > 0 {
		query += ` AND source_id NOT IN (` + strings.Join(placeholders, ",") + `)`
	}
	if _, err := tx.ExecContext(ctx, query, keep...); err != nil {
		return fmt.Errorf("pruning links: %w", err)
	}
	return upsertLinks(ctx, tx, entityID, links, now)
}

// validateLinks enforces at most one link per source.
func validateLinks(links []ExternalLink) error {
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		if l.SourceID == "" || l.RemoteID == "" {
			return fmt.Errorf("external link requires source and remote id")
		}
		if seen[l.SourceID] {
			return fmt.Errorf("duplicate external link for source %s", l.SourceID)
		}
		seen[l.SourceID] = true
	}
	return nil
}

func scanEntity(row interface{ Scan(...any) error }) (*Entity, error) {
	var e Entity
	var kind, aliases, createdAt, updatedAt string
	err := row.Scan(
		&e.ID, &kind, &e.Name, &aliases, &e.ParentID,
		&e.ImageURL, &e.URL, &e.Description, &e.Disambiguation,
		&e.Gender, &e.Birthdate, &e.Country, &e.Ethnicity,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Kind = Kind(kind)
	e.Aliases = unmarshalStringSlice(aliases)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
