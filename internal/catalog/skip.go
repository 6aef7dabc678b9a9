package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SkipStore persists the set of entities an operator chose to skip, so
// later matching runs keep them out of the review queue.
type SkipStore struct {
	db *sql.DB
}

// NewSkipStore creates a skip store.
func NewSkipStore(db *sql.DB) *SkipStore {
	return &SkipStore{db: db}
}

// Skip records entityID as skipped. Skipping twice is a no-op.
func (s *SkipStore) Skip(ctx context.Context, kind Kind, entityID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skipped_entities (kind, entity_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(kind, entity_id) DO NOTHING
	`, string(kind), entityID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("skipping %s %s: %w", kind, entityID, err)
	}
	return nil
}

// Skipped returns the set of skipped entity IDs for kind.
func (s *SkipStore) Skipped(ctx context.Context, kind Kind) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id FROM skipped_entities WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("listing skipped %s entities: %w", kind, err)
	}
	defer rows.Close() //nolint:errcheck

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning skipped %s: %w", kind, err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// Clear removes every skipped entry for kind and returns how many there were.
func (s *SkipStore) Clear(ctx context.Context, kind Kind) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM skipped_entities WHERE kind = ?`, string(kind))
	if err != nil {
		return 0, fmt.Errorf("clearing skipped %s entities: %w", kind, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
