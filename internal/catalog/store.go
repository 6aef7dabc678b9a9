package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an entity ID does not exist.
var ErrNotFound = errors.New("entity not found")

// Store is the narrow query/mutate contract the reconciliation engine
// depends on. Service implements it on SQLite.
type Store interface {
	// ListUnlinkedEntities returns a page of entities without any external
	// link (or all entities when params.All is set) and the total count.
	ListUnlinkedEntities(ctx context.Context, kind Kind, params ListParams) ([]Entity, int, error)

	// GetEntity returns the stored entity or ErrNotFound.
	GetEntity(ctx context.Context, kind Kind, id string) (*Entity, error)

	// FindEntityByExactName returns the entity whose name equals name
	// byte-for-byte, or nil if there is none.
	FindEntityByExactName(ctx context.Context, kind Kind, name string) (*Entity, error)

	// CreateEntity inserts a new entity.
	CreateEntity(ctx context.Context, kind Kind, fields Fields) (*Entity, error)

	// UpdateEntity applies a partial update and returns the stored result.
	UpdateEntity(ctx context.Context, kind Kind, id string, upd Update) (*Entity, error)
}
