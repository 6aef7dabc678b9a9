// Package registry describes remote metadata registries: the configured
// sources, the uniform shape of the entities they return, and the client
// contract used to search them.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/sydlexius/stashlink/internal/catalog"
)

// Endpoint is the connection descriptor for a source. The reconciliation
// engine passes it through to the client untouched.
type Endpoint struct {
	URL    string
	APIKey string
}

// Source is one configured remote registry.
type Source struct {
	ID          string
	DisplayName string
	Endpoint    Endpoint
}

// Name returns the display name, falling back to the ID.
func (s Source) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.ID
}

// RemoteEntity is a record returned by a remote registry, normalized
// across entity kinds. IDs are only unique within their source.
type RemoteEntity struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Aliases        []string      `json:"aliases,omitempty"`
	Images         []string      `json:"images,omitempty"`
	URLs           []string      `json:"urls,omitempty"`
	Parent         *RemoteEntity `json:"parent,omitempty"`
	Description    string        `json:"description,omitempty"`
	Disambiguation string        `json:"disambiguation,omitempty"`
	Gender         string        `json:"gender,omitempty"`
	Birthdate      string        `json:"birthdate,omitempty"`
	Country        string        `json:"country,omitempty"`
	Ethnicity      string        `json:"ethnicity,omitempty"`
}

// Image returns the first image URL, or "".
func (r RemoteEntity) Image() string {
	if len(r.Images) == 0 {
		return ""
	}
	return r.Images[0]
}

// Client searches remote registries. Implementations return an empty
// slice when nothing matches and an error only for transport or protocol
// failures.
type Client interface {
	Search(ctx context.Context, source Source, kind catalog.Kind, query string, limit int) ([]RemoteEntity, error)
}

// TestableClient is implemented by clients that can verify a source's
// connection descriptor.
type TestableClient interface {
	Client
	TestConnection(ctx context.Context, source Source) error
}

// Registry holds the configured sources in declaration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	sources map[string]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source. Registering an existing ID replaces the source
// in place without changing its position.
func (r *Registry) Register(s Source) error {
	if s.ID == "" {
		return fmt.Errorf("source id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[s.ID]; !ok {
		r.order = append(r.order, s.ID)
	}
	r.sources[s.ID] = s
	return nil
}

// Get returns a source by ID.
func (r *Registry) Get(id string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	return s, ok
}

// All returns all sources in declaration order.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Source, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.sources[id])
	}
	return result
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
