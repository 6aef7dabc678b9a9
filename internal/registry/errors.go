package registry

import (
	"fmt"
	"time"

	"github.com/sydlexius/stashlink/internal/catalog"
)

// ErrSourceUnavailable indicates a transient failure (rate-limited, timeout,
// server error, open circuit).
type ErrSourceUnavailable struct {
	SourceID   string
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrSourceUnavailable) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.SourceID, e.Cause)
}

func (e *ErrSourceUnavailable) Unwrap() error { return e.Cause }

// ErrRemote indicates the source answered but reported an error, for
// example a GraphQL error payload or a rejected API key.
type ErrRemote struct {
	SourceID string
	Message  string
}

func (e *ErrRemote) Error() string {
	return fmt.Sprintf("source %s: %s", e.SourceID, e.Message)
}

// ErrUnsupportedKind is returned for entity kinds a client cannot search.
type ErrUnsupportedKind struct {
	Kind catalog.Kind
}

func (e *ErrUnsupportedKind) Error() string {
	return fmt.Sprintf("entity kind %q is not searchable", e.Kind)
}
