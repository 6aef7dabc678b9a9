// Package reconcile links local catalog entities to remote registry
// records: it searches every configured source, ranks the candidates,
// buckets them by confidence and merges the chosen record back into the
// catalog.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/registry"
	"github.com/sydlexius/stashlink/internal/similarity"
)

// Status is the lifecycle state of an EntityMatch.
type Status string

// Match statuses.
const (
	StatusPending Status = "pending"
	StatusMatched Status = "matched"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

var (
	// ErrNoSources is returned by FindMatches when no remote source is
	// configured. No request is made.
	ErrNoSources = errors.New("no remote sources configured")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the match's current status.
	ErrInvalidTransition = errors.New("invalid match status transition")
)

// Candidate is one remote record proposed for a local entity.
type Candidate struct {
	Remote     registry.RemoteEntity `json:"remote"`
	Score      int                   `json:"score"`
	Confidence similarity.Confidence `json:"confidence"`
	Source     registry.Source       `json:"-"`
}

// EntityMatch is the result of matching one local entity. Candidates are
// ordered by descending score.
type EntityMatch struct {
	Local      catalog.Entity `json:"local"`
	Candidates []Candidate    `json:"candidates"`
	Status     Status         `json:"status"`
	Selected   *Candidate     `json:"selected,omitempty"`
	Err        string         `json:"error,omitempty"`
}

// Top returns the best candidate, if any.
func (m *EntityMatch) Top() (Candidate, bool) {
	if len(m.Candidates) == 0 {
		return Candidate{}, false
	}
	return m.Candidates[0], true
}

// TopScore returns the best candidate's score, or -1 without candidates.
func (m *EntityMatch) TopScore() int {
	if len(m.Candidates) == 0 {
		return -1
	}
	return m.Candidates[0].Score
}

func (m *EntityMatch) transition(to Status) error {
	ok := false
	switch m.Status {
	case StatusPending:
		ok = to == StatusMatched || to == StatusSkipped || to == StatusError
	case StatusMatched:
		ok = to == StatusMatched
	case StatusSkipped:
		ok = to == StatusPending
	}
	if !ok {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, m.Status, to)
	}
	m.Status = to
	return nil
}

// MarkMatched records c as the applied candidate. Re-applying an already
// matched entity is allowed.
func (m *EntityMatch) MarkMatched(c Candidate) error {
	if err := m.transition(StatusMatched); err != nil {
		return err
	}
	m.Selected = &c
	return nil
}

// MarkSkipped moves a pending match to skipped.
func (m *EntityMatch) MarkSkipped() error {
	return m.transition(StatusSkipped)
}

// MarkError moves a pending match to error with msg.
func (m *EntityMatch) MarkError(msg string) error {
	if err := m.transition(StatusError); err != nil {
		return err
	}
	m.Err = msg
	return nil
}

// ClearSkip moves a skipped match back to pending.
func (m *EntityMatch) ClearSkip() error {
	return m.transition(StatusPending)
}
