// Package activity keeps a persistent journal of reconciliation events so
// operators can see what was linked, skipped or created across runs.
package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sydlexius/stashlink/internal/event"
)

// writeTimeout bounds a single journal insert.
const writeTimeout = 10 * time.Second

// Entry is one recorded event.
type Entry struct {
	ID        int64
	Type      event.Type
	Kind      string
	EntityID  string
	SourceID  string
	RemoteID  string
	Data      map[string]any
	CreatedAt time.Time
}

// ListParams filters Recent.
type ListParams struct {
	Limit    int
	Type     event.Type
	Kind     string
	EntityID string
}

// Journal records bus events into the activity table.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJournal creates a journal backed by db.
func NewJournal(db *sql.DB, logger *slog.Logger) *Journal {
	return &Journal{
		db:     db,
		logger: logger.With(slog.String("component", "activity")),
	}
}

// Attach subscribes the journal to every event type on bus.
func (j *Journal) Attach(bus *event.Bus) {
	bus.SubscribeAll(j.HandleEvent)
}

// HandleEvent is an event.Handler that stores e. Failures are logged.
func (j *Journal) HandleEvent(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.Record(ctx, e); err != nil {
		j.logger.Error("recording activity",
			slog.String("type", string(e.Type)),
			slog.String("error", err.Error()))
	}
}

// Record stores e. The kind, entity, source and remote IDs are lifted into
// their own columns; the full payload is kept as JSON.
func (j *Journal) Record(ctx context.Context, e event.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", e.Type, err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO activity (type, kind, entity_id, source_id, remote_id, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(e.Type), e.String("kind"), e.String("entity_id"), e.String("source_id"), e.String("remote_id"),
		string(data), ts.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting %s activity: %w", e.Type, err)
	}
	return nil
}

// Recent returns matching entries, newest first. Limit defaults to 50.
func (j *Journal) Recent(ctx context.Context, params ListParams) ([]Entry, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	var where []string
	var args []any
	if params.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(params.Type))
	}
	if params.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, params.Kind)
	}
	if params.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, params.EntityID)
	}

	query := `SELECT id, type, kind, entity_id, source_id, remote_id, data, created_at FROM activity`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, params.Limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		var e Entry
		var typ, data, createdAt string
		if err := rows.Scan(&e.ID, &typ, &e.Kind, &e.EntityID, &e.SourceID, &e.RemoteID, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		e.Type = event.Type(typ)
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			j.logger.Warn("undecodable activity payload", slog.Int64("id", e.ID), slog.String("error", err.Error()))
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
