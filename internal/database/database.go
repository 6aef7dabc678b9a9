package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens the catalog SQLite database at dbPath with WAL mode and foreign
// keys enabled. The parent directory is created when missing. ":memory:"
// opens a private in-memory database (used by tests).
func Open(dbPath string) (*sql.DB, error) {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single writer connection for SQLite. Also keeps an in-memory
	// database alive on one connection.
	db.SetMaxOpenConns(1)

	return db, nil
}
