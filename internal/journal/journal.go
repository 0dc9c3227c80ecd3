// Package journal records dispatch traces to SQLite for soak diagnostics and
// replay. It sits outside the runtime hot path: the core itself persists
// nothing, and the journal only sees what the dispatcher's observer hook
// forwards to it.
package journal

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Journal is a SQLite-backed trace log of dispatched messages.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal database at the given path (":memory:" for
// an ephemeral one). Applies pragmas and schema; safe to call on an existing
// journal.
//
// The connection pool is capped at a single connection: SQLite allows one
// writer at a time and the journal is written from the consumer goroutine
// only.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// applyPragmas configures the connection: WAL for concurrent readers while
// the soak run writes, NORMAL sync, a busy timeout for lock contention, and
// foreign key enforcement.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}
