package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SessionRecord is one finalized planning session, keyed by research id.
type SessionRecord struct {
	ResearchID   string          `json:"research_id"`
	Status       string          `json:"status"`
	InitialQuery string          `json:"initial_query"`
	Plan         string          `json:"plan"`
	TextConfig   json.RawMessage `json:"text_config,omitempty"`
}

// SessionStore persists session records. Upserts are idempotent.
type SessionStore interface {
	Upsert(ctx context.Context, collection string, record SessionRecord) error
	Get(ctx context.Context, collection string, researchID string) (*SessionRecord, error)
	Close() error
}

// SQLiteSessionStore keeps sessions in a local SQLite database, one row per
// research id per collection.
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore opens (creating if needed) the database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteSessionStore(path string) (*SQLiteSessionStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS research_sessions (
	collection    TEXT NOT NULL,
	research_id   TEXT NOT NULL,
	status        TEXT NOT NULL,
	initial_query TEXT NOT NULL,
	plan          TEXT NOT NULL,
	text_config   TEXT,
	PRIMARY KEY (collection, research_id)
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing session store: %w", err)
	}

	return &SQLiteSessionStore{db: db}, nil
}

// Upsert implements SessionStore with delete-then-insert inside one
// transaction, making repeated finalization idempotent.
func (s *SQLiteSessionStore) Upsert(ctx context.Context, collection string, record SessionRecord) error {
	if record.ResearchID == "" {
		return fmt.Errorf("research_id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM research_sessions WHERE collection = ? AND research_id = ?`,
		collection, record.ResearchID,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO research_sessions (collection, research_id, status, initial_query, plan, text_config)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		collection, record.ResearchID, record.Status, record.InitialQuery, record.Plan, string(record.TextConfig),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Get implements SessionStore. Missing records return (nil, nil).
func (s *SQLiteSessionStore) Get(ctx context.Context, collection string, researchID string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT research_id, status, initial_query, plan, text_config
		 FROM research_sessions WHERE collection = ? AND research_id = ?`,
		collection, researchID,
	)

	var record SessionRecord
	var textConfig sql.NullString
	err := row.Scan(&record.ResearchID, &record.Status, &record.InitialQuery, &record.Plan, &textConfig)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if textConfig.Valid && textConfig.String != "" {
		record.TextConfig = json.RawMessage(textConfig.String)
	}
	return &record, nil
}

// Close implements SessionStore.
func (s *SQLiteSessionStore) Close() error {
	return s.db.Close()
}
