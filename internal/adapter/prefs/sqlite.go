// Package prefs persists the narrow UI-preference contract in SQLite:
// whether the conversation panel is open and which conversation was last
// active. Nothing else is stored here; conversation content lives on the
// server.
package prefs

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"aria/internal/domain"
)

// SQLiteStore implements domain.Prefs using a single-row SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the preferences database at dbPath
// and runs the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open prefs db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate prefs db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ui_prefs (
			id                     INTEGER PRIMARY KEY CHECK (id = 1),
			panel_open             INTEGER NOT NULL DEFAULT 0,
			active_conversation_id TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements domain.Prefs. A missing row yields zero values, not an
// error; first launch has no preferences yet.
func (s *SQLiteStore) Load(ctx context.Context) (bool, string, error) {
	var panelOpen int
	var activeID string
	err := s.db.QueryRowContext(ctx,
		"SELECT panel_open, active_conversation_id FROM ui_prefs WHERE id = 1",
	).Scan(&panelOpen, &activeID)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("load prefs: %w", err)
	}
	return panelOpen != 0, activeID, nil
}

// Save implements domain.Prefs. The single row is upserted.
func (s *SQLiteStore) Save(ctx context.Context, panelOpen bool, activeConversationID string) error {
	open := 0
	if panelOpen {
		open = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ui_prefs (id, panel_open, active_conversation_id)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			panel_open             = excluded.panel_open,
			active_conversation_id = excluded.active_conversation_id
	`, open, activeConversationID)
	if err != nil {
		return fmt.Errorf("save prefs: %w", err)
	}
	return nil
}

var _ domain.Prefs = (*SQLiteStore)(nil)
