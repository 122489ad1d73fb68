package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// frameworkKey is the session_state row holding the framework-version tag.
const frameworkKey = "framework"

// SQLiteStore implements FrameworkStore on the session_state table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// LoadFramework returns the saved tag, or "" when none has been saved.
func (s *SQLiteStore) LoadFramework(ctx context.Context) (string, error) {
	var tag string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_state WHERE key = ?`, frameworkKey).Scan(&tag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying framework version: %w", err)
	}
	return tag, nil
}

// SaveFramework stores tag, replacing any earlier value.
func (s *SQLiteStore) SaveFramework(ctx context.Context, tag string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		frameworkKey, tag, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving framework version: %w", err)
	}
	return nil
}
