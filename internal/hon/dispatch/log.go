package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one command_log row.
type Entry struct {
	ID            int64     `json:"id"`
	MAC           string    `json:"mac"`
	Command       string    `json:"command"`
	Program       string    `json:"program,omitempty"`
	TransactionID string    `json:"transaction_id"`
	ResultCode    string    `json:"result_code"`
	Attempts      int       `json:"attempts"`
	Error         string    `json:"error,omitempty"`
	SentAt        time.Time `json:"sent_at"`
}

// Succeeded reports whether the API accepted the command.
func (e Entry) Succeeded() bool {
	return e.Error == "" && e.ResultCode == "0"
}

// Recorder stores dispatched commands.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// SQLiteLog implements Recorder on the command_log table.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog creates a command log on an open, migrated database.
func NewSQLiteLog(db *sql.DB) *SQLiteLog {
	return &SQLiteLog{db: db}
}

// Record appends e.
func (l *SQLiteLog) Record(ctx context.Context, e Entry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO command_log (mac, command, program, transaction_id, result_code, attempts, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.MAC, e.Command, e.Program, e.TransactionID, e.ResultCode, e.Attempts, e.Error,
		e.SentAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting command log entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for mac, newest first.
func (l *SQLiteLog) Recent(ctx context.Context, mac string, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, mac, command, program, transaction_id, result_code, attempts, error, sent_at
		FROM command_log
		WHERE mac = ?
		ORDER BY id DESC
		LIMIT ?`, mac, limit)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			sentAt string
		)
		if err := rows.Scan(&e.ID, &e.MAC, &e.Command, &e.Program, &e.TransactionID,
			&e.ResultCode, &e.Attempts, &e.Error, &sentAt); err != nil {
			return nil, fmt.Errorf("scanning command log entry: %w", err)
		}
		if e.SentAt, err = time.Parse(time.RFC3339, sentAt); err != nil {
			return nil, fmt.Errorf("parsing sent_at %q: %w", sentAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}
	return entries, nil
}
