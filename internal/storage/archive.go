// internal/storage/archive.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Archive is the local transcript store behind the memory feature flag.
// Exports are also posted to the remote save endpoint; this keeps a copy the
// facilitator can list without network access to the worker.
type Archive struct {
	db *sql.DB
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id         TEXT PRIMARY KEY,
	class_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at);
`

// OpenArchive opens (and if needed creates) the sqlite archive at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	// A single writer is plenty for session-end exports and avoids
	// SQLITE_BUSY on concurrent handler calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// ArchiveEntry is one stored transcript.
type ArchiveEntry struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Payload   string    `json:"payload"`
}

// Save stores a transcript. Saving the same session id twice overwrites,
// so a facilitator re-export after a failed upload is not an error.
func (a *Archive) Save(ctx context.Context, entry ArchiveEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, class_id, user_id, created_at, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		entry.ID, entry.ClassID, entry.UserID, entry.CreatedAt.Format(time.RFC3339Nano), entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to store transcript: %w", err)
	}

	return nil
}

// Recent returns up to n transcripts, newest first.
func (a *Archive) Recent(ctx context.Context, n int) ([]ArchiveEntry, error) {
	if n <= 0 {
		n = 20
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, class_id, user_id, created_at, payload
		 FROM transcripts ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var entries []ArchiveEntry
	for rows.Next() {
		var entry ArchiveEntry
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.ClassID, &entry.UserID, &createdAt, &entry.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			entry.CreatedAt = ts
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
