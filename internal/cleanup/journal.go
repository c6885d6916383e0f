// Package cleanup guarantees best-effort deletion of temporary assets
// uploaded as intermediate inputs to external transforms. Pending deletions
// are journaled in SQLite so they survive process restarts.
package cleanup

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/raditia/duet-media/internal/mediastore"
)

const schema = `
CREATE TABLE IF NOT EXISTS temp_assets (
    id TEXT PRIMARY KEY,
    public_id TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (public_id, resource_type)
);
`

// Entry is one journaled temporary asset pending deletion.
type Entry struct {
	ID        string
	PublicID  string
	Kind      mediastore.Kind
	CreatedAt time.Time
}

// Journal records temporary assets until their deletion is confirmed.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (or creates) the journal database at dsn and runs
// migrations. For in-memory use pass "file::memory:?cache=shared".
func OpenJournal(dsn string) (*Journal, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	} else if !strings.Contains(dsn, "_journal_mode") {
		dsn += "&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Add records a temporary asset. Adding the same asset twice is a no-op.
func (j *Journal) Add(publicID string, kind mediastore.Kind) error {
	_, err := j.db.Exec(`
		INSERT INTO temp_assets (id, public_id, resource_type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (public_id, resource_type) DO NOTHING`,
		uuid.New().String(), publicID, string(kind),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert temp asset: %w", err)
	}
	return nil
}

// Remove drops a journal row once its asset is confirmed gone. Removing an
// unknown asset is not an error.
func (j *Journal) Remove(publicID string, kind mediastore.Kind) error {
	_, err := j.db.Exec(
		`DELETE FROM temp_assets WHERE public_id = ? AND resource_type = ?`,
		publicID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("delete temp asset: %w", err)
	}
	return nil
}

// Pending returns all journaled assets, oldest first.
func (j *Journal) Pending() ([]Entry, error) {
	rows, err := j.db.Query(`
		SELECT id, public_id, resource_type, created_at
		FROM temp_assets ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list temp assets: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind, created string
		if err := rows.Scan(&e.ID, &e.PublicID, &kind, &created); err != nil {
			return nil, fmt.Errorf("scan temp asset: %w", err)
		}
		e.Kind = mediastore.Kind(kind)
		if ts, perr := time.Parse(time.RFC3339, created); perr == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
