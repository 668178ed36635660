// Package snapshots manages the cache snapshot lifecycle: the catalog of
// snapshots written to disk and the HTTP surface for saving, loading and
// listing them. The catalog is what the offsite backup service reads to find
// the latest snapshot worth uploading.
package snapshots

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
)

// Entry is one cataloged snapshot file.
type Entry struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
	Uploaded  bool      `json:"uploaded"`
}

// Catalog records snapshot files in SQLite.
type Catalog struct {
	db *sql.DB
}

// NewCatalog creates the catalog, initializing its schema if needed.
func NewCatalog(db *sql.DB) (*Catalog, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id         TEXT PRIMARY KEY,
			path       TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			checksum   TEXT NOT NULL,
			created_at TEXT NOT NULL,
			uploaded   INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Record catalogs the snapshot file at path, computing its size and sha256
// checksum. Returns the new entry.
func (c *Catalog) Record(path string) (*Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot %s: %w", path, err)
	}

	checksum, err := fileChecksum(path)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:        uuid.New().String(),
		Path:      path,
		SizeBytes: info.Size(),
		Checksum:  checksum,
		CreatedAt: time.Now().UTC(),
	}

	_, err = c.db.Exec(`
		INSERT INTO snapshots (id, path, size_bytes, checksum, created_at, uploaded)
		VALUES (?, ?, ?, ?, ?, 0)
	`, entry.ID, entry.Path, entry.SizeBytes, entry.Checksum, entry.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to record snapshot: %w", err)
	}
	return entry, nil
}

// MarkUploaded flags a cataloged snapshot as uploaded offsite.
func (c *Catalog) MarkUploaded(id string) error {
	res, err := c.db.Exec(`UPDATE snapshots SET uploaded = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark snapshot uploaded: %w", err)
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("snapshot %s not found in catalog", id)
	}
	return nil
}

// Latest returns the most recently cataloged snapshot, or nil when the
// catalog is empty.
func (c *Catalog) Latest() (*Entry, error) {
	row := c.db.QueryRow(`
		SELECT id, path, size_bytes, checksum, created_at, uploaded
		FROM snapshots ORDER BY created_at DESC LIMIT 1
	`)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	return entry, nil
}

// List returns the newest entries, most recent first.
func (c *Catalog) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.Query(`
		SELECT id, path, size_bytes, checksum, created_at, uploaded
		FROM snapshots ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Prune deletes catalog rows beyond the newest keep entries and returns how
// many were removed. Files on disk are not touched; the snapshot file itself
// is continuously overwritten in place.
func (c *Catalog) Prune(keep int) (int, error) {
	res, err := c.db.Exec(`
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY created_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshot catalog: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var createdAt string
	var uploaded int
	if err := row.Scan(&entry.ID, &entry.Path, &entry.SizeBytes, &entry.Checksum, &createdAt, &uploaded); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	entry.CreatedAt = ts
	entry.Uploaded = uploaded != 0
	return &entry, nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for checksum: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
