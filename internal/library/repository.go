package library

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"time"

	"audiokit/internal/cache"
)

// InitTable creates the artifacts table if it doesn't exist
func (m *Manager) InitTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT NOT NULL,
		source_url TEXT,
		path TEXT NOT NULL UNIQUE,
		size INTEGER,
		created_time DATETIME,
		last_hit DATETIME,
		hits INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_id ON artifacts(id);
	`
	_, err := m.db.Exec(query)
	return err
}

// RecordDownload stores a freshly downloaded artifact, replacing any stale
// row for the same path.
func (m *Manager) RecordDownload(ctx context.Context, a cache.Artifact) error {
	created := a.ModTime
	if created.IsZero() {
		created = time.Now()
	}
	query := `
	INSERT INTO artifacts (id, source_url, path, size, created_time, hits)
	VALUES (?, ?, ?, ?, ?, 0)
	ON CONFLICT(path) DO UPDATE SET
		id = excluded.id,
		source_url = excluded.source_url,
		size = excluded.size,
		created_time = excluded.created_time,
		last_hit = NULL,
		hits = 0`
	_, err := m.db.ExecContext(ctx, query, a.ID, a.SourceURL, a.Path, a.Size, created.UTC())
	return err
}

// RecordHit bumps the hit counter of every row for id and reports whether
// any row existed.
func (m *Manager) RecordHit(ctx context.Context, id string) (bool, error) {
	query := `UPDATE artifacts SET hits = hits + 1, last_hit = ? WHERE id = ?`
	res, err := m.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveByPath forgets the row for an artifact removed from disk.
func (m *Manager) RemoveByPath(ctx context.Context, path string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM artifacts WHERE path = ?`, path)
	return err
}

func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	query := `SELECT id, source_url, path, size, created_time, last_hit, hits FROM artifacts ORDER BY created_time DESC, id`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the most recent row for id.
func (m *Manager) Get(ctx context.Context, id string) (*Entry, error) {
	query := `SELECT id, source_url, path, size, created_time, last_hit, hits FROM artifacts WHERE id = ? ORDER BY created_time DESC LIMIT 1`
	e, err := scanEntry(m.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (m *Manager) deleteRows(ctx context.Context, id string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	return err
}

func (m *Manager) pathsFor(ctx context.Context, id string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT path FROM artifacts WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var source sql.NullString
	var size sql.NullInt64
	var lastHit sql.NullTime
	if err := s.Scan(&e.ID, &source, &e.Path, &size, &e.CreatedTime, &lastHit, &e.Hits); err != nil {
		return Entry{}, err
	}
	e.SourceURL = source.String
	e.Size = size.Int64
	e.File = filepath.Base(e.Path)
	if lastHit.Valid {
		t := lastHit.Time
		e.LastHit = &t
	}
	return e, nil
}
