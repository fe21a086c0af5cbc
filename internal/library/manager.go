// Package library keeps a sqlite ledger of the artifacts in the media cache
// and serves it over HTTP.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"

	"audiokit/internal/cache"
)

// Manager implements cache.Index on top of sqlite.
type Manager struct {
	db     *sql.DB
	logger *log.Logger
}

var _ cache.Index = (*Manager)(nil)

func NewManager(db *sql.DB, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{
		db:     db,
		logger: logger.WithPrefix("library"),
	}
	if err := m.InitTable(); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes every file recorded for id and then its rows. Files that
// are already gone are not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	paths, err := m.pathsFor(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get artifact paths: %w", err)
	}
	if len(paths) == 0 {
		return ErrNotFound
	}

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
		// Double check
		if _, err := os.Stat(p); !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("file still exists: %s", p)
		}
	}

	if err := m.deleteRows(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from db: %w", err)
	}
	m.logger.Info("deleted artifact", "id", id, "files", len(paths))
	return nil
}
