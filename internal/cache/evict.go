package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Prune removes artifacts whose modification time is older than the
// retention window and reports how many were removed. Failures on single
// files are logged and skipped; only an unreadable directory is returned.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(c.s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := c.now().Add(-c.s.Retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(c.s.Dir, e.Name())
		info, err := e.Info()
		if err != nil {
			// Vanished between list and stat: another request got there first.
			if !errors.Is(err, fs.ErrNotExist) {
				c.logger.Warn("error cleaning file", "file", e.Name(), "err", err)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.logger.Warn("error cleaning file", "file", e.Name(), "err", err)
			}
			continue
		}
		removed++
		c.metrics.IncEvicted()
		c.logger.Info("cleaned up old file", "file", e.Name())
		if c.index != nil {
			if err := c.index.RemoveByPath(ctx, path); err != nil {
				c.logger.Warn("index remove failed", "path", path, "err", err)
			}
		}
	}
	return removed, nil
}
