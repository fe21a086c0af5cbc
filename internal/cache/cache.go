// Package cache keeps downloaded audio on local disk, keyed by the content
// identifier found in the source URL.
//
// An artifact is downloaded at most once per identifier while it lives in
// the cache directory; every Acquire call first sweeps artifacts older than
// the retention window.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"audiokit/internal/downloader"
	"audiokit/internal/metrics"
)

// Downloader performs the network fetch for a cache miss.
type Downloader interface {
	Download(ctx context.Context, sourceURL string, opts downloader.Options) error
}

// Index is notified about artifact lifecycle events. Its errors are logged
// and never fail an acquisition.
type Index interface {
	RecordDownload(ctx context.Context, a Artifact) error
	// RecordHit reports whether any record for id existed.
	RecordHit(ctx context.Context, id string) (bool, error)
	RemoveByPath(ctx context.Context, path string) error
}

// Artifact is a downloaded audio file in the cache directory.
type Artifact struct {
	ID        string
	SourceURL string
	Path      string
	Size      int64
	ModTime   time.Time
}

// Ext returns the artifact's format extension without the dot.
func (a Artifact) Ext() string {
	return strings.TrimPrefix(filepath.Ext(a.Path), ".")
}

type Settings struct {
	Dir            string
	Retention      time.Duration
	AudioFormat    string
	MaxFilesize    string
	ToolRetries    int // passed through to the downloader
	Attempts       int
	RetryDelay     time.Duration
	VerifyAttempts int
	VerifyDelay    time.Duration
	// Dedupe makes concurrent misses for one identifier share a single download.
	Dedupe bool
	// StrictMatch requires <id>.<ext> instead of substring containment.
	StrictMatch bool
}

// DefaultSettings returns the stock policy for dir.
func DefaultSettings(dir string) Settings {
	return Settings{
		Dir:            dir,
		Retention:      time.Hour,
		AudioFormat:    "mp3",
		MaxFilesize:    "100m",
		ToolRetries:    3,
		Attempts:       3,
		RetryDelay:     2 * time.Second,
		VerifyAttempts: 3,
		VerifyDelay:    time.Second,
	}
}

type Option func(*Cache)

func WithIndex(idx Index) Option {
	return func(c *Cache) { c.index = idx }
}

func WithMetrics(m metrics.Cache) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l.WithPrefix("cache")
		}
	}
}

type Cache struct {
	s       Settings
	dl      Downloader
	index   Index
	metrics metrics.Cache
	logger  *log.Logger
	group   singleflight.Group
	now     func() time.Time
	open    func(name string) (*os.File, error)
}

// New builds a cache over s.Dir. Zero-valued policy fields take their defaults.
func New(s Settings, dl Downloader, opts ...Option) *Cache {
	d := DefaultSettings(s.Dir)
	if s.Retention <= 0 {
		s.Retention = d.Retention
	}
	if s.AudioFormat == "" {
		s.AudioFormat = d.AudioFormat
	}
	if s.MaxFilesize == "" {
		s.MaxFilesize = d.MaxFilesize
	}
	if s.Attempts < 1 {
		s.Attempts = d.Attempts
	}
	if s.VerifyAttempts < 1 {
		s.VerifyAttempts = d.VerifyAttempts
	}
	c := &Cache{
		s:       s,
		dl:      dl,
		metrics: metrics.Noop{},
		logger:  log.Default().WithPrefix("cache"),
		now:     time.Now,
		open:    os.Open,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.s.Dir
}

// Acquire returns a local path to the audio artifact for sourceURL,
// downloading it on a cache miss.
func (c *Cache) Acquire(ctx context.Context, sourceURL string) (string, error) {
	path, hit, err := c.acquire(ctx, sourceURL)
	switch {
	case err != nil:
		c.metrics.IncAcquire("error")
		c.logger.Error("acquire failed", "url", sourceURL, "err", err)
	case hit:
		c.metrics.IncAcquire("hit")
	default:
		c.metrics.IncAcquire("miss")
	}
	return path, err
}

func (c *Cache) acquire(ctx context.Context, sourceURL string) (string, bool, error) {
	if err := c.ensureDir(); err != nil {
		return "", false, fmt.Errorf("prepare cache dir: %w", err)
	}
	if _, err := c.Prune(ctx); err != nil {
		c.logger.Warn("cleanup failed", "err", err)
	}

	id, ok := ExtractID(sourceURL)
	if !ok {
		return "", false, fmt.Errorf("extract id from %q: %w", sourceURL, ErrInvalidReference)
	}
	c.logger.Info("processing video", "id", id)

	path, err := c.find(id)
	if err != nil {
		return "", false, fmt.Errorf("list cache dir: %w", err)
	}
	if path != "" {
		c.logger.Info("found existing file", "id", id, "path", path)
		c.recordHit(ctx, id, sourceURL, path)
		return path, true, nil
	}

	if !c.s.Dedupe {
		path, err := c.fetch(ctx, id, sourceURL)
		return path, false, err
	}
	ch := c.group.DoChan(id, func() (any, error) {
		// A download that finished after our listing already satisfies us.
		if p, err := c.find(id); err == nil && p != "" {
			return p, nil
		}
		// Shared work must not die with whichever caller started it.
		// The downloader still applies its own timeout.
		return c.fetch(context.WithoutCancel(ctx), id, sourceURL)
	})
	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("acquire %s: %w", id, ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("joined in-flight download", "id", id)
		}
		if res.Err != nil {
			return "", false, res.Err
		}
		return res.Val.(string), false, nil
	}
}

// Lookup returns the cached artifact for id without downloading.
func (c *Cache) Lookup(id string) (Artifact, bool, error) {
	path, err := c.find(id)
	if err != nil || path == "" {
		return Artifact{}, false, err
	}
	a, err := artifactAt(id, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, err
	}
	return a, true, nil
}

func artifactAt(id, path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{ID: id, Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (c *Cache) fetch(ctx context.Context, id, sourceURL string) (string, error) {
	opts := downloader.Options{
		ExtractAudio: true,
		AudioFormat:  c.s.AudioFormat,
		Output:       filepath.Join(c.s.Dir, id+".%(ext)s"),
		NoPlaylist:   true,
		Retries:      c.s.ToolRetries,
		MaxFilesize:  c.s.MaxFilesize,
		Verbose:      c.logger.GetLevel() <= log.DebugLevel,
	}

	start := c.now()
	c.logger.Info("starting download", "id", id)
	if err := c.download(ctx, id, sourceURL, opts); err != nil {
		return "", err
	}
	c.metrics.ObserveDownload(c.now().Sub(start).Seconds())
	c.logger.Info("download completed", "id", id, "took", c.now().Sub(start).Round(time.Millisecond))

	path, err := c.find(id)
	if err != nil {
		return "", fmt.Errorf("list cache dir after download: %w", err)
	}
	if path == "" {
		c.logger.Error("download reported success but produced no file", "id", id, "dir", c.s.Dir)
		return "", fmt.Errorf("locate %s: %w", id, ErrArtifactMissing)
	}

	if err := c.waitReadable(ctx, path); err != nil {
		return "", fmt.Errorf("verify %s: %w", path, err)
	}
	c.logger.Info("final audio file path", "id", id, "path", path)
	c.recordDownload(ctx, id, sourceURL, path)
	return path, nil
}

func (c *Cache) download(ctx context.Context, id, sourceURL string, opts downloader.Options) error {
	var lastErr error
	for attempt := 1; attempt <= c.s.Attempts; attempt++ {
		c.logger.Info("download attempt", "id", id, "attempt", attempt)
		lastErr = c.dl.Download(ctx, sourceURL, opts)
		if lastErr == nil {
			c.metrics.IncDownloadAttempt("success")
			return nil
		}
		c.metrics.IncDownloadAttempt("failure")
		c.logger.Warn("download attempt failed", "id", id, "attempt", attempt, "err", lastErr)

		if attempt < c.s.Attempts {
			if err := sleep(ctx, c.s.RetryDelay); err != nil {
				return fmt.Errorf("download %s: %w", id, err)
			}
		}
	}
	return &DownloadError{ID: id, Attempts: c.s.Attempts, Err: lastErr}
}

func (c *Cache) waitReadable(ctx context.Context, path string) error {
	for attempt := 1; ; attempt++ {
		f, err := c.open(path)
		if err == nil {
			f.Close()
			return nil
		}
		if attempt >= c.s.VerifyAttempts {
			return fmt.Errorf("%w after %d checks: %v", ErrArtifactUnreadable, attempt, err)
		}
		c.logger.Debug("file not readable yet, retrying", "path", path, "delay", c.s.VerifyDelay)
		if err := sleep(ctx, c.s.VerifyDelay); err != nil {
			return err
		}
	}
}

// find returns the first (lexicographic) artifact matching id, or "".
func (c *Cache) find(id string) (string, error) {
	entries, err := os.ReadDir(c.s.Dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if c.matches(e.Name(), id) {
			return filepath.Join(c.s.Dir, e.Name()), nil
		}
	}
	return "", nil
}

func (c *Cache) matches(name, id string) bool {
	if isFragment(name) {
		return false
	}
	if c.s.StrictMatch {
		return strings.TrimSuffix(name, filepath.Ext(name)) == id
	}
	return strings.Contains(name, id)
}

// isFragment reports names yt-dlp uses for downloads still in progress.
func isFragment(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".ytdl") ||
		strings.Contains(name, ".temp.")
}

func (c *Cache) ensureDir() error {
	return os.MkdirAll(c.s.Dir, 0o755)
}

func (c *Cache) recordHit(ctx context.Context, id, sourceURL, path string) {
	if c.index == nil {
		return
	}
	known, err := c.index.RecordHit(ctx, id)
	if err != nil {
		c.logger.Warn("index hit failed", "id", id, "err", err)
		return
	}
	if known {
		return
	}
	// The file predates the index (wiped data dir or a failed insert).
	c.logger.Info("indexing untracked artifact", "id", id, "path", path)
	c.recordDownload(ctx, id, sourceURL, path)
	if _, err := c.index.RecordHit(ctx, id); err != nil {
		c.logger.Warn("index hit failed", "id", id, "err", err)
	}
}

func (c *Cache) recordDownload(ctx context.Context, id, sourceURL, path string) {
	if c.index == nil {
		return
	}
	a, err := artifactAt(id, path)
	if err != nil {
		a = Artifact{ID: id, Path: path}
	}
	a.SourceURL = sourceURL
	if err := c.index.RecordDownload(ctx, a); err != nil {
		c.logger.Warn("index record failed", "id", id, "err", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
