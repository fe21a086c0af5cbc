package cache

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"audiokit/internal/downloader"
)

const testID = "dQw4w9WgXcQ"

// fakeDownloader writes <id>.mp3 by expanding the output template, after
// failing the first failures calls.
type fakeDownloader struct {
	calls    atomic.Int32
	failures int32
	noFile   bool
	delay    time.Duration
	mu       sync.Mutex
	times    []time.Time
	lastOpts downloader.Options
}

func (f *fakeDownloader) Download(ctx context.Context, sourceURL string, opts downloader.Options) error {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.times = append(f.times, time.Now())
	f.lastOpts = opts
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if n <= f.failures {
		return errors.New("HTTP Error 503")
	}
	if f.noFile {
		return nil
	}
	path := strings.Replace(opts.Output, "%(ext)s", opts.AudioFormat, 1)
	return os.WriteFile(path, []byte("ID3"), 0o644)
}

func fastSettings(dir string) Settings {
	s := DefaultSettings(dir)
	s.RetryDelay = 20 * time.Millisecond
	s.VerifyDelay = 5 * time.Millisecond
	return s
}

func TestExtractID(t *testing.T) {
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", testID, true},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", testID, true},
		{"https://youtu.be/dQw4w9WgXcQ", testID, true},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ?autoplay=1", testID, true},
		{"https://www.youtube.com/shorts/a_B-c1D2e3F", "a_B-c1D2e3F", true},
		{"https://www.youtube.com/watch?v=short", "", false},
		{"not a url", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractID(tt.url)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ExtractID(%q) = %q, %v; want %q, %v", tt.url, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAcquire_DownloadsThenHits(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "temp_audio")
	dl := &fakeDownloader{}
	c := New(fastSettings(dir), dl)

	url := "https://www.youtube.com/watch?v=" + testID
	path, err := c.Acquire(context.Background(), url)
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if want := filepath.Join(dir, testID+".mp3"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	again, err := c.Acquire(context.Background(), "https://youtu.be/"+testID)
	if err != nil {
		t.Fatalf("second Acquire error: %v", err)
	}
	if again != path {
		t.Errorf("second path = %q, want %q", again, path)
	}
	if got := dl.calls.Load(); got != 1 {
		t.Errorf("download calls = %d, want 1", got)
	}
}

func TestAcquire_DownloadOptions(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{}
	if _, err := New(fastSettings(dir), dl).Acquire(context.Background(), "https://youtu.be/"+testID); err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	opts := dl.lastOpts
	if !opts.ExtractAudio || !opts.NoPlaylist {
		t.Error("expected audio extraction without playlist expansion")
	}
	if opts.AudioFormat != "mp3" || opts.MaxFilesize != "100m" || opts.Retries != 3 {
		t.Errorf("opts = %+v", opts)
	}
	if want := filepath.Join(dir, testID+".%(ext)s"); opts.Output != want {
		t.Errorf("Output = %q, want %q", opts.Output, want)
	}
}

func TestAcquire_InvalidReference(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	dl := &fakeDownloader{}
	_, err := New(fastSettings(dir), dl).Acquire(context.Background(), "https://example.com/nothing")
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("error = %v, want ErrInvalidReference", err)
	}
	if dl.calls.Load() != 0 {
		t.Error("downloader must not be called")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("cache dir should exist: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("cache dir has %d entries, want 0", len(entries))
	}
}

func TestAcquire_EvictsByAge(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "AAAAAAAAAAA.mp3")
	fresh := filepath.Join(dir, "BBBBBBBBBBB.mp3")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	if err := os.Chtimes(old, now.Add(-2*time.Hour), now.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(fresh, now.Add(-30*time.Minute), now.Add(-30*time.Minute)); err != nil {
		t.Fatal(err)
	}

	if _, err := New(fastSettings(dir), &fakeDownloader{}).Acquire(context.Background(), "https://youtu.be/"+testID); err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("2h old artifact should be evicted")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("30m old artifact should be retained")
	}
}

func TestAcquire_DownloadFailedAfterRetries(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{failures: 3}
	s := fastSettings(dir)
	s.RetryDelay = 50 * time.Millisecond

	_, err := New(s, dl).Acquire(context.Background(), "https://youtu.be/"+testID)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("error = %v, want ErrDownloadFailed", err)
	}
	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("error %T is not a *DownloadError", err)
	}
	if de.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", de.Attempts)
	}
	if de.Err == nil || !strings.Contains(de.Err.Error(), "503") {
		t.Errorf("last cause = %v", de.Err)
	}
	if got := dl.calls.Load(); got != 3 {
		t.Errorf("download calls = %d, want 3", got)
	}
	for i := 1; i < len(dl.times); i++ {
		if gap := dl.times[i].Sub(dl.times[i-1]); gap < s.RetryDelay {
			t.Errorf("gap between attempt %d and %d = %v, want >= %v", i, i+1, gap, s.RetryDelay)
		}
	}
}

func TestAcquire_RecoversFromTransientFailure(t *testing.T) {
	dl := &fakeDownloader{failures: 2}
	path, err := New(fastSettings(t.TempDir()), dl).Acquire(context.Background(), "https://youtu.be/"+testID)
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if path == "" || dl.calls.Load() != 3 {
		t.Errorf("path = %q after %d calls", path, dl.calls.Load())
	}
}

func TestAcquire_ArtifactMissing(t *testing.T) {
	dl := &fakeDownloader{noFile: true}
	_, err := New(fastSettings(t.TempDir()), dl).Acquire(context.Background(), "https://youtu.be/"+testID)
	if !errors.Is(err, ErrArtifactMissing) {
		t.Fatalf("error = %v, want ErrArtifactMissing", err)
	}
	if dl.calls.Load() != 1 {
		t.Errorf("missing artifact must not be retried, got %d calls", dl.calls.Load())
	}
}

func TestAcquire_ArtifactUnreadable(t *testing.T) {
	dir := t.TempDir()
	c := New(fastSettings(dir), &fakeDownloader{})
	var opens atomic.Int32
	c.open = func(name string) (*os.File, error) {
		opens.Add(1)
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}

	_, err := c.Acquire(context.Background(), "https://youtu.be/"+testID)
	if !errors.Is(err, ErrArtifactUnreadable) {
		t.Fatalf("error = %v, want ErrArtifactUnreadable", err)
	}
	if opens.Load() != 3 {
		t.Errorf("readability checks = %d, want 3", opens.Load())
	}
	if _, err := os.Stat(filepath.Join(dir, testID+".mp3")); err != nil {
		t.Error("unreadable artifact should be left on disk")
	}
}

func TestAcquire_BecomesReadable(t *testing.T) {
	c := New(fastSettings(t.TempDir()), &fakeDownloader{})
	var opens atomic.Int32
	c.open = func(name string) (*os.File, error) {
		if opens.Add(1) < 3 {
			return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
		}
		return os.Open(name)
	}
	if _, err := c.Acquire(context.Background(), "https://youtu.be/"+testID); err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
}

func TestAcquire_ContextCancelledDuringBackoff(t *testing.T) {
	dl := &fakeDownloader{failures: 3}
	s := fastSettings(t.TempDir())
	s.RetryDelay = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(s, dl).Acquire(ctx, "https://youtu.be/"+testID)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if dl.calls.Load() != 1 {
		t.Errorf("download calls = %d, want 1", dl.calls.Load())
	}
}

func TestAcquire_ConcurrentMisses(t *testing.T) {
	for _, dedupe := range []bool{false, true} {
		name := "independent"
		if dedupe {
			name = "deduplicated"
		}
		t.Run(name, func(t *testing.T) {
			dl := &fakeDownloader{delay: 30 * time.Millisecond}
			s := fastSettings(t.TempDir())
			s.Dedupe = dedupe
			c := New(s, dl)

			const n = 4
			paths := make([]string, n)
			errs := make([]error, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					paths[i], errs[i] = c.Acquire(context.Background(), "https://youtu.be/"+testID)
				}(i)
			}
			wg.Wait()

			for i := 0; i < n; i++ {
				if errs[i] != nil {
					t.Fatalf("call %d: %v", i, errs[i])
				}
				if paths[i] != paths[0] {
					t.Errorf("call %d path = %q, want %q", i, paths[i], paths[0])
				}
				f, err := os.Open(paths[i])
				if err != nil {
					t.Fatalf("path %q not readable: %v", paths[i], err)
				}
				f.Close()
			}
			if dedupe && dl.calls.Load() != 1 {
				t.Errorf("deduplicated download calls = %d, want 1", dl.calls.Load())
			}
		})
	}
}

func TestAcquire_SharedDownloadOutlivesCancelledCaller(t *testing.T) {
	dl := &fakeDownloader{delay: 100 * time.Millisecond}
	s := fastSettings(t.TempDir())
	s.Dedupe = true
	c := New(s, dl)
	url := "https://youtu.be/" + testID

	first, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Acquire(first, url)
		firstErr <- err
	}()
	for dl.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		path string
		err  error
	}
	second := make(chan result, 1)
	go func() {
		p, err := c.Acquire(context.Background(), url)
		second <- result{p, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}
	res := <-second
	if res.err != nil {
		t.Fatalf("live caller error: %v", res.err)
	}
	f, err := os.Open(res.path)
	if err != nil {
		t.Fatalf("path %q not readable: %v", res.path, err)
	}
	f.Close()
	if dl.calls.Load() != 1 {
		t.Errorf("download calls = %d, want 1", dl.calls.Load())
	}
}

func TestAcquire_VerboseFollowsLogLevel(t *testing.T) {
	for _, level := range []log.Level{log.InfoLevel, log.DebugLevel} {
		dl := &fakeDownloader{}
		logger := log.New(io.Discard)
		logger.SetLevel(level)
		c := New(fastSettings(t.TempDir()), dl, WithLogger(logger))
		if _, err := c.Acquire(context.Background(), "https://youtu.be/"+testID); err != nil {
			t.Fatalf("Acquire error: %v", err)
		}
		if want := level == log.DebugLevel; dl.lastOpts.Verbose != want {
			t.Errorf("level %v: Verbose = %v, want %v", level, dl.lastOpts.Verbose, want)
		}
	}
}

func TestFind_Matching(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"xx" + testID + ".webm.part", // in-progress fragment
		testID + ".m4a",
		testID + ".mp3",
		"prefix-" + testID + ".opus",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	loose := New(Settings{Dir: dir}, nil)
	got, err := loose.find(testID)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, testID+".m4a"); got != want {
		t.Errorf("substring match = %q, want lexicographically first %q", got, want)
	}

	// Only the prefixed file remains after removing the exact stems.
	os.Remove(filepath.Join(dir, testID+".m4a"))
	os.Remove(filepath.Join(dir, testID+".mp3"))
	if got, _ := loose.find(testID); !strings.HasSuffix(got, "prefix-"+testID+".opus") {
		t.Errorf("substring match should accept prefixed names, got %q", got)
	}
	strict := New(Settings{Dir: dir, StrictMatch: true}, nil)
	if got, _ := strict.find(testID); got != "" {
		t.Errorf("strict match = %q, want none", got)
	}
}

type recordingIndex struct {
	mu        sync.Mutex
	downloads []Artifact
	hits      []string
	removed   []string
}

func (r *recordingIndex) RecordDownload(_ context.Context, a Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads = append(r.downloads, a)
	return nil
}

func (r *recordingIndex) RecordHit(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, id)
	for _, a := range r.downloads {
		if a.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *recordingIndex) RemoveByPath(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
	return errors.New("index offline")
}

func TestAcquire_NotifiesIndex(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "AAAAAAAAAAA.mp3")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-3 * time.Hour)
	os.Chtimes(stale, past, past)

	idx := &recordingIndex{}
	c := New(fastSettings(dir), &fakeDownloader{}, WithIndex(idx))
	url := "https://youtu.be/" + testID
	if _, err := c.Acquire(context.Background(), url); err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if _, err := c.Acquire(context.Background(), url); err != nil {
		t.Fatalf("Acquire error: %v", err)
	}

	if len(idx.downloads) != 1 || idx.downloads[0].ID != testID || idx.downloads[0].SourceURL != url {
		t.Errorf("downloads = %+v", idx.downloads)
	}
	if idx.downloads[0].Size != 3 || idx.downloads[0].Ext() != "mp3" {
		t.Errorf("artifact = %+v", idx.downloads[0])
	}
	if len(idx.hits) != 1 {
		t.Errorf("hits = %v, want one", idx.hits)
	}
	// Index failures are logged, not returned.
	if len(idx.removed) != 1 || idx.removed[0] != stale {
		t.Errorf("removed = %v", idx.removed)
	}
}

func TestAcquire_IndexesUntrackedHit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, testID+".mp3")
	if err := os.WriteFile(path, []byte("ID3x"), 0o644); err != nil {
		t.Fatal(err)
	}
	idx := &recordingIndex{}
	dl := &fakeDownloader{}
	c := New(fastSettings(dir), dl, WithIndex(idx))
	url := "https://www.youtube.com/watch?v=" + testID
	got, err := c.Acquire(context.Background(), url)
	if err != nil || got != path {
		t.Fatalf("Acquire = %q, %v", got, err)
	}
	if dl.calls.Load() != 0 {
		t.Errorf("cache hit should not download")
	}
	if len(idx.downloads) != 1 || idx.downloads[0].Path != path || idx.downloads[0].Size != 4 || idx.downloads[0].SourceURL != url {
		t.Errorf("downloads = %+v, want the existing file recorded", idx.downloads)
	}
	if len(idx.hits) != 2 {
		t.Errorf("hits = %v, want the hit counted after recording", idx.hits)
	}
}

func TestPrune_MissingDir(t *testing.T) {
	c := New(Settings{Dir: filepath.Join(t.TempDir(), "absent")}, nil)
	n, err := c.Prune(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Prune = %d, %v; want 0, nil", n, err)
	}
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	c := New(fastSettings(dir), &fakeDownloader{})
	if _, ok, err := c.Lookup(testID); ok || err != nil {
		t.Fatalf("Lookup before download = %v, %v", ok, err)
	}
	if _, err := c.Acquire(context.Background(), "https://youtu.be/"+testID); err != nil {
		t.Fatal(err)
	}
	a, ok, err := c.Lookup(testID)
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if a.Size != 3 || a.Ext() != "mp3" {
		t.Errorf("artifact = %+v", a)
	}
}
