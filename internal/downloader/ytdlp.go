package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	playlist "audiokit/internal/m3u8"
)

// ErrNoAudioFormat is returned when a video exposes no audio-only m4a stream.
var ErrNoAudioFormat = errors.New("no audio only format found")

// Options is the option bag handed to yt-dlp for a single download.
type Options struct {
	ExtractAudio bool
	AudioFormat  string
	Output       string // output template, e.g. dir/<id>.%(ext)s
	NoPlaylist   bool
	Retries      int
	MaxFilesize  string // yt-dlp size syntax, e.g. "100m"
	Verbose      bool
}

// Args renders the options as yt-dlp command line flags.
func (o Options) Args() []string {
	args := []string{}
	if o.ExtractAudio {
		args = append(args, "--extract-audio")
	}
	if o.AudioFormat != "" {
		args = append(args, "--audio-format", o.AudioFormat)
	}
	if o.Output != "" {
		args = append(args, "--output", o.Output)
	}
	if o.NoPlaylist {
		args = append(args, "--no-playlist")
	}
	if o.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(o.Retries))
	}
	if o.MaxFilesize != "" {
		args = append(args, "--max-filesize", o.MaxFilesize)
	}
	if o.Verbose {
		args = append(args, "--verbose")
	}
	return args
}

// Format is the subset of a yt-dlp format entry we read.
type Format struct {
	FormatID    string `json:"format_id"`
	URL         string `json:"url"`
	ManifestURL string `json:"manifest_url"`
	Ext         string `json:"ext"`
	Resolution  string `json:"resolution"`
	Protocol    string `json:"protocol"`
	ACodec      string `json:"acodec"`
}

// VideoInfo is the subset of `yt-dlp --dump-single-json` output we read.
type VideoInfo struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Duration float64  `json:"duration"`
	Formats  []Format `json:"formats"`
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// YTDLP drives the yt-dlp binary.
type YTDLP struct {
	Path    string
	Timeout time.Duration
	Client  *http.Client
	logger  *log.Logger
	run     runFunc
}

func NewYTDLP(path string, timeout time.Duration, logger *log.Logger) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &YTDLP{
		Path:    path,
		Timeout: timeout,
		Client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.WithPrefix("ytdlp"),
		run:     runCommand,
	}
}

// Download fetches sourceURL and writes the artifact according to opts.
func (y *YTDLP) Download(ctx context.Context, sourceURL string, opts Options) error {
	args := append(opts.Args(), "--", sourceURL)
	y.logger.Debug("running download", "url", sourceURL, "args", strings.Join(args, " "))
	if _, err := y.exec(ctx, args...); err != nil {
		return fmt.Errorf("yt-dlp download: %w", err)
	}
	return nil
}

// Info returns the metadata yt-dlp reports for sourceURL.
func (y *YTDLP) Info(ctx context.Context, sourceURL string) (*VideoInfo, error) {
	out, err := y.exec(ctx,
		"--dump-single-json",
		"--prefer-free-formats",
		"--add-header", "referer:youtube.com",
		"--add-header", "user-agent:googlebot",
		"--", sourceURL,
	)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp info: %w", err)
	}
	var info VideoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp info: %w", err)
	}
	return &info, nil
}

// ResolveAudioURL returns a directly playable audio-only stream URL for sourceURL.
func (y *YTDLP) ResolveAudioURL(ctx context.Context, sourceURL string) (string, error) {
	info, err := y.Info(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	f, ok := PickAudioFormat(info.Formats)
	if !ok {
		return "", ErrNoAudioFormat
	}
	if !f.IsHLS() {
		y.logger.Info("audio url retrieved", "id", info.ID, "format", f.FormatID)
		return f.URL, nil
	}
	manifest := f.ManifestURL
	if manifest == "" {
		manifest = f.URL
	}
	return y.resolveHLS(ctx, manifest)
}

func (y *YTDLP) resolveHLS(ctx context.Context, manifestURL string) (string, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return "", fmt.Errorf("parse manifest url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := y.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch manifest: bad status code: %d", resp.StatusCode)
	}
	pl, kind, err := playlist.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse manifest: %w", err)
	}
	return playlist.SelectAudio(pl, kind, base)
}

// PickAudioFormat scans formats from the end (yt-dlp lists best last) for an
// audio-only m4a stream.
func PickAudioFormat(formats []Format) (Format, bool) {
	for i := len(formats) - 1; i >= 0; i-- {
		f := formats[i]
		if f.Resolution == "audio only" && f.Ext == "m4a" && f.URL != "" {
			return f, true
		}
	}
	return Format{}, false
}

// IsHLS reports whether the format is delivered as an HLS playlist.
func (f Format) IsHLS() bool {
	return strings.HasPrefix(f.Protocol, "m3u8")
}

func (y *YTDLP) exec(ctx context.Context, args ...string) ([]byte, error) {
	if y.Timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, y.Timeout)
			defer cancel()
		}
	}
	return y.run(ctx, y.Path, args...)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out", name)
		}
		return nil, fmt.Errorf("%s cancelled: %w", name, ctx.Err())
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// lastLine keeps error messages short; yt-dlp prints its reason last.
func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
