package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"

	"audiokit/internal/cache"
)

const multipartMemory = 32 << 20

var (
	errNoMedia     = errors.New("No file uploaded")
	errUnavailable = errors.New("service not configured")
)

type uploadError struct {
	err error
}

func (e *uploadError) Error() string {
	var tooLarge *http.MaxBytesError
	if errors.As(e.err, &tooLarge) || strings.Contains(e.err.Error(), "request body too large") {
		return "File too large"
	}
	return e.err.Error()
}

func (e *uploadError) Unwrap() error { return e.err }

// openMedia returns the audio for a request: a single multipart "file" part,
// or the artifact cached for a "url" form field.
func (s *Server) openMedia(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.UploadLimit)
	if err := parseForm(r); err != nil {
		return nil, &uploadError{err: err}
	}

	if r.MultipartForm != nil {
		files := r.MultipartForm.File["file"]
		switch {
		case len(files) > 1:
			return nil, &uploadError{err: errors.New("Too many files")}
		case len(files) == 1:
			f, err := files[0].Open()
			if err != nil {
				return nil, &uploadError{err: err}
			}
			return f, nil
		}
	}

	src := strings.TrimSpace(r.FormValue("url"))
	if src == "" {
		return nil, errNoMedia
	}
	if s.deps.Cache == nil {
		return nil, fmt.Errorf("media download: %w", errUnavailable)
	}
	path, err := s.deps.Cache.Acquire(r.Context(), src)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, cache.ErrArtifactUnreadable)
	}
	return f, nil
}

func parseForm(r *http.Request) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}
