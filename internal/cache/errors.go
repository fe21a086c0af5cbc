package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference means the URL carries no recognizable content identifier.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrDownloadFailed matches any *DownloadError.
	ErrDownloadFailed = errors.New("download failed")
	// ErrArtifactMissing means the downloader reported success but no matching file appeared.
	ErrArtifactMissing = errors.New("downloaded artifact not found")
	// ErrArtifactUnreadable means the artifact exists but could not be opened for reading.
	ErrArtifactUnreadable = errors.New("artifact unreadable")
)

// DownloadError reports that every download attempt failed.
type DownloadError struct {
	ID       string
	Attempts int
	Err      error // cause of the last attempt
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempts: %v", e.ID, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Is(target error) bool { return target == ErrDownloadFailed }
