package library

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("artifact not found")

// Entry is the ledger row for one cached artifact.
type Entry struct {
	ID          string     `json:"id"`
	SourceURL   string     `json:"source_url"`
	Path        string     `json:"-"`
	File        string     `json:"file"`
	Size        int64      `json:"size"`
	CreatedTime time.Time  `json:"created_time"`
	LastHit     *time.Time `json:"last_hit,omitempty"`
	Hits        int        `json:"hits"`
}
