package job

import (
	"context"
	"time"
)

type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
)

// Terminal reports whether the job status can no longer change.
func (s Status) Terminal() bool { return s == StatusFinished || s == StatusError }

type ItemStatus string

const (
	ItemIdle        ItemStatus = "idle"
	ItemQueued      ItemStatus = "queued"
	ItemDownloading ItemStatus = "downloading"
	ItemConverting  ItemStatus = "converting"
	ItemDone        ItemStatus = "done"
	ItemFailed      ItemStatus = "failed"
)

// Terminal reports whether the item reached done or failed.
func (s ItemStatus) Terminal() bool { return s == ItemDone || s == ItemFailed }

type Format string

const (
	FormatMP4 Format = "mp4"
	FormatMP3 Format = "mp3"
)

type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// ConvertOptions are fixed at job creation.
type ConvertOptions struct {
	Format  Format  `json:"format"`
	Quality Quality `json:"quality"`
}

// Normalize maps unknown values to the defaults the product ships with
// (mp4/high) instead of rejecting them.
func (o ConvertOptions) Normalize() ConvertOptions {
	if o.Format != FormatMP4 && o.Format != FormatMP3 {
		o.Format = FormatMP4
	}
	if o.Quality != QualityHigh && o.Quality != QualityMedium && o.Quality != QualityLow {
		o.Quality = QualityHigh
	}
	return o
}

// Item is one selected playlist entry within a job. Index is the position in
// the original playlist; only selected indices are materialized, so the
// sequence is ordered but not necessarily contiguous.
type Item struct {
	Index        int        `json:"index"`
	Title        string     `json:"title"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	SourceRef    string     `json:"-"`
	Status       ItemStatus `json:"status"`
	Progress     int        `json:"progress"`
	Error        string     `json:"error,omitempty"`
	FilePath     string     `json:"-"`
}

// Job is one user-initiated batch download request. All records are owned by
// the Store; everything callers see is a deep copy.
type Job struct {
	ID             string         `json:"id"`
	OwnerKey       string         `json:"-"`
	PlaylistTitle  string         `json:"playlist_title"`
	Options        ConvertOptions `json:"options"`
	Items          []Item         `json:"items"`
	Status         Status         `json:"status"`
	Error          string         `json:"error,omitempty"`
	ArchivePath    string         `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"-"`
}

// PlaylistEntry is one row of playlist metadata from the extraction
// collaborator.
type PlaylistEntry struct {
	Index        int
	Title        string
	ThumbnailURL string
	SourceRef    string
}

// PlaylistInfo is the result of playlist metadata extraction.
type PlaylistInfo struct {
	Title   string
	Entries []PlaylistEntry
}

// FetchRequest describes one item's fetch/convert invocation.
type FetchRequest struct {
	SourceRef string
	Options   ConvertOptions
	DestDir   string
	// OnProgress receives percentages at a bounded rate set by the
	// collaborator; values are clamped to 0..100 by the caller.
	OnProgress func(percent int)
}

// Fetcher is the media collaborator boundary: playlist metadata extraction
// and per-item fetch/convert. Implemented by internal/fetch; tests inject
// fakes.
type Fetcher interface {
	Playlist(ctx context.Context, url string) (PlaylistInfo, error)
	Fetch(ctx context.Context, req FetchRequest) (string, error)
}
