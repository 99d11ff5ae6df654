package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/PravakarDas/YT-Playlist-Downloader/internal/job"
)

// progressInterval bounds how often yt-dlp reports progress back to us, which
// in turn bounds the store update rate per item.
const progressInterval = 500 * time.Millisecond

// Client implements job.Fetcher on top of the yt-dlp binary.
type Client struct{}

func New() *Client { return &Client{} }

// EnsureInstalled downloads the yt-dlp binary if it is not already present.
func EnsureInstalled(ctx context.Context) {
	ytdlp.MustInstall(ctx, nil)
}

// Playlist extracts ordered playlist metadata without downloading anything.
// A bare video URL yields a single-entry playlist.
func (c *Client) Playlist(ctx context.Context, url string) (job.PlaylistInfo, error) {
	dl := ytdlp.New().
		Quiet().
		SkipDownload().
		FlatPlaylist().
		DumpSingleJSON()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return job.PlaylistInfo{}, fmt.Errorf("extract playlist: %w", err)
	}
	infos, err := result.GetExtractedInfo()
	if err != nil || len(infos) == 0 {
		return job.PlaylistInfo{}, fmt.Errorf("parse playlist info: %w", err)
	}
	root := infos[0]

	if root.Type != "playlist" {
		title := strOrDefault(root.Title, "Video")
		return job.PlaylistInfo{
			Title: title,
			Entries: []job.PlaylistEntry{{
				Index:        1,
				Title:        title,
				ThumbnailURL: thumbnailURL(root.ID),
				SourceRef:    watchURL(root.ID, url),
			}},
		}, nil
	}

	info := job.PlaylistInfo{Title: strOrDefault(root.Title, "Playlist")}
	position := 0
	for _, entry := range root.Entries {
		if entry == nil {
			continue
		}
		position++
		info.Entries = append(info.Entries, job.PlaylistEntry{
			Index:        position,
			Title:        strOrDefault(entry.Title, fmt.Sprintf("Video %d", position)),
			ThumbnailURL: thumbnailURL(entry.ID),
			SourceRef:    watchURL(entry.ID, ""),
		})
	}
	return info, nil
}

// Fetch downloads and converts one item into req.DestDir, reporting progress
// at a bounded rate, and returns the produced file path.
func (c *Client) Fetch(ctx context.Context, req job.FetchRequest) (string, error) {
	dl := ytdlp.New().
		Quiet().
		ForceOverwrites().
		RestrictFilenames().
		NoPlaylist().
		Output(filepath.Join(req.DestDir, "%(title)s [%(id)s].%(ext)s"))

	if req.Options.Format == job.FormatMP3 {
		dl = dl.Format("bestaudio/best").
			ExtractAudio().
			AudioFormat("mp3").
			AudioQuality("192K")
	} else {
		dl = dl.Format(FormatString(req.Options.Quality))
	}

	dl = dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		if req.OnProgress == nil || update.TotalBytes <= 0 {
			return
		}
		percent := int(update.DownloadedBytes * 100 / update.TotalBytes)
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		req.OnProgress(percent)
	})

	result, err := dl.Run(ctx, req.SourceRef)
	if err != nil {
		return "", classify(ctx, err)
	}

	path, err := producedFile(result, req.Options.Format)
	if err != nil {
		return "", &job.FetchError{Kind: job.FetchConversion, Err: err}
	}
	return path, nil
}

// producedFile resolves the final output path from the run result. For MP3
// the reported filename is the pre-extraction source; the extractor leaves a
// sibling .mp3 behind.
func producedFile(result *ytdlp.Result, format job.Format) (string, error) {
	infos, err := result.GetExtractedInfo()
	if err != nil || len(infos) == 0 {
		return "", errors.New("no extracted info in result")
	}
	if infos[0].Filename == nil || *infos[0].Filename == "" {
		return "", errors.New("no output filename in result")
	}
	path := *infos[0].Filename
	if format == job.FormatMP3 {
		candidate := strings.TrimSuffix(path, filepath.Ext(path)) + ".mp3"
		if _, statErr := os.Stat(candidate); statErr == nil {
			path = candidate
		}
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return "", fmt.Errorf("output file missing: %w", statErr)
	}
	return path, nil
}

// classify maps a yt-dlp failure onto the short taxonomy the store records.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &job.FetchError{Kind: job.FetchCanceled, Err: err}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "private video"),
		strings.Contains(msg, "removed"),
		strings.Contains(msg, "404"):
		return &job.FetchError{Kind: job.FetchUnavailable, Err: err}
	case strings.Contains(msg, "ffmpeg"),
		strings.Contains(msg, "postprocess"),
		strings.Contains(msg, "audio conversion"):
		return &job.FetchError{Kind: job.FetchConversion, Err: err}
	default:
		return &job.FetchError{Kind: job.FetchNetwork, Err: err}
	}
}

func thumbnailURL(videoID string) string {
	if videoID == "" {
		return ""
	}
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}

func watchURL(videoID, fallback string) string {
	if videoID == "" {
		return fallback
	}
	return "https://www.youtube.com/watch?v=" + videoID
}

func strOrDefault(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}
