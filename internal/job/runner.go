package job

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/PravakarDas/YT-Playlist-Downloader/internal/archive"
)

// runJob dispatches one worker per selected item, waits for all of them to
// settle, and performs the job's single terminal transition. No other
// component sets the job status.
func (m *Manager) runJob(ctx context.Context, id, dir string, opts ConvertOptions) {
	snap, ok := m.store.Snapshot(id)
	if !ok {
		return
	}

	jobSlots := make(chan struct{}, m.opts.PerJobDownloads)
	var wg sync.WaitGroup
	for _, it := range snap.Items {
		m.store.SetItemStatus(id, it.Index, ItemQueued)
		wg.Add(1)
		go func(it Item) {
			defer wg.Done()
			m.runItem(ctx, id, dir, it, opts, jobSlots)
		}(it)
	}
	wg.Wait()

	// Evicted mid-run or shutting down: the record is gone (or about to
	// be); leave the terminal transition unset and let cleanup take over.
	if ctx.Err() != nil {
		log.Debug().Str("job_id", id).Msg("job runner cancelled")
		return
	}

	final, ok := m.store.Snapshot(id)
	if !ok {
		return
	}
	entries := make([]archive.Entry, 0, len(final.Items))
	failed := 0
	for _, it := range final.Items {
		if it.Status == ItemDone && it.FilePath != "" {
			entries = append(entries, archive.Entry{Index: it.Index, Title: it.Title, SourcePath: it.FilePath})
		} else {
			failed++
		}
	}

	if len(entries) == 0 {
		m.store.SetJobStatus(id, StatusError, fmt.Sprintf("all %d items failed", len(final.Items)), "")
		log.Warn().Str("job_id", id).Int("items", len(final.Items)).Msg("job failed: nothing fetched")
		return
	}

	dest := filepath.Join(dir, "archive.zip")
	if err := m.buildArchive(dest, entries); err != nil {
		m.store.SetJobStatus(id, StatusError, "packaging: "+err.Error(), "")
		log.Error().Str("job_id", id).Err(err).Msg("archive assembly failed")
		return
	}
	m.store.SetJobStatus(id, StatusFinished, "", dest)
	log.Info().Str("job_id", id).Int("packaged", len(entries)).Int("failed", failed).Msg("job finished")
}
