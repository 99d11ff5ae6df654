package job

import (
	"context"

	"github.com/rs/zerolog/log"
)

// runItem executes one item's fetch/convert step. It holds a per-job slot and
// a global slot for the duration of the I/O, reports coalesced progress into
// the store, and performs exactly one terminal transition. Failures are
// isolated: they are recorded on the item and never abort siblings.
func (m *Manager) runItem(ctx context.Context, jobID, dir string, it Item, opts ConvertOptions, jobSlots chan struct{}) {
	select {
	case jobSlots <- struct{}{}:
	case <-ctx.Done():
		m.store.SetItemFailed(jobID, it.Index, FetchCanceled)
		return
	}
	defer func() { <-jobSlots }()

	select {
	case m.globalSlots <- struct{}{}:
	case <-ctx.Done():
		m.store.SetItemFailed(jobID, it.Index, FetchCanceled)
		return
	}
	defer func() { <-m.globalSlots }()

	m.store.SetItemStatus(jobID, it.Index, ItemDownloading)

	// Progress callbacks arrive at the collaborator's bounded rate; only
	// increases are written through. At 100% the download phase is over
	// and any remaining time is post-processing.
	last := -1
	req := FetchRequest{
		SourceRef: it.SourceRef,
		Options:   opts,
		DestDir:   dir,
		OnProgress: func(percent int) {
			if percent <= last {
				return
			}
			last = percent
			m.store.SetItemProgress(jobID, it.Index, percent)
			if percent >= 100 {
				m.store.SetItemStatus(jobID, it.Index, ItemConverting)
			}
		},
	}

	// The per-operation timeout bounds how long a cancelled worker can
	// linger inside native I/O.
	fetchCtx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()

	path, err := m.fetcher.Fetch(fetchCtx, req)
	if err != nil {
		kind := ClassifyFetchError(err)
		if ctx.Err() != nil {
			kind = FetchCanceled
		}
		m.store.SetItemFailed(jobID, it.Index, kind)
		log.Warn().Str("job_id", jobID).Int("item_index", it.Index).
			Str("kind", string(kind)).Err(err).Msg("item fetch failed")
		return
	}
	m.store.SetItemDone(jobID, it.Index, path)
	log.Debug().Str("job_id", jobID).Int("item_index", it.Index).Str("path", path).Msg("item done")
}
