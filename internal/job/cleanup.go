package job

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunSweeper evicts jobs idle past the TTL on a fixed interval. It blocks
// until the context is cancelled; run it in its own goroutine at startup.
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepIdle()
		}
	}
}

// SweepIdle performs one idle pass. Exposed so tests can trigger it without
// waiting for the ticker.
func (m *Manager) SweepIdle() {
	cutoff := time.Now().Add(-m.opts.IdleTTL)
	ids := m.store.IdleSince(cutoff)
	if len(ids) == 0 {
		return
	}
	log.Info().Int("jobs", len(ids)).Msg("idle sweep evicting jobs")
	for _, id := range ids {
		m.EvictJob(id)
	}
}
