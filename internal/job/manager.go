package job

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PravakarDas/YT-Playlist-Downloader/internal/archive"
	fileutil "github.com/PravakarDas/YT-Playlist-Downloader/internal/file"
)

// Options configures the manager.
type Options struct {
	DownloadRoot       string
	GlobalMaxDownloads int
	PerJobDownloads    int
	IdleTTL            time.Duration
	SweepInterval      time.Duration
	FetchTimeout       time.Duration
}

const (
	defaultGlobalMax = 8
	defaultPerJob    = 3
	// extra slack on top of the fetch timeout when waiting for an evicted
	// job's workers to settle before deleting its files
	settleGrace = 30 * time.Second
)

// Manager is the job façade: create job, poll progress, fetch archive, evict.
// It owns the global download-slot budget shared by all job runners.
type Manager struct {
	store        *Store
	fetcher      Fetcher
	opts         Options
	globalSlots  chan struct{}
	buildArchive func(destZipPath string, entries []archive.Entry) error
	workersWG    sync.WaitGroup

	mu      sync.Mutex
	baseCtx context.Context
}

// NewManager creates a manager around the given media collaborator.
func NewManager(fetcher Fetcher, opts Options) *Manager {
	if opts.GlobalMaxDownloads <= 0 {
		opts.GlobalMaxDownloads = defaultGlobalMax
	}
	if opts.PerJobDownloads <= 0 {
		opts.PerJobDownloads = defaultPerJob
	}
	if opts.PerJobDownloads > opts.GlobalMaxDownloads {
		opts.PerJobDownloads = opts.GlobalMaxDownloads
	}
	if opts.DownloadRoot == "" {
		opts.DownloadRoot = "storage/downloads"
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 3 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Minute
	}
	return &Manager{
		store:        NewStore(),
		fetcher:      fetcher,
		opts:         opts,
		globalSlots:  make(chan struct{}, opts.GlobalMaxDownloads),
		buildArchive: archive.Build,
		baseCtx:      context.Background(),
	}
}

// SetBaseContext sets the context all job runners derive from. Intended to be
// set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

func (m *Manager) base() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseCtx
}

// UseArchiveBuilder allows tests to inject a fake assembler. Intended for
// test setup only, before any job is created.
func (m *Manager) UseArchiveBuilder(builder func(destZipPath string, entries []archive.Entry) error) {
	m.buildArchive = builder
}

func (m *Manager) jobDir(id string) string {
	return filepath.Join(m.opts.DownloadRoot, "jobs", id)
}

// CreateJob materializes the selected playlist entries into a job and starts
// its runner. Returns a validation error for an empty selection or indices
// absent from the playlist.
func (m *Manager) CreateJob(ownerKey, sourceURL string, indices []int, opts ConvertOptions) (string, error) {
	if ownerKey == "" {
		return "", ErrNoOwner
	}
	selected := normalizeIndices(indices)
	if len(selected) == 0 {
		return "", ErrNoSelection
	}
	opts = opts.Normalize()

	infoCtx, cancelInfo := context.WithTimeout(m.base(), m.opts.FetchTimeout)
	defer cancelInfo()
	info, err := m.fetcher.Playlist(infoCtx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("playlist metadata: %w", err)
	}
	byIndex := make(map[int]PlaylistEntry, len(info.Entries))
	for _, e := range info.Entries {
		byIndex[e.Index] = e
	}

	items := make([]Item, 0, len(selected))
	for _, idx := range selected {
		entry, ok := byIndex[idx]
		if !ok {
			return "", NewErrUnknownIndex(idx)
		}
		items = append(items, Item{
			Index:        entry.Index,
			Title:        entry.Title,
			ThumbnailURL: entry.ThumbnailURL,
			SourceRef:    entry.SourceRef,
			Status:       ItemIdle,
		})
	}

	id := uuid.NewString()
	dir := m.jobDir(id)
	if err := fileutil.EnsureDir(dir); err != nil {
		return "", err
	}

	now := time.Now()
	newJob := &Job{
		ID:             id,
		OwnerKey:       ownerKey,
		PlaylistTitle:  info.Title,
		Options:        opts,
		Items:          items,
		Status:         StatusRunning,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	jobCtx, cancel := context.WithCancel(m.base())
	settled := make(chan struct{})
	m.store.Create(newJob, cancel, settled)

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		defer close(settled)
		defer cancel()
		m.runJob(jobCtx, id, dir, opts)
	}()

	log.Info().Str("job_id", id).Str("owner", ownerKey).
		Int("items", len(items)).Str("format", string(opts.Format)).
		Str("quality", string(opts.Quality)).Msg("job created")
	return id, nil
}

// GetProgress returns a consistent snapshot and refreshes the job's idle
// timer.
func (m *Manager) GetProgress(id string) (Job, error) {
	snap, ok := m.store.Snapshot(id)
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return snap, nil
}

// GetArchive returns the archive path once the job has finished.
func (m *Manager) GetArchive(id string) (string, error) {
	snap, ok := m.store.Snapshot(id)
	if !ok {
		return "", ErrJobNotFound
	}
	if snap.Status != StatusFinished || snap.ArchivePath == "" {
		return "", ErrNotReady
	}
	return snap.ArchivePath, nil
}

// EvictJob removes a job immediately. Running workers are cancelled; the
// on-disk artifacts are deleted once they settle, so no file is removed
// mid-write. Evicting an unknown id is a no-op.
func (m *Manager) EvictJob(id string) {
	snap, settled, ok := m.store.Evict(id)
	if !ok {
		return
	}
	log.Info().Str("job_id", id).Str("owner", snap.OwnerKey).Msg("job evicted")
	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.removeArtifacts(id, settled)
	}()
}

// EvictOwner removes every job belonging to the owner key, regardless of age.
func (m *Manager) EvictOwner(ownerKey string) {
	if ownerKey == "" {
		return
	}
	for _, id := range m.store.OwnedBy(ownerKey) {
		m.EvictJob(id)
	}
}

func (m *Manager) removeArtifacts(id string, settled <-chan struct{}) {
	if settled != nil {
		select {
		case <-settled:
		case <-time.After(m.opts.FetchTimeout + settleGrace):
			log.Warn().Str("job_id", id).Msg("workers did not settle before cleanup deadline")
		}
	}
	if err := fileutil.RemoveTree(m.opts.DownloadRoot, m.jobDir(id)); err != nil {
		log.Warn().Str("job_id", id).Err(err).Msg("artifact cleanup failed")
	}
}

// WaitAll blocks until all in-flight workers finish or the context is done.
// Returns true if all workers finished, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// normalizeIndices drops non-positive values, dedupes and sorts.
func normalizeIndices(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, idx := range in {
		if idx <= 0 {
			continue
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
