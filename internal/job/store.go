package job

import (
	"context"
	"sync"
	"time"
)

// record pairs a job with its own lock so updates to one job never contend
// with updates to another. The map-level mutex only guards membership.
type record struct {
	mu      sync.Mutex
	job     *Job
	cancel  context.CancelFunc
	settled <-chan struct{}
}

// Store is the single source of truth for job state. Workers mutate items
// through it, pollers read deep-copied snapshots from it. It owns every Job
// and Item record exclusively.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*record
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*record)}
}

// Create registers a job. cancel is invoked on eviction to stop in-flight
// workers; settled is closed by the runner once all workers have returned.
func (s *Store) Create(j *Job, cancel context.CancelFunc, settled <-chan struct{}) {
	s.mu.Lock()
	s.jobs[j.ID] = &record{job: j, cancel: cancel, settled: settled}
	s.mu.Unlock()
}

func (s *Store) lookup(id string) (*record, bool) {
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	return rec, ok
}

// Snapshot returns a deep copy of the job and refreshes its last-access time.
// Pollers never observe a record mid-mutation.
func (s *Store) Snapshot(id string) (Job, bool) {
	rec, ok := s.lookup(id)
	if !ok {
		return Job{}, false
	}
	rec.mu.Lock()
	rec.job.LastAccessedAt = time.Now()
	snap := *rec.job
	snap.Items = make([]Item, len(rec.job.Items))
	copy(snap.Items, rec.job.Items)
	rec.mu.Unlock()
	return snap, true
}

// Touch refreshes the last-access time without copying.
func (s *Store) Touch(id string) {
	if rec, ok := s.lookup(id); ok {
		rec.mu.Lock()
		rec.job.LastAccessedAt = time.Now()
		rec.mu.Unlock()
	}
}

// withItem runs fn on the item with the given playlist index under the
// record lock. Terminal items are never mutated.
func (s *Store) withItem(id string, index int, fn func(*Item)) {
	rec, ok := s.lookup(id)
	if !ok {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := range rec.job.Items {
		it := &rec.job.Items[i]
		if it.Index != index {
			continue
		}
		if !it.Status.Terminal() {
			fn(it)
		}
		return
	}
}

// SetItemStatus moves a non-terminal item to a new active state.
func (s *Store) SetItemStatus(id string, index int, st ItemStatus) {
	s.withItem(id, index, func(it *Item) { it.Status = st })
}

// SetItemProgress records progress; decreases are dropped so pollers observe
// a monotone sequence per item.
func (s *Store) SetItemProgress(id string, index, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.withItem(id, index, func(it *Item) {
		if percent > it.Progress {
			it.Progress = percent
		}
	})
}

// SetItemDone records the produced file and makes the item terminal.
func (s *Store) SetItemDone(id string, index int, filePath string) {
	s.withItem(id, index, func(it *Item) {
		it.Status = ItemDone
		it.Progress = 100
		it.FilePath = filePath
	})
}

// SetItemFailed makes the item terminal with a short error classification.
func (s *Store) SetItemFailed(id string, index int, kind FetchKind) {
	s.withItem(id, index, func(it *Item) {
		it.Status = ItemFailed
		it.Error = string(kind)
	})
}

// SetJobStatus performs the job's single lifecycle transition. The status is
// monotonic: once terminal it never changes again.
func (s *Store) SetJobStatus(id string, st Status, errMsg, archivePath string) {
	rec, ok := s.lookup(id)
	if !ok {
		return
	}
	rec.mu.Lock()
	if !rec.job.Status.Terminal() {
		rec.job.Status = st
		rec.job.Error = errMsg
		if archivePath != "" {
			rec.job.ArchivePath = archivePath
		}
	}
	rec.mu.Unlock()
}

// Evict removes the record and requests cancellation of in-flight workers.
// It returns a final copy of the job plus the settled channel the caller can
// wait on before deleting artifacts. Idempotent: a second call is a no-op.
func (s *Store) Evict(id string) (Job, <-chan struct{}, bool) {
	s.mu.Lock()
	rec, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if !ok {
		return Job{}, nil, false
	}
	rec.mu.Lock()
	snap := *rec.job
	snap.Items = make([]Item, len(rec.job.Items))
	copy(snap.Items, rec.job.Items)
	rec.mu.Unlock()
	if rec.cancel != nil {
		rec.cancel()
	}
	return snap, rec.settled, true
}

// OwnedBy lists ids of all jobs belonging to one owner key.
func (s *Store) OwnedBy(ownerKey string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, rec := range s.jobs {
		rec.mu.Lock()
		owned := rec.job.OwnerKey == ownerKey
		rec.mu.Unlock()
		if owned {
			ids = append(ids, id)
		}
	}
	return ids
}

// IdleSince lists ids of jobs whose last access is older than cutoff.
func (s *Store) IdleSince(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, rec := range s.jobs {
		rec.mu.Lock()
		idle := rec.job.LastAccessedAt.Before(cutoff)
		rec.mu.Unlock()
		if idle {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len reports the number of live jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
