package job

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PravakarDas/YT-Playlist-Downloader/internal/archive"
)

// fakeFetcher implements Fetcher for tests. fetch decides per-item outcome;
// active/maxActive track how many Fetch calls run at once.
type fakeFetcher struct {
	title   string
	entries []PlaylistEntry
	infoErr error

	fetch func(ctx context.Context, req FetchRequest) (string, error)

	mu        sync.Mutex
	active    int
	maxActive int
}

func (f *fakeFetcher) Playlist(_ context.Context, _ string) (PlaylistInfo, error) {
	if f.infoErr != nil {
		return PlaylistInfo{}, f.infoErr
	}
	return PlaylistInfo{Title: f.title, Entries: f.entries}, nil
}

func (f *fakeFetcher) Fetch(ctx context.Context, req FetchRequest) (string, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()
	return f.fetch(ctx, req)
}

func entriesN(n int) []PlaylistEntry {
	out := make([]PlaylistEntry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, PlaylistEntry{
			Index:     i,
			Title:     fmt.Sprintf("Video %d", i),
			SourceRef: fmt.Sprintf("https://example.org/watch?v=%d", i),
		})
	}
	return out
}

// writeOutput creates a real media-like file the assembler can pick up.
func writeOutput(req FetchRequest, name string) (string, error) {
	path := filepath.Join(req.DestDir, name)
	if err := os.WriteFile(path, []byte("media-bytes"), 0o600); err != nil {
		return "", err
	}
	if req.OnProgress != nil {
		req.OnProgress(40)
		req.OnProgress(100)
	}
	return path, nil
}

func newTestManager(t *testing.T, f Fetcher, mutate func(*Options)) *Manager {
	t.Helper()
	opts := Options{
		DownloadRoot:       t.TempDir(),
		GlobalMaxDownloads: 4,
		PerJobDownloads:    4,
		FetchTimeout:       2 * time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewManager(f, opts)
}

func waitStatus(t *testing.T, m *Manager, id string, want Status) Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := m.GetProgress(id)
		if err == nil && snap.Status.Terminal() {
			if snap.Status != want {
				t.Fatalf("expected terminal status %s, got %s (error=%q)", want, snap.Status, snap.Error)
			}
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for job %s to settle", id)
	return Job{}
}

func TestCreateJobValidation(t *testing.T) {
	f := &fakeFetcher{title: "List", entries: entriesN(3)}
	m := newTestManager(t, f, nil)

	if _, err := m.CreateJob("", "https://e.org/pl", []int{1}, ConvertOptions{}); !errors.Is(err, ErrNoOwner) {
		t.Fatalf("expected ErrNoOwner, got %v", err)
	}
	if _, err := m.CreateJob("o", "https://e.org/pl", nil, ConvertOptions{}); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if _, err := m.CreateJob("o", "https://e.org/pl", []int{-2, 0}, ConvertOptions{}); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection for non-positive indices, got %v", err)
	}
	if _, err := m.CreateJob("o", "https://e.org/pl", []int{1, 9}, ConvertOptions{}); err == nil || !strings.Contains(err.Error(), "not present in playlist") {
		t.Fatalf("expected unknown index error, got %v", err)
	}

	f.infoErr = errors.New("boom")
	if _, err := m.CreateJob("o", "https://e.org/pl", []int{1}, ConvertOptions{}); err == nil || !strings.Contains(err.Error(), "playlist metadata") {
		t.Fatalf("expected wrapped metadata error, got %v", err)
	}
}

func TestPartialSuccessPackagesOnlyDoneItems(t *testing.T) {
	f := &fakeFetcher{title: "List", entries: entriesN(3)}
	f.fetch = func(_ context.Context, req FetchRequest) (string, error) {
		if strings.HasSuffix(req.SourceRef, "v=2") {
			return "", &FetchError{Kind: FetchUnavailable, Err: errors.New("video unavailable")}
		}
		return writeOutput(req, filepath.Base(req.SourceRef)+".mp4")
	}
	m := newTestManager(t, f, nil)

	id, err := m.CreateJob("owner-a", "https://e.org/pl", []int{1, 2, 3}, ConvertOptions{Format: FormatMP4, Quality: QualityHigh})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	snap := waitStatus(t, m, id, StatusFinished)

	path, err := m.GetArchive(id)
	if err != nil {
		t.Fatalf("get archive: %v", err)
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 archive entries, got %d", len(zr.File))
	}
	for _, zf := range zr.File {
		if strings.HasPrefix(zf.Name, "002-") {
			t.Fatalf("failed item leaked into archive: %s", zf.Name)
		}
	}

	for _, it := range snap.Items {
		if it.Index == 2 {
			if it.Status != ItemFailed || it.Error != string(FetchUnavailable) {
				t.Fatalf("expected item 2 failed/unavailable, got %+v", it)
			}
			continue
		}
		if it.Status != ItemDone || it.Progress != 100 {
			t.Fatalf("expected item %d done at 100%%, got %+v", it.Index, it)
		}
	}
}

func TestAllItemsFailedJobError(t *testing.T) {
	f := &fakeFetcher{title: "List", entries: entriesN(2)}
	f.fetch = func(_ context.Context, _ FetchRequest) (string, error) {
		return "", &FetchError{Kind: FetchNetwork, Err: errors.New("timeout")}
	}
	m := newTestManager(t, f, nil)

	id, err := m.CreateJob("owner-a", "https://e.org/pl", []int{1, 2}, ConvertOptions{})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	snap := waitStatus(t, m, id, StatusError)
	if !strings.Contains(snap.Error, "all 2 items failed") {
		t.Fatalf("expected aggregate error, got %q", snap.Error)
	}
	if _, err := m.GetArchive(id); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestPackagingFailureMakesJobError(t *testing.T) {
	f := &fakeFetcher{title: "List", entries: entriesN(1)}
	f.fetch = func(_ context.Context, req FetchRequest) (string, error) {
		return writeOutput(req, "one.mp4")
	}
	m := newTestManager(t, f, nil)
	m.UseArchiveBuilder(func(_ string, _ []archive.Entry) error {
		return errors.New("disk full")
	})

	id, err := m.CreateJob("owner-a", "https://e.org/pl", []int{1}, ConvertOptions{})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	snap := waitStatus(t, m, id, StatusError)
	if !strings.Contains(snap.Error, "packaging") {
		t.Fatalf("expected packaging error, got %q", snap.Error)
	}
}

func TestGlobalConcurrencyCeiling(t *testing.T) {
	f := &fakeFetcher{title: "List", entries: entriesN(4)}
	f.fetch = func(_ context.Context, req FetchRequest) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return writeOutput(req, filepath.Base(req.SourceRef)+".mp4")
	}
	m := newTestManager(t, f, func(o *Options) {
		o.GlobalMaxDownloads = 2
		o.PerJobDownloads = 4
	})

	var ids []string
	for _, owner := range []string{"a", "b"} {
		id, err := m.CreateJob(owner, "https://e.org/pl", []int{1, 2, 3, 4}, ConvertOptions{})
		if err != nil {
			t.Fatalf("create job: %v", err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitStatus(t, m, id, StatusFinished)
	}

	f.mu.Lock()
	max := f.maxActive
	f.mu.Unlock()
	if max > 2 {
		t.Fatalf("global ceiling violated: %d concurrent fetches", max)
	}
}

func TestEvictOwnerRemovesOnlyThatOwner(t *testing.T) {
	f := &fakeFetcher{title: "List", entries: entriesN(1)}
	f.fetch = func(_ context.Context, req FetchRequest) (string, error) {
		return writeOutput(req, "a.mp4")
	}
	m := newTestManager(t, f, nil)

	idA, err := m.CreateJob("owner-a", "https://e.org/pl", []int{1}, ConvertOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	idB, err := m.CreateJob("owner-b", "https://e.org/pl", []int{1}, ConvertOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	waitStatus(t, m, idA, StatusFinished)
	waitStatus(t, m, idB, StatusFinished)

	dirA := m.jobDir(idA)
	m.EvictOwner("owner-a")

	if _, err := m.GetProgress(idA); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected owner-a job gone, got %v", err)
	}
	if _, err := m.GetProgress(idB); err != nil {
		t.Fatalf("owner-b job should survive, got %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(dirA); os.IsNotExist(err) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("artifacts of evicted job still on disk: %s", dirA)
}

func TestEvictCancelsRunningWorkers(t *testing.T) {
	var canceled atomic.Bool
	f := &fakeFetcher{title: "List", entries: entriesN(1)}
	f.fetch = func(ctx context.Context, _ FetchRequest) (string, error) {
		<-ctx.Done()
		canceled.Store(true)
		return "", ctx.Err()
	}
	m := newTestManager(t, f, nil)

	id, err := m.CreateJob("owner-a", "https://e.org/pl", []int{1}, ConvertOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// let the worker reach the blocking fetch
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := m.GetProgress(id)
		if err == nil && len(snap.Items) > 0 && snap.Items[0].Status == ItemDownloading {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	dir := m.jobDir(id)
	m.EvictJob(id)

	if _, err := m.GetProgress(id); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected job gone after evict, got %v", err)
	}

	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if !canceled.Load() {
				t.Fatalf("artifacts removed before worker observed cancellation")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("artifacts of evicted job still on disk")
}

func TestNormalizeIndices(t *testing.T) {
	got := normalizeIndices([]int{3, 1, 3, -1, 0, 2})
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("normalizeIndices = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("normalizeIndices = %v, want %v", got, want)
		}
	}
}
