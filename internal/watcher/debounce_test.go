package watcher_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hubward/internal/logging"
	"hubward/internal/watcher"
)

func newTestDebouncer(t *testing.T, settle time.Duration) *watcher.Debouncer {
	t.Helper()
	d := watcher.NewDebouncer(watcher.DebounceOptions{
		SettleDelay:      settle,
		ProbeInterval:    5 * time.Millisecond,
		MaxProbeDelay:    20 * time.Millisecond,
		MaxProbeAttempts: 2,
		Capacity:         16,
	}, logging.NewNop())
	t.Cleanup(d.Close)
	return d
}

func tempFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.epub")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestBurstCoalescesToOneCandidate(t *testing.T) {
	d := newTestDebouncer(t, 150*time.Millisecond)
	path := tempFile(t)

	first := time.Now().UTC()
	for i := 0; i < 10; i++ {
		d.Enqueue(watcher.FileEvent{
			Path:       path,
			Type:       watcher.EventModified,
			OccurredAt: first.Add(time.Duration(i) * 10 * time.Millisecond),
		})
		time.Sleep(10 * time.Millisecond)
	}

	var candidate watcher.Candidate
	select {
	case candidate = <-d.Candidates():
	case <-time.After(2 * time.Second):
		t.Fatal("no candidate emitted")
	}

	if !candidate.DetectedAt.Equal(first) {
		t.Fatalf("DetectedAt must be the first event's timestamp: %v vs %v", candidate.DetectedAt, first)
	}
	if candidate.ReadyAt.Before(first.Add(150 * time.Millisecond)) {
		t.Fatalf("ReadyAt %v precedes first+settle", candidate.ReadyAt)
	}
	if candidate.IsFailed {
		t.Fatalf("unexpected failure: %s", candidate.Reason)
	}

	select {
	case extra := <-d.Candidates():
		t.Fatalf("burst emitted a second candidate: %#v", extra)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestDeletedEventPromotesWithoutProbe(t *testing.T) {
	d := newTestDebouncer(t, 30*time.Millisecond)
	// The path never existed; a probe would fail, so success proves the
	// deleted branch skipped probing.
	d.Enqueue(watcher.FileEvent{
		Path: filepath.Join(t.TempDir(), "gone.epub"),
		Type: watcher.EventDeleted,
	})

	select {
	case candidate := <-d.Candidates():
		if candidate.IsFailed {
			t.Fatalf("deleted candidate must not be failed: %s", candidate.Reason)
		}
		if candidate.Event.Type != watcher.EventDeleted {
			t.Fatalf("unexpected event type %s", candidate.Event.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no candidate emitted")
	}
}

func TestSeparatePathsEmitSeparately(t *testing.T) {
	d := newTestDebouncer(t, 30*time.Millisecond)
	a := tempFile(t)
	b := tempFile(t)

	d.Enqueue(watcher.FileEvent{Path: a, Type: watcher.EventCreated})
	d.Enqueue(watcher.FileEvent{Path: b, Type: watcher.EventCreated})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case candidate := <-d.Candidates():
			seen[candidate.Path] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d candidates emitted", len(seen))
		}
	}
	if !seen[a] || !seen[b] {
		t.Fatalf("expected both paths, got %v", seen)
	}
}

func TestCanonicalPathFoldsCaseAndSeparators(t *testing.T) {
	a := watcher.CanonicalPath("/inbox/Dune.epub")
	b := watcher.CanonicalPath("/inbox/dune.EPUB/")
	if a != b {
		t.Fatalf("expected canonical equality, got %q vs %q", a, b)
	}
}

func TestCloseStopsPendingSettleTasks(t *testing.T) {
	d := watcher.NewDebouncer(watcher.DebounceOptions{
		SettleDelay: 10 * time.Second,
		Capacity:    4,
	}, logging.NewNop())
	d.Enqueue(watcher.FileEvent{Path: "/inbox/pending.epub", Type: watcher.EventCreated})

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on pending settle task")
	}

	if _, ok := <-d.Candidates(); ok {
		t.Fatal("expected closed candidate channel with no emissions")
	}
}
