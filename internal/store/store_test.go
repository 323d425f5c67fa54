package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebovdev/trackdeck/internal/track"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenPathCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "trackdeck.db")

	s, err := OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	defer s.Close()

	if err := s.AddHistory(track.Track{ID: "a", Title: "A"}, time.Now()); err != nil {
		t.Fatalf("AddHistory failed: %v", err)
	}
	s.Close()

	reopened, err := OpenPath(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.History(0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry after reopen, got %d", len(entries))
	}
}

func TestHistoryOrderAndFields(t *testing.T) {
	s := setupTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := track.Track{ID: "a", Title: "First", WebpageURL: "https://example.com/a", Duration: 61.5}
	second := track.Track{WebpageURL: "https://example.com/b", Title: "Second", Thumbnail: "https://img/b.jpg"}

	if err := s.AddHistory(first, base); err != nil {
		t.Fatalf("AddHistory failed: %v", err)
	}
	if err := s.AddHistory(second, base.Add(time.Minute)); err != nil {
		t.Fatalf("AddHistory failed: %v", err)
	}

	entries, err := s.History(10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Track != second {
		t.Errorf("entries[0].Track = %+v, want %+v", entries[0].Track, second)
	}
	if entries[0].Key != "https://example.com/b" {
		t.Errorf("entries[0].Key = %q", entries[0].Key)
	}
	if entries[1].Track != first {
		t.Errorf("entries[1].Track = %+v, want %+v", entries[1].Track, first)
	}
	if !entries[1].PlayedAt.Equal(base) {
		t.Errorf("PlayedAt = %v, want %v", entries[1].PlayedAt, base)
	}
}

func TestHistoryRejectsKeylessTrack(t *testing.T) {
	s := setupTestStore(t)

	if err := s.AddHistory(track.Track{Duration: 3}, time.Now()); err == nil {
		t.Error("expected error for track without key")
	}
}

func TestHistoryIsCapped(t *testing.T) {
	s := setupTestStore(t)
	base := time.Now()

	for i := 0; i < HistoryLimit+15; i++ {
		tr := track.Track{ID: fmt.Sprintf("t%d", i), Title: "x"}
		if err := s.AddHistory(tr, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("AddHistory %d failed: %v", i, err)
		}
	}

	entries, err := s.History(0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != HistoryLimit {
		t.Fatalf("expected %d entries, got %d", HistoryLimit, len(entries))
	}
	if entries[0].Key != fmt.Sprintf("t%d", HistoryLimit+14) {
		t.Errorf("newest entry = %q", entries[0].Key)
	}
	if entries[len(entries)-1].Key != "t15" {
		t.Errorf("oldest kept entry = %q, want t15", entries[len(entries)-1].Key)
	}
}

func TestPlayCountAndClear(t *testing.T) {
	s := setupTestStore(t)
	tr := track.Track{ID: "a", Title: "A"}

	for i := 0; i < 3; i++ {
		if err := s.AddHistory(tr, time.Now()); err != nil {
			t.Fatalf("AddHistory failed: %v", err)
		}
	}
	n, err := s.PlayCount("a")
	if err != nil || n != 3 {
		t.Errorf("PlayCount = %d, %v, want 3", n, err)
	}

	if err := s.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}
	entries, _ := s.History(0)
	if len(entries) != 0 {
		t.Errorf("expected empty history, got %d", len(entries))
	}
}

func TestDownloads(t *testing.T) {
	s := setupTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older := Download{ID: "id-1", Key: "a", Title: "A", Path: "/tmp/a.mp3", Bytes: 100, CreatedAt: base}
	newer := Download{ID: "id-2", Key: "a", Title: "A", Path: "/tmp/a (1).mp3", Bytes: 120, CreatedAt: base.Add(time.Hour)}
	other := Download{ID: "id-3", Key: "b", Title: "B", Path: "/tmp/b.mp3", Bytes: 5, CreatedAt: base.Add(time.Minute)}

	for _, d := range []Download{older, newer, other} {
		if err := s.AddDownload(d); err != nil {
			t.Fatalf("AddDownload failed: %v", err)
		}
	}

	all, err := s.Downloads()
	if err != nil {
		t.Fatalf("Downloads failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "id-2" || all[2].ID != "id-1" {
		t.Errorf("unexpected order: %+v", all)
	}

	d, ok, err := s.DownloadByKey("a")
	if err != nil || !ok {
		t.Fatalf("DownloadByKey failed: %v %v", ok, err)
	}
	if d.ID != "id-2" || d.Bytes != 120 || !d.CreatedAt.Equal(newer.CreatedAt) {
		t.Errorf("DownloadByKey = %+v", d)
	}

	if _, ok, err := s.DownloadByKey("missing"); ok || err != nil {
		t.Errorf("DownloadByKey(missing) = %v, %v", ok, err)
	}

	if err := s.DeleteDownload("id-2"); err != nil {
		t.Fatalf("DeleteDownload failed: %v", err)
	}
	d, _, _ = s.DownloadByKey("a")
	if d.ID != "id-1" {
		t.Errorf("after delete DownloadByKey = %q, want id-1", d.ID)
	}
}

func TestAddDownloadReplacesSameID(t *testing.T) {
	s := setupTestStore(t)
	d := Download{ID: "x", Key: "a", Title: "A", Path: "/a", Bytes: 1, CreatedAt: time.Now()}

	if err := s.AddDownload(d); err != nil {
		t.Fatal(err)
	}
	d.Bytes = 99
	if err := s.AddDownload(d); err != nil {
		t.Fatal(err)
	}

	all, _ := s.Downloads()
	if len(all) != 1 || all[0].Bytes != 99 {
		t.Errorf("Downloads = %+v", all)
	}
}

func TestQueueEmpty(t *testing.T) {
	s := setupTestStore(t)

	q, err := s.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	if q.CurrentIndex != -1 || len(q.Tracks) != 0 {
		t.Errorf("LoadQueue on empty db = %+v", q)
	}
}

func TestSaveAndLoadQueue(t *testing.T) {
	s := setupTestStore(t)
	tracks := []track.Track{
		{ID: "a", Title: "A", Duration: 10, Uploader: "someone"},
		{WebpageURL: "https://example.com/b", Title: "B", Thumbnail: "https://img/b.jpg"},
	}

	if err := s.SaveQueue(SavedQueue{CurrentIndex: 1, Tracks: tracks}); err != nil {
		t.Fatalf("SaveQueue failed: %v", err)
	}
	// Saving again replaces the previous queue.
	if err := s.SaveQueue(SavedQueue{CurrentIndex: 0, Tracks: tracks[:1]}); err != nil {
		t.Fatalf("SaveQueue failed: %v", err)
	}

	q, err := s.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	if q.CurrentIndex != 0 || len(q.Tracks) != 1 || q.Tracks[0] != tracks[0] {
		t.Errorf("LoadQueue = %+v", q)
	}

	if err := s.SaveQueue(SavedQueue{CurrentIndex: 1, Tracks: tracks}); err != nil {
		t.Fatalf("SaveQueue failed: %v", err)
	}
	q, _ = s.LoadQueue()
	if len(q.Tracks) != 2 || q.Tracks[1] != tracks[1] {
		t.Errorf("LoadQueue = %+v", q)
	}
}
