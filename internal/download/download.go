// Package download saves tracks to disk. It resolves stream URLs with its
// own backend call so downloads never touch the playback stream cache.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/glebovdev/trackdeck/internal/config"
	"github.com/glebovdev/trackdeck/internal/store"
	"github.com/glebovdev/trackdeck/internal/track"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Concurrency is the number of parallel downloads in DownloadAll.
const Concurrency = 3

const defaultExt = "mp3"

var ErrNoKey = errors.New("track has no usable key")

// Resolver returns a fresh stream URL for a track key.
type Resolver interface {
	ResolveStream(ctx context.Context, key string) (string, error)
}

// Recorder stores completed downloads.
type Recorder interface {
	AddDownload(d store.Download) error
}

// StatusError reports a non-2xx response while fetching the audio body.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download returned status %d: %s", e.StatusCode, e.Status)
}

type Manager struct {
	resolver Resolver
	recorder Recorder
	client   *resty.Client
	dir      string
	now      func() time.Time

	// reserved guards file names picked by concurrent downloads.
	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewManager creates a manager that writes into dir. recorder may be nil.
func NewManager(resolver Resolver, recorder Recorder, dir string) *Manager {
	return &Manager{
		resolver: resolver,
		recorder: recorder,
		client: resty.New().
			SetHeader("User-Agent", fmt.Sprintf("trackdeck/%s", config.AppVersion)),
		dir:      dir,
		now:      time.Now,
		reserved: make(map[string]struct{}),
	}
}

// Dir returns the download directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Download resolves t and streams its audio into the download directory.
func (m *Manager) Download(ctx context.Context, t track.Track) (store.Download, error) {
	key, ok := t.Key()
	if !ok {
		return store.Download{}, ErrNoKey
	}

	streamURL, err := m.resolver.ResolveStream(ctx, key)
	if err != nil {
		return store.Download{}, fmt.Errorf("failed to resolve %s: %w", key, err)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return store.Download{}, fmt.Errorf("failed to create download directory: %w", err)
	}

	id := uuid.NewString()
	partPath := filepath.Join(m.dir, "."+id+".part")

	resp, err := m.client.R().
		SetContext(ctx).
		SetOutput(partPath).
		Get(streamURL)
	if err != nil {
		os.Remove(partPath)
		return store.Download{}, fmt.Errorf("failed to download %s: %w", key, err)
	}
	if !resp.IsSuccess() {
		os.Remove(partPath)
		return store.Download{}, &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	ext := extensionFor(resp.Header().Get("Content-Type"), streamURL)
	finalPath := m.reservePath(SanitizeFilename(t.DisplayTitle()), ext)
	defer m.release(finalPath)

	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return store.Download{}, fmt.Errorf("failed to move download into place: %w", err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return store.Download{}, fmt.Errorf("failed to stat download: %w", err)
	}

	d := store.Download{
		ID:        id,
		Key:       key,
		Title:     t.DisplayTitle(),
		Path:      finalPath,
		Bytes:     info.Size(),
		CreatedAt: m.now(),
	}
	if m.recorder != nil {
		if err := m.recorder.AddDownload(d); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to record download")
		}
	}

	log.Debug().Str("key", key).Str("path", finalPath).Str("size", humanize.Bytes(uint64(d.Bytes))).Msg("Download complete")
	return d, nil
}

// Result is the outcome of one download in a batch.
type Result struct {
	Track    track.Track
	Download store.Download
	Err      error
}

// DownloadAll downloads tracks with at most Concurrency transfers at a time.
// A failed track does not stop the others. Results keep the input order;
// the returned error joins every failure.
func (m *Manager) DownloadAll(ctx context.Context, tracks []track.Track, progress func(Result)) ([]Result, error) {
	results := make([]Result, len(tracks))
	wg, wgCtx := errgroup.WithContext(ctx)
	wg.SetLimit(Concurrency)

	var progressMu sync.Mutex
	for i, t := range tracks {
		wg.Go(func() error {
			d, err := m.Download(wgCtx, t)
			results[i] = Result{Track: t, Download: d, Err: err}
			if progress != nil {
				progressMu.Lock()
				progress(results[i])
				progressMu.Unlock()
			}
			return nil
		})
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Track.DisplayTitle(), r.Err))
		}
	}
	return results, errors.Join(errs...)
}

// reservePath picks "<base>.<ext>" in the download directory, adding " (n)"
// until the name is neither on disk nor claimed by a concurrent download.
func (m *Manager) reservePath(base, ext string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for n := 0; ; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s (%d)", base, n)
		}
		p := filepath.Join(m.dir, name+"."+ext)
		if _, taken := m.reserved[p]; taken {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			continue
		}
		m.reserved[p] = struct{}{}
		return p
	}
}

func (m *Manager) release(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, p)
}

var contentTypeExt = map[string]string{
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/mp4":   "m4a",
	"audio/x-m4a": "m4a",
	"audio/aac":   "aac",
	"audio/webm":  "webm",
	"audio/ogg":   "ogg",
	"audio/opus":  "opus",
	"audio/flac":  "flac",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
}

func extensionFor(contentType, streamURL string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ext, ok := contentTypeExt[ct]; ok {
		return ext
	}

	p := streamURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if ext := strings.TrimPrefix(path.Ext(p), "."); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	return defaultExt
}

// SanitizeFilename turns a title into a safe file name.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), ".")
	if name == "" {
		return "track"
	}
	if r := []rune(name); len(r) > 120 {
		name = strings.TrimSpace(string(r[:120]))
	}
	return name
}
