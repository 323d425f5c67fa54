// Package streamcache resolves track keys to playable stream URLs, caching
// every successful resolution for the lifetime of the session and collapsing
// concurrent requests for the same key into one backend call.
package streamcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single backend resolution.
const DefaultTimeout = 20 * time.Second

// ErrCanceled is returned to every waiter of a request that was canceled
// before it settled. It matches context.Canceled under errors.Is.
var ErrCanceled = fmt.Errorf("stream resolution canceled: %w", context.Canceled)

// IsCanceled reports whether err stems from a canceled resolution or a
// canceled caller context.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// Fetcher performs the actual network resolution.
type Fetcher interface {
	ResolveStream(ctx context.Context, key string) (string, error)
}

// Entry is a cached resolution. Entries are never evicted: backend URLs that
// expire will fail at playback time and must be re-resolved by the user.
type Entry struct {
	Key        string
	URL        string
	ResolvedAt time.Time
}

type request struct {
	key    string
	cancel context.CancelFunc
	done   chan struct{}
	url    string
	err    error
}

// settle must be called exactly once, with the Resolver lock held.
func (r *request) settle(url string, err error) {
	r.url = url
	r.err = err
	close(r.done)
}

func (r *request) wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.url, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolver combines the stream cache with the in-flight request registry.
type Resolver struct {
	fetcher Fetcher
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	entries  map[string]Entry
	inflight map[string]*request
	calls    int
}

// New creates a Resolver backed by fetcher.
func New(fetcher Fetcher) *Resolver {
	return &Resolver{
		fetcher:  fetcher,
		timeout:  DefaultTimeout,
		now:      time.Now,
		entries:  make(map[string]Entry),
		inflight: make(map[string]*request),
	}
}

// SetTimeout changes the per-request timeout for requests started afterwards.
func (r *Resolver) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.timeout = d
	}
}

// Lookup returns the cached entry for key without touching the network.
func (r *Resolver) Lookup(key string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok
}

// Resolve returns the stream URL for key. A cached key returns immediately.
// A key with an outstanding request joins that request. Otherwise a new
// backend call is started. ctx only bounds how long this caller waits; it
// never cancels a request other callers may share (use Cancel for that).
func (r *Resolver) Resolve(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		r.mu.Unlock()
		return e.URL, nil
	}

	req, ok := r.inflight[key]
	if ok {
		log.Debug().Str("key", key).Msg("Joining in-flight stream resolution")
	} else {
		req = r.startLocked(key)
	}
	r.mu.Unlock()

	return req.wait(ctx)
}

func (r *Resolver) startLocked(key string) *request {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	req := &request{
		key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.inflight[key] = req
	r.calls++

	go r.run(ctx, req)
	return req
}

func (r *Resolver) run(ctx context.Context, req *request) {
	started := r.now()
	url, err := r.fetcher.ResolveStream(ctx, req.key)
	req.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Canceled requests were already settled and unregistered.
	if r.inflight[req.key] != req {
		log.Debug().Str("key", req.key).Msg("Discarding result of canceled stream resolution")
		return
	}
	delete(r.inflight, req.key)

	if err != nil {
		log.Warn().Err(err).Str("key", req.key).Msg("Stream resolution failed")
		req.settle("", err)
		return
	}

	r.entries[req.key] = Entry{Key: req.key, URL: url, ResolvedAt: r.now()}
	log.Debug().Str("key", req.key).Dur("took", r.now().Sub(started)).Msg("Stream resolved")
	req.settle(url, nil)
}

// Cancel aborts the outstanding request for key, if any. Every waiter receives
// ErrCanceled and nothing is cached. It reports whether a request was canceled.
func (r *Resolver) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.inflight[key]
	if !ok {
		return false
	}
	delete(r.inflight, key)
	req.cancel()
	req.settle("", ErrCanceled)
	log.Debug().Str("key", key).Msg("Stream resolution canceled")
	return true
}

// InFlight reports whether a request for key is outstanding.
func (r *Resolver) InFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[key]
	return ok
}

// Stats returns the number of cached entries, outstanding requests and
// backend calls issued so far.
func (r *Resolver) Stats() (cached, pending, calls int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries), len(r.inflight), r.calls
}

// Close cancels every outstanding request. Cached entries are kept.
func (r *Resolver) Close() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.inflight))
	for key := range r.inflight {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	for _, key := range keys {
		r.Cancel(key)
	}
}
