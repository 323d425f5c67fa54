// Package session is the playback controller: it owns the queue, turns
// navigation into stream loads, and guarantees that only the most recent
// navigation's resolution ever reaches the playback engine.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/glebovdev/trackdeck/internal/player"
	"github.com/glebovdev/trackdeck/internal/queue"
	"github.com/glebovdev/trackdeck/internal/streamcache"
	"github.com/glebovdev/trackdeck/internal/track"
)

var (
	ErrIndexOutOfRange = errors.New("queue index out of range")
	ErrNoTrack         = errors.New("no track selected")
)

// Resolver turns track keys into stream URLs. *streamcache.Resolver is the
// production implementation.
type Resolver interface {
	Resolve(ctx context.Context, key string) (string, error)
	Lookup(key string) (streamcache.Entry, bool)
	Cancel(key string) bool
}

// Status is the coarse transport state shown to users.
type Status int

const (
	StatusEmpty Status = iota
	StatusIdle
	StatusLoading
	StatusPlaying
	StatusBuffering
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "Empty"
	case StatusIdle:
		return "Idle"
	case StatusLoading:
		return "Loading"
	case StatusPlaying:
		return "Playing"
	case StatusBuffering:
		return "Buffering"
	case StatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Snapshot is a consistent, copied view of the session.
type Snapshot struct {
	Queue       []track.Track
	Index       int
	Track       *track.Track
	Playback    player.PlaybackState
	Status      Status
	Shuffle     bool
	Repeat      queue.RepeatMode
	MiniVisible bool
	MiniIndex   int
	Generation  uint64
}

// Options configures optional session behavior.
type Options struct {
	// Intn picks random indexes for shuffle. Defaults to rand.IntN.
	Intn func(n int) int
	// OnTrackStarted runs after a track's stream is attached.
	OnTrackStarted func(t track.Track)
	// OnNavigate runs after Next(true) selects a new index.
	OnNavigate func(index int)
}

// Session coordinates the queue, the resolver and the playback engine.
type Session struct {
	resolver Resolver
	engine   *player.Engine
	intn     func(int) int

	ctx    context.Context
	cancel context.CancelFunc
	loads  sync.WaitGroup

	mu             sync.Mutex
	queue          *queue.Queue
	shuffle        bool
	repeat         queue.RepeatMode
	generation     uint64
	loadingKey     string
	stopped        bool
	miniVisible    bool
	miniIndex      int
	onTrackStarted func(track.Track)
	onNavigate     func(int)
}

// New creates a session. A track that ends advances the queue.
func New(resolver Resolver, engine *player.Engine, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		resolver:       resolver,
		engine:         engine,
		intn:           opts.Intn,
		ctx:            ctx,
		cancel:         cancel,
		queue:          queue.New(),
		miniIndex:      -1,
		onTrackStarted: opts.OnTrackStarted,
		onNavigate:     opts.OnNavigate,
	}
	if s.intn == nil {
		s.intn = rand.IntN
	}
	engine.SetOnEnded(s.trackEnded)
	return s
}

// SetOnTrackStarted replaces the track-started hook.
func (s *Session) SetOnTrackStarted(fn func(track.Track)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTrackStarted = fn
}

// SetOnNavigate replaces the navigate hook.
func (s *Session) SetOnNavigate(fn func(int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNavigate = fn
}

// Engine exposes the playback engine for volume and rate control.
func (s *Session) Engine() *player.Engine {
	return s.engine
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Queue:       s.queue.Tracks(),
		Index:       s.queue.CurrentIndex(),
		Playback:    s.engine.State(),
		Shuffle:     s.shuffle,
		Repeat:      s.repeat,
		MiniVisible: s.miniVisible,
		MiniIndex:   s.miniIndex,
		Generation:  s.generation,
	}
	if t, ok := s.queue.Current(); ok {
		snap.Track = &t
	}
	snap.Status = s.statusLocked(snap.Playback)
	return snap
}

func (s *Session) statusLocked(ps player.PlaybackState) Status {
	switch {
	case s.queue.IsEmpty():
		return StatusEmpty
	case s.loadingKey != "" || ps.LoadingStream:
		return StatusLoading
	case ps.IsPlaying && ps.IsBuffering:
		return StatusBuffering
	case ps.IsPlaying:
		return StatusPlaying
	case s.stopped:
		return StatusStopped
	default:
		return StatusIdle
	}
}

// Wait blocks until every background resolution started so far has finished.
func (s *Session) Wait() {
	s.loads.Wait()
}

// Close releases the audio resource and abandons pending loads. Requests
// already sent to the backend still complete and populate the cache.
func (s *Session) Close() {
	s.cancel()
	s.engine.Detach()
	s.loads.Wait()
}
