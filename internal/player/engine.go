// Package player owns the single active audio resource: it attaches resolved
// stream URLs, wires resource events into playback state and tracks keys whose
// automatic start was refused.
package player

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoResource is returned by transport calls when nothing is attached.
var ErrNoResource = errors.New("no audio resource attached")

// PlaybackState is a snapshot of what the engine is doing.
type PlaybackState struct {
	IsPlaying     bool
	IsBuffering   bool
	LoadingStream bool
	Position      time.Duration
	Duration      time.Duration
	Source        string
	Key           string
	LastError     string
	Volume        int
	Rate          float64
}

// attachment binds one resource to the key it plays. Event handlers capture
// their attachment and are ignored once it is no longer current.
type attachment struct {
	key string
	url string
	res Resource

	// finished is set when the track ended without looping and cleared by
	// any later play or seek on the same attachment.
	finished bool
}

// Engine manages at most one audio resource at a time.
type Engine struct {
	factory ResourceFactory

	mu      sync.Mutex
	att     *attachment
	state   PlaybackState
	volume  int
	rate    float64
	loop    bool
	failed  map[string]struct{}
	onEnded func(key string)
}

// NewEngine creates an engine that builds resources with factory.
func NewEngine(factory ResourceFactory) *Engine {
	return &Engine{
		factory: factory,
		volume:  100,
		rate:    DefaultRate,
		failed:  make(map[string]struct{}),
	}
}

// SetOnEnded registers the callback run with the attached key when a track
// finishes and looping is off. It is invoked on its own goroutine, so the
// receiver should confirm with Finished that the end is still current.
func (e *Engine) SetOnEnded(fn func(key string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnded = fn
}

// SetLoop makes a finished track restart from the beginning instead of
// advancing.
func (e *Engine) SetLoop(loop bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loop = loop
}

// State returns the current playback state.
func (e *Engine) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	st.Volume = e.volume
	st.Rate = e.rate
	return st
}

// HasResource reports whether a resource is attached.
func (e *Engine) HasResource() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.att != nil && e.att.res != nil
}

// AttachedKey returns the key of the attached resource, or "".
func (e *Engine) AttachedKey() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.att == nil {
		return ""
	}
	return e.att.key
}

// Finished reports whether the attached resource belongs to key and ended
// with nothing played or sought since.
func (e *Engine) Finished(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.att != nil && e.att.key == key && e.att.finished
}

// Attach makes url the active source for key. When the attached resource
// already plays url it is reused; otherwise the previous resource is torn
// down first. With autoplay set, playback is started asynchronously and a
// refusal marks key as failed-autoplay.
func (e *Engine) Attach(key, url string, autoplay bool) {
	e.mu.Lock()
	if cur := e.att; cur != nil && cur.res != nil && cur.url == url {
		cur.key = key
		cur.finished = false
		volume, rate := e.volume, e.rate
		e.state.Key = key
		e.state.LoadingStream = false
		e.state.LastError = ""
		e.mu.Unlock()

		log.Debug().Str("key", key).Msg("Reusing attached audio resource")
		cur.res.SetVolume(volume)
		cur.res.SetRate(rate)
		if autoplay {
			go e.start(cur, true)
		}
		return
	}

	old := e.att
	att := &attachment{key: key, url: url}
	e.att = att
	volume, rate := e.volume, e.rate
	e.state.IsPlaying = false
	e.state.IsBuffering = false
	e.state.LoadingStream = false
	e.state.Position = 0
	e.state.Source = url
	e.state.Key = key
	e.state.LastError = ""
	e.mu.Unlock()

	if old != nil && old.res != nil {
		old.res.Close()
	}

	res := e.factory(url, e.eventsFor(att))
	res.SetVolume(volume)
	res.SetRate(rate)

	e.mu.Lock()
	if e.att != att {
		// Superseded while the resource was being built.
		e.mu.Unlock()
		res.Close()
		return
	}
	att.res = res
	e.mu.Unlock()

	log.Debug().Str("key", key).Bool("autoplay", autoplay).Msg("Attached audio resource")

	if autoplay {
		go e.start(att, true)
	}
}

// Detach stops and releases the active resource. It never touches stream
// resolution: in-flight requests for any key keep running.
func (e *Engine) Detach() {
	e.mu.Lock()
	old := e.att
	e.att = nil
	e.state.IsPlaying = false
	e.state.IsBuffering = false
	e.state.Source = ""
	e.state.Key = ""
	e.mu.Unlock()

	if old != nil && old.res != nil {
		old.res.Close()
		log.Debug().Str("key", old.key).Msg("Detached audio resource")
	}
}

// Play resumes the attached resource on behalf of the user. A user gesture
// clears any failed-autoplay mark for the key.
func (e *Engine) Play() error {
	e.mu.Lock()
	att := e.att
	if att == nil || att.res == nil {
		e.mu.Unlock()
		return ErrNoResource
	}
	delete(e.failed, att.key)
	att.finished = false
	e.mu.Unlock()

	go e.start(att, false)
	return nil
}

// Pause pauses the attached resource.
func (e *Engine) Pause() {
	e.mu.Lock()
	att := e.att
	e.state.IsPlaying = false
	e.mu.Unlock()

	if att != nil && att.res != nil {
		att.res.Pause()
	}
}

func (e *Engine) start(att *attachment, auto bool) {
	err := att.res.Play()
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.att != att {
		return
	}

	e.state.IsPlaying = false
	e.state.IsBuffering = false
	e.state.LoadingStream = false
	e.state.LastError = err.Error()

	if auto && errors.Is(err, ErrPlaybackRejected) {
		e.failed[att.key] = struct{}{}
		log.Warn().Err(err).Str("key", att.key).Msg("Autoplay rejected, waiting for user action")
		return
	}
	log.Error().Err(err).Str("key", att.key).Msg("Playback failed to start")
}

// Seek moves the playhead, clamped into [0, duration]. With an unknown
// duration only the lower bound applies. Without a resource only the
// reported position changes. The clamped position is returned.
func (e *Engine) Seek(position time.Duration) time.Duration {
	e.mu.Lock()
	if position < 0 {
		position = 0
	}
	if d := e.state.Duration; d > 0 && position > d {
		position = d
	}
	e.state.Position = position
	att := e.att
	if att != nil {
		att.finished = false
	}
	e.mu.Unlock()

	if att != nil && att.res != nil {
		if err := att.res.Seek(position); err != nil {
			log.Warn().Err(err).Dur("position", position).Msg("Seek failed")
		}
	}
	return position
}

// ResetPosition sets the reported position back to zero.
func (e *Engine) ResetPosition() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Position = 0
}

// SetDuration records a known duration ahead of metadata, e.g. from the
// track descriptor.
func (e *Engine) SetDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d < 0 {
		d = 0
	}
	e.state.Duration = d
}

// SetLoading flags whether a stream resolution is in progress.
func (e *Engine) SetLoading(loading bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.LoadingStream = loading
	if loading {
		e.state.LastError = ""
	}
}

// Fail records a resolution failure: nothing is loading or buffering.
func (e *Engine) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.LoadingStream = false
	e.state.IsBuffering = false
	if err != nil {
		e.state.LastError = err.Error()
	}
}

// SetVolume applies a 0-100 volume to the current and future resources.
func (e *Engine) SetVolume(percent int) {
	e.mu.Lock()
	e.volume = max(0, min(100, percent))
	volume := e.volume
	att := e.att
	e.mu.Unlock()

	if att != nil && att.res != nil {
		att.res.SetVolume(volume)
	}
}

// Volume returns the configured volume.
func (e *Engine) Volume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// SetRate applies a playback rate to the current and future resources.
func (e *Engine) SetRate(rate float64) {
	e.mu.Lock()
	e.rate = clampRate(rate)
	rate = e.rate
	att := e.att
	e.mu.Unlock()

	if att != nil && att.res != nil {
		att.res.SetRate(rate)
	}
}

// Rate returns the playback rate applied to resources.
func (e *Engine) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

// AutoplayFailed reports whether an automatic start was refused for key.
func (e *Engine) AutoplayFailed(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.failed[key]
	return ok
}

// ClearAutoplayFailure forgets a failed-autoplay mark.
func (e *Engine) ClearAutoplayFailure(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.failed, key)
}

// guard runs fn with the lock held if att is still the current attachment.
func (e *Engine) guard(att *attachment, fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.att != att {
		return false
	}
	fn()
	return true
}

func (e *Engine) eventsFor(att *attachment) Events {
	return Events{
		OnMetadata: func(d time.Duration) {
			e.guard(att, func() {
				if d > 0 {
					e.state.Duration = d
				}
			})
		},
		OnTimeUpdate: func(pos time.Duration) {
			e.guard(att, func() { e.state.Position = pos })
		},
		OnWaiting: func() {
			e.guard(att, func() { e.state.IsBuffering = true })
		},
		OnPlaying: func() {
			e.guard(att, func() {
				e.state.IsPlaying = true
				e.state.IsBuffering = false
				e.state.LoadingStream = false
				e.state.LastError = ""
			})
		},
		OnPaused: func() {
			e.guard(att, func() { e.state.IsPlaying = false })
		},
		OnEnded: func() {
			var loop bool
			var onEnded func(string)
			var res Resource
			var key string
			current := e.guard(att, func() {
				key = att.key
				loop = e.loop
				res = att.res
				onEnded = e.onEnded
				if loop {
					e.state.Position = 0
				} else {
					e.state.IsPlaying = false
					att.finished = true
				}
			})
			if !current || res == nil {
				return
			}
			if loop {
				log.Debug().Str("key", key).Msg("Track ended, repeating")
				go func() {
					if err := res.Seek(0); err != nil {
						log.Warn().Err(err).Msg("Failed to rewind for repeat")
					}
					e.start(att, false)
				}()
				return
			}
			log.Debug().Str("key", key).Msg("Track ended")
			if onEnded != nil {
				go onEnded(key)
			}
		},
		OnError: func(err error) {
			e.guard(att, func() {
				e.state.IsPlaying = false
				e.state.IsBuffering = false
				e.state.LoadingStream = false
				if err != nil {
					e.state.LastError = err.Error()
				}
			})
			log.Error().Err(err).Str("key", att.key).Msg("Playback error")
		},
	}
}
