package player

import (
	"errors"
	"time"
)

// ErrPlaybackRejected marks a start request the audio output refused, as
// opposed to a failure loading or decoding the stream.
var ErrPlaybackRejected = errors.New("playback rejected by audio output")

// Events is the fixed set of callbacks a Resource reports through. A
// Resource must never invoke them while holding one of its own locks.
type Events struct {
	OnMetadata   func(duration time.Duration)
	OnTimeUpdate func(position time.Duration)
	OnWaiting    func()
	OnPlaying    func()
	OnPaused     func()
	OnEnded      func()
	OnError      func(err error)
}

// Resource is a single playable audio source.
type Resource interface {
	// Source is the URL the resource was created for.
	Source() string
	// Play starts or resumes playback, blocking until audio is flowing or
	// the attempt failed.
	Play() error
	Pause()
	Seek(position time.Duration) error
	SetVolume(percent int)
	SetRate(rate float64)
	// Close stops playback and releases the resource. No event fires after
	// Close returns.
	Close()
}

// ResourceFactory creates a resource for url. It must not invoke events
// synchronously.
type ResourceFactory func(url string, events Events) Resource
