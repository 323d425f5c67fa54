package session

import (
	"github.com/glebovdev/trackdeck/internal/streamcache"
	"github.com/rs/zerolog/log"
)

// loadLocked starts loading the track at index. Must be called with s.mu held.
func (s *Session) loadLocked(index int, autoplay bool) {
	if s.ctx.Err() != nil {
		return
	}
	t, ok := s.queue.At(index)
	if !ok {
		return
	}
	key, ok := t.Key()
	if !ok {
		log.Debug().Int("index", index).Msg("Track has no usable key, not loading")
		return
	}
	s.stopped = false
	s.engine.SetDuration(t.DurationValue())

	if s.engine.AutoplayFailed(key) {
		// Never retry automatically: only a cached URL is attached, paused,
		// and the user has to start it.
		if entry, ok := s.resolver.Lookup(key); ok {
			log.Debug().Str("key", key).Msg("Autoplay failed earlier, attaching without autoplay")
			s.engine.Attach(key, entry.URL, false)
		} else {
			log.Debug().Str("key", key).Msg("Autoplay failed earlier and nothing cached, not loading")
		}
		return
	}

	s.generation++
	g := s.generation

	if s.loadingKey != "" && s.loadingKey != key {
		log.Debug().Str("key", s.loadingKey).Msg("Canceling superseded stream resolution")
		s.resolver.Cancel(s.loadingKey)
	}
	s.loadingKey = key
	s.engine.SetLoading(true)

	s.loads.Add(1)
	go s.resolveAndAttach(g, key, autoplay)
}

func (s *Session) resolveAndAttach(g uint64, key string, autoplay bool) {
	defer s.loads.Done()

	url, err := s.resolver.Resolve(s.ctx, key)

	s.mu.Lock()
	latest := g == s.generation
	current := latest && s.queue.CurrentKey() == key
	if latest {
		s.loadingKey = ""
	}

	if err != nil {
		switch {
		case streamcache.IsCanceled(err):
			log.Debug().Str("key", key).Uint64("generation", g).Msg("Stream resolution canceled")
		case !current:
			log.Debug().Err(err).Str("key", key).Uint64("generation", g).Msg("Ignoring failure of superseded load")
		default:
			s.engine.Fail(err)
			log.Error().Err(err).Str("key", key).Msg("Failed to resolve stream")
		}
		if latest {
			s.engine.SetLoading(false)
		}
		s.mu.Unlock()
		return
	}

	if !current {
		log.Debug().Str("key", key).Uint64("generation", g).Uint64("latest", s.generation).Msg("Discarding stale stream resolution")
		if latest {
			s.engine.SetLoading(false)
		}
		s.mu.Unlock()
		return
	}

	s.engine.Attach(key, url, autoplay)
	t, _ := s.queue.Current()
	s.prefetchLocked()
	hook := s.onTrackStarted
	s.mu.Unlock()

	log.Debug().Str("key", key).Uint64("generation", g).Msg("Stream attached")
	if hook != nil {
		hook(t)
	}
}

// prefetchLocked resolves, without attaching, the next track in linear play
// order. Must be called with s.mu held.
func (s *Session) prefetchLocked() {
	if s.shuffle || s.queue.Len() <= 1 {
		return
	}
	next, ok := s.queue.NextLinear(s.repeat)
	if !ok || next == s.queue.CurrentIndex() {
		return
	}
	t, _ := s.queue.At(next)
	key, ok := t.Key()
	if !ok {
		return
	}
	if _, cached := s.resolver.Lookup(key); cached {
		return
	}

	s.loads.Add(1)
	go func() {
		defer s.loads.Done()
		if _, err := s.resolver.Resolve(s.ctx, key); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Prefetch failed")
			return
		}
		log.Debug().Str("key", key).Msg("Prefetched stream")
	}()
}

