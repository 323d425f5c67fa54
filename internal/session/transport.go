package session

import (
	"fmt"
	"time"

	"github.com/glebovdev/trackdeck/internal/queue"
	"github.com/glebovdev/trackdeck/internal/track"
	"github.com/rs/zerolog/log"
)

// Play resumes the attached stream, or loads the selected track when nothing
// is attached yet. It counts as a user gesture and clears any failed-autoplay
// mark for the track.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine.HasResource() && s.engine.AttachedKey() == s.queue.CurrentKey() {
		s.stopped = false
		return s.engine.Play()
	}

	idx := s.queue.CurrentIndex()
	if !s.queue.Valid(idx) {
		return ErrNoTrack
	}
	s.engine.ClearAutoplayFailure(s.queue.CurrentKey())
	s.loadLocked(idx, true)
	return nil
}

// Pause pauses playback.
func (s *Session) Pause() {
	s.engine.Pause()
}

// PlayPause toggles between Play and Pause.
func (s *Session) PlayPause() error {
	if s.engine.State().IsPlaying {
		s.Pause()
		return nil
	}
	return s.Play()
}

// PlayIndex tears down the current stream and starts the track at i.
func (s *Session) PlayIndex(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.queue.Valid(i) {
		return fmt.Errorf("%w: %d (queue has %d)", ErrIndexOutOfRange, i, s.queue.Len())
	}
	s.engine.Detach()
	s.engine.ResetPosition()
	s.queue.Select(i)
	s.loadLocked(i, true)
	return nil
}

// Next advances according to shuffle and repeat. With repeat off at the last
// track playback stops and the index stays put. navigate reports a user
// navigation and fires the OnNavigate hook; track ends go through trackEnded.
func (s *Session) Next(navigate bool) {
	s.mu.Lock()
	idx, moved := s.nextLocked()
	hook := s.onNavigate
	s.mu.Unlock()

	if moved && navigate && hook != nil {
		hook(idx)
	}
}

func (s *Session) nextLocked() (int, bool) {
	if s.queue.IsEmpty() {
		return -1, false
	}
	if s.shuffle && s.queue.Len() > 1 {
		idx, _ := s.queue.NextRandom(s.intn)
		s.navigateLocked(idx)
		return idx, true
	}
	idx, ok := s.queue.NextLinear(s.repeat)
	if !ok {
		log.Debug().Int("index", s.queue.CurrentIndex()).Msg("End of queue reached")
		s.abandonLoadLocked()
		s.engine.Pause()
		s.stopped = true
		return s.queue.CurrentIndex(), false
	}
	s.navigateLocked(idx)
	return idx, true
}

// trackEnded advances after the attached track for key finished. Ends that
// were overtaken by a navigation, play or seek are dropped.
func (s *Session) trackEnded(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != s.queue.CurrentKey() || !s.engine.Finished(key) {
		log.Debug().Str("key", key).Msg("Ignoring stale track end")
		return
	}
	s.nextLocked()
}

// Prev moves to the previous track without wrapping. On the first track it
// restarts it.
func (s *Session) Prev() {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.queue.PrevIndex()
	if !ok {
		return
	}
	s.navigateLocked(idx)
}

// navigateLocked moves playback to idx. Reselecting the attached track
// rewinds it instead of reloading.
func (s *Session) navigateLocked(idx int) {
	if idx == s.queue.CurrentIndex() && s.engine.HasResource() && s.engine.AttachedKey() == s.queue.CurrentKey() {
		s.engine.Seek(0)
		s.stopped = false
		if err := s.engine.Play(); err != nil {
			log.Warn().Err(err).Msg("Failed to restart track")
		}
		return
	}
	s.engine.Detach()
	s.engine.ResetPosition()
	s.queue.Select(idx)
	s.loadLocked(idx, true)
}

// Seek moves the playhead and returns the clamped position.
func (s *Session) Seek(position time.Duration) time.Duration {
	return s.engine.Seek(position)
}

// Stop tears down playback and clears the selection. In-flight resolutions
// keep running and still populate the cache, but their results are dropped.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.queue.Deselect()
}

// SetQueueFromSearchResults replaces the queue and selects startIndex
// (clamped) without starting playback. A stream that belongs to a different
// track than the new selection is torn down.
func (s *Session) SetQueueFromSearchResults(tracks []track.Track, startIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abandonLoadLocked()
	s.queue.Replace(tracks, startIndex)
	if s.engine.AttachedKey() != s.queue.CurrentKey() {
		s.engine.Detach()
	}
	s.engine.ResetPosition()
	if t, ok := s.queue.Current(); ok {
		s.engine.SetDuration(t.DurationValue())
	}
	s.miniIndex = -1
	s.miniVisible = false
	log.Debug().Int("tracks", s.queue.Len()).Int("index", s.queue.CurrentIndex()).Msg("Queue replaced")
}

// Enqueue appends tracks and returns how many fit.
func (s *Session) Enqueue(tracks ...track.Track) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Enqueue(tracks...)
}

// ReorderQueue replaces the queue with newOrder, keeping the selection on
// the same song. Playback stops if the queue became empty.
func (s *Session) ReorderQueue(newOrder []track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.queue.Reorder(newOrder) && s.queue.IsEmpty() {
		s.stopLocked()
		s.miniVisible = false
		s.miniIndex = -1
	}
}

// MoveQueueItem moves one entry, keeping the selection on the same track.
func (s *Session) MoveQueueItem(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.queue.Move(from, to); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexOutOfRange, err)
	}
	return nil
}

// RemoveAt deletes the entry at i. Removing the selected track stops
// playback; the selection moves to the entry that took its place.
func (s *Session) RemoveAt(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(i)
}

// RemoveKey deletes the first entry whose key is key.
func (s *Session) RemoveKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.queue.IndexOfKey(key)
	if idx < 0 {
		return fmt.Errorf("%w: %q not in queue", ErrNoTrack, key)
	}
	return s.removeLocked(idx)
}

func (s *Session) removeLocked(i int) error {
	removed, wasCurrent := s.queue.RemoveAt(i)
	if !removed {
		return fmt.Errorf("%w: %d (queue has %d)", ErrIndexOutOfRange, i, s.queue.Len())
	}
	if wasCurrent {
		s.stopLocked()
	}
	if s.miniIndex >= s.queue.Len() {
		s.miniIndex = s.queue.Len() - 1
		if s.miniIndex < 0 {
			s.miniVisible = false
		}
	}
	return nil
}

func (s *Session) stopLocked() {
	s.abandonLoadLocked()
	s.engine.Detach()
	s.engine.ResetPosition()
	s.stopped = true
}

// abandonLoadLocked makes any pending load stale so its result never
// attaches. The resolution itself keeps running and still fills the cache.
func (s *Session) abandonLoadLocked() {
	s.generation++
	s.loadingKey = ""
	s.engine.SetLoading(false)
}

// SetShuffle toggles random next-track selection.
func (s *Session) SetShuffle(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuffle = on
}

// SetRepeatMode sets the repeat policy. RepeatOne makes the engine loop the
// current track.
func (s *Session) SetRepeatMode(mode queue.RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeat = mode
	s.engine.SetLoop(mode == queue.RepeatOne)
}

// ShowMiniForIndex shows the mini-player for track i. The flag alone never
// changes playback; with autoplay the track is started unless it is already
// the attached one.
func (s *Session) ShowMiniForIndex(i int, autoplay bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.queue.Valid(i) {
		return fmt.Errorf("%w: %d (queue has %d)", ErrIndexOutOfRange, i, s.queue.Len())
	}
	s.miniVisible = true
	s.miniIndex = i
	if !autoplay {
		return nil
	}

	t, _ := s.queue.At(i)
	if key := track.KeyOf(&t); key != "" && key == s.engine.AttachedKey() {
		s.queue.Select(i)
		if !s.engine.State().IsPlaying {
			return s.engine.Play()
		}
		return nil
	}
	s.engine.Detach()
	s.engine.ResetPosition()
	s.queue.Select(i)
	s.loadLocked(i, true)
	return nil
}

// CloseMini hides the mini-player. Playback is untouched.
func (s *Session) CloseMini() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.miniVisible = false
}
