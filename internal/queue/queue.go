// Package queue holds the ordered list of tracks the session plays from and
// the index-selection policy used when advancing.
package queue

import (
	"fmt"
	"strings"

	"github.com/glebovdev/trackdeck/internal/track"
	"github.com/samber/lo"
)

// MaxSize is the most entries a queue holds. Overflow is dropped from the tail.
const MaxSize = 50

// RepeatMode controls what happens after the last track.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "none"
	}
}

// ParseRepeatMode accepts "none", "all" or "one" (case-insensitive).
// An empty string means RepeatNone.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return RepeatNone, nil
	case "all":
		return RepeatAll, nil
	case "one":
		return RepeatOne, nil
	}
	return RepeatNone, fmt.Errorf("unknown repeat mode %q", s)
}

// Queue is an ordered, capacity-bounded list of tracks with a current index.
// It is not safe for concurrent use.
type Queue struct {
	tracks  []track.Track
	current int // -1 if nothing selected
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{current: -1}
}

// Len returns the number of tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// IsEmpty reports whether the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return len(q.tracks) == 0
}

// Tracks returns a copy of the queue contents.
func (q *Queue) Tracks() []track.Track {
	return append([]track.Track(nil), q.tracks...)
}

// At returns the track at index i.
func (q *Queue) At(i int) (track.Track, bool) {
	if !q.Valid(i) {
		return track.Track{}, false
	}
	return q.tracks[i], true
}

// Valid reports whether i indexes an entry.
func (q *Queue) Valid(i int) bool {
	return i >= 0 && i < len(q.tracks)
}

// CurrentIndex returns the selected index, or -1.
func (q *Queue) CurrentIndex() int {
	return q.current
}

// Current returns the selected track.
func (q *Queue) Current() (track.Track, bool) {
	return q.At(q.current)
}

// CurrentKey returns the key of the selected track, or "".
func (q *Queue) CurrentKey() string {
	t, ok := q.Current()
	if !ok {
		return ""
	}
	return track.KeyOf(&t)
}

// Select sets the current index. Out-of-range indexes are rejected.
func (q *Queue) Select(i int) bool {
	if !q.Valid(i) {
		return false
	}
	q.current = i
	return true
}

// Deselect clears the current index without touching the contents.
func (q *Queue) Deselect() {
	q.current = -1
}

// Replace swaps the contents and selects start, clamped into range.
func (q *Queue) Replace(tracks []track.Track, start int) {
	q.tracks = truncate(append([]track.Track(nil), tracks...))
	q.current = clampIndex(start, len(q.tracks))
}

// Enqueue appends tracks and returns how many fit.
func (q *Queue) Enqueue(tracks ...track.Track) int {
	room := MaxSize - len(q.tracks)
	if room <= 0 {
		return 0
	}
	if len(tracks) > room {
		tracks = tracks[:room]
	}
	q.tracks = append(q.tracks, tracks...)
	return len(tracks)
}

// Clear removes all tracks and the selection.
func (q *Queue) Clear() {
	q.tracks = nil
	q.current = -1
}

// Reorder replaces the contents with newOrder and re-locates the selected
// track by song identity. It reports whether the selected track was found;
// when it was not, the index is clamped into the new bounds.
func (q *Queue) Reorder(newOrder []track.Track) bool {
	prev, hadCurrent := q.Current()
	q.tracks = truncate(append([]track.Track(nil), newOrder...))

	if hadCurrent {
		if _, idx, ok := lo.FindIndexOf(q.tracks, func(t track.Track) bool {
			return track.SameSong(&prev, &t)
		}); ok {
			q.current = idx
			return true
		}
	}
	if q.current >= 0 {
		q.current = clampIndex(q.current, len(q.tracks))
	}
	return false
}

// Move repositions one entry and keeps the selection on the same track.
func (q *Queue) Move(from, to int) error {
	if !q.Valid(from) || !q.Valid(to) {
		return fmt.Errorf("move %d -> %d: index out of range [0,%d)", from, to, len(q.tracks))
	}
	if from == to {
		return nil
	}

	t := q.tracks[from]
	q.tracks = append(q.tracks[:from], q.tracks[from+1:]...)
	q.tracks = append(q.tracks[:to], append([]track.Track{t}, q.tracks[to:]...)...)

	switch {
	case q.current == from:
		q.current = to
	case from < q.current && to >= q.current:
		q.current--
	case from > q.current && to <= q.current:
		q.current++
	}
	return nil
}

// RemoveAt deletes the entry at i. When the selected entry is removed the
// index stays put, now pointing at the entry that slid into its place, and
// is clamped if it fell off the end. The second result reports whether the
// selected entry was the one removed.
func (q *Queue) RemoveAt(i int) (removed bool, wasCurrent bool) {
	if !q.Valid(i) {
		return false, false
	}
	q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)

	switch {
	case q.current > i:
		q.current--
	case q.current == i:
		wasCurrent = true
		if q.current >= len(q.tracks) {
			q.current = len(q.tracks) - 1
		}
	}
	return true, wasCurrent
}

// IndexOfKey returns the first index whose track key equals key, or -1.
func (q *Queue) IndexOfKey(key string) int {
	if key == "" {
		return -1
	}
	_, idx, ok := lo.FindIndexOf(q.tracks, func(t track.Track) bool {
		return track.KeyOf(&t) == key
	})
	if !ok {
		return -1
	}
	return idx
}

// NextLinear returns the index after the current one in play order. At the
// last index it wraps to 0 only with RepeatAll; otherwise ok is false.
func (q *Queue) NextLinear(repeat RepeatMode) (int, bool) {
	if len(q.tracks) == 0 {
		return -1, false
	}
	next := q.current + 1
	if next < len(q.tracks) {
		return next, true
	}
	if repeat == RepeatAll {
		return 0, true
	}
	return q.current, false
}

// NextRandom picks a uniformly random index different from the current one.
// intn must behave like rand.IntN. It needs at least two entries.
func (q *Queue) NextRandom(intn func(int) int) (int, bool) {
	n := len(q.tracks)
	if n < 2 {
		return -1, false
	}
	if !q.Valid(q.current) {
		return intn(n), true
	}
	// Draw from the n-1 other slots and skip over current.
	i := intn(n - 1)
	if i >= q.current {
		i++
	}
	return i, true
}

// PrevIndex returns max(0, current-1) without wrapping.
func (q *Queue) PrevIndex() (int, bool) {
	if len(q.tracks) == 0 {
		return -1, false
	}
	return max(0, q.current-1), true
}

func truncate(tracks []track.Track) []track.Track {
	if len(tracks) > MaxSize {
		return tracks[:MaxSize]
	}
	return tracks
}

func clampIndex(i, n int) int {
	if n == 0 {
		return -1
	}
	return max(0, min(i, n-1))
}
