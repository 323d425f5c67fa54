// Package track defines the track descriptor consumed from the search backend
// and the identity rules used to tell two descriptors apart.
package track

import (
	"fmt"
	"strings"
	"time"
)

// Track is a remotely hosted audio track as returned by the backend.
type Track struct {
	ID         string  `json:"id"`
	WebpageURL string  `json:"webpage_url"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"` // seconds
	Thumbnail  string  `json:"thumbnail"`
	Uploader   string  `json:"uploader,omitempty"`
}

// Key returns the stable identity of the track: the canonical id, falling back
// to the page URL and then the title. The second return value is false when
// none of them is usable.
func (t *Track) Key() (string, bool) {
	if t == nil {
		return "", false
	}
	for _, candidate := range []string{t.ID, t.WebpageURL, t.Title} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s, true
		}
	}
	return "", false
}

// KeyOf is a convenience wrapper returning "" when the track has no identity.
func KeyOf(t *Track) string {
	key, _ := t.Key()
	return key
}

// DurationValue returns the descriptor duration as a time.Duration.
func (t *Track) DurationValue() time.Duration {
	if t == nil || t.Duration <= 0 {
		return 0
	}
	return time.Duration(t.Duration * float64(time.Second))
}

// DisplayTitle returns a label suitable for lists.
func (t *Track) DisplayTitle() string {
	if t == nil {
		return ""
	}
	title := strings.TrimSpace(t.Title)
	if title == "" {
		title = KeyOf(t)
	}
	if t.Uploader != "" {
		return fmt.Sprintf("%s - %s", t.Uploader, title)
	}
	return title
}

// SameKey reports whether both tracks resolve to the same non-empty key.
func SameKey(a, b *Track) bool {
	ka, okA := a.Key()
	kb, okB := b.Key()
	return okA && okB && ka == kb
}

// SameSong is the looser equality used when re-locating a track after the
// queue has been reordered: equal keys, or equal page URLs, or equal titles
// when neither side has a page URL.
func SameSong(a, b *Track) bool {
	if a == nil || b == nil {
		return false
	}
	if SameKey(a, b) {
		return true
	}
	ua, ub := strings.TrimSpace(a.WebpageURL), strings.TrimSpace(b.WebpageURL)
	if ua != "" || ub != "" {
		return ua != "" && ua == ub
	}
	ta, tb := strings.TrimSpace(a.Title), strings.TrimSpace(b.Title)
	return ta != "" && ta == tb
}
