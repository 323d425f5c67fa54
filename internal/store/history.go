package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/glebovdev/trackdeck/internal/track"
)

// HistoryLimit is the number of history rows kept.
const HistoryLimit = 200

// HistoryEntry is one played track.
type HistoryEntry struct {
	ID       int64
	Key      string
	Track    track.Track
	PlayedAt time.Time
}

// AddHistory records that t started playing at playedAt and trims the oldest
// rows beyond HistoryLimit.
func (s *Store) AddHistory(t track.Track, playedAt time.Time) error {
	key, ok := t.Key()
	if !ok {
		return errors.New("track has no key")
	}
	return withTx(s.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO history (track_key, track_id, title, webpage_url, thumbnail, duration, played_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, key, nullString(t.ID), t.Title, nullString(t.WebpageURL), nullString(t.Thumbnail), t.Duration, playedAt.UnixMilli())
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			DELETE FROM history WHERE id NOT IN (
				SELECT id FROM history ORDER BY played_at DESC, id DESC LIMIT ?
			)
		`, HistoryLimit)
		return err
	})
}

// History returns up to limit entries, most recent first. limit <= 0 means
// HistoryLimit.
func (s *Store) History(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	rows, err := s.db.Query(`
		SELECT id, track_key, track_id, title, webpage_url, thumbnail, duration, played_at
		FROM history
		ORDER BY played_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var trackID, pageURL, thumb sql.NullString
		var playedAt int64

		if err := rows.Scan(&e.ID, &e.Key, &trackID, &e.Track.Title, &pageURL, &thumb, &e.Track.Duration, &playedAt); err != nil {
			return nil, err
		}
		e.Track.ID = trackID.String
		e.Track.WebpageURL = pageURL.String
		e.Track.Thumbnail = thumb.String
		e.PlayedAt = time.UnixMilli(playedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PlayCount returns how many history rows exist for key.
func (s *Store) PlayCount(key string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM history WHERE track_key = ?`, key).Scan(&n)
	return n, err
}

// ClearHistory deletes all history rows.
func (s *Store) ClearHistory() error {
	_, err := s.db.Exec(`DELETE FROM history`)
	return err
}
