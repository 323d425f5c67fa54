package store

import (
	"database/sql"
	"errors"

	"github.com/glebovdev/trackdeck/internal/track"
)

// SavedQueue is the queue restored on the next start.
type SavedQueue struct {
	CurrentIndex int
	Tracks       []track.Track
}

// SaveQueue replaces the stored queue.
func (s *Store) SaveQueue(q SavedQueue) error {
	return withTx(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM queue_tracks`); err != nil {
			return err
		}

		_, err := tx.Exec(`
			INSERT INTO queue_state (id, current_index)
			VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET current_index = excluded.current_index
		`, q.CurrentIndex)
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO queue_tracks (position, track_id, webpage_url, title, duration, thumbnail, uploader)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range q.Tracks {
			_, err = stmt.Exec(i, nullString(t.ID), nullString(t.WebpageURL), t.Title, t.Duration,
				nullString(t.Thumbnail), nullString(t.Uploader))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadQueue returns the stored queue, or an empty one with index -1.
func (s *Store) LoadQueue() (SavedQueue, error) {
	var current int
	err := s.db.QueryRow(`SELECT current_index FROM queue_state WHERE id = 1`).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedQueue{CurrentIndex: -1}, nil
	}
	if err != nil {
		return SavedQueue{}, err
	}

	rows, err := s.db.Query(`
		SELECT track_id, webpage_url, title, duration, thumbnail, uploader
		FROM queue_tracks
		ORDER BY position
	`)
	if err != nil {
		return SavedQueue{}, err
	}
	defer rows.Close()

	q := SavedQueue{CurrentIndex: current}
	for rows.Next() {
		var t track.Track
		var id, pageURL, thumb, uploader sql.NullString
		if err := rows.Scan(&id, &pageURL, &t.Title, &t.Duration, &thumb, &uploader); err != nil {
			return SavedQueue{}, err
		}
		t.ID = id.String
		t.WebpageURL = pageURL.String
		t.Thumbnail = thumb.String
		t.Uploader = uploader.String
		q.Tracks = append(q.Tracks, t)
	}
	return q, rows.Err()
}
