package store

import (
	"database/sql"
	"errors"
	"time"
)

// Download is a completed download on disk.
type Download struct {
	ID        string
	Key       string
	Title     string
	Path      string
	Bytes     int64
	CreatedAt time.Time
}

// AddDownload records a completed download. Saving the same ID twice
// replaces the earlier row.
func (s *Store) AddDownload(d Download) error {
	_, err := s.db.Exec(`
		INSERT INTO downloads (id, track_key, title, path, bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			track_key = excluded.track_key,
			title = excluded.title,
			path = excluded.path,
			bytes = excluded.bytes,
			created_at = excluded.created_at
	`, d.ID, d.Key, d.Title, d.Path, d.Bytes, d.CreatedAt.UnixMilli())
	return err
}

// Downloads returns all downloads, newest first.
func (s *Store) Downloads() ([]Download, error) {
	rows, err := s.db.Query(`
		SELECT id, track_key, title, path, bytes, created_at
		FROM downloads
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DownloadByKey returns the newest download of the track with key.
func (s *Store) DownloadByKey(key string) (Download, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, track_key, title, path, bytes, created_at
		FROM downloads
		WHERE track_key = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, key)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Download{}, false, nil
	}
	if err != nil {
		return Download{}, false, err
	}
	return d, true, nil
}

// DeleteDownload removes the record with id. The file is left alone.
func (s *Store) DeleteDownload(id string) error {
	_, err := s.db.Exec(`DELETE FROM downloads WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDownload(row scanner) (Download, error) {
	var d Download
	var createdAt int64
	if err := row.Scan(&d.ID, &d.Key, &d.Title, &d.Path, &d.Bytes, &createdAt); err != nil {
		return Download{}, err
	}
	d.CreatedAt = time.UnixMilli(createdAt)
	return d, nil
}
