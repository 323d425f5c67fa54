// Package thumbs keeps downloaded track artwork on disk so the UI does not
// refetch it on every selection.
package thumbs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long cached artwork is valid.
	DefaultExpiry = 7 * 24 * time.Hour
	// MaxBytes caps a single cached file.
	MaxBytes = 4 << 20

	appName   = "trackdeck"
	subdir    = "thumbs"
	extension = ".img"
)

// Cache stores raw artwork bytes keyed by URL.
type Cache struct {
	dir    string
	expiry time.Duration
	now    func() time.Time
}

// New creates a cache in the XDG cache directory.
func New() *Cache {
	return NewWithDir(Dir(), DefaultExpiry)
}

// NewWithDir creates a cache rooted at dir.
func NewWithDir(dir string, expiry time.Duration) *Cache {
	return &Cache{dir: dir, expiry: expiry, now: time.Now}
}

// Dir returns the default artwork directory.
func Dir() string {
	return filepath.Join(xdg.CacheHome, appName, subdir)
}

func fileName(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16]) + extension
}

func (c *Cache) path(url string) string {
	return filepath.Join(c.dir, fileName(url))
}

// Get returns the cached bytes for url. Expired files are removed.
func (c *Cache) Get(url string) ([]byte, bool) {
	p := c.path(url)

	info, err := os.Stat(p)
	if err != nil {
		return nil, false
	}
	if c.now().Sub(info.ModTime()) > c.expiry {
		if err := os.Remove(p); err != nil {
			log.Debug().Err(err).Str("file", p).Msg("Failed to remove expired thumbnail")
		}
		return nil, false
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Image returns the decoded cached image for url, or nil.
func (c *Cache) Image(url string) image.Image {
	data, ok := c.Get(url)
	if !ok {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("Failed to decode cached thumbnail")
		return nil
	}
	return img
}

// Put stores data for url, replacing any previous file atomically.
func (c *Cache) Put(url string, data []byte) error {
	if len(data) > MaxBytes {
		return fmt.Errorf("thumbnail is %d bytes, limit is %d", len(data), MaxBytes)
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".thumb-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path(url)); err != nil {
		return fmt.Errorf("failed to store thumbnail: %w", err)
	}
	tmpPath = ""
	return nil
}

// CleanExpired removes cached files older than the expiry and returns how
// many were deleted.
func (c *Cache) CleanExpired() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := c.now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != extension {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= c.expiry {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			failed++
			continue
		}
		removed++
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Thumbnail cleanup completed")
	}
	return removed, nil
}

// Usage returns the number of cached files and their total size.
func (c *Cache) Usage() (files int, size int64, err error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != extension {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files++
		size += info.Size()
	}
	return files, size, nil
}
