// Package service provides the search layer the UI and CLI sit on top of.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"
	"time"

	"github.com/glebovdev/trackdeck/internal/config"
	"github.com/glebovdev/trackdeck/internal/thumbs"
	"github.com/glebovdev/trackdeck/internal/track"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const imageLoadTimeout = 15 * time.Second

// ErrEmptyQuery is returned when a search has nothing to look for.
var ErrEmptyQuery = errors.New("empty search query")

// Searcher runs a backend search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]track.Track, error)
}

// SearchService keeps the latest search results and loads their artwork.
type SearchService struct {
	searcher Searcher
	thumbs   *thumbs.Cache
	images   *resty.Client

	mu        sync.RWMutex
	results   []track.Track
	lastQuery string
}

// NewSearchService creates a SearchService. thumbCache may be nil, in
// which case artwork is fetched on every request.
func NewSearchService(searcher Searcher, thumbCache *thumbs.Cache) *SearchService {
	if thumbCache != nil {
		go func() {
			if _, err := thumbCache.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired thumbnails")
			}
		}()
	}

	return &SearchService{
		searcher: searcher,
		thumbs:   thumbCache,
		images: resty.New().
			SetTimeout(imageLoadTimeout).
			SetHeader("User-Agent", fmt.Sprintf("trackdeck/%s", config.AppVersion)),
	}
}

// Search runs query against the backend and replaces the stored results.
// On failure the previous results are kept.
func (s *SearchService) Search(ctx context.Context, query string) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	results, err := s.searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	results = dropKeyless(results)

	s.mu.Lock()
	s.results = results
	s.lastQuery = query
	s.mu.Unlock()

	log.Debug().Str("query", query).Int("count", len(results)).Msg("Search completed")
	return s.Results(), nil
}

func dropKeyless(tracks []track.Track) []track.Track {
	out := make([]track.Track, 0, len(tracks))
	for i := range tracks {
		if _, ok := tracks[i].Key(); !ok {
			log.Debug().Str("title", tracks[i].Title).Msg("Dropping search result without a key")
			continue
		}
		out = append(out, tracks[i])
	}
	return out
}

// Results returns a copy of the latest results.
func (s *SearchService) Results() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]track.Track, len(s.results))
	copy(result, s.results)
	return result
}

// LastQuery returns the query that produced the current results.
func (s *SearchService) LastQuery() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastQuery
}

func (s *SearchService) ResultCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Result returns a copy of the result at index, or nil when out of range.
func (s *SearchService) Result(index int) *track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.results) {
		return nil
	}
	t := s.results[index]
	return &t
}

func (s *SearchService) FindIndexByKey(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.results {
		if track.KeyOf(&s.results[i]) == key {
			return i
		}
	}
	return -1
}

// LoadThumbnail returns the artwork at url, from the cache when possible.
func (s *SearchService) LoadThumbnail(ctx context.Context, url string) (image.Image, error) {
	if url == "" {
		return nil, errors.New("track has no thumbnail")
	}

	if s.thumbs != nil {
		if img := s.thumbs.Image(url); img != nil {
			log.Debug().Str("url", url).Msg("Thumbnail loaded from cache")
			return img, nil
		}
	}

	resp, err := s.images.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thumbnail: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("thumbnail request returned status %d", resp.StatusCode())
	}

	data := resp.Body()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode thumbnail: %w", err)
	}

	if s.thumbs != nil {
		go func() {
			if err := s.thumbs.Put(url, data); err != nil {
				log.Debug().Err(err).Str("url", url).Msg("Failed to cache thumbnail")
			}
		}()
	}

	return img, nil
}
