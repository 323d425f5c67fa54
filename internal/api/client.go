// Package api provides the HTTP client for the trackdeck backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/glebovdev/trackdeck/internal/config"
	"github.com/glebovdev/trackdeck/internal/track"
	"github.com/go-resty/resty/v2"
)

const requestTimeout = 30 * time.Second

// ErrMissingStreamURL is returned when the backend answers 2xx without a usable stream_url.
var ErrMissingStreamURL = errors.New("response has no stream_url")

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.Status)
}

// Client is the HTTP client for the backend search and stream endpoints.
type Client struct {
	client *resty.Client
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", fmt.Sprintf("trackdeck/%s", config.AppVersion)),
	}
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string {
	return c.client.BaseURL
}

// EscapeKey encodes a track key as a single path segment.
func EscapeKey(key string) string {
	return strings.ReplaceAll(url.QueryEscape(key), "+", "%20")
}

// ResolveStream asks the backend for a playable URL for the given track key.
func (c *Client) ResolveStream(ctx context.Context, key string) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get("/api/stream/" + EscapeKey(key) + "/")
	if err != nil {
		return "", fmt.Errorf("failed to resolve stream for %s: %w", key, err)
	}

	if !resp.IsSuccess() {
		return "", &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	var response struct {
		StreamURL string `json:"stream_url"`
	}
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return "", fmt.Errorf("failed to parse stream response: %w", err)
	}

	if strings.TrimSpace(response.StreamURL) == "" {
		return "", ErrMissingStreamURL
	}

	return response.StreamURL, nil
}

// Search queries the backend for tracks matching query.
func (c *Client) Search(ctx context.Context, query string) ([]track.Track, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get("/api/search/")
	if err != nil {
		return nil, fmt.Errorf("failed to search for %q: %w", query, err)
	}

	if !resp.IsSuccess() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	var response struct {
		Results []track.Track `json:"results"`
	}
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return response.Results, nil
}
