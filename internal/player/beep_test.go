package player

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWAV(t *testing.T) {
	tests := []struct {
		contentType string
		url         string
		want        bool
	}{
		{"audio/wav", "http://x/a", true},
		{"audio/x-wav", "http://x/a", true},
		{"", "http://x/track.WAV?sig=1", true},
		{"audio/mpeg", "http://x/track.mp3", false},
		{"", "http://x/stream", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := isWAV(tt.contentType, tt.url); got != tt.want {
				t.Errorf("isWAV(%q, %q) = %v, want %v", tt.contentType, tt.url, got, tt.want)
			}
		})
	}
}

func TestBeepResourceReportsHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	var mu sync.Mutex
	var gotErr error
	waiting := make(chan struct{}, 1)
	events := Events{
		OnWaiting: func() { waiting <- struct{}{} },
		OnError: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			gotErr = err
		},
	}

	res := NewBeepFactory(server.Client())(server.URL+"/a.mp3", events)
	defer res.Close()

	<-waiting
	err := res.Play()
	require.Error(t, err)

	var statusErr *httpStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, err, gotErr)
}

func TestBeepResourceUndecodableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("definitely not audio"))
	}))
	defer server.Close()

	res := NewBeepFactory(server.Client())(server.URL+"/a.mp3", Events{})
	defer res.Close()

	err := res.Play()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestBeepResourceCloseBeforeLoad(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	var errCalls int
	var mu sync.Mutex
	res := NewBeepFactory(server.Client())(server.URL+"/a.mp3", Events{
		OnError: func(error) {
			mu.Lock()
			errCalls++
			mu.Unlock()
		},
	})
	assert.Equal(t, server.URL+"/a.mp3", res.Source())

	res.Close()
	res.Close()
	assert.Error(t, res.Play())

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, errCalls, "closing is not reported as a playback error")
}

func TestContextReader(t *testing.T) {
	t.Run("successful read", func(t *testing.T) {
		cr := &contextReader{reader: strings.NewReader("test data"), ctx: context.Background(), timeout: time.Second}

		buf := make([]byte, 100)
		n, err := cr.Read(buf)

		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
		if string(buf[:n]) != "test data" {
			t.Errorf("Data = %q, want 'test data'", string(buf[:n]))
		}
	})

	t.Run("timeout", func(t *testing.T) {
		cr := &contextReader{reader: &blockingReader{}, ctx: context.Background(), timeout: 10 * time.Millisecond}

		_, err := cr.Read(make([]byte, 100))

		if err == nil || !strings.Contains(err.Error(), "timeout") {
			t.Errorf("Error = %v, expected a timeout", err)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		cr := &contextReader{reader: &blockingReader{}, ctx: ctx, timeout: time.Hour}

		_, err := cr.Read(make([]byte, 100))

		if !errors.Is(err, context.Canceled) {
			t.Errorf("Error = %v, expected context.Canceled", err)
		}
	})
}

type blockingReader struct{}

func (b *blockingReader) Read(p []byte) (int, error) {
	time.Sleep(time.Hour)
	return 0, nil
}

func TestHTTPStatusError(t *testing.T) {
	err := &httpStatusError{StatusCode: 404, Status: "404 Not Found"}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("Error() = %q, expected status code", err.Error())
	}
}
