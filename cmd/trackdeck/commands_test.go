package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebovdev/trackdeck/internal/track"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") == "nothing" {
			w.Write([]byte(`{"results": []}`))
			return
		}
		w.Write([]byte(`{"results": [
			{"id": "abc", "title": "First Song", "duration": 185, "uploader": "Band"},
			{"webpage_url": "https://example.com/watch?v=2", "title": "Second Song"}
		]}`))
	})
	mux.HandleFunc("GET /api/stream/{key}/", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("key") == "missing" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stream_url": "https://cdn.example.com/` + r.PathValue("key") + `.mp3"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRACKDECK_BACKEND", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSearchCommand(t *testing.T) {
	server := newBackend(t)

	out, err := execute(t, "--backend", server.URL, "search", "some", "song")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}

	for _, want := range []string{"TITLE", "First Song", "3:05", "Band", "abc", "Second Song", "https://example.com/watch?v=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSearchCommandJSON(t *testing.T) {
	server := newBackend(t)

	out, err := execute(t, "--backend", server.URL, "--json", "search", "song", "--limit", "1")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}

	var results []track.Track
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(results) != 1 || results[0].ID != "abc" {
		t.Errorf("results = %+v, want only abc", results)
	}
}

func TestSearchCommandNoResults(t *testing.T) {
	server := newBackend(t)

	_, err := execute(t, "--backend", server.URL, "search", "nothing")
	if err == nil || !strings.Contains(err.Error(), "no results") {
		t.Errorf("error = %v, want no results", err)
	}
}

func TestResolveCommand(t *testing.T) {
	server := newBackend(t)

	out, err := execute(t, "--backend", server.URL, "resolve", "abc")
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	if strings.TrimSpace(out) != "https://cdn.example.com/abc.mp3" {
		t.Errorf("output = %q", out)
	}
}

func TestResolveCommandJSON(t *testing.T) {
	server := newBackend(t)

	out, err := execute(t, "--backend", server.URL, "-j", "resolve", "abc")
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got["key"] != "abc" || got["stream_url"] != "https://cdn.example.com/abc.mp3" {
		t.Errorf("got %v", got)
	}
}

func TestResolveCommandError(t *testing.T) {
	server := newBackend(t)

	if _, err := execute(t, "--backend", server.URL, "resolve", "missing"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"search without query", []string{"search"}},
		{"resolve without key", []string{"resolve"}},
		{"resolve with two keys", []string{"resolve", "a", "b"}},
		{"download without query", []string{"download"}},
		{"history with args", []string{"history", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("%v should fail argument validation", tt.args)
			}
		})
	}
}

func TestFormatLength(t *testing.T) {
	tests := []struct {
		duration float64
		want     string
	}{
		{0, "-"},
		{59, "0:59"},
		{185, "3:05"},
		{3600, "60:00"},
	}

	for _, tt := range tests {
		tr := track.Track{Duration: tt.duration}
		if got := formatLength(&tr); got != tt.want {
			t.Errorf("formatLength(%v) = %q, want %q", tt.duration, got, tt.want)
		}
	}
}
