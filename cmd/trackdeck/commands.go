package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/glebovdev/trackdeck/internal/download"
	"github.com/glebovdev/trackdeck/internal/queue"
	"github.com/glebovdev/trackdeck/internal/service"
	"github.com/glebovdev/trackdeck/internal/session"
	"github.com/glebovdev/trackdeck/internal/track"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

const (
	commandTimeout = 30 * time.Second
	pollInterval   = 500 * time.Millisecond
	titleWidth     = 50
)

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(out io.Writer, headers ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	return w
}

func formatLength(t *track.Track) string {
	d := t.DurationValue()
	if d <= 0 {
		return "-"
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func search(ctx context.Context, a *app, query string) ([]track.Track, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	results, err := service.NewSearchService(a.client, nil).Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no results for %q", query)
	}
	return results, nil
}

func newSearchCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the backend for tracks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := loadApp(opts)
			results, err := search(cmd.Context(), a, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, results)
			}

			w := newTable(out, "#", "LENGTH", "TITLE", "UPLOADER", "KEY")
			for i := range results {
				t := &results[i]
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, formatLength(t),
					runewidth.Truncate(t.DisplayTitle(), titleWidth, "…"),
					runewidth.Truncate(t.Uploader, 24, "…"),
					track.KeyOf(t))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of results to show (0 for all)")
	return cmd
}

func newResolveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <key>",
		Short: "Print the stream URL for a track key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := loadApp(opts)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			streamURL, err := a.client.ResolveStream(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, map[string]string{"key": args[0], "stream_url": streamURL})
			}
			fmt.Fprintln(out, streamURL)
			return nil
		},
	}
}

func newDownloadCmd(opts *options) *cobra.Command {
	var (
		byKey bool
		all   bool
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "download <query|key>",
		Short: "Download a track to the download directory",
		Long: `Search for a track and download the first result, or every result with --all.
With --key the argument is used as a track key directly.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := loadApp(opts)
			arg := strings.Join(args, " ")

			var tracks []track.Track
			if byKey {
				tracks = []track.Track{{ID: arg, Title: arg}}
			} else {
				results, err := search(cmd.Context(), a, arg)
				if err != nil {
					return err
				}
				tracks = results[:1]
				if all {
					tracks = results
				}
			}

			if dir == "" {
				dir = a.cfg.DownloadDir
			}

			db := openStore()
			if db != nil {
				defer db.Close()
			}
			manager := download.NewManager(a.client, recorderFor(db), dir)

			out := cmd.OutOrStdout()
			results, err := manager.DownloadAll(cmd.Context(), tracks, func(r download.Result) {
				if opts.jsonOut {
					return
				}
				if r.Err != nil {
					fmt.Fprintf(out, "✗ %s: %v\n", r.Track.DisplayTitle(), r.Err)
					return
				}
				fmt.Fprintf(out, "✓ %s (%s)\n", r.Download.Path, humanize.Bytes(uint64(r.Download.Bytes)))
			})

			if opts.jsonOut {
				var saved []any
				for _, r := range results {
					if r.Err == nil {
						saved = append(saved, r.Download)
					}
				}
				if jsonErr := printJSON(out, saved); jsonErr != nil {
					return jsonErr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&byKey, "key", "k", false, "Treat the argument as a track key")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Download every search result")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Download directory (default from config)")
	return cmd
}

func newPlayCmd(opts *options) *cobra.Command {
	var (
		limit   int
		shuffle bool
		repeat  string
	)

	cmd := &cobra.Command{
		Use:   "play <query>",
		Short: "Play search results without the interface",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := loadApp(opts)
			if cmd.Flags().Changed("shuffle") {
				a.cfg.Shuffle = shuffle
			}
			if repeat != "" {
				if _, err := queue.ParseRepeatMode(repeat); err != nil {
					return err
				}
				a.cfg.Repeat = repeat
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results, err := search(ctx, a, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}

			db := openStore()
			if db != nil {
				defer db.Close()
			}
			record := historyRecorder(db)
			out := cmd.OutOrStdout()

			sess, resolver := newSession(a, func(t track.Track) {
				if record != nil {
					record(t)
				}
				fmt.Fprintf(out, "▶ %s\n", t.DisplayTitle())
			})
			defer resolver.Close()
			defer sess.Close()

			sess.SetQueueFromSearchResults(results, 0)
			if err := sess.PlayIndex(0); err != nil {
				return err
			}
			return waitForPlayback(ctx, sess)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", queue.MaxSize, "Number of results to queue")
	cmd.Flags().BoolVarP(&shuffle, "shuffle", "s", false, "Shuffle the queue")
	cmd.Flags().StringVarP(&repeat, "repeat", "r", "", "Repeat mode: none, all or one")
	return cmd
}

// waitForPlayback blocks until the queue finishes, a track fails or ctx is
// done.
func waitForPlayback(ctx context.Context, sess *session.Session) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap := sess.Snapshot()
			switch {
			case snap.Status == session.StatusStopped:
				return nil
			case snap.Status == session.StatusIdle && snap.Playback.LastError != "":
				return errors.New(snap.Playback.LastError)
			}
		}
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var (
		limit        int
		clearHistory bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently played tracks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := openStore()
			if db == nil {
				return errors.New("library is unavailable")
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if clearHistory {
				if err := db.ClearHistory(); err != nil {
					return err
				}
				fmt.Fprintln(out, "History cleared")
				return nil
			}

			entries, err := db.History(limit)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(out, entries)
			}

			w := newTable(out, "PLAYED", "TITLE", "KEY")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", humanize.Time(e.PlayedAt),
					runewidth.Truncate(e.Track.DisplayTitle(), titleWidth, "…"), e.Key)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&clearHistory, "clear", false, "Delete the play history")
	return cmd
}
