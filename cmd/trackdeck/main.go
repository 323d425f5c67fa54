package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/glebovdev/trackdeck/internal/api"
	"github.com/glebovdev/trackdeck/internal/config"
	"github.com/glebovdev/trackdeck/internal/download"
	"github.com/glebovdev/trackdeck/internal/player"
	"github.com/glebovdev/trackdeck/internal/queue"
	"github.com/glebovdev/trackdeck/internal/service"
	"github.com/glebovdev/trackdeck/internal/session"
	"github.com/glebovdev/trackdeck/internal/store"
	"github.com/glebovdev/trackdeck/internal/streamcache"
	"github.com/glebovdev/trackdeck/internal/thumbs"
	"github.com/glebovdev/trackdeck/internal/track"
	"github.com/glebovdev/trackdeck/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type options struct {
	debug   bool
	backend string
	jsonOut bool
}

// app holds what every command needs after flags are parsed.
type app struct {
	cfg     *config.Config
	backend string
	client  *api.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:     config.AppName,
		Short:   config.AppTagline,
		Long:    config.AppDescription,
		Version: config.AppVersion,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(opts.debug, cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(opts)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "",
		fmt.Sprintf("Backend URL (overrides $%s and the config file)", config.BackendEnv))
	root.PersistentFlags().BoolVarP(&opts.jsonOut, "json", "j", false, "Output as JSON")

	root.AddCommand(
		newSearchCmd(opts),
		newResolveCmd(opts),
		newDownloadCmd(opts),
		newPlayCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

func logDir() string {
	return filepath.Join(xdg.CacheHome, config.AppName)
}

func setupLogging(debug bool, stderr io.Writer) {
	if !debug {
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	dir := logDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(stderr, "Warning: could not create log dir: %v\n", err)
		dir = os.TempDir()
	}
	logPath := filepath.Join(dir, "debug.log")
	var out io.Writer = stderr
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: could not create log file: %v\n", err)
	} else {
		out = logFile
		fmt.Fprintf(stderr, "Debug log: %s\n", logPath)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)

	if configPath, err := config.GetConfigPath(); err == nil {
		log.Debug().Str("path", configPath).Msg("Config")
	}
	log.Debug().Str("path", thumbs.Dir()).Msg("Thumbnail cache")
}

func loadApp(opts *options) *app {
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
	}
	backend := cfg.Backend(opts.backend)
	log.Debug().Str("backend", backend).Msg("Using backend")

	return &app{
		cfg:     cfg,
		backend: backend,
		client:  api.NewClient(backend),
	}
}

// openStore opens the library database. History, downloads and the saved
// queue are disabled when it cannot be opened.
func openStore() *store.Store {
	db, err := store.Open()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open library, history and downloads will not be saved")
		return nil
	}
	return db
}

func recorderFor(db *store.Store) download.Recorder {
	if db == nil {
		return nil
	}
	return db
}

// newSession builds the resolver, engine and session and applies the
// configured playback settings.
func newSession(a *app, onStarted func(track.Track)) (*session.Session, *streamcache.Resolver) {
	resolver := streamcache.New(a.client)
	engine := player.NewEngine(player.NewBeepFactory(nil))
	sess := session.New(resolver, engine, session.Options{OnTrackStarted: onStarted})

	repeat, err := queue.ParseRepeatMode(a.cfg.Repeat)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid repeat mode in config")
	}
	sess.SetRepeatMode(repeat)
	sess.SetShuffle(a.cfg.Shuffle)
	engine.SetVolume(a.cfg.Volume)

	return sess, resolver
}

func historyRecorder(db *store.Store) func(track.Track) {
	if db == nil {
		return nil
	}
	return func(t track.Track) {
		if err := db.AddHistory(t, time.Now()); err != nil {
			log.Warn().Err(err).Str("key", track.KeyOf(&t)).Msg("Failed to record history")
		}
	}
}

func restoreQueue(db *store.Store, sess *session.Session) {
	if db == nil {
		return
	}
	saved, err := db.LoadQueue()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to restore queue")
		return
	}
	if len(saved.Tracks) == 0 {
		return
	}
	sess.SetQueueFromSearchResults(saved.Tracks, max(saved.CurrentIndex, 0))
	log.Debug().Int("tracks", len(saved.Tracks)).Int("index", saved.CurrentIndex).Msg("Queue restored")
}

func saveQueue(db *store.Store, sess *session.Session) {
	if db == nil {
		return
	}
	snap := sess.Snapshot()
	if err := db.SaveQueue(store.SavedQueue{CurrentIndex: snap.Index, Tracks: snap.Queue}); err != nil {
		log.Error().Err(err).Msg("Failed to save queue")
	}
}

func runTUI(opts *options) error {
	a := loadApp(opts)

	db := openStore()
	if db != nil {
		defer db.Close()
	}

	sess, resolver := newSession(a, historyRecorder(db))
	defer resolver.Close()
	restoreQueue(db, sess)

	tui := ui.New(ui.Options{
		Session:    sess,
		Search:     service.NewSearchService(a.client, thumbs.New()),
		Downloads:  download.NewManager(a.client, recorderFor(db), a.cfg.DownloadDir),
		Store:      db,
		Config:     a.cfg,
		BackendURL: a.backend,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		if _, ok := <-sigChan; ok {
			log.Info().Msg("Received shutdown signal, cleaning up...")
			tui.Shutdown()
		}
	}()

	log.Info().Msg("Starting UI...")

	// Run UI in a goroutine so we can handle signals properly
	uiDone := make(chan error, 1)
	go func() {
		uiDone <- tui.Run()
	}()

	err := <-uiDone
	saveQueue(db, sess)
	sess.Close()

	if err != nil {
		log.Error().Err(err).Msg("Error running UI")
		return err
	}
	log.Info().Msgf("%s stopped", config.AppName)
	return nil
}
