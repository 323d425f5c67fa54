package ui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/trackdeck/internal/config"
	"github.com/glebovdev/trackdeck/internal/download"
	"github.com/glebovdev/trackdeck/internal/player"
	"github.com/glebovdev/trackdeck/internal/queue"
	"github.com/glebovdev/trackdeck/internal/service"
	"github.com/glebovdev/trackdeck/internal/session"
	"github.com/glebovdev/trackdeck/internal/store"
	"github.com/glebovdev/trackdeck/internal/track"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep         = 5
	SeekStep           = 10 * time.Second
	HeaderHeight       = 3
	SearchHeight       = 1
	FooterHeightWide   = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow = 6 // Narrow: 2 rows × 3 lines each
	CoverWidth         = 22
	CoverHeight        = 10
	PlayerPanelHeight  = 10
	FooterBreakpoint   = 130 // Width threshold for responsive footer
	RefreshInterval    = 250 * time.Millisecond
	SearchTimeout      = 30 * time.Second
	ThumbnailTimeout   = 15 * time.Second
	historyModalLimit  = 30
	progressBarWidth   = 30
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

// Options wires the UI to the rest of the application. Downloads and Store
// may be nil, which disables the matching features.
type Options struct {
	Session    *session.Session
	Search     *service.SearchService
	Downloads  *download.Manager
	Store      *store.Store
	Config     *config.Config
	BackendURL string
}

type UI struct {
	app        *tview.Application
	session    *session.Session
	engine     *player.Engine
	search     *service.SearchService
	downloads  *download.Manager
	store      *store.Store
	config     *config.Config
	backendURL string

	ctx    context.Context
	cancel context.CancelFunc

	searchInput     *tview.InputField
	queueTable      *tview.Table
	nowPlayingView  *tview.TextView
	miniView        *tview.TextView
	coverPanel      *tview.Image
	mixerView       *tview.TextView
	helpPanel       *tview.Box
	contentLayout   *tview.Flex
	mainLayout      *tview.Flex
	pages           *tview.Pages
	stopUpdates     chan struct{}
	isMuted         bool
	mutedFrom       int
	lastFooterWidth int // Track width to detect layout changes
	statusRenderer  *StatusRenderer

	mu        sync.Mutex
	lastSnap  session.Snapshot
	lastQueue []track.Track
	coverKey  string
	notice    string

	colors struct {
		background            tcell.Color
		foreground            tcell.Color
		borders               tcell.Color
		highlight             tcell.Color
		headerBackground      tcell.Color
		queueHeaderBackground tcell.Color
		queueHeaderForeground tcell.Color
		helpBackground        tcell.Color
		helpForeground        tcell.Color
		helpHotkey            tcell.Color
		errorForeground       tcell.Color
		modalBackground       tcell.Color
	}
}

func New(opts Options) *UI {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	ui := &UI{
		app:           tview.NewApplication(),
		session:       opts.Session,
		engine:        opts.Session.Engine(),
		search:        opts.Search,
		downloads:     opts.Downloads,
		store:         opts.Store,
		config:        cfg,
		backendURL:    opts.BackendURL,
		ctx:           ctx,
		cancel:        cancel,
		stopUpdates:   make(chan struct{}),
		mutedFrom:     cfg.Volume,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.queueHeaderBackground = config.GetColor(cfg.Theme.QueueHeaderBackground)
	ui.colors.queueHeaderForeground = config.GetColor(cfg.Theme.QueueHeaderForeground)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.errorForeground = config.GetColor(cfg.Theme.ErrorForeground)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.ModalBackground)

	ui.engine.SetVolume(cfg.Volume)
	log.Debug().Int("volume", cfg.Volume).Msg("Loaded volume from config")

	ui.statusRenderer = NewStatusRenderer()
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())
	ui.statusRenderer.SetErrorColor(ui.colors.errorForeground.String())

	// Next(true) is only called from key handlers, so the hook runs on the
	// UI goroutine.
	ui.session.SetOnNavigate(func(index int) {
		ui.queueTable.Select(index+1, 0)
	})

	return ui
}

// SaveConfig writes volume, repeat and shuffle back to the config file.
func (ui *UI) SaveConfig() {
	snap := ui.session.Snapshot()

	volume := ui.engine.Volume()

	ui.mu.Lock()
	if ui.isMuted {
		volume = ui.mutedFrom
	}
	ui.config.Volume = volume
	ui.config.Repeat = snap.Repeat.String()
	ui.config.Shuffle = snap.Shuffle
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) safeCloseChannel() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.stopUpdates != nil {
		close(ui.stopUpdates)
		ui.stopUpdates = nil
	}
}

func (ui *UI) stop() {
	ui.cancel()
	ui.safeCloseChannel()
	ui.SaveConfig()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupUI()
	ui.configureScreen()
	ui.refresh()

	ui.app.SetRoot(ui.pages, true).EnableMouse(true)
	if len(ui.lastQueue) == 0 {
		ui.app.SetFocus(ui.searchInput)
	} else {
		ui.app.SetFocus(ui.queueTable)
		if snap := ui.snapshot(); snap.Index >= 0 {
			ui.queueTable.Select(snap.Index+1, 0)
		}
	}

	go ui.updateLoop(ui.stopUpdates)

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) updateLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ui.app.QueueUpdateDraw(func() {
				ui.statusRenderer.AdvanceAnimation()
				ui.refresh()
			})
		}
	}
}

func (ui *UI) snapshot() session.Snapshot {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return ui.lastSnap
}

// refresh pulls a new snapshot from the session and redraws everything that
// depends on it. Must run on the UI goroutine.
func (ui *UI) refresh() {
	snap := ui.session.Snapshot()
	selected := ui.selectedKey()

	ui.mu.Lock()
	ui.lastSnap = snap
	ui.lastQueue = snap.Queue
	ui.mu.Unlock()

	ui.refreshQueueTable(snap, selected)
	ui.updateNowPlaying(snap)
	ui.updateMiniLine(snap)
	ui.updateMixer(snap)
	ui.updateCover(snap)
}

func (ui *UI) setNotice(msg string) {
	ui.mu.Lock()
	ui.notice = msg
	ui.mu.Unlock()
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.searchInput = tview.NewInputField().
		SetLabel(" Search: ").
		SetPlaceholder("artist, title or URL")
	ui.searchInput.SetLabelColor(ui.colors.highlight).
		SetFieldBackgroundColor(ui.colors.modalBackground).
		SetFieldTextColor(ui.colors.foreground).
		SetPlaceholderTextColor(ui.colors.borders).
		SetBackgroundColor(ui.colors.background)
	ui.searchInput.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			ui.runSearch(ui.searchInput.GetText())
			ui.app.SetFocus(ui.queueTable)
		case tcell.KeyEscape, tcell.KeyTab:
			ui.app.SetFocus(ui.queueTable)
		}
	})

	playerPanel := ui.createPlayerPanel()
	ui.queueTable = ui.createQueueTable()
	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(playerPanel, PlayerPanelHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.searchInput, SearchHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.queueTable, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage(modalPage) || ui.app.GetFocus() == ui.searchInput {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	textWithPadding.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) createPlayerPanel() *tview.Flex {
	ui.coverPanel = tview.NewImage()
	ui.coverPanel.SetBackgroundColor(ui.colors.background)
	ui.coverPanel.SetAlign(tview.AlignLeft, tview.AlignTop)
	ui.coverPanel.SetImage(ui.blankCover())

	ui.nowPlayingView = tview.NewTextView()
	ui.nowPlayingView.SetDynamicColors(true)
	ui.nowPlayingView.SetWrap(false)
	ui.nowPlayingView.SetTextColor(ui.colors.foreground)
	ui.nowPlayingView.SetBackgroundColor(ui.colors.background)

	ui.miniView = tview.NewTextView()
	ui.miniView.SetDynamicColors(true)
	ui.miniView.SetWrap(false)
	ui.miniView.SetTextColor(ui.colors.foreground)
	ui.miniView.SetBackgroundColor(ui.colors.background)

	info := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.nowPlayingView, 0, 1, false).
		AddItem(ui.miniView, 1, 0, false).
		AddItem(ui.createMixer(), 1, 0, false)
	info.SetBackgroundColor(ui.colors.background)

	coverWrapper := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.coverPanel, CoverHeight, 0, false).
		AddItem(nil, 0, 1, false)
	coverWrapper.SetBackgroundColor(ui.colors.background)

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(coverWrapper, CoverWidth, 0, false).
		AddItem(info, 0, 1, false)
	contentFlex.SetBackgroundColor(ui.colors.background)

	return contentFlex
}

func (ui *UI) blankCover() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	r, g, b := ui.colors.background.RGB()
	img.Set(0, 0, color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255})
	return img
}

func (ui *UI) updateNowPlaying(snap session.Snapshot) {
	highlight := ui.colors.highlight.String()
	dim := ui.colors.borders.String()

	if snap.Track == nil {
		text := fmt.Sprintf("\n [%s]Nothing selected[-]\n\n [%s]Press / to search[-]", dim, dim)
		ui.nowPlayingView.SetText(text + ui.noticeLine())
		return
	}

	t := snap.Track
	uploader := t.Uploader
	if uploader == "" {
		uploader = "Unknown uploader"
	}

	duration := snap.Playback.Duration
	length := "--:--"
	if duration > 0 {
		length = formatClock(duration)
	}

	text := fmt.Sprintf("\n [%s::b]%s[-::-]\n [%s]%s[-]\n\n %s %s %s  [%s]%d/%d[-]",
		highlight, tview.Escape(truncate(t.DisplayTitle(), 60)),
		dim, tview.Escape(truncate(uploader, 60)),
		formatClock(snap.Playback.Position),
		progressBar(snap.Playback.Position, duration, progressBarWidth),
		length,
		dim, snap.Index+1, len(snap.Queue))

	if snap.Playback.LastError != "" {
		text += fmt.Sprintf("\n\n [%s]✗ %s[-]", ui.colors.errorForeground.String(),
			tview.Escape(truncate(snap.Playback.LastError, 70)))
	} else {
		text += ui.noticeLine()
	}

	ui.nowPlayingView.SetText(text)
}

func (ui *UI) noticeLine() string {
	ui.mu.Lock()
	notice := ui.notice
	ui.mu.Unlock()
	if notice == "" {
		return ""
	}
	return fmt.Sprintf("\n\n [%s]%s[-]", ui.colors.foreground.String(), tview.Escape(truncate(notice, 70)))
}

func (ui *UI) updateMiniLine(snap session.Snapshot) {
	if !snap.MiniVisible || snap.MiniIndex < 0 || snap.MiniIndex >= len(snap.Queue) {
		ui.miniView.SetText("")
		return
	}
	t := snap.Queue[snap.MiniIndex]
	ui.miniView.SetText(fmt.Sprintf(" [%s]◦ Preview:[-] %s  [%s](c to close)[-]",
		ui.colors.highlight.String(),
		tview.Escape(truncate(t.DisplayTitle(), 50)),
		ui.colors.borders.String()))
}

func (ui *UI) updateCover(snap session.Snapshot) {
	key := ""
	thumb := ""
	if snap.Track != nil {
		key = track.KeyOf(snap.Track)
		thumb = snap.Track.Thumbnail
	}

	ui.mu.Lock()
	if key == ui.coverKey {
		ui.mu.Unlock()
		return
	}
	ui.coverKey = key
	ui.mu.Unlock()

	ui.coverPanel.SetImage(ui.blankCover())
	if thumb == "" || ui.search == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(ui.ctx, ThumbnailTimeout)
		defer cancel()

		img, err := ui.search.LoadThumbnail(ctx, thumb)
		if err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Failed to load thumbnail")
			return
		}

		ui.app.QueueUpdateDraw(func() {
			ui.mu.Lock()
			current := ui.coverKey
			ui.mu.Unlock()
			if current == key {
				ui.coverPanel.SetImage(img)
			}
		})
	}()
}

func (ui *UI) runSearch(query string) {
	if ui.search == nil {
		return
	}
	ui.setNotice(fmt.Sprintf("Searching for %q…", query))

	go func() {
		ctx, cancel := context.WithTimeout(ui.ctx, SearchTimeout)
		defer cancel()

		results, err := ui.search.Search(ctx, query)
		ui.app.QueueUpdateDraw(func() {
			if err != nil {
				ui.setNotice("")
				if errors.Is(err, service.ErrEmptyQuery) || errors.Is(err, context.Canceled) {
					return
				}
				log.Error().Err(err).Str("query", query).Msg("Search failed")
				ui.showErrorModal("Search Failed", errorMessage(err), func() { ui.runSearch(query) })
				return
			}

			ui.session.SetQueueFromSearchResults(results, 0)
			ui.setNotice(fmt.Sprintf("%d results for %q", len(results), query))
			ui.refresh()
			if len(results) > 0 {
				ui.queueTable.Select(1, 0)
			}
		})
	}()
}

func (ui *UI) downloadSelected() {
	t, ok := ui.selectedTrack()
	if !ok || ui.downloads == nil {
		return
	}
	ui.setNotice(fmt.Sprintf("Downloading %s…", t.DisplayTitle()))

	go func() {
		d, err := ui.downloads.Download(ui.ctx, t)
		ui.app.QueueUpdateDraw(func() {
			if err != nil {
				ui.setNotice("")
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Error().Err(err).Str("key", track.KeyOf(&t)).Msg("Download failed")
				ui.showError("Download Failed", err)
				return
			}
			ui.setNotice(fmt.Sprintf("Saved %s (%s)", d.Title, humanize.Bytes(uint64(d.Bytes))))
		})
	}()
}

func (ui *UI) downloadQueue() {
	tracks := ui.lastQueue
	if len(tracks) == 0 || ui.downloads == nil {
		return
	}
	total := len(tracks)
	ui.setNotice(fmt.Sprintf("Downloading 0/%d…", total))

	go func() {
		done := 0
		_, err := ui.downloads.DownloadAll(ui.ctx, tracks, func(download.Result) {
			done++
			n := done
			ui.app.QueueUpdateDraw(func() {
				ui.setNotice(fmt.Sprintf("Downloading %d/%d…", n, total))
			})
		})
		ui.app.QueueUpdateDraw(func() {
			if err != nil {
				ui.setNotice("")
				ui.showError("Some Downloads Failed", err)
				return
			}
			ui.setNotice(fmt.Sprintf("Downloaded %d tracks to %s", total, ui.downloads.Dir()))
		})
	}()
}

// nextRepeatMode cycles none → all → one → none.
func nextRepeatMode(m queue.RepeatMode) queue.RepeatMode {
	switch m {
	case queue.RepeatNone:
		return queue.RepeatAll
	case queue.RepeatAll:
		return queue.RepeatOne
	default:
		return queue.RepeatNone
	}
}

func (ui *UI) seekBy(delta time.Duration) {
	snap := ui.session.Snapshot()
	if snap.Track == nil {
		return
	}
	ui.session.Seek(snap.Playback.Position + delta)
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case '/':
			ui.app.SetFocus(ui.searchInput)
			return nil
		case ' ':
			if err := ui.session.PlayPause(); err != nil {
				log.Debug().Err(err).Msg("Play/pause ignored")
			}
		case '>', 'n':
			ui.session.Next(true)
		case '<', 'b':
			ui.session.Prev()
		case ']':
			ui.seekBy(SeekStep)
		case '[':
			ui.seekBy(-SeekStep)
		case 'x':
			ui.session.Stop()
		case 's':
			ui.session.SetShuffle(!ui.snapshot().Shuffle)
			ui.SaveConfig()
		case 'r':
			ui.session.SetRepeatMode(nextRepeatMode(ui.snapshot().Repeat))
			ui.SaveConfig()
		case 'p':
			ui.previewSelected()
		case 'c':
			ui.session.CloseMini()
		case 'J':
			ui.moveSelected(1)
			return nil
		case 'K':
			ui.moveSelected(-1)
			return nil
		case 'f', 'F':
			ui.toggleFavorite()
			return nil
		case 'd':
			ui.downloadSelected()
		case 'D':
			ui.downloadQueue()
		case 'h':
			ui.showHistoryModal()
			return nil
		case 'l':
			ui.showDownloadsModal()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '}':
			ui.adjustRate(RateStep)
			return nil
		case '{':
			ui.adjustRate(-RateStep)
			return nil
		case '0':
			ui.resetRate()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		case 'a', 'A':
			ui.showAboutModal()
			return nil
		default:
			return event
		}
		ui.refresh()
		return nil
	case tcell.KeyDelete, tcell.KeyBackspace2:
		ui.removeSelected()
		return nil
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		// Right arrow - volume up (hidden shortcut)
		ui.adjustVolume(VolumeStep)
		return nil
	case tcell.KeyLeft:
		// Left arrow - volume down (hidden shortcut)
		ui.adjustVolume(-VolumeStep)
		return nil
	}
	return event
}
