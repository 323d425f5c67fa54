package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/trackdeck/internal/queue"
	"github.com/glebovdev/trackdeck/internal/session"
	"github.com/rivo/tview"
)

type StatusRenderer struct {
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	primaryColor string
	errorColor   string
}

func NewStatusRenderer() *StatusRenderer {
	return &StatusRenderer{
		maxAnimFrame:  4,
		ticksPerFrame: 3, // ~750ms per frame at the 250ms refresh rate
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) SetErrorColor(color string) {
	s.errorColor = color
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

func (s *StatusRenderer) Render(snap session.Snapshot) string {
	var parts []string

	switch snap.Status {
	case session.StatusEmpty:
		parts = append(parts, "○ EMPTY")
	case session.StatusLoading:
		parts = append(parts, s.renderLoading())
	case session.StatusBuffering:
		parts = append(parts, s.renderBuffering())
	case session.StatusPlaying:
		parts = append(parts, s.renderPlaying())
	case session.StatusStopped:
		parts = append(parts, "■ STOPPED")
	default:
		if snap.Playback.Source != "" {
			parts = append(parts, PauseIcon+" PAUSED")
		} else {
			parts = append(parts, "○ IDLE")
		}
	}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}
	if mode := modeFlags(snap.Shuffle, snap.Repeat); mode != "" {
		parts = append(parts, mode)
	}
	if snap.Playback.LastError != "" {
		msg := truncate(snap.Playback.LastError, 40)
		if s.errorColor != "" {
			msg = fmt.Sprintf("[%s]%s[-]", s.errorColor, tview.Escape(msg))
		}
		parts = append(parts, "✗ "+msg)
	}

	return joinParts(parts)
}

func (s *StatusRenderer) renderLoading() string {
	circles := []string{"◐", "◓", "◑", "◒"}
	return fmt.Sprintf("%s LOADING", circles[s.animFrame])
}

func (s *StatusRenderer) renderBuffering() string {
	circles := []string{"◐", "◓", "◑", "◒"}
	return fmt.Sprintf("%s BUFFERING", circles[s.animFrame])
}

func (s *StatusRenderer) renderPlaying() string {
	dots := []string{"●", "◉", "○", "◉"}
	dot := dots[s.animFrame]

	if s.primaryColor != "" {
		dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
	}
	return dot + " PLAYING"
}

func modeFlags(shuffle bool, repeat queue.RepeatMode) string {
	var flags []string
	if shuffle {
		flags = append(flags, "⤮ shuffle")
	}
	switch repeat {
	case queue.RepeatAll:
		flags = append(flags, "↻ all")
	case queue.RepeatOne:
		flags = append(flags, "↻ one")
	}
	return strings.Join(flags, " ")
}

// formatClock renders d as m:ss or h:mm:ss.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// progressBar renders a fixed-width seek bar. Unknown durations render empty.
func progressBar(position, duration time.Duration, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if duration > 0 {
		filled = int(int64(width) * int64(position) / int64(duration))
		filled = max(0, min(filled, width))
	}
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

func joinParts(parts []string) string {
	return strings.Join(parts, " │ ")
}

func (ui *UI) getPlaybackHint(keyColor string, snap session.Snapshot) string {
	switch snap.Status {
	case session.StatusPlaying, session.StatusBuffering, session.StatusLoading:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]Space[-] pause", keyColor, keyColor)
	case session.StatusIdle:
		if snap.Playback.Source != "" {
			return fmt.Sprintf("[%s]Enter[-] play  [%s]Space[-] resume", keyColor, keyColor)
		}
	}
	return fmt.Sprintf("[%s]Enter[-] play", keyColor)
}

func (ui *UI) getHelpText(snap session.Snapshot) string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor, snap)

	muteText := "mute"
	if ui.isMuted {
		muteText = "unmute"
	}

	return fmt.Sprintf(" %s  [%s]/[-] search  [%s]+/-[-] vol  [%s]m[-] %s  [%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, keyColor, muteText, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) fill(screen tcell.Screen, x, y, width, height int, bg tcell.Color) {
	style := tcell.StyleDefault.Background(bg)
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width / 2
	statusWidth := width - helpWidth

	ui.fill(screen, x, y, helpWidth, height, ui.colors.helpBackground)
	ui.fill(screen, x+helpWidth, y, statusWidth, height, ui.colors.background)

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := max(height/2, 1)
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	ui.fill(screen, x, y, width, helpHeight, ui.colors.helpBackground)
	ui.fill(screen, x, helpBoxEnd, width, statusHeight, ui.colors.background)

	tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		tview.Print(screen, statusText, x, helpBoxEnd+statusHeight/2, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		snap := ui.snapshot()
		helpText := ui.getHelpText(snap)
		statusText := " " + ui.statusRenderer.Render(snap) + " "

		isWide := width >= FooterBreakpoint
		usedHeight := height
		if isWide && height > FooterHeightWide {
			usedHeight = FooterHeightWide
		}

		if isWide {
			ui.drawWideFooter(screen, x, y, width, usedHeight, helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
