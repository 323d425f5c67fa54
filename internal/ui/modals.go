package ui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/trackdeck/internal/api"
	"github.com/glebovdev/trackdeck/internal/config"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const modalPage = "modal"

func friendlyErrorMessage(errStr string) string {
	if strings.Contains(errStr, "no such host") {
		return "Unable to connect to backend.\nPlease check the backend URL."
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused by backend.\nIs the trackdeck server running?"
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timed out.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "network is unreachable") || strings.Contains(errStr, "network read error") {
		return "Network is unreachable.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "status 401") {
		return "Stream access denied (401)."
	}
	if strings.Contains(errStr, "status 403") {
		return "Stream access forbidden (403)."
	}
	if strings.Contains(errStr, "status 404") {
		return "Track not found (404)."
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		return errStr[:idx]
	}
	if len(errStr) > 100 {
		return errStr[:100] + "..."
	}
	return errStr
}

func errorMessage(err error) string {
	if errors.Is(err, api.ErrMissingStreamURL) {
		return "The backend did not return a playable stream."
	}
	return friendlyErrorMessage(err.Error())
}

func (ui *UI) showError(title string, err error) {
	ui.showErrorModal(title, errorMessage(err), nil)
}

func (ui *UI) showErrorModal(title, message string, onRetry func()) {
	doDismiss := func() {
		ui.pages.RemovePage(modalPage)
		ui.app.SetFocus(ui.queueTable)
	}

	hint := "[::d]Press [::b]Esc[::d] to dismiss[::-]"
	if onRetry != nil {
		hint = "[::d]Press [::b]R[::d] to retry  •  Press [::b]Esc[::d] to dismiss[::-]"
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(fmt.Sprintf("\n[::b]%s[::-]\n\n%s", title, tview.Escape(message)))
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(hint)
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(0, 0, 1, 1, 1, 1)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.errorForeground).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Error ").
		SetTitleColor(ui.colors.errorForeground).
		SetTitleAlign(tview.AlignCenter)

	modalHeight := 10
	if lines := strings.Count(message, "\n") + 1; lines > 2 {
		modalHeight += lines - 2
	}
	modalHeight = min(modalHeight, 15)

	modal := ui.centered(frame, 50, modalHeight)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyEnter:
			doDismiss()
			return nil
		case tcell.KeyRune:
			if onRetry != nil && (event.Rune() == 'r' || event.Rune() == 'R') {
				doDismiss()
				onRetry()
				return nil
			}
		}
		return event
	})

	ui.pages.AddPage(modalPage, modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) centered(p tview.Primitive, width, height int) *tview.Flex {
	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false),
			width, 0, true).
		AddItem(nil, 0, 1, false)
	modal.SetBackgroundColor(ui.colors.background)
	return modal
}

func (ui *UI) showHelpModal() {
	keyColor := ui.colors.helpHotkey.String()

	configPath, _ := config.GetConfigPath()

	k := func(key string) string { return fmt.Sprintf("[%s]%s[-]", keyColor, key) }
	section := func(name string) string { return fmt.Sprintf("[%s]%s[-]", keyColor, name) }

	helpText := strings.Join([]string{
		"[::b]KEYBOARD SHORTCUTS[::-]",
		"",
		section("PLAYBACK"),
		"  " + k("Enter") + "      Play selected track",
		"  " + k("Space") + "      Play / Pause",
		"  " + k("<") + " / " + k(">") + "      Previous / Next",
		"  " + k("[") + " / " + k("]") + "      Seek -10s / +10s",
		"  " + k("x") + "          Stop",
		"  " + k("s") + "          Toggle shuffle",
		"  " + k("r") + "          Cycle repeat mode",
		"",
		section("VOLUME & SPEED"),
		"  " + k("+") + " / " + k("-") + "      Volume up / down",
		"  " + k("m") + "          Mute / Unmute",
		"  " + k("{") + " / " + k("}") + "      Slower / faster",
		"  " + k("0") + "          Normal speed",
		"",
		section("QUEUE"),
		"  " + k("/") + "          Search",
		"  " + k("↑") + " / " + k("↓") + "      Navigate list",
		"  " + k("J") + " / " + k("K") + "      Move track down / up",
		"  " + k("Del") + "        Remove track",
		"  " + k("p") + " / " + k("c") + "      Preview / close preview",
		"  " + k("f") + "          Toggle favorite",
		"",
		section("LIBRARY"),
		"  " + k("d") + " / " + k("D") + "      Download track / queue",
		"  " + k("h") + "          Play history",
		"  " + k("l") + "          Downloads",
		"",
		section("APPLICATION"),
		"  " + k("?") + "          Show this help",
		"  " + k("a") + "          About " + config.AppName,
		"  " + k("q") + "          Quit",
		"",
		section("CONFIG") + ": " + configPath,
	}, "\n")

	ui.showInfoModal("Help", helpText, 50)
}

func (ui *UI) showAboutModal() {
	linkColor := "skyblue"
	dimColor := "gray"

	aboutText := fmt.Sprintf(`[::b]%s[::-]
[%s]%s[-]

Version: %s
Backend: %s
Project: [%s:::%s]%s[-:::-]
License: MIT`,
		config.AppName,
		dimColor, config.AppTagline,
		config.AppVersion,
		tview.Escape(ui.backendURL),
		linkColor, config.AppProjectURL, config.AppProjectShort)

	ui.showInfoModal("About", aboutText, 50)
}

func (ui *UI) showHistoryModal() {
	if ui.store == nil {
		return
	}
	entries, err := ui.store.History(historyModalLimit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load history")
		ui.showError("History Unavailable", err)
		return
	}

	if len(entries) == 0 {
		ui.showInfoModal("History", "Nothing played yet.", 60)
		return
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s  [gray]%s[-]",
			tview.Escape(truncate(e.Track.DisplayTitle(), 40)),
			humanize.Time(e.PlayedAt)))
	}
	ui.showInfoModal(fmt.Sprintf("History (%d)", len(entries)), strings.Join(lines, "\n"), 64)
}

func (ui *UI) showDownloadsModal() {
	if ui.store == nil {
		return
	}
	downloads, err := ui.store.Downloads()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load downloads")
		ui.showError("Downloads Unavailable", err)
		return
	}

	if len(downloads) == 0 {
		ui.showInfoModal("Downloads", "No downloads yet.", 60)
		return
	}

	lines := make([]string, 0, len(downloads))
	for _, d := range downloads {
		lines = append(lines, fmt.Sprintf("%s  [gray]%s, %s[-]",
			tview.Escape(truncate(filepath.Base(d.Path), 36)),
			humanize.Bytes(uint64(d.Bytes)),
			humanize.Time(d.CreatedAt)))
	}
	if ui.downloads != nil {
		lines = append(lines, "", "[gray]"+tview.Escape(ui.downloads.Dir())+"[-]")
	}
	ui.showInfoModal(fmt.Sprintf("Downloads (%d)", len(downloads)), strings.Join(lines, "\n"), 70)
}

func (ui *UI) showInfoModal(title, message string, width int) {
	doDismiss := func() {
		ui.pages.RemovePage(modalPage)
		ui.app.SetFocus(ui.queueTable)
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignLeft).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText("\n" + message)
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press any key to close[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(nil, 2, 0, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(1, 0, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	lines := strings.Count(message, "\n") + 1
	modalHeight := min(lines+10, 38)

	modal := ui.centered(frame, width, modalHeight)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		doDismiss()
		return nil
	})

	ui.pages.AddPage(modalPage, modal, true, true)
	ui.app.SetFocus(modal)
}
