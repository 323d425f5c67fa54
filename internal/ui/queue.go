package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/trackdeck/internal/session"
	"github.com/glebovdev/trackdeck/internal/track"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	titleColumnWidth    = 48
	uploaderColumnWidth = 24
)

// truncate shortens s to at most width terminal cells.
func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

func (ui *UI) createQueueTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetTitle(" Queue (0) ").
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	headers := []struct {
		text      string
		align     int
		expansion int
	}{
		{" ", tview.AlignLeft, 0},
		{" ", tview.AlignLeft, 0},
		{"Title", tview.AlignLeft, 2},
		{"Uploader", tview.AlignLeft, 1},
		{"Length", tview.AlignRight, 0},
	}
	for col, h := range headers {
		table.SetCell(0, col, tview.NewTableCell(h.text).
			SetTextColor(ui.colors.queueHeaderForeground).
			SetBackgroundColor(ui.colors.queueHeaderBackground).
			SetAlign(h.align).
			SetExpansion(h.expansion).
			SetSelectable(false))
	}

	table.SetSelectedFunc(func(row, column int) {
		ui.playRow(row)
	})

	return table
}

func (ui *UI) setQueueRow(row int, t track.Track, index int, snap session.Snapshot) {
	favIcon := " "
	if ui.config.IsFavorite(track.KeyOf(&t)) {
		favIcon = "★"
	}
	ui.queueTable.SetCell(row, 0, tview.NewTableCell(favIcon).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))

	playIcon := " "
	switch {
	case index == snap.Index && snap.Status == session.StatusPlaying:
		playIcon = "➤"
	case index == snap.Index && snap.Status == session.StatusLoading:
		playIcon = "…"
	case index == snap.Index:
		playIcon = PauseIcon
	case snap.MiniVisible && index == snap.MiniIndex:
		playIcon = "◦"
	}
	ui.queueTable.SetCell(row, 1, tview.NewTableCell(playIcon).
		SetTextColor(ui.colors.highlight).
		SetMaxWidth(2))

	titleColor := ui.colors.foreground
	if index == snap.Index {
		titleColor = ui.colors.highlight
	}
	ui.queueTable.SetCell(row, 2, tview.NewTableCell(truncate(t.DisplayTitle(), titleColumnWidth)).
		SetTextColor(titleColor).
		SetExpansion(2))

	ui.queueTable.SetCell(row, 3, tview.NewTableCell(truncate(t.Uploader, uploaderColumnWidth)).
		SetTextColor(ui.colors.foreground).
		SetExpansion(1))

	length := ""
	if d := t.DurationValue(); d > 0 {
		length = formatClock(d)
	}
	ui.queueTable.SetCell(row, 4, tview.NewTableCell(length).
		SetTextColor(ui.colors.foreground).
		SetAlign(tview.AlignRight))
}

// refreshQueueTable redraws every row from snap and moves the selection to
// selectedKey when it is still queued.
func (ui *UI) refreshQueueTable(snap session.Snapshot, selectedKey string) {
	for row := ui.queueTable.GetRowCount() - 1; row > len(snap.Queue); row-- {
		ui.queueTable.RemoveRow(row)
	}
	for i, t := range snap.Queue {
		ui.setQueueRow(i+1, t, i, snap)
	}

	ui.queueTable.SetTitle(fmt.Sprintf(" Queue (%d) ", len(snap.Queue)))

	if selectedKey != "" {
		for i := range snap.Queue {
			if track.KeyOf(&snap.Queue[i]) == selectedKey {
				ui.queueTable.Select(i+1, 0)
				return
			}
		}
	}
	if row, _ := ui.queueTable.GetSelection(); row > len(snap.Queue) && len(snap.Queue) > 0 {
		ui.queueTable.Select(len(snap.Queue), 0)
	}
}

// selectedIndex returns the queue index of the highlighted row, or -1.
func (ui *UI) selectedIndex() int {
	row, _ := ui.queueTable.GetSelection()
	if row <= 0 || row > len(ui.lastQueue) {
		return -1
	}
	return row - 1
}

func (ui *UI) selectedTrack() (track.Track, bool) {
	i := ui.selectedIndex()
	if i < 0 {
		return track.Track{}, false
	}
	return ui.lastQueue[i], true
}

func (ui *UI) selectedKey() string {
	t, ok := ui.selectedTrack()
	if !ok {
		return ""
	}
	return track.KeyOf(&t)
}

func (ui *UI) playRow(row int) {
	if row <= 0 || row > len(ui.lastQueue) {
		return
	}
	if err := ui.session.PlayIndex(row - 1); err != nil {
		log.Debug().Err(err).Int("row", row).Msg("Failed to play row")
	}
	ui.refresh()
}

func (ui *UI) previewSelected() {
	i := ui.selectedIndex()
	if i < 0 {
		return
	}
	if err := ui.session.ShowMiniForIndex(i, ui.config.AutoplayOnSelect); err != nil {
		log.Debug().Err(err).Int("index", i).Msg("Failed to open mini player")
	}
	ui.refresh()
}

func (ui *UI) removeSelected() {
	i := ui.selectedIndex()
	if i < 0 {
		return
	}
	if err := ui.session.RemoveAt(i); err != nil {
		log.Debug().Err(err).Int("index", i).Msg("Failed to remove queue item")
		return
	}
	ui.refresh()
}

func (ui *UI) moveSelected(delta int) {
	from := ui.selectedIndex()
	to := from + delta
	if from < 0 || to < 0 || to >= len(ui.lastQueue) {
		return
	}
	if err := ui.session.MoveQueueItem(from, to); err != nil {
		log.Debug().Err(err).Int("from", from).Int("to", to).Msg("Failed to move queue item")
		return
	}
	ui.refresh()
	ui.queueTable.Select(to+1, 0)
}

func (ui *UI) toggleFavorite() {
	t, ok := ui.selectedTrack()
	if !ok {
		return
	}
	key := track.KeyOf(&t)

	ui.config.ToggleFavorite(key)
	ui.refresh()

	go func() {
		if err := ui.config.Save(); err != nil {
			log.Error().Err(err).Msg("Failed to save config")
		}
	}()

	log.Debug().Str("key", key).Bool("favorite", ui.config.IsFavorite(key)).Msg("Toggled favorite")
}
