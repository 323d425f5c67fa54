package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/glebovdev/trackdeck/internal/config"
	"github.com/glebovdev/trackdeck/internal/player"
	"github.com/glebovdev/trackdeck/internal/session"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	RateStep    = 0.25
	meterCells  = 12
	meterFilled = "▮"
	meterEmpty  = "▯"
)

// mixerPalette holds the tview color names used by the mixer line.
type mixerPalette struct {
	accent string
	dim    string
	muted  string
}

// meter draws volume as a row of cells.
func meter(volume, cells int) string {
	filled := config.ClampVolume(volume) * cells / 100
	return strings.Repeat(meterFilled, filled) + strings.Repeat(meterEmpty, cells-filled)
}

// formatRate renders a playback rate like "1×" or "1.25×".
func formatRate(rate float64) string {
	if rate <= 0 {
		rate = player.DefaultRate
	}
	return strconv.FormatFloat(rate, 'f', -1, 64) + "×"
}

// mixerText renders volume and speed for the player panel. While muted the
// engine runs at zero, so the meter shows the volume that unmuting restores.
func mixerText(ps player.PlaybackState, muted bool, restore int, p mixerPalette) string {
	volume := fmt.Sprintf("[%s]vol[-] [%s]%s[-] %3d%%", p.dim, p.accent, meter(ps.Volume, meterCells), ps.Volume)
	if muted {
		volume = fmt.Sprintf("[%s]vol[-] [%s]%s[-] [%s::s]%3d%%[-::-] [%s]muted[-]",
			p.dim, p.muted, meter(restore, meterCells), p.muted, restore, p.muted)
	}

	speedColor := p.dim
	if ps.Rate != 0 && ps.Rate != player.DefaultRate {
		speedColor = p.accent
	}
	speed := fmt.Sprintf("[%s]speed %s[-]", speedColor, formatRate(ps.Rate))

	return volume + "   " + speed
}

func (ui *UI) createMixer() *tview.TextView {
	ui.mixerView = tview.NewTextView()
	ui.mixerView.SetDynamicColors(true)
	ui.mixerView.SetWrap(false)
	ui.mixerView.SetTextColor(ui.colors.foreground)
	ui.mixerView.SetBackgroundColor(ui.colors.background)
	return ui.mixerView
}

func (ui *UI) mixerPalette() mixerPalette {
	return mixerPalette{
		accent: ui.colors.highlight.String(),
		dim:    ui.colors.borders.String(),
		muted:  config.GetColor(ui.config.Theme.MutedVolume).String(),
	}
}

func (ui *UI) updateMixer(snap session.Snapshot) {
	if ui.mixerView == nil {
		return
	}
	ui.mu.Lock()
	muted, restore := ui.isMuted, ui.mutedFrom
	ui.mu.Unlock()

	ui.mixerView.SetText(mixerText(snap.Playback, muted, restore, ui.mixerPalette()))
}

// adjustVolume changes the engine volume by delta. Adjusting while muted
// unmutes and starts from the volume held before muting.
func (ui *UI) adjustVolume(delta int) {
	base := ui.engine.Volume()

	ui.mu.Lock()
	if ui.isMuted {
		base = ui.mutedFrom
		ui.isMuted = false
		ui.statusRenderer.SetMuted(false)
	}
	ui.mu.Unlock()

	volume := config.ClampVolume(base + delta)
	ui.engine.SetVolume(volume)
	ui.SaveConfig()
	ui.updateMixer(ui.session.Snapshot())
	log.Debug().Int("volume", volume).Msg("Volume adjusted")
}

// toggleMute silences the engine and remembers the level to come back to.
// Muting at zero volume restores the default level on unmute.
func (ui *UI) toggleMute() {
	current := ui.engine.Volume()

	ui.mu.Lock()
	var volume int
	if ui.isMuted {
		volume = ui.mutedFrom
		ui.isMuted = false
	} else {
		ui.mutedFrom = current
		if current == 0 {
			ui.mutedFrom = config.DefaultVolume
		}
		ui.isMuted = true
	}
	muted := ui.isMuted
	ui.statusRenderer.SetMuted(muted)
	ui.mu.Unlock()

	ui.engine.SetVolume(volume)
	ui.SaveConfig()
	ui.updateMixer(ui.session.Snapshot())
	log.Debug().Bool("muted", muted).Int("volume", volume).Msg("Mute toggled")
}

// adjustRate speeds playback up or down by delta, within the engine's limits.
func (ui *UI) adjustRate(delta float64) {
	ui.engine.SetRate(ui.engine.Rate() + delta)
	ui.updateMixer(ui.session.Snapshot())
	log.Debug().Float64("rate", ui.engine.Rate()).Msg("Playback rate changed")
}

func (ui *UI) resetRate() {
	ui.engine.SetRate(player.DefaultRate)
	ui.updateMixer(ui.session.Snapshot())
}
