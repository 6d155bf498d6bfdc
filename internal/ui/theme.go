// Package ui renders the embedded debugger interface: the relayed
// terminal, the backtrace/threads/locals panels and the status bar. It
// consumes the screen buffer and debugger snapshots; it owns no
// terminal plumbing of its own.
package ui

import (
	"image/color"

	"charm.land/lipgloss/v2"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/periscope-debug/periscope/internal/debugger"
	"github.com/periscope-debug/periscope/internal/emu"
)

// mustHex parses a hex color string and panics on failure.
func mustHex(hex string) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		panic("invalid hex color: " + hex)
	}
	return c
}

// Theme is the palette the whole UI draws from. Terminal cells carry
// the "default color" sentinel out of the emulator; the theme supplies
// the concrete pair at draw time, so switching themes re-renders the
// same buffer consistently.
type Theme struct {
	// Terminal default pair.
	TermFG colorful.Color
	TermBG colorful.Color

	Accent    colorful.Color
	Border    colorful.Color
	Muted     colorful.Color
	Highlight colorful.Color

	// Execution mode accents for the status bar.
	Recording colorful.Color
	Replaying colorful.Color
	Stopped   colorful.Color
}

// DefaultTheme is a restrained dark palette; the muted and border
// shades are derived from the accents rather than hard-coded, so a
// single accent swap keeps the chrome coherent.
func DefaultTheme() *Theme {
	accent := mustHex("#7D56F4")
	fg := mustHex("#D9DCE3")
	bg := mustHex("#1A1B26")
	return &Theme{
		TermFG:    fg,
		TermBG:    bg,
		Accent:    accent,
		Border:    accent.BlendLab(bg, 0.55),
		Muted:     fg.BlendLab(bg, 0.5),
		Highlight: accent.BlendLab(fg, 0.35),
		Recording: mustHex("#F47D7D"),
		Replaying: mustHex("#56B4F4"),
		Stopped:   fg.BlendLab(bg, 0.35),
	}
}

// ModeColor returns the status accent for an execution mode.
func (t *Theme) ModeColor(mode debugger.ExecutionMode) color.Color {
	switch mode {
	case debugger.ModeRecording:
		return t.Recording
	case debugger.ModeReplaying:
		return t.Replaying
	default:
		return t.Stopped
	}
}

// Resolve maps an emulator color to a concrete drawing color using the
// theme's default pair.
func (t *Theme) Resolve(c emu.Color, background bool) color.Color {
	if c.Kind == emu.ColorDefault {
		if background {
			return t.TermBG
		}
		return t.TermFG
	}
	return mustHex(c.Hex())
}

// Chrome styles.

func (t *Theme) PanelStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)
}

func (t *Theme) PanelTitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
}

func (t *Theme) SelectedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Highlight).Bold(true)
}

func (t *Theme) MutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Muted)
}

func (t *Theme) StatusBarStyle() lipgloss.Style {
	return lipgloss.NewStyle().Background(t.Border).Foreground(t.TermFG).Padding(0, 1)
}
