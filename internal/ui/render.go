package ui

import (
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/periscope-debug/periscope/internal/emu"
)

// styleCache maps emulator styles to concrete lipgloss styles. Style
// values are comparable, so identical attributes hit the same entry no
// matter which cells they came from. The cache belongs to one theme;
// build a fresh one after a theme change.
type styleCache struct {
	theme  *Theme
	styles map[emu.Style]lipgloss.Style
}

func newStyleCache(theme *Theme) *styleCache {
	return &styleCache{theme: theme, styles: make(map[emu.Style]lipgloss.Style)}
}

func (c *styleCache) get(s emu.Style) lipgloss.Style {
	if st, ok := c.styles[s]; ok {
		return st
	}
	st := lipgloss.NewStyle().
		Foreground(c.theme.Resolve(s.FG, false)).
		Background(c.theme.Resolve(s.BG, true)).
		Bold(s.Bold).
		Italic(s.Italic).
		Underline(s.Underline).
		Strikethrough(s.Strike).
		Reverse(s.Reverse)
	c.styles[s] = st
	return st
}

// renderRow turns one row of cells into a styled string, batching
// contiguous same-styled runs so each run is styled once. The row is
// padded or truncated to width columns.
func renderRow(cells []emu.Cell, cache *styleCache, width int, cursorX int) string {
	var out strings.Builder
	var run strings.Builder
	var runStyle emu.Style
	inRun := false

	flush := func() {
		if !inRun || run.Len() == 0 {
			return
		}
		out.WriteString(cache.get(runStyle).Render(run.String()))
		run.Reset()
	}

	col := 0
	for i, cell := range cells {
		if col >= width {
			break
		}
		if cell.IsContinuation() {
			// The wide rune before it already covers this column.
			col++
			continue
		}
		style := cell.Style
		if col == cursorX {
			style.Reverse = !style.Reverse
		} else if cursorX > col {
			// A wide rune owns its continuation columns too; the cursor
			// sitting on any of them highlights the rune itself.
			span := 1
			for i+span < len(cells) && cells[i+span].IsContinuation() {
				span++
			}
			if cursorX < col+span {
				style.Reverse = !style.Reverse
			}
		}
		r := cell.Rune
		if r == 0 {
			r = ' '
		}
		if !inRun || style != runStyle {
			flush()
			runStyle = style
			inRun = true
		}
		run.WriteRune(r)
		col++
	}
	flush()

	if col < width {
		pad := emu.DefaultStyle
		if cursorX >= col && cursorX < width {
			left := cursorX - col
			if left > 0 {
				out.WriteString(cache.get(pad).Render(strings.Repeat(" ", left)))
			}
			cur := pad
			cur.Reverse = true
			out.WriteString(cache.get(cur).Render(" "))
			col = cursorX + 1
		}
		if col < width {
			out.WriteString(cache.get(pad).Render(strings.Repeat(" ", width-col)))
		}
	}
	return out.String()
}
