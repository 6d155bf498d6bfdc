// Package emu is a VT100/ANSI terminal emulator: a control-sequence
// interpreter feeding a fixed-size cell grid with scrollback. It is
// deliberately single-threaded; the dispatch bridge guarantees it is
// only ever touched from the UI context.
package emu

// Style is the visual attribute set of a cell. It is a comparable
// value: two cells with identical attributes compare equal and the
// Style can be used directly as a cache key when grouping contiguous
// same-styled runs for rendering.
type Style struct {
	FG        Color
	BG        Color
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
	Reverse   bool
}

// DefaultStyle has both colors unset and no attributes.
var DefaultStyle = Style{}

// Cell is one grid position. Cells are immutable values: updates
// replace the whole cell, never mutate it in place.
type Cell struct {
	Rune  rune
	Style Style
}

// blank returns the cell used for erased positions, carrying the
// current background so erase-with-color behaves like real terminals.
func blank(s Style) Cell {
	return Cell{Rune: ' ', Style: Style{BG: s.BG}}
}

// continuation marks the trailing cell of a wide rune.
const continuation = rune(0)

// IsContinuation reports whether the cell is the hidden second half of
// a wide character.
func (c Cell) IsContinuation() bool {
	return c.Rune == continuation
}
