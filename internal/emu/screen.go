package emu

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mattn/go-runewidth"
)

// ErrInvalidLine is returned for negative virtual line indices.
// Positive indices beyond the end yield an empty row instead: the
// caller cannot know the total line count race-free, but a negative
// index is always a caller bug.
var ErrInvalidLine = errors.New("negative virtual line index")

// maxHistory bounds scrollback memory. The limit is generous; hitting
// it drops the oldest rows.
const maxHistory = 100_000

// Cursor is a buffer-relative position.
type Cursor struct {
	X, Y int
}

// Screen is the emulator state: a lines x cols grid of cells plus two
// history deques forming one logical virtual line space
//
//	virtual = historyTop ++ grid ++ historyBottom
//
// Rows scrolled off the top move into historyTop; historyBottom exists
// for rows paged below the grid and stays empty under the fixed-history
// model (paging backwards is unsupported and fails fast).
type Screen struct {
	lines, cols  int
	grid         [][]Cell
	historyTop   [][]Cell
	historyBot   [][]Cell
	historyLimit int

	cursor      Cursor
	savedCursor Cursor
	savedStyle  Style
	style       Style

	autoWrap      bool
	wrapPending   bool
	cursorVisible bool

	dirty map[int]struct{}

	parser *parser

	// onInvariantViolation is called for operations the fixed-history
	// model cannot express (reverse scrolling, backwards paging).
	// Producing silently corrupted scrollback is worse than dying.
	onInvariantViolation func(msg string)
}

// NewScreen creates an emulator with the given grid size.
func NewScreen(lines, cols int) *Screen {
	if lines < 1 {
		lines = 1
	}
	if cols < 1 {
		cols = 1
	}
	s := &Screen{
		lines:         lines,
		cols:          cols,
		autoWrap:      true,
		cursorVisible: true,
		historyLimit:  maxHistory,
		dirty:         make(map[int]struct{}),
		onInvariantViolation: func(msg string) {
			panic("emu: " + msg)
		},
	}
	s.grid = make([][]Cell, lines)
	for i := range s.grid {
		s.grid[i] = s.blankRow()
	}
	s.parser = newParser(s)
	return s
}

// SetInvariantHook replaces the fail-fast handler for architecturally
// unsupported operations. The production wiring points this at the
// process fatal path.
func (s *Screen) SetInvariantHook(fn func(msg string)) {
	if fn != nil {
		s.onInvariantViolation = fn
	}
}

func (s *Screen) blankRow() []Cell {
	row := make([]Cell, s.cols)
	b := blank(s.style)
	for i := range row {
		row[i] = b
	}
	return row
}

// Size returns the visible grid dimensions.
func (s *Screen) Size() (lines, cols int) {
	return s.lines, s.cols
}

// Feed parses raw bytes and applies every control sequence they
// contain. Malformed or unrecognized sequences are consumed and
// ignored; Feed never fails and never corrupts buffer state.
func (s *Screen) Feed(data []byte) {
	s.parser.parse(data)
}

// VirtualLines is the total addressable line count:
// len(historyTop) + lines + len(historyBottom).
func (s *Screen) VirtualLines() int {
	return len(s.historyTop) + s.lines + len(s.historyBot)
}

// HistoryTop returns the number of rows scrolled off the top.
func (s *Screen) HistoryTop() int {
	return len(s.historyTop)
}

// Line returns the row at a virtual index. Indices beyond the end
// yield an empty row; negative indices are an invalid-argument error.
func (s *Screen) Line(virtual int) ([]Cell, error) {
	if virtual < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLine, virtual)
	}
	n := virtual
	for _, part := range [][][]Cell{s.historyTop, s.grid, s.historyBot} {
		if n < len(part) {
			return part[n], nil
		}
		n -= len(part)
	}
	return nil, nil
}

// CursorVirtual exposes the cursor in virtual-line space.
func (s *Screen) CursorVirtual() Cursor {
	return Cursor{X: s.cursor.X, Y: s.cursor.Y + len(s.historyTop)}
}

// CursorVisible reports the DECTCEM state.
func (s *Screen) CursorVisible() bool {
	return s.cursorVisible
}

// DirtyVirtual returns the virtual indices of rows mutated since the
// last ClearDirty, in ascending order. The consumer clears the set;
// the producer only accumulates.
func (s *Screen) DirtyVirtual() []int {
	out := make([]int, 0, len(s.dirty))
	for row := range s.dirty {
		out = append(out, row+len(s.historyTop))
	}
	sort.Ints(out)
	return out
}

// ClearDirty empties the dirty set. Called by the render consumer.
func (s *Screen) ClearDirty() {
	clear(s.dirty)
}

func (s *Screen) markDirty(row int) {
	if row >= 0 && row < s.lines {
		s.dirty[row] = struct{}{}
	}
}

func (s *Screen) markAllDirty() {
	for i := 0; i < s.lines; i++ {
		s.dirty[i] = struct{}{}
	}
}

// Resize changes the grid dimensions. Shrinking the height moves the
// rows removed from the top of the grid into historyTop, preserving
// their content; growing pads with blank rows and never loses content.
func (s *Screen) Resize(lines, cols int) {
	if lines < 1 {
		lines = 1
	}
	if cols < 1 {
		cols = 1
	}
	if lines == s.lines && cols == s.cols {
		return
	}

	if cols != s.cols {
		for i, row := range s.grid {
			s.grid[i] = resizeRow(row, cols, blank(DefaultStyle))
		}
		s.cols = cols
		if s.cursor.X >= cols {
			s.cursor.X = cols - 1
		}
	}

	switch {
	case lines < s.lines:
		dropped := s.lines - lines
		s.pushHistoryTop(s.grid[:dropped]...)
		s.grid = append([][]Cell(nil), s.grid[dropped:]...)
		s.cursor.Y -= dropped
		if s.cursor.Y < 0 {
			s.cursor.Y = 0
		}
	case lines > s.lines:
		for i := s.lines; i < lines; i++ {
			s.grid = append(s.grid, s.blankRowWidth(cols))
		}
	}
	s.lines = lines
	s.wrapPending = false
	s.dirty = make(map[int]struct{})
	s.markAllDirty()
}

func (s *Screen) blankRowWidth(cols int) []Cell {
	row := make([]Cell, cols)
	b := blank(DefaultStyle)
	for i := range row {
		row[i] = b
	}
	return row
}

func resizeRow(row []Cell, cols int, fill Cell) []Cell {
	if len(row) >= cols {
		return row[:cols]
	}
	out := make([]Cell, cols)
	copy(out, row)
	for i := len(row); i < cols; i++ {
		out[i] = fill
	}
	return out
}

func (s *Screen) pushHistoryTop(rows ...[]Cell) {
	for _, row := range rows {
		s.historyTop = append(s.historyTop, row)
	}
	if over := len(s.historyTop) - s.historyLimit; over > 0 {
		s.historyTop = append([][]Cell(nil), s.historyTop[over:]...)
	}
}

// SetHistoryLimit caps retained scrollback rows. Values below one keep
// the default.
func (s *Screen) SetHistoryLimit(n int) {
	if n > 0 {
		s.historyLimit = n
	}
}

// Reset clears the grid and attributes but keeps scrollback.
func (s *Screen) Reset() {
	for i := range s.grid {
		s.grid[i] = s.blankRow()
	}
	s.cursor = Cursor{}
	s.style = DefaultStyle
	s.wrapPending = false
	s.autoWrap = true
	s.cursorVisible = true
	s.markAllDirty()
}

// --- operations driven by the parser ---

func (s *Screen) writeRune(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		// Zero-width runes (combining marks) have no cell of their own.
		// The cell model stores a single base rune per position, so
		// they are dropped rather than risking grid corruption.
		return
	}

	if s.wrapPending {
		s.wrapPending = false
		s.carriageReturn()
		s.lineFeed()
	}

	if s.cursor.X+w > s.cols {
		if s.autoWrap {
			s.carriageReturn()
			s.lineFeed()
		} else {
			s.cursor.X = s.cols - w
			if s.cursor.X < 0 {
				s.cursor.X = 0
			}
		}
	}

	row := s.grid[s.cursor.Y]
	row[s.cursor.X] = Cell{Rune: r, Style: s.style}
	if w == 2 && s.cursor.X+1 < s.cols {
		row[s.cursor.X+1] = Cell{Rune: continuation, Style: s.style}
	}
	s.markDirty(s.cursor.Y)

	s.cursor.X += w
	if s.cursor.X >= s.cols {
		if s.autoWrap {
			// Defer the wrap so a CR/LF right after the last column
			// does not produce a spurious blank line.
			s.cursor.X = s.cols - 1
			s.wrapPending = true
		} else {
			s.cursor.X = s.cols - 1
		}
	}
}

func (s *Screen) lineFeed() {
	s.wrapPending = false
	if s.cursor.Y >= s.lines-1 {
		s.scrollUp(1)
		return
	}
	s.cursor.Y++
}

func (s *Screen) carriageReturn() {
	s.wrapPending = false
	s.cursor.X = 0
}

func (s *Screen) backspace() {
	s.wrapPending = false
	if s.cursor.X > 0 {
		s.cursor.X--
	}
}

func (s *Screen) tab() {
	s.wrapPending = false
	next := (s.cursor.X/8 + 1) * 8
	if next >= s.cols {
		next = s.cols - 1
	}
	s.cursor.X = next
}

// scrollUp moves n rows off the top of the grid into historyTop and
// appends blank rows at the bottom.
func (s *Screen) scrollUp(n int) {
	if n <= 0 {
		return
	}
	if n > s.lines {
		n = s.lines
	}
	s.pushHistoryTop(s.grid[:n]...)
	rest := append([][]Cell(nil), s.grid[n:]...)
	for i := 0; i < n; i++ {
		rest = append(rest, s.blankRow())
	}
	s.grid = rest
	s.markAllDirty()
}

// scrollDown would move content back out of historyTop. The
// fixed-history model cannot express that without corrupting the
// virtual line space, so it fails fast instead.
func (s *Screen) scrollDown(n int) {
	s.onInvariantViolation(fmt.Sprintf("reverse scroll by %d is not supported by the fixed-history model", n))
}

func (s *Screen) reverseIndex() {
	if s.cursor.Y == 0 {
		s.scrollDown(1)
		return
	}
	s.cursor.Y--
}

func (s *Screen) moveCursor(dx, dy int) {
	s.wrapPending = false
	s.cursor.X = clamp(s.cursor.X+dx, 0, s.cols-1)
	s.cursor.Y = clamp(s.cursor.Y+dy, 0, s.lines-1)
}

func (s *Screen) setCursor(x, y int) {
	s.wrapPending = false
	s.cursor.X = clamp(x, 0, s.cols-1)
	s.cursor.Y = clamp(y, 0, s.lines-1)
}

func (s *Screen) saveCursor() {
	s.savedCursor = s.cursor
	s.savedStyle = s.style
}

func (s *Screen) restoreCursor() {
	s.cursor = s.savedCursor
	s.style = s.savedStyle
	s.cursor.X = clamp(s.cursor.X, 0, s.cols-1)
	s.cursor.Y = clamp(s.cursor.Y, 0, s.lines-1)
}

func (s *Screen) eraseInDisplay(mode int) {
	switch mode {
	case 0: // cursor to end
		s.eraseInLine(0)
		for y := s.cursor.Y + 1; y < s.lines; y++ {
			s.grid[y] = s.blankRow()
			s.markDirty(y)
		}
	case 1: // start to cursor
		s.eraseInLine(1)
		for y := 0; y < s.cursor.Y; y++ {
			s.grid[y] = s.blankRow()
			s.markDirty(y)
		}
	case 2, 3: // whole display
		for y := 0; y < s.lines; y++ {
			s.grid[y] = s.blankRow()
		}
		s.markAllDirty()
	}
}

func (s *Screen) eraseInLine(mode int) {
	row := s.grid[s.cursor.Y]
	b := blank(s.style)
	switch mode {
	case 0:
		for x := s.cursor.X; x < s.cols; x++ {
			row[x] = b
		}
	case 1:
		for x := 0; x <= s.cursor.X && x < s.cols; x++ {
			row[x] = b
		}
	case 2:
		s.grid[s.cursor.Y] = s.blankRow()
	}
	s.markDirty(s.cursor.Y)
}

func (s *Screen) insertLines(n int) {
	if n <= 0 {
		return
	}
	y := s.cursor.Y
	if n > s.lines-y {
		n = s.lines - y
	}
	tail := append([][]Cell(nil), s.grid[y:s.lines-n]...)
	for i := 0; i < n; i++ {
		s.grid[y+i] = s.blankRow()
	}
	copy(s.grid[y+n:], tail)
	for i := y; i < s.lines; i++ {
		s.markDirty(i)
	}
}

func (s *Screen) deleteLines(n int) {
	if n <= 0 {
		return
	}
	y := s.cursor.Y
	if n > s.lines-y {
		n = s.lines - y
	}
	copy(s.grid[y:], s.grid[y+n:])
	for i := s.lines - n; i < s.lines; i++ {
		s.grid[i] = s.blankRow()
	}
	for i := y; i < s.lines; i++ {
		s.markDirty(i)
	}
}

func (s *Screen) insertChars(n int) {
	if n <= 0 {
		return
	}
	row := s.grid[s.cursor.Y]
	x := s.cursor.X
	if n > s.cols-x {
		n = s.cols - x
	}
	copy(row[x+n:], row[x:s.cols-n])
	b := blank(s.style)
	for i := 0; i < n; i++ {
		row[x+i] = b
	}
	s.markDirty(s.cursor.Y)
}

func (s *Screen) deleteChars(n int) {
	if n <= 0 {
		return
	}
	row := s.grid[s.cursor.Y]
	x := s.cursor.X
	if n > s.cols-x {
		n = s.cols - x
	}
	copy(row[x:], row[x+n:])
	b := blank(s.style)
	for i := s.cols - n; i < s.cols; i++ {
		row[i] = b
	}
	s.markDirty(s.cursor.Y)
}

func (s *Screen) eraseChars(n int) {
	if n <= 0 {
		return
	}
	row := s.grid[s.cursor.Y]
	b := blank(s.style)
	for i := 0; i < n && s.cursor.X+i < s.cols; i++ {
		row[s.cursor.X+i] = b
	}
	s.markDirty(s.cursor.Y)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
