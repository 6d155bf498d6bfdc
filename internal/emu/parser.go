package emu

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// parser is a byte-at-a-time VT100/ANSI state machine. Unknown or
// malformed sequences are consumed and dropped; the grid is only ever
// touched through Screen operations, so bad input cannot corrupt it.
type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCSI
	stateOSC
	stateOSCEsc // inside OSC, after ESC (expecting \ terminator)
	stateCharset
)

type parser struct {
	screen *Screen
	state  parserState

	private      byte
	intermediate byte
	params       []string
	paramBuf     strings.Builder

	utf8Buf  []byte
	utf8Need int
}

func newParser(s *Screen) *parser {
	return &parser{screen: s, params: make([]string, 0, 16)}
}

func (p *parser) parse(data []byte) {
	for _, b := range data {
		p.step(b)
	}
}

func (p *parser) step(b byte) {
	// UTF-8 continuation handling only matters in ground state; escape
	// sequences are pure ASCII.
	if p.utf8Need > 0 {
		if b&0xC0 == 0x80 {
			p.utf8Buf = append(p.utf8Buf, b)
			p.utf8Need--
			if p.utf8Need == 0 {
				r, _ := utf8.DecodeRune(p.utf8Buf)
				p.screen.writeRune(r)
				p.utf8Buf = p.utf8Buf[:0]
			}
			return
		}
		// Truncated sequence: drop it and reprocess this byte.
		p.utf8Buf = p.utf8Buf[:0]
		p.utf8Need = 0
	}

	if p.state == stateGround && b >= 0x80 {
		switch {
		case b&0xE0 == 0xC0:
			p.utf8Need = 1
		case b&0xF0 == 0xE0:
			p.utf8Need = 2
		case b&0xF8 == 0xF0:
			p.utf8Need = 3
		default:
			return // stray continuation byte
		}
		p.utf8Buf = append(p.utf8Buf[:0], b)
		return
	}

	switch p.state {
	case stateGround:
		p.ground(b)
	case stateEscape:
		p.escape(b)
	case stateCSI:
		p.csi(b)
	case stateOSC:
		if b == 0x07 { // BEL terminator
			p.state = stateGround
		} else if b == 0x1B {
			p.state = stateOSCEsc
		}
	case stateOSCEsc:
		// ESC \ (ST) ends the OSC string; anything else re-enters it.
		if b == '\\' {
			p.state = stateGround
		} else {
			p.state = stateOSC
		}
	case stateCharset:
		p.state = stateGround // consume the designator
	}
}

func (p *parser) ground(b byte) {
	switch b {
	case 0x00, 0x07: // NUL, BEL
	case 0x08:
		p.screen.backspace()
	case 0x09:
		p.screen.tab()
	case 0x0A, 0x0B, 0x0C:
		p.screen.lineFeed()
	case 0x0D:
		p.screen.carriageReturn()
	case 0x1B:
		p.state = stateEscape
	default:
		if b >= 0x20 && b < 0x7F {
			p.screen.writeRune(rune(b))
		}
	}
}

func (p *parser) escape(b byte) {
	p.state = stateGround
	switch b {
	case '[':
		p.state = stateCSI
		p.private = 0
		p.intermediate = 0
		p.params = p.params[:0]
		p.paramBuf.Reset()
	case ']':
		p.state = stateOSC
	case '(', ')':
		p.state = stateCharset
	case '7':
		p.screen.saveCursor()
	case '8':
		p.screen.restoreCursor()
	case 'D': // IND
		p.screen.lineFeed()
	case 'E': // NEL
		p.screen.carriageReturn()
		p.screen.lineFeed()
	case 'M': // RI
		p.screen.reverseIndex()
	case 'c': // RIS
		p.screen.Reset()
	case '=', '>': // keypad modes, ignored
	default:
		// Unknown escape: drop it.
	}
}

func (p *parser) csi(b byte) {
	switch {
	case b >= '0' && b <= '9' || b == ':':
		p.paramBuf.WriteByte(b)
	case b == ';':
		p.params = append(p.params, p.paramBuf.String())
		p.paramBuf.Reset()
	case b == '?' || b == '>' || b == '!' || b == '<':
		p.private = b
	case b >= 0x20 && b <= 0x2F:
		p.intermediate = b
	case b >= 0x40 && b <= 0x7E:
		if p.paramBuf.Len() > 0 || len(p.params) > 0 {
			p.params = append(p.params, p.paramBuf.String())
			p.paramBuf.Reset()
		}
		p.dispatchCSI(b)
		p.state = stateGround
	default:
		// Illegal byte inside CSI: abandon the sequence.
		p.state = stateGround
	}
}

// param returns the idx-th numeric parameter, treating missing or zero
// values as def (CSI semantics: 0 means default for cursor motion).
func (p *parser) param(idx, def int) int {
	if idx >= len(p.params) {
		return def
	}
	raw := p.params[idx]
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[:i]
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n == 0 {
		return def
	}
	return n
}

func (p *parser) dispatchCSI(final byte) {
	s := p.screen
	switch final {
	case 'A':
		s.moveCursor(0, -p.param(0, 1))
	case 'B', 'e':
		s.moveCursor(0, p.param(0, 1))
	case 'C', 'a':
		s.moveCursor(p.param(0, 1), 0)
	case 'D':
		s.moveCursor(-p.param(0, 1), 0)
	case 'E':
		s.moveCursor(0, p.param(0, 1))
		s.carriageReturn()
	case 'F':
		s.moveCursor(0, -p.param(0, 1))
		s.carriageReturn()
	case 'G', '`':
		s.setCursor(p.param(0, 1)-1, s.cursor.Y)
	case 'H', 'f':
		s.setCursor(p.param(1, 1)-1, p.param(0, 1)-1)
	case 'J':
		s.eraseInDisplay(p.paramOrZero(0))
	case 'K':
		s.eraseInLine(p.paramOrZero(0))
	case 'L':
		s.insertLines(p.param(0, 1))
	case 'M':
		s.deleteLines(p.param(0, 1))
	case 'P':
		s.deleteChars(p.param(0, 1))
	case '@':
		s.insertChars(p.param(0, 1))
	case 'X':
		s.eraseChars(p.param(0, 1))
	case 'S':
		s.scrollUp(p.param(0, 1))
	case 'T':
		s.scrollDown(p.param(0, 1))
	case 'd':
		s.setCursor(s.cursor.X, p.param(0, 1)-1)
	case 'm':
		p.applySGR()
	case 'h':
		p.setMode(true)
	case 'l':
		p.setMode(false)
	case 's':
		s.saveCursor()
	case 'u':
		s.restoreCursor()
	case 'n', 'c', 'r', 't', 'q':
		// Reports, device attributes, margins, window ops, cursor
		// style: consumed without effect.
	}
}

// paramOrZero is like param but keeps an explicit 0 (erase modes
// distinguish 0 from missing differently than cursor motion does).
func (p *parser) paramOrZero(idx int) int {
	if idx >= len(p.params) || p.params[idx] == "" {
		return 0
	}
	raw := p.params[idx]
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[:i]
	}
	n, _ := strconv.Atoi(raw)
	return n
}

func (p *parser) setMode(on bool) {
	if p.private != '?' {
		return
	}
	for i := range p.params {
		switch p.paramOrZero(i) {
		case 7: // DECAWM
			p.screen.autoWrap = on
		case 25: // DECTCEM
			p.screen.cursorVisible = on
		}
	}
}

// applySGR folds the accumulated SGR parameters into the current
// style. Both the legacy ;-separated and the :-subparameter forms of
// extended colors are accepted.
func (p *parser) applySGR() {
	if len(p.params) == 0 {
		p.screen.style = DefaultStyle
		return
	}

	st := p.screen.style
	for i := 0; i < len(p.params); i++ {
		raw := p.params[i]
		if strings.ContainsRune(raw, ':') {
			i += applySGRSub(&st, raw)
			continue
		}
		n, _ := strconv.Atoi(raw)
		switch {
		case n == 0:
			st = DefaultStyle
		case n == 1:
			st.Bold = true
		case n == 3:
			st.Italic = true
		case n == 4:
			st.Underline = true
		case n == 7:
			st.Reverse = true
		case n == 9:
			st.Strike = true
		case n == 21 || n == 22:
			st.Bold = false
		case n == 23:
			st.Italic = false
		case n == 24:
			st.Underline = false
		case n == 27:
			st.Reverse = false
		case n == 29:
			st.Strike = false
		case n >= 30 && n <= 37:
			st.FG = Indexed(uint8(n - 30))
		case n == 38:
			if c, used, ok := extendedColor(p.params[i+1:]); ok {
				st.FG = c
				i += used
			}
		case n == 39:
			st.FG = Default
		case n >= 40 && n <= 47:
			st.BG = Indexed(uint8(n - 40))
		case n == 48:
			if c, used, ok := extendedColor(p.params[i+1:]); ok {
				st.BG = c
				i += used
			}
		case n == 49:
			st.BG = Default
		case n >= 90 && n <= 97:
			st.FG = Indexed(uint8(n - 90 + 8))
		case n >= 100 && n <= 107:
			st.BG = Indexed(uint8(n - 100 + 8))
		}
	}
	p.screen.style = st
}

// extendedColor parses the tail of a ;-form extended color: 5;n or
// 2;r;g;b. Returns the parsed color and how many parameters were used.
func extendedColor(rest []string) (Color, int, bool) {
	atoi := func(s string) int { n, _ := strconv.Atoi(s); return n }
	if len(rest) >= 2 && rest[0] == "5" {
		return Indexed(uint8(atoi(rest[1]))), 2, true
	}
	if len(rest) >= 4 && rest[0] == "2" {
		return RGB(uint8(atoi(rest[1])), uint8(atoi(rest[2])), uint8(atoi(rest[3]))), 4, true
	}
	return Color{}, 0, false
}

// applySGRSub handles one :-form parameter like "38:5:196" or
// "38:2::255:128:0". Returns how many extra ;-params were consumed
// (always 0: the whole color fits in one parameter).
func applySGRSub(st *Style, raw string) int {
	parts := strings.Split(raw, ":")
	atoi := func(s string) int { n, _ := strconv.Atoi(s); return n }
	base := atoi(parts[0])
	if base != 38 && base != 48 {
		return 0
	}
	var c Color
	switch {
	case len(parts) >= 3 && parts[1] == "5":
		c = Indexed(uint8(atoi(parts[2])))
	case len(parts) >= 5 && parts[1] == "2":
		// Optional colorspace slot: 38:2::r:g:b vs 38:2:r:g:b.
		rgb := parts[2:]
		if len(rgb) >= 4 && rgb[0] == "" {
			rgb = rgb[1:]
		}
		if len(rgb) < 3 {
			return 0
		}
		c = RGB(uint8(atoi(rgb[0])), uint8(atoi(rgb[1])), uint8(atoi(rgb[2])))
	default:
		return 0
	}
	if base == 38 {
		st.FG = c
	} else {
		st.BG = c
	}
	return 0
}
