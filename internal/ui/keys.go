package ui

import (
	"unicode/utf8"

	tea "charm.land/bubbletea/v2"
)

// keyToBytes translates a key press into the byte sequence a terminal
// would send, for forwarding to the pseudo-terminal master. Returns
// nil for keys that have no terminal encoding.
func keyToBytes(k tea.Key) []byte {
	hasAlt := k.Mod&tea.ModAlt != 0
	hasCtrl := k.Mod&tea.ModCtrl != 0
	hasShift := k.Mod&tea.ModShift != 0

	if hasCtrl && k.Code >= 'a' && k.Code <= 'z' {
		return []byte{byte(k.Code - 'a' + 1)}
	}
	if hasShift && k.Code == tea.KeyTab {
		return []byte("\x1b[Z")
	}
	if hasAlt && k.Code >= 'a' && k.Code <= 'z' {
		return []byte{0x1b, byte(k.Code)}
	}

	switch k.Code {
	case tea.KeyEnter:
		return []byte("\r")
	case tea.KeyBackspace:
		if hasAlt {
			return []byte{0x1b, 0x7f}
		}
		return []byte{0x7f}
	case tea.KeyTab:
		return []byte("\t")
	case tea.KeySpace:
		return []byte(" ")
	case tea.KeyUp:
		return []byte("\x1b[A")
	case tea.KeyDown:
		return []byte("\x1b[B")
	case tea.KeyRight:
		return []byte("\x1b[C")
	case tea.KeyLeft:
		return []byte("\x1b[D")
	case tea.KeyEscape:
		return []byte{0x1b}
	case tea.KeyHome:
		return []byte("\x1b[H")
	case tea.KeyEnd:
		return []byte("\x1b[F")
	case tea.KeyPgUp:
		return []byte("\x1b[5~")
	case tea.KeyPgDown:
		return []byte("\x1b[6~")
	case tea.KeyDelete:
		return []byte("\x1b[3~")
	}

	if k.Text != "" {
		if hasAlt {
			out := make([]byte, 0, len(k.Text)*2)
			for _, r := range k.Text {
				out = append(out, 0x1b)
				out = utf8.AppendRune(out, r)
			}
			return out
		}
		return []byte(k.Text)
	}
	return nil
}
