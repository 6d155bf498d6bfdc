// Package termio manipulates the real terminal's file descriptors: the
// three standard streams treated as a unit, raw-mode switching, and
// restoring the terminal to a sane interactive state.
package termio

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
)

// Streams is the three standard I/O file descriptors treated as a
// unit. The zero value is not meaningful; use Standard or Dup.
type Streams struct {
	Stdin  int
	Stdout int
	Stderr int
}

// Standard returns the process's standard descriptors 0, 1, 2.
func Standard() Streams {
	return Streams{Stdin: 0, Stdout: 1, Stderr: 2}
}

// FDs returns the descriptors in stdin, stdout, stderr order.
func (s Streams) FDs() [3]int {
	return [3]int{s.Stdin, s.Stdout, s.Stderr}
}

// Dup duplicates all three descriptors so they survive the originals
// being replaced by dup2.
func (s Streams) Dup() (Streams, error) {
	var out [3]int
	for i, fd := range s.FDs() {
		d, err := unix.Dup(fd)
		if err != nil {
			for _, done := range out[:i] {
				_ = unix.Close(done)
			}
			return Streams{}, fmt.Errorf("dup fd %d: %w", fd, err)
		}
		out[i] = d
	}
	return Streams{Stdin: out[0], Stdout: out[1], Stderr: out[2]}, nil
}

// Close closes all three descriptors.
func (s Streams) Close() error {
	var first error
	for _, fd := range s.FDs() {
		if err := unix.Close(fd); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AllSameTTY reports whether all three descriptors are terminals and
// refer to the same terminal device. Device identity is compared with
// fstat (same rdev) rather than path lookup.
func (s Streams) AllSameTTY() bool {
	var dev uint64
	for i, fd := range s.FDs() {
		if !isatty.IsTerminal(uintptr(fd)) {
			return false
		}
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return false
		}
		if i == 0 {
			dev = uint64(st.Rdev)
		} else if uint64(st.Rdev) != dev {
			return false
		}
	}
	return true
}

// Files wraps the descriptors in os.File objects that do not own them.
func (s Streams) Files() (in, out, err *os.File) {
	return os.NewFile(uintptr(s.Stdin), "/dev/stdin"),
		os.NewFile(uintptr(s.Stdout), "/dev/stdout"),
		os.NewFile(uintptr(s.Stderr), "/dev/stderr")
}

// SetRaw puts the terminal on fd into raw mode but keeps ISIG enabled
// so CTRL-C still raises SIGINT in the foreground process group.
func SetRaw(fd int) error {
	t, err := getTermios(fd)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Lflag |= unix.ISIG
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	return setTermiosFlush(fd, t)
}

// AllowCtrlC re-enables signal generation on a terminal that may have
// been put into a fully raw mode by someone else.
func AllowCtrlC(fd int) error {
	t, err := getTermios(fd)
	if err != nil {
		return err
	}
	t.Lflag |= unix.ISIG
	return setTermiosFlush(fd, t)
}

// CopyAttrs copies the terminal attributes of src onto dst, so a fresh
// pseudo-terminal behaves like the real one.
func CopyAttrs(dst, src int) error {
	t, err := getTermios(src)
	if err != nil {
		return err
	}
	return setTermiosFlush(dst, t)
}

// resetCodes returns the terminal to a usable visual state: RIS, reset
// styling, default charset, cursor on, erase below the cursor.
const resetCodes = "\x1bc\x1b[0m\x1b(B\x1b[?25h\x1b[J"

// Reset restores the terminal on fd to a sane interactive state:
// cooked mode with echo, canonical input and NL->CRNL output, plus a
// burst of escape codes clearing any leftover emulator state. It is a
// no-op on non-terminals so the fatal path can call it untangled.
func Reset(fd int) {
	if !isatty.IsTerminal(uintptr(fd)) {
		return
	}
	if t, err := getTermios(fd); err == nil {
		t.Lflag |= unix.ECHO | unix.ICANON | unix.ISIG
		t.Oflag |= unix.OPOST | unix.ONLCR
		_ = setTermios(fd, t)
	}
	_, _ = unix.Write(fd, []byte(resetCodes))
}
