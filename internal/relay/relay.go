// Package relay owns the terminal plumbing: the duplicated real
// terminal descriptors, a synthetic pseudo-terminal that replaces the
// process's standard streams, and the worker that multiplexes between
// them.
//
// After Start the process's fds 0/1/2 point at the pseudo-terminal
// replica, so everything the host or debuggee prints lands on the
// master side where the relay can route it: to an attached UI for
// interpretation, or verbatim to the real terminal when no UI runs.
// Real-terminal input is forwarded to the master only while no UI owns
// input. A single-byte control channel interrupts the blocking wait
// for lifecycle transitions.
package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/periscope-debug/periscope/internal/control"
	"github.com/periscope-debug/periscope/internal/fatal"
	"github.com/periscope-debug/periscope/internal/hostloop"
	"github.com/periscope-debug/periscope/internal/termio"
)

// ErrUnsupported means the environment cannot host the UI: the
// standard streams are not one terminal, or the host runs
// non-interactively. It is a refusal, not a failure; the host keeps
// its plain prompt.
var ErrUnsupported = errors.New("terminal UI unsupported here")

// OutputSink receives pseudo-terminal output. Returns true when the
// bytes were accepted for interpretation; false sends them to the real
// terminal verbatim.
type OutputSink func(data []byte) bool

// Options configures session construction.
type Options struct {
	// Interactive must be set by the host; batch mode refuses to start.
	Interactive bool
	// RequestUIStop is invoked when the host terminates while a UI is
	// still running. It must not block.
	RequestUIStop func()
}

// Session is the live terminal plumbing. One per process; allocated
// descriptors live until the process exits.
type Session struct {
	real    termio.Streams
	master  *os.File
	replica *os.File
	ctl     *control.Channel

	winchR, winchW int
	winchSignals   chan os.Signal

	sink          atomic.Value // OutputSink
	requestUIStop func()

	// relay-goroutine state
	uiAttached bool
	mainDone   bool
	stdinOpen  bool

	doneOnce sync.Once
	done     chan struct{}
}

// Start validates the startup preconditions, allocates the
// pseudo-terminal, replaces the standard streams and launches the
// relay worker. On ErrUnsupported nothing has been touched.
func Start(opts Options) (*Session, error) {
	std := termio.Standard()
	if err := preconditions(std, opts.Interactive); err != nil {
		return nil, err
	}

	real, err := std.Dup()
	if err != nil {
		return nil, fmt.Errorf("duplicate terminal streams: %w", err)
	}

	master, replica, err := pty.Open()
	if err != nil {
		real.Close()
		return nil, fmt.Errorf("allocate pseudo-terminal: %w", err)
	}

	s := &Session{
		real:          real,
		master:        master,
		replica:       replica,
		requestUIStop: opts.RequestUIStop,
		stdinOpen:     true,
		done:          make(chan struct{}),
	}
	if s.requestUIStop == nil {
		s.requestUIStop = func() {}
	}

	if err := s.plumb(); err != nil {
		s.closeAll()
		return nil, err
	}

	go fatal.Goroutine("relay", s.loop)()
	return s, nil
}

// preconditions rejects environments the UI cannot run in.
func preconditions(std termio.Streams, interactive bool) error {
	if !interactive {
		return fmt.Errorf("%w: host is not interactive", ErrUnsupported)
	}
	if !std.AllSameTTY() {
		return fmt.Errorf("%w: stdin, stdout and stderr must be the same terminal", ErrUnsupported)
	}
	return nil
}

// plumb wires the replica over the standard descriptors and installs
// the control and resize channels.
func (s *Session) plumb() error {
	rfd := int(s.replica.Fd())

	// The replica should feel exactly like the terminal it shadows.
	if err := termio.CopyAttrs(rfd, s.real.Stdout); err != nil {
		return fmt.Errorf("copy terminal attrs onto pty: %w", err)
	}
	if err := termio.SetRaw(s.real.Stdin); err != nil {
		return fmt.Errorf("set real terminal raw: %w", err)
	}

	realIn, _, _ := s.real.Files()
	if err := pty.InheritSize(realIn, s.master); err != nil {
		return fmt.Errorf("mirror window size: %w", err)
	}

	for _, fd := range []int{0, 1, 2} {
		if err := unix.Dup2(rfd, fd); err != nil {
			return fmt.Errorf("replace fd %d: %w", fd, err)
		}
	}

	// From here on the process's own stderr is the pty; fatal output
	// must target the real terminal copies.
	fatal.Bind(s.real.Stdout, s.real.Stderr)

	ctl, err := control.New()
	if err != nil {
		return fmt.Errorf("control channel: %w", err)
	}
	s.ctl = ctl

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return fmt.Errorf("winch pipe: %w", err)
	}
	s.winchR, s.winchW = p[0], p[1]

	// The runtime delivers SIGWINCH to whichever thread it pleases; the
	// self-pipe turns the notification into a pollable event so the
	// relay worker is the one place that reacts to it.
	s.winchSignals = make(chan os.Signal, 1)
	signal.Notify(s.winchSignals, unix.SIGWINCH)
	go func() {
		one := []byte{0}
		for range s.winchSignals {
			_, _ = unix.Write(s.winchW, one)
		}
	}()

	return nil
}

// Control is the channel lifecycle transitions are announced on.
func (s *Session) Control() *control.Channel { return s.ctl }

// Real returns the duplicated real-terminal streams. The UI renders on
// these; fds 0/1/2 belong to the pseudo-terminal now.
func (s *Session) Real() termio.Streams { return s.real }

// Master returns the pseudo-terminal master. Used for command
// injection into the line discipline.
func (s *Session) Master() *os.File { return s.master }

// Passthrough writes data straight to the real terminal, bypassing any
// installed sink. The controller uses it to hand back output that was
// buffered for a UI that never came up.
func (s *Session) Passthrough(data []byte) {
	writeAll(s.real.Stdout, data)
}

// SetSink installs the UI output sink; nil removes it.
func (s *Session) SetSink(sink OutputSink) {
	s.sink.Store(sink)
}

func (s *Session) currentSink() OutputSink {
	sink, _ := s.sink.Load().(OutputSink)
	return sink
}

// WatchHost arranges for MAIN_THREAD_TERMINATED to be sent once the
// host loop is gone, so the relay can wind down or ask the UI to.
func (s *Session) WatchHost(loop *hostloop.Loop) {
	go fatal.Goroutine("host watcher", func() {
		<-loop.Terminated()
		if err := s.ctl.Send(control.MainTerminated); err != nil {
			slog.Error("announce host termination", "error", err)
		}
	})()
}

// Done is closed when the relay worker has exited and the real
// terminal has been restored.
func (s *Session) Done() <-chan struct{} { return s.done }

// loop is the relay worker. It is the single reader of the master, the
// control channel, the resize pipe and, while no UI owns input, the
// real terminal.
func (s *Session) loop() {
	// Short blocking handlers on a dedicated thread, like the signal
	// plumbing expects.
	runtime.LockOSThread()
	defer s.finish()

	buf := make([]byte, 32*1024)
	for {
		fds := []unix.PollFd{
			{Fd: int32(s.master.Fd()), Events: unix.POLLIN},
			{Fd: int32(s.ctl.WaitFD()), Events: unix.POLLIN},
			{Fd: int32(s.winchR), Events: unix.POLLIN},
		}
		const stdinIdx = 3
		if !s.uiAttached && s.stdinOpen {
			fds = append(fds, unix.PollFd{Fd: int32(s.real.Stdin), Events: unix.POLLIN})
		}

		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			fatal.Handle("relay poll failed", err)
		}

		// Control first: lifecycle transitions change the read set and
		// must not be starved by bulk output.
		if readable(fds[1]) {
			if !s.handleControl() {
				return
			}
			continue
		}
		if readable(fds[2]) {
			s.handleResize(buf)
		}
		if readable(fds[0]) {
			s.handleMaster(buf)
		}
		if len(fds) > stdinIdx && readable(fds[stdinIdx]) {
			s.handleStdin(buf)
		}
	}
}

func readable(fd unix.PollFd) bool {
	return fd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
}

// handleControl applies one control message. Returns false when the
// relay should exit.
func (s *Session) handleControl() bool {
	msg, err := s.ctl.Receive()
	if err != nil {
		fatal.Handle("control channel receive", err)
	}
	slog.Debug("relay control message", "msg", msg.String())

	switch msg {
	case control.AppStarted:
		// The UI owns input now; the poll set above drops the real
		// terminal on the next iteration. The message exists to break
		// the blocking wait promptly.
		s.uiAttached = true
	case control.AppExited:
		s.uiAttached = false
		if s.mainDone {
			return false
		}
	case control.MainTerminated:
		s.mainDone = true
		if s.uiAttached {
			s.requestUIStop()
		} else {
			return false
		}
	}
	return true
}

func (s *Session) handleResize(buf []byte) {
	// Coalesce the queued notifications into one geometry update.
	for {
		n, err := unix.Read(s.winchR, buf)
		if err != nil || n < len(buf) {
			break
		}
	}

	realIn, _, _ := s.real.Files()
	if err := pty.InheritSize(realIn, s.master); err != nil {
		slog.Warn("propagate window size", "error", err)
		return
	}
	// The foreground job on the pty needs to hear about it too.
	if pgrp, err := unix.IoctlGetInt(int(s.master.Fd()), unix.TIOCGPGRP); err == nil && pgrp > 0 {
		_ = unix.Kill(-pgrp, unix.SIGWINCH)
	}
}

func (s *Session) handleMaster(buf []byte) {
	n, err := unix.Read(int(s.master.Fd()), buf)
	if err == unix.EIO || (err == nil && n == 0) {
		// The replica side is gone. The standard streams point at it,
		// so nothing sensible can run anymore.
		fatal.Handle("pseudo-terminal closed unexpectedly", nil)
	}
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN {
			return
		}
		fatal.Handle("read pseudo-terminal master", err)
	}

	data := buf[:n]
	if sink := s.currentSink(); sink != nil && sink(data) {
		return
	}
	writeAll(s.real.Stdout, data)
}

func (s *Session) handleStdin(buf []byte) {
	n, err := unix.Read(s.real.Stdin, buf)
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN {
			return
		}
		fatal.Handle("read real terminal input", err)
	}
	if n == 0 {
		// EOF on the real terminal: stop reading it, keep relaying
		// output.
		s.stdinOpen = false
		return
	}
	writeAll(int(s.master.Fd()), buf[:n])
}

func writeAll(fd int, data []byte) {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			fatal.Handle("relay write", err)
		}
		data = data[n:]
	}
}

// finish restores the real terminal and signals Done. The descriptors
// themselves stay allocated; the process is exiting.
func (s *Session) finish() {
	signal.Stop(s.winchSignals)
	close(s.winchSignals)
	termio.Reset(s.real.Stdin)
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) closeAll() {
	_ = s.master.Close()
	_ = s.replica.Close()
	_ = s.real.Close()
}
