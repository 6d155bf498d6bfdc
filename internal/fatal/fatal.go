// Package fatal is the end of the line for contract violations:
// wrong-context calls, lifecycle misuse, and panics in code marked
// must-not-fail. Once one of those happens the terminal mode bits, fd
// ownership and singleton state can no longer be trusted, so the only
// safe move is to restore the real terminal, emit a diagnostic on the
// real stderr, and abort the whole process.
package fatal

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/periscope-debug/periscope/internal/telemetry"
	"github.com/periscope-debug/periscope/internal/termio"
	"golang.org/x/sys/unix"
)

var (
	mu sync.Mutex

	// Real terminal descriptors to restore and report on. Default to
	// the process's own stdout/stderr until the relay session rebinds
	// them to its duplicated copies.
	restoreFD = 1
	reportFD  = 2

	// abort is swapped out by tests; aborting the test binary would be
	// unhelpful.
	abort func() = abortProcess
)

// Bind points the fatal path at the real terminal's duplicated
// descriptors. Called once the relay session owns the streams.
func Bind(restore, report int) {
	mu.Lock()
	defer mu.Unlock()
	restoreFD = restore
	reportFD = report
}

// SetAbortForTesting replaces the abort hook and returns a function
// restoring the previous one.
func SetAbortForTesting(f func()) (restore func()) {
	mu.Lock()
	defer mu.Unlock()
	prev := abort
	abort = f
	return func() {
		mu.Lock()
		defer mu.Unlock()
		abort = prev
	}
}

// Handle reports a fatal condition and aborts. It never returns in
// production; the signature keeps call sites honest about that.
func Handle(msg string, err error) {
	mu.Lock()
	defer mu.Unlock()

	full := "\n" + string(debug.Stack()) + "\nfatal error"
	if msg != "" {
		full += ": " + msg
	}
	if err != nil {
		full += fmt.Sprintf(": %v", err)
	}
	full += "\n\n"

	termio.Reset(restoreFD)
	_, _ = unix.Write(reportFD, []byte(full))
	slog.Error("fatal error", "msg", msg, "error", err)

	props := map[string]any{"message": msg}
	if err != nil {
		props["error"] = err.Error()
	}
	telemetry.Default().Track(telemetry.EventFatalError, props)
	telemetry.Default().FlushSync()

	abort()
}

// Handlef is Handle with a formatted message and no wrapped error.
func Handlef(format string, args ...any) {
	Handle(fmt.Sprintf(format, args...), nil)
}

func abortProcess() {
	_ = unix.Kill(unix.Getpid(), unix.SIGABRT)
	// SIGABRT may be blocked or handled; make sure we do not continue
	// with corrupted state either way.
	panic("fatal: abort returned")
}

// Goroutine wraps a worker's entry point so an escaped panic becomes a
// process abort instead of a bare runtime crash with a mangled
// terminal. The relay and watcher workers run under it.
func Goroutine(name string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				Handle(fmt.Sprintf("worker %q unexpectedly terminated: %v", name, r), nil)
			}
		}()
		fn()
	}
}
