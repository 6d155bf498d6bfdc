package relay

import (
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/periscope-debug/periscope/internal/control"
	"github.com/periscope-debug/periscope/internal/termio"
)

func TestPreconditions(t *testing.T) {
	t.Parallel()

	var p [2]int
	require.NoError(t, unix.Pipe(p[:]))
	defer unix.Close(p[0])
	defer unix.Close(p[1])
	pipes := termio.Streams{Stdin: p[0], Stdout: p[1], Stderr: p[1]}

	require.ErrorIs(t, preconditions(pipes, false), ErrUnsupported)
	require.ErrorIs(t, preconditions(pipes, true), ErrUnsupported, "pipes are not a terminal")

	master, replica, err := pty.Open()
	require.NoError(t, err)
	defer master.Close()
	defer replica.Close()
	rfd := int(replica.Fd())
	same := termio.Streams{Stdin: rfd, Stdout: rfd, Stderr: rfd}

	require.NoError(t, preconditions(same, true))
	require.ErrorIs(t, preconditions(same, false), ErrUnsupported, "batch mode refuses even on a terminal")
}

func newControlSession(t *testing.T) (*Session, func()) {
	t.Helper()
	ctl, err := control.New()
	require.NoError(t, err)
	s := &Session{ctl: ctl, stdinOpen: true, requestUIStop: func() {}}
	return s, func() { _ = ctl.Close() }
}

func TestControlAppStartedDetachesInput(t *testing.T) {
	t.Parallel()

	s, cleanup := newControlSession(t)
	defer cleanup()

	require.NoError(t, s.ctl.Send(control.AppStarted))
	require.True(t, s.handleControl())
	require.True(t, s.uiAttached)

	require.NoError(t, s.ctl.Send(control.AppExited))
	require.True(t, s.handleControl(), "host still alive, keep relaying")
	require.False(t, s.uiAttached)
}

func TestControlAppExitedAfterMainTermination(t *testing.T) {
	t.Parallel()

	s, cleanup := newControlSession(t)
	defer cleanup()

	stopRequested := false
	s.requestUIStop = func() { stopRequested = true }
	s.uiAttached = true

	require.NoError(t, s.ctl.Send(control.MainTerminated))
	require.True(t, s.handleControl(), "UI running: ask it to stop, keep relaying meanwhile")
	require.True(t, stopRequested)
	require.True(t, s.mainDone)

	require.NoError(t, s.ctl.Send(control.AppExited))
	require.False(t, s.handleControl(), "host gone and UI gone: relay exits")
}

func TestControlMainTerminatedWithoutUIExits(t *testing.T) {
	t.Parallel()

	s, cleanup := newControlSession(t)
	defer cleanup()

	require.NoError(t, s.ctl.Send(control.MainTerminated))
	require.False(t, s.handleControl())
}

func TestWriteAllDeliversEverything(t *testing.T) {
	t.Parallel()

	var p [2]int
	require.NoError(t, unix.Pipe(p[:]))
	defer unix.Close(p[0])
	defer unix.Close(p[1])

	payload := make([]byte, 2048)
	for i := range payload {
		payload[i] = byte(i)
	}
	done := make(chan []byte)
	go func() {
		var got []byte
		buf := make([]byte, 512)
		for len(got) < len(payload) {
			n, err := unix.Read(p[0], buf)
			if err != nil || n == 0 {
				break
			}
			got = append(got, buf[:n]...)
		}
		done <- got
	}()

	writeAll(p[1], payload)
	require.Equal(t, payload, <-done)
}

func TestSinkRouting(t *testing.T) {
	t.Parallel()

	s := &Session{}
	require.Nil(t, s.currentSink(), "no sink installed")

	var seen []byte
	s.SetSink(func(data []byte) bool {
		seen = append(seen, data...)
		return true
	})
	sink := s.currentSink()
	require.NotNil(t, sink)
	require.True(t, sink([]byte("out")))
	require.Equal(t, "out", string(seen))

	s.SetSink(nil)
	require.Nil(t, s.currentSink())
}
