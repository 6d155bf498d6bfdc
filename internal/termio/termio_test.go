package termio

import (
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func openPTY(t *testing.T) (master, slave int) {
	t.Helper()
	m, s, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	t.Cleanup(func() {
		_ = m.Close()
		_ = s.Close()
	})
	return int(m.Fd()), int(s.Fd())
}

func TestAllSameTTY(t *testing.T) {
	_, slave := openPTY(t)

	same := Streams{Stdin: slave, Stdout: slave, Stderr: slave}
	require.True(t, same.AllSameTTY())
}

func TestAllSameTTYRejectsMixedDevices(t *testing.T) {
	_, slaveA := openPTY(t)
	_, slaveB := openPTY(t)

	mixed := Streams{Stdin: slaveA, Stdout: slaveB, Stderr: slaveA}
	require.False(t, mixed.AllSameTTY())
}

func TestAllSameTTYRejectsNonTerminals(t *testing.T) {
	t.Parallel()

	// Pipes are not terminals.
	var fds [2]int
	require.NoError(t, pipe(&fds))
	defer closeBoth(fds)

	s := Streams{Stdin: fds[0], Stdout: fds[1], Stderr: fds[1]}
	require.False(t, s.AllSameTTY())
}

func TestDupProducesIndependentDescriptors(t *testing.T) {
	_, slave := openPTY(t)

	orig := Streams{Stdin: slave, Stdout: slave, Stderr: slave}
	dup, err := orig.Dup()
	require.NoError(t, err)
	defer dup.Close() //nolint:errcheck

	require.NotEqual(t, orig.Stdin, dup.Stdin)
	require.True(t, dup.AllSameTTY())
}

func TestSetRawKeepsISIG(t *testing.T) {
	_, slave := openPTY(t)

	require.NoError(t, SetRaw(slave))
	tio, err := getTermios(slave)
	require.NoError(t, err)
	require.NotZero(t, tio.Lflag&isigFlag, "ISIG must survive raw mode for CTRL-C handling")
	require.Zero(t, tio.Lflag&icanonFlag, "canonical mode must be off")
}

func TestResetRestoresCookedMode(t *testing.T) {
	_, slave := openPTY(t)

	require.NoError(t, SetRaw(slave))
	Reset(slave)
	tio, err := getTermios(slave)
	require.NoError(t, err)
	require.NotZero(t, tio.Lflag&icanonFlag)
	require.NotZero(t, tio.Lflag&echoFlag)
}

func TestResetIgnoresNonTerminal(t *testing.T) {
	t.Parallel()

	var fds [2]int
	require.NoError(t, pipe(&fds))
	defer closeBoth(fds)

	Reset(fds[1]) // must not panic or error
}
