package control

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	ch, err := New()
	require.NoError(t, err)
	defer ch.Close() //nolint:errcheck

	for _, m := range []Message{AppStarted, AppExited, MainTerminated} {
		require.NoError(t, ch.Send(m))
		got, err := ch.Receive()
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
}

func TestFIFOFromSingleSender(t *testing.T) {
	t.Parallel()

	ch, err := New()
	require.NoError(t, err)
	defer ch.Close() //nolint:errcheck

	seq := []Message{AppStarted, AppStarted, AppExited, MainTerminated, AppExited}
	for _, m := range seq {
		require.NoError(t, ch.Send(m))
	}
	for _, want := range seq {
		got, err := ch.Receive()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestConcurrentSendersLoseNothing(t *testing.T) {
	t.Parallel()

	ch, err := New()
	require.NoError(t, err)
	defer ch.Close() //nolint:errcheck

	const senders = 32
	const perSender = 50

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		m := []Message{AppStarted, AppExited, MainTerminated}[i%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				require.NoError(t, ch.Send(m))
			}
		}()
	}

	counts := map[Message]int{}
	for i := 0; i < senders*perSender; i++ {
		got, err := ch.Receive()
		require.NoError(t, err)
		counts[got]++
	}
	wg.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	require.Equal(t, senders*perSender, total, "no loss, no duplication")
}

func TestInvalidByteRejected(t *testing.T) {
	t.Parallel()

	ch, err := New()
	require.NoError(t, err)
	defer ch.Close() //nolint:errcheck

	_, err = unix.Write(ch.writeFD, []byte{'Z'})
	require.NoError(t, err)
	_, err = ch.Receive()
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid control message")
}
