package hostloop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPostRunsInOrder(t *testing.T) {
	t.Parallel()

	l := New()
	go l.Run()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	// Call acts as a barrier: it is queued behind every Post above.
	require.NoError(t, l.Call(func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}

	l.Close()
	<-l.Terminated()
}

func TestCallRunsOnLoopGoroutine(t *testing.T) {
	t.Parallel()

	l := New()
	go l.Run()
	defer func() {
		l.Close()
		<-l.Terminated()
	}()

	var onLoop bool
	require.NoError(t, l.Call(func() {
		onLoop = l.Context().Active()
	}))
	require.True(t, onLoop)
	require.False(t, l.Context().Active(), "test goroutine is not the loop")
}

func TestCallFromLoopRunsInline(t *testing.T) {
	t.Parallel()

	l := New()
	go l.Run()
	defer func() {
		l.Close()
		<-l.Terminated()
	}()

	var nested bool
	require.NoError(t, l.Call(func() {
		// A queued nested call would deadlock: the loop goroutine is
		// busy executing this task.
		require.NoError(t, l.Call(func() { nested = true }))
	}))
	require.True(t, nested)
}

func TestPostAfterCloseIsRejected(t *testing.T) {
	t.Parallel()

	l := New()
	go l.Run()
	l.Close()
	<-l.Terminated()

	require.False(t, l.Post(func() { t.Error("task ran after close") }))
	require.ErrorIs(t, l.Call(func() {}), ErrTerminated)
}

func TestAcceptedTasksRunBeforeTermination(t *testing.T) {
	t.Parallel()

	l := New()

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 50; i++ {
		require.True(t, l.Post(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}
	l.Close()

	// Run starts after Close: it still drains everything Post accepted.
	l.Run()
	<-l.Terminated()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 50, ran)
}

func TestPanickingTaskDoesNotKillLoop(t *testing.T) {
	t.Parallel()

	l := New()
	go l.Run()
	defer func() {
		l.Close()
		<-l.Terminated()
	}()

	require.True(t, l.Post(func() { panic("boom") }))

	survived := false
	require.NoError(t, l.Call(func() { survived = true }))
	require.True(t, survived)
}

func TestTerminatedClosesAfterRun(t *testing.T) {
	t.Parallel()

	l := New()
	go l.Run()

	select {
	case <-l.Terminated():
		t.Fatal("terminated before close")
	case <-time.After(10 * time.Millisecond):
	}

	l.Close()
	select {
	case <-l.Terminated():
	case <-time.After(time.Second):
		t.Fatal("loop did not terminate")
	}
}

func TestConcurrentPosters(t *testing.T) {
	t.Parallel()

	l := New()
	go l.Run()

	const posters, each = 16, 100
	var mu sync.Mutex
	total := 0

	var wg sync.WaitGroup
	for p := 0; p < posters; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				l.Post(func() {
					mu.Lock()
					total++
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()

	require.NoError(t, l.Call(func() {}))
	mu.Lock()
	require.Equal(t, posters*each, total)
	mu.Unlock()

	l.Close()
	<-l.Terminated()
}
