package app

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/periscope-debug/periscope/internal/control"
	"github.com/periscope-debug/periscope/internal/dispatch"
	"github.com/periscope-debug/periscope/internal/execctx"
	"github.com/periscope-debug/periscope/internal/hostloop"
)

// stubRunner is a UI loop without a terminal: a goroutine draining a
// task channel.
type stubRunner struct {
	ctx      *execctx.Context
	tasks    chan func()
	quit     chan struct{}
	quitOnce sync.Once

	failWith error
	gate     chan struct{} // when non-nil, Run waits on it before ready
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		ctx:   execctx.New("ui"),
		tasks: make(chan func(), 256),
		quit:  make(chan struct{}),
	}
}

func (r *stubRunner) Run(ready func()) error {
	if r.gate != nil {
		<-r.gate
	}
	if r.failWith != nil {
		return r.failWith
	}
	r.ctx.Bind()
	defer r.ctx.Unbind()
	ready()
	for {
		select {
		case fn := <-r.tasks:
			fn()
		case <-r.quit:
			return nil
		}
	}
}

func (r *stubRunner) Post(fn func())            { r.tasks <- fn }
func (r *stubRunner) Context() *execctx.Context { return r.ctx }
func (r *stubRunner) Quit()                     { r.quitOnce.Do(func() { close(r.quit) }) }

type fixture struct {
	host     *hostloop.Loop
	bridge   *dispatch.Bridge
	ctrl     *Controller
	runner   *stubRunner
	messages []control.Message
	msgMu    sync.Mutex
}

func newFixture(t *testing.T, mk func() *stubRunner) *fixture {
	t.Helper()
	f := &fixture{host: hostloop.New()}
	f.bridge = dispatch.NewBridge(f.host)
	go f.host.Run()
	t.Cleanup(func() {
		f.host.Close()
		<-f.host.Terminated()
	})

	factory := func(inst *Instance) (Runner, error) {
		f.runner = mk()
		return f.runner, nil
	}
	f.ctrl = NewController(f.bridge, factory, Hooks{
		Announce: func(m control.Message) error {
			f.msgMu.Lock()
			defer f.msgMu.Unlock()
			f.messages = append(f.messages, m)
			return nil
		},
		Geometry: func() (int, int) { return 24, 80 },
	})
	return f
}

// stop issues Stop from the host context, the way the host command
// loop does.
func (f *fixture) stop() error {
	var err error
	callErr := f.host.Call(func() { err = f.ctrl.Stop() })
	if callErr != nil {
		return callErr
	}
	return err
}

func (f *fixture) sentMessages() []control.Message {
	f.msgMu.Lock()
	defer f.msgMu.Unlock()
	return append([]control.Message(nil), f.messages...)
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newStubRunner)
	require.False(t, f.ctrl.Running())

	require.NoError(t, f.ctrl.Start())
	require.True(t, f.ctrl.Running())
	inst := f.ctrl.Instance()
	require.NotNil(t, inst)

	require.ErrorIs(t, f.ctrl.Start(), ErrAlreadyEnabled)
	require.Same(t, inst, f.ctrl.Instance(), "failed start must not disturb the running instance")

	require.NoError(t, f.stop())
	require.False(t, f.ctrl.Running())
	require.Nil(t, f.ctrl.Instance())

	require.ErrorIs(t, f.stop(), ErrNotEnabled)
	require.Equal(t, []control.Message{control.AppStarted, control.AppExited}, f.sentMessages())
}

func TestConcurrentStartsOneWinner(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newStubRunner)

	const n = 16
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.ctrl.Start()
		}()
	}
	wg.Wait()
	close(errs)

	won, lost := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAlreadyEnabled):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, n-1, lost)

	require.NoError(t, f.stop())
}

func TestRestartAfterStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newStubRunner)

	require.NoError(t, f.ctrl.Start())
	first := f.ctrl.Instance().ID()
	require.NoError(t, f.stop())

	require.NoError(t, f.ctrl.Start())
	second := f.ctrl.Instance().ID()
	require.NotEqual(t, first, second, "each generation has a fresh identity")
	require.NoError(t, f.stop())
}

func TestOutputBufferedUntilReady(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newFixture(t, func() *stubRunner {
		r := newStubRunner()
		r.gate = gate
		return r
	})

	var sink func([]byte) bool
	var sinkMu sync.Mutex
	f.ctrl.hooks.SetSink = func(fn func([]byte) bool) {
		sinkMu.Lock()
		sink = fn
		sinkMu.Unlock()
	}

	startErr := make(chan error, 1)
	go func() { startErr <- f.ctrl.Start() }()

	require.Eventually(t, func() bool {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		return sink != nil
	}, time.Second, time.Millisecond)

	// The UI has not reached its rendezvous yet: output must be
	// accepted and held, not dropped or passed through.
	sinkMu.Lock()
	s := sink
	sinkMu.Unlock()
	require.True(t, s([]byte("early ")))
	require.True(t, s([]byte("output")))

	close(gate)
	require.NoError(t, <-startErr)

	var row string
	inst := f.ctrl.Instance()
	require.NoError(t, f.bridge.CallUIAndWait(func() {
		cells, err := inst.Screen().Line(0)
		require.NoError(t, err)
		var b strings.Builder
		for _, c := range cells {
			if c.Rune != 0 {
				b.WriteRune(c.Rune)
			}
		}
		row = strings.TrimRight(b.String(), " ")
	}))
	require.Equal(t, "early output", row)

	require.NoError(t, f.stop())
}

func TestUserInitiatedQuitClearsSlot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newStubRunner)
	require.NoError(t, f.ctrl.Start())
	inst := f.ctrl.Instance()

	disconnected := false
	inst.Subs().OnUnsubscribe(func() { disconnected = true })

	f.runner.Quit()
	select {
	case <-inst.Finished():
	case <-time.After(time.Second):
		t.Fatal("instance never finished after quit")
	}

	require.False(t, f.ctrl.Running())
	require.True(t, disconnected)
	require.ErrorIs(t, f.stop(), ErrNotEnabled)
	require.Equal(t, []control.Message{control.AppStarted, control.AppExited}, f.sentMessages())
}

func TestStartFailureReleasesSlot(t *testing.T) {
	t.Parallel()

	boom := errors.New("terminal exploded")
	f := newFixture(t, func() *stubRunner {
		r := newStubRunner()
		r.failWith = boom
		return r
	})

	err := f.ctrl.Start()
	require.ErrorIs(t, err, boom)
	require.False(t, f.ctrl.Running())

	// The slot is free again.
	f2 := newStubRunner()
	f.ctrl.newRunner = func(*Instance) (Runner, error) { return f2, nil }
	require.NoError(t, f.ctrl.Start())
	require.NoError(t, f.stop())
}

// Start on a foreign goroutine races its own failure finalize against
// the one the UI goroutine posts to the host loop; both must complete
// without blocking each other.
func TestStartFailureFromForeignGoroutineFinishes(t *testing.T) {
	t.Parallel()

	boom := errors.New("terminal exploded")
	for i := 0; i < 20; i++ {
		f := newFixture(t, func() *stubRunner {
			r := newStubRunner()
			r.failWith = boom
			return r
		})

		done := make(chan error, 1)
		go func() { done <- f.ctrl.Start() }()
		select {
		case err := <-done:
			require.ErrorIs(t, err, boom)
		case <-time.After(5 * time.Second):
			t.Fatal("start failure never finished tearing down")
		}
		require.False(t, f.ctrl.Running())
	}
}

func TestStartFailureHandsBufferedOutputBack(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	boom := errors.New("no terminal")
	f := newFixture(t, func() *stubRunner {
		r := newStubRunner()
		r.gate = gate
		r.failWith = boom
		return r
	})

	var sinkMu sync.Mutex
	var sink func([]byte) bool
	f.ctrl.hooks.SetSink = func(fn func([]byte) bool) {
		sinkMu.Lock()
		sink = fn
		sinkMu.Unlock()
	}
	var passed []byte
	f.ctrl.hooks.Passthrough = func(data []byte) { passed = append(passed, data...) }

	startErr := make(chan error, 1)
	go func() { startErr <- f.ctrl.Start() }()
	require.Eventually(t, func() bool {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		return sink != nil
	}, time.Second, time.Millisecond)

	sinkMu.Lock()
	s := sink
	sinkMu.Unlock()
	require.True(t, s([]byte("buffered output")))

	close(gate)
	require.ErrorIs(t, <-startErr, boom)
	require.Equal(t, "buffered output", string(passed))
	require.False(t, f.ctrl.Running())
}

func TestPendingFlushStaysAheadOfLiveOutput(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newFixture(t, func() *stubRunner {
		r := newStubRunner()
		r.gate = gate
		return r
	})

	var sinkMu sync.Mutex
	var sink func([]byte) bool
	f.ctrl.hooks.SetSink = func(fn func([]byte) bool) {
		sinkMu.Lock()
		sink = fn
		sinkMu.Unlock()
	}

	startErr := make(chan error, 1)
	go func() { startErr <- f.ctrl.Start() }()
	require.Eventually(t, func() bool {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		return sink != nil
	}, time.Second, time.Millisecond)

	sinkMu.Lock()
	s := sink
	sinkMu.Unlock()
	require.True(t, s([]byte("alpha ")))

	// Keep writing while the instance flips to direct delivery; the
	// buffered prefix must still land on the screen first.
	hammering := make(chan struct{})
	go func() {
		defer close(hammering)
		for i := 0; i < 50; i++ {
			s([]byte("x"))
		}
	}()
	close(gate)
	require.NoError(t, <-startErr)
	<-hammering

	var row string
	inst := f.ctrl.Instance()
	require.NoError(t, f.bridge.CallUIAndWait(func() {
		cells, err := inst.Screen().Line(0)
		require.NoError(t, err)
		var b strings.Builder
		for _, c := range cells {
			if c.Rune != 0 {
				b.WriteRune(c.Rune)
			}
		}
		row = b.String()
	}))
	require.True(t, strings.HasPrefix(row, "alpha "), "row %q", row)

	require.NoError(t, f.stop())
}

func TestProcessOutputWithoutInstance(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newStubRunner)
	require.False(t, f.ctrl.ProcessOutput([]byte("x")), "no UI: relay writes to the real terminal")
}

func TestLockedInstance(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newStubRunner)
	f.ctrl.LockedInstance(func(inst *Instance) { require.Nil(t, inst) })

	require.NoError(t, f.ctrl.Start())
	f.ctrl.LockedInstance(func(inst *Instance) { require.NotNil(t, inst) })
	require.NoError(t, f.stop())
}
