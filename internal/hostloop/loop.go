// Package hostloop runs the debugger host's cooperative task loop.
//
// The host services its prompt and all host-affine work on a single
// goroutine. Other goroutines never touch host state directly: they
// queue a task here and the loop executes it in FIFO order the next
// time the host goroutine is idle. Blocking until a task completes is
// possible with Call, which refuses to run from the loop's own
// goroutine indirectly through the queue (it executes inline instead,
// so it can never deadlock on itself).
package hostloop

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/periscope-debug/periscope/internal/execctx"
)

// ErrTerminated is returned by Call once the loop has shut down.
var ErrTerminated = errors.New("host loop terminated")

// Loop is a single-consumer task queue with a wake signal. The
// consuming goroutine calls Run; producers call Post or Call from
// anywhere.
type Loop struct {
	ctx   *execctx.Context
	tasks fifo

	wake chan struct{} // 1-buffered, coalescing
	stop chan struct{}
	done chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

func New() *Loop {
	return &Loop{
		ctx:  execctx.New("host"),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Context is the execution context bound to the consuming goroutine.
func (l *Loop) Context() *execctx.Context { return l.ctx }

// Post queues fn for execution on the loop goroutine. It never blocks.
// Returns false, without queueing, once Close has been called: a task
// accepted by Post is guaranteed to run, even when it arrives during
// shutdown.
func (l *Loop) Post(fn func()) bool {
	if l.closed.Load() {
		return false
	}
	l.tasks.Push(fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call executes fn on the loop goroutine and waits for it to finish.
// Called from the loop goroutine itself, fn runs inline. Returns
// ErrTerminated when the loop shut down before fn could run.
func (l *Loop) Call(fn func()) error {
	if l.ctx.Active() {
		fn()
		return nil
	}
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return ErrTerminated
	}
	select {
	case <-ran:
		return nil
	case <-l.done:
		// The final drain may still have executed it.
		select {
		case <-ran:
			return nil
		default:
			return ErrTerminated
		}
	}
}

// Run consumes tasks until Close, then drains whatever Post accepted
// before the close and returns. It binds the host execution context for
// its duration and must be called from exactly one goroutine.
func (l *Loop) Run() {
	l.ctx.Bind()
	defer func() {
		l.drain()
		l.ctx.Unbind()
		close(l.done)
	}()

	for {
		l.drain()
		select {
		case <-l.wake:
		case <-l.stop:
			return
		}
	}
}

// Close stops the loop. Idempotent; safe from any goroutine. Tasks
// already accepted by Post still run before Run returns.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.stop)
	})
}

// Terminated is closed once Run has returned and no further task will
// ever execute.
func (l *Loop) Terminated() <-chan struct{} { return l.done }

func (l *Loop) drain() {
	for {
		fn, ok := l.tasks.Pop()
		if !ok {
			return
		}
		runTask(fn)
	}
}

// runTask isolates one task: a panicking task is logged and the loop
// keeps serving. Contract violations that must kill the process go
// through the fatal path explicitly, not through panic.
func runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("host task panicked", "panic", r)
		}
	}()
	fn()
}
