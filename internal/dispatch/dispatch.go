// Package dispatch moves work between the three execution contexts.
//
// The host loop, the UI loop and the relay worker each own their state
// exclusively; nothing is locked across contexts. All cross-context
// interaction funnels through a Bridge: fire-and-forget posts in both
// directions and one blocking primitive, CallUIAndWait, for the
// teardown paths that must observe completion. Posted callbacks that
// panic are recovered and logged; they run code on behalf of another
// context and must not take that context's loop down with them.
package dispatch

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/periscope-debug/periscope/internal/execctx"
	"github.com/periscope-debug/periscope/internal/fatal"
	"github.com/periscope-debug/periscope/internal/hostloop"
)

// ErrNoUI is returned by CallUIAndWait when no UI loop is attached.
var ErrNoUI = errors.New("no UI attached")

// UISink is the UI side of the bridge. The bubbletea program adapter
// implements it in production; tests supply a plain goroutine loop.
type UISink interface {
	// Post queues fn on the UI loop. Posts are executed in FIFO order
	// relative to each other.
	Post(fn func())
	// Context is the execution context bound to the UI loop goroutine.
	Context() *execctx.Context
}

// Bridge connects the host loop with at most one UI sink at a time.
type Bridge struct {
	host *hostloop.Loop

	mu       sync.Mutex
	ui       UISink
	instance uuid.UUID // current UI instance, Nil when none
}

func NewBridge(host *hostloop.Loop) *Bridge {
	return &Bridge{host: host}
}

// AttachUI binds a UI sink and the instance id owning it. Replaces any
// previous sink; the lifecycle controller guarantees the previous
// instance is gone by then.
func (b *Bridge) AttachUI(ui UISink, instance uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ui = ui
	b.instance = instance
}

// DetachUI clears the sink if the given instance still owns it.
func (b *Bridge) DetachUI(instance uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.instance == instance {
		b.ui = nil
		b.instance = uuid.Nil
	}
}

// Instance returns the id of the currently attached UI instance, or
// uuid.Nil.
func (b *Bridge) Instance() uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.instance
}

// PostToUI queues fn on the UI loop. Returns false when no UI is
// attached. A panic inside fn is recovered and logged on the UI side.
func (b *Bridge) PostToUI(fn func()) bool {
	b.mu.Lock()
	ui := b.ui
	b.mu.Unlock()
	if ui == nil {
		return false
	}
	ui.Post(func() { guarded("UI callback", fn) })
	return true
}

// CallUIAndWait runs fn on the UI loop and blocks until it completes.
// Calling it from the UI context would wait on work queued behind the
// caller itself; that is a deadlock in the making and a contract
// violation, so it goes straight to the fatal path.
func (b *Bridge) CallUIAndWait(fn func()) error {
	b.mu.Lock()
	ui := b.ui
	b.mu.Unlock()
	if ui == nil {
		return ErrNoUI
	}
	if err := ui.Context().GuardNot("CallUIAndWait"); err != nil {
		fatal.Handle("blocking call into the UI from the UI context", err)
	}
	done := make(chan struct{})
	ui.Post(func() {
		defer close(done)
		guarded("UI callback", fn)
	})
	<-done
	return nil
}

// PostToHost queues fn on the host loop. Once the host loop has
// terminated this is a no-op: late callbacks from a dying UI or relay
// have nowhere meaningful to run.
func (b *Bridge) PostToHost(fn func()) {
	b.host.Post(func() { guarded("host callback", fn) })
}

// HostContext exposes the host loop's execution context for affinity
// guards in collaborating packages.
func (b *Bridge) HostContext() *execctx.Context {
	return b.host.Context()
}

// CallHost runs fn on the host loop and waits.
func (b *Bridge) CallHost(fn func()) error {
	return b.host.Call(fn)
}

func guarded(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatched callback panicked", "kind", what, "panic", r)
		}
	}()
	fn()
}
