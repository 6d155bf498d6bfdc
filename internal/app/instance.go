package app

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/periscope-debug/periscope/internal/dispatch"
	"github.com/periscope-debug/periscope/internal/emu"
	"github.com/periscope-debug/periscope/internal/fatal"
)

// Instance is one generation of the running UI. At most one exists per
// process; the controller's singleton slot is the only way to reach
// it.
type Instance struct {
	id     uuid.UUID
	bridge *dispatch.Bridge
	screen *emu.Screen
	subs   *dispatch.Subscriptions
	runner Runner

	mu      sync.Mutex
	ready   bool
	pending []byte

	runnerExited chan struct{}
	finalized    atomic.Bool
	finished     chan struct{}
}

func newInstance(bridge *dispatch.Bridge, lines, cols int) *Instance {
	inst := &Instance{
		id:           uuid.New(),
		bridge:       bridge,
		screen:       emu.NewScreen(lines, cols),
		runnerExited: make(chan struct{}),
		finished:     make(chan struct{}),
	}
	inst.subs = dispatch.NewSubscriptions(bridge, inst.id)
	inst.screen.SetInvariantHook(func(msg string) {
		fatal.Handle(msg, nil)
	})
	return inst
}

// ID identifies this UI generation for subscription expiry.
func (inst *Instance) ID() uuid.UUID { return inst.id }

// Screen is the terminal buffer. UI context only.
func (inst *Instance) Screen() *emu.Screen { return inst.screen }

// Subs is the event subscription set owned by this instance.
func (inst *Instance) Subs() *dispatch.Subscriptions { return inst.subs }

// Finished is closed when the UI loop has fully torn down and the
// singleton slot has been cleared.
func (inst *Instance) Finished() <-chan struct{} { return inst.finished }

// ProcessOutput accepts pseudo-terminal output on behalf of the UI.
// Called from the relay context. Output arriving before the UI is
// ready is buffered, not dropped: there must be no window in which
// debuggee output silently disappears. Returns false only when the UI
// loop is no longer reachable, handing the bytes back to the relay for
// verbatim passthrough.
func (inst *Instance) ProcessOutput(data []byte) bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if !inst.ready {
		inst.pending = append(inst.pending, data...)
		return true
	}

	// The relay reuses its read buffer immediately.
	cp := append([]byte(nil), data...)
	return inst.bridge.PostToUI(func() { inst.feed(cp) })
}

// feed runs on the UI context; the screen belongs to that context
// exclusively.
func (inst *Instance) feed(data []byte) {
	inst.screen.Feed(data)
}

// markReady flips the instance into direct delivery and flushes
// whatever accumulated during startup. The flush is posted while the
// mutex is still held: direct delivery posts under the same mutex, so
// no later output can enter the UI queue ahead of the flush (PostToUI
// is FIFO).
func (inst *Instance) markReady() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.ready = true
	if len(inst.pending) > 0 {
		pending := inst.pending
		inst.pending = nil
		inst.bridge.PostToUI(func() { inst.feed(pending) })
	}
}

// takePending hands back output buffered during a startup that never
// completed, so the relay path can emit it verbatim instead.
func (inst *Instance) takePending() []byte {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	pending := inst.pending
	inst.pending = nil
	return pending
}
