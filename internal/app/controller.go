// Package app is the lifecycle controller for the embedded UI: it owns
// the process-wide singleton slot, starts and stops the UI goroutine
// with race-free handshakes, and connects the instance to the relay's
// output stream and the control channel.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/periscope-debug/periscope/internal/control"
	"github.com/periscope-debug/periscope/internal/dispatch"
	"github.com/periscope-debug/periscope/internal/execctx"
	"github.com/periscope-debug/periscope/internal/fatal"
)

var (
	// ErrAlreadyEnabled is returned by Start while an instance exists.
	ErrAlreadyEnabled = errors.New("already enabled")
	// ErrNotEnabled is returned by Stop with no instance running.
	ErrNotEnabled = errors.New("not enabled")
)

// Runner drives the UI loop for one instance. The production runner
// wraps a bubbletea program on the real terminal; tests substitute a
// bare goroutine loop.
type Runner interface {
	dispatch.UISink
	// Run services the UI until Quit, calling ready exactly once from
	// the UI goroutine when first-time setup is complete.
	Run(ready func()) error
	// Quit asks the loop to exit. Must be safe from the UI context.
	Quit()
}

// RunnerFactory builds the runner for a fresh instance.
type RunnerFactory func(inst *Instance) (Runner, error)

// Hooks are the controller's connections to the terminal plumbing. Any
// of them may be nil (tests, or a host running without the relay).
type Hooks struct {
	// SetSink installs or removes the relay's output sink.
	SetSink func(func(data []byte) bool)
	// Announce sends a lifecycle message on the control channel.
	Announce func(control.Message) error
	// ResetTTY restores the real terminal after the UI exits.
	ResetTTY func()
	// AllowCtrlC re-enables SIGINT generation after the UI's own
	// raw-mode setup disabled it.
	AllowCtrlC func()
	// Geometry reports the real terminal size for the screen buffer.
	Geometry func() (lines, cols int)
	// Passthrough emits bytes on the real output stream. Used to hand
	// back output that was buffered for a UI that failed to start.
	Passthrough func(data []byte)
}

// Controller guards the singleton slot. All slot reads and writes go
// through its mutex; check-then-act sequences hold it for the whole
// check and mutation.
type Controller struct {
	bridge    *dispatch.Bridge
	newRunner RunnerFactory
	hooks     Hooks

	mu      sync.Mutex
	current *Instance
}

func NewController(bridge *dispatch.Bridge, factory RunnerFactory, hooks Hooks) *Controller {
	return &Controller{bridge: bridge, newRunner: factory, hooks: hooks}
}

// Start claims the singleton slot, spawns the UI goroutine and blocks
// until the UI has completed first-time setup. A second Start without
// an intervening Stop fails with ErrAlreadyEnabled. Concurrent Start
// calls race on the slot mutex and all but one fail the same way.
func (c *Controller) Start() error {
	lines, cols := 24, 80
	if c.hooks.Geometry != nil {
		lines, cols = c.hooks.Geometry()
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrAlreadyEnabled
	}
	inst := newInstance(c.bridge, lines, cols)
	runner, err := c.newRunner(inst)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("build UI: %w", err)
	}
	inst.runner = runner
	c.current = inst
	c.mu.Unlock()

	// Buffer output from the instant the slot is claimed.
	if c.hooks.SetSink != nil {
		c.hooks.SetSink(inst.ProcessOutput)
	}

	ready := make(chan struct{})
	failed := make(chan error, 1)
	go func() {
		if err := runner.Run(func() { ready <- struct{}{} }); err != nil {
			failed <- err
		}
		c.uiCleanup(inst)
		close(inst.runnerExited)
		// User-initiated exits finalize here; an explicit Stop wins the
		// once and this becomes a no-op.
		c.bridge.PostToHost(func() { c.hostFinalize(inst) })
	}()

	// Two-party rendezvous: the send above blocks until we receive, so
	// the UI never proceeds past setup before the slot is recorded and
	// we never proceed while the UI is half-initialized.
	select {
	case <-ready:
	case err := <-failed:
		<-inst.runnerExited
		c.hostFinalize(inst)
		<-inst.finished
		// uiCleanup removed the sink before runnerExited closed, so the
		// buffer is quiescent. Whatever the failed UI captured goes back
		// out verbatim.
		if pending := inst.takePending(); len(pending) > 0 && c.hooks.Passthrough != nil {
			c.hooks.Passthrough(pending)
		}
		return fmt.Errorf("UI failed to start: %w", err)
	}

	c.bridge.AttachUI(runner, inst.id)
	if c.hooks.AllowCtrlC != nil {
		c.hooks.AllowCtrlC()
	}
	inst.markReady()
	c.announce(control.AppStarted)
	slog.Info("UI started", "instance", inst.id)
	return nil
}

// Stop tears the running instance down synchronously and returns once
// the singleton slot is cleared. Callers never observe a half-torn-
// down instance.
func (c *Controller) Stop() error {
	c.guardHost("Stop")

	c.mu.Lock()
	inst := c.current
	c.mu.Unlock()
	if inst == nil {
		return ErrNotEnabled
	}

	err := c.bridge.CallUIAndWait(func() { inst.runner.Quit() })
	if err != nil && !errors.Is(err, dispatch.ErrNoUI) {
		return err
	}
	<-inst.runnerExited
	c.hostFinalize(inst)
	<-inst.finished

	c.mu.Lock()
	cleared := c.current != inst
	c.mu.Unlock()
	if !cleared {
		fatal.Handle("UI instance still registered after teardown", nil)
	}
	slog.Info("UI stopped", "instance", inst.id)
	return nil
}

// uiCleanup runs on the UI goroutine right after its loop returns. It
// detaches everything another context could still reach the instance
// through, restores the terminal and announces the exit: the relay
// must hear APP_EXITED even when the host loop is already gone.
func (c *Controller) uiCleanup(inst *Instance) {
	if c.hooks.SetSink != nil {
		c.hooks.SetSink(nil)
	}
	c.bridge.DetachUI(inst.id)
	if c.hooks.ResetTTY != nil {
		c.hooks.ResetTTY()
	}
	c.announce(control.AppExited)
}

// hostFinalize completes teardown: handlers are disconnected before
// the slot is cleared, so no stale callback can ever observe a vacated
// slot or a successor instance. The Stop path, the Start failure path
// and the user-quit path all funnel through it; exactly one caller
// does the work and the rest return immediately. Losers that need the
// teardown to have completed wait on inst.finished instead, which
// keeps this safe to reach both from the host loop and from a foreign
// goroutine while a posted finalize is already running on the loop.
func (c *Controller) hostFinalize(inst *Instance) {
	if !inst.finalized.CompareAndSwap(false, true) {
		return
	}
	if err := inst.subs.UnsubscribeAllAndWait(); err != nil {
		slog.Warn("unsubscribe during teardown", "error", err)
	}
	c.mu.Lock()
	if c.current == inst {
		c.current = nil
	}
	c.mu.Unlock()
	close(inst.finished)
}

// Instance returns the current instance without holding the lock
// beyond the read. Nil means not running.
func (c *Controller) Instance() *Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// LockedInstance runs fn with the slot mutex held, for compound
// check-then-act sequences against the current instance (possibly
// nil).
func (c *Controller) LockedInstance(fn func(inst *Instance)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.current)
}

// Running reports whether an instance currently exists.
func (c *Controller) Running() bool {
	return c.Instance() != nil
}

// ProcessOutput offers relay output to the current instance.
func (c *Controller) ProcessOutput(data []byte) bool {
	inst := c.Instance()
	if inst == nil {
		return false
	}
	return inst.ProcessOutput(data)
}

// RequestStop asks a running UI to shut itself down without blocking.
// The relay uses it when the host has terminated while the UI is still
// up.
func (c *Controller) RequestStop() {
	inst := c.Instance()
	if inst == nil {
		return
	}
	c.bridge.PostToUI(func() { inst.runner.Quit() })
}

func (c *Controller) announce(m control.Message) {
	if c.hooks.Announce == nil {
		return
	}
	if err := c.hooks.Announce(m); err != nil {
		slog.Error("send control message", "msg", m.String(), "error", err)
	}
}

// guardHost enforces host-context affinity once the host loop is
// serving. Wrong-context lifecycle calls corrupt the handshake
// protocol and are not recoverable.
func (c *Controller) guardHost(op string) {
	ctx := c.bridge.HostContext()
	if !ctx.Bound() {
		return
	}
	if err := ctx.Guard(op); err != nil {
		var wrong *execctx.WrongContextError
		if errors.As(err, &wrong) {
			fatal.Handle("lifecycle call from the wrong context", err)
		}
	}
}
