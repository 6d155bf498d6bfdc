// Package execctx identifies the three execution contexts the system
// runs in (the host's cooperative loop, the UI loop, the relay worker)
// and provides guard checks for operations with a context affinity.
//
// Contexts are bound to goroutines. A guard failure is a programming
// contract violation, not a user error: callers are expected to
// escalate it to the fatal path rather than recover.
package execctx

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
)

// WrongContextError reports that an operation ran on an execution
// context other than the one it is pinned to.
type WrongContextError struct {
	Op      string
	Want    string
	Current uint64
}

func (e *WrongContextError) Error() string {
	return fmt.Sprintf("%s can only be executed on the %s context (running on goroutine %d)", e.Op, e.Want, e.Current)
}

// Context is a named execution context that can be bound to the
// goroutine that services it.
type Context struct {
	name string
	gid  atomic.Uint64 // 0 = unbound
}

func New(name string) *Context {
	return &Context{name: name}
}

func (c *Context) Name() string { return c.name }

// Bind claims the calling goroutine as this context. It is called once
// from the top of the goroutine's service loop.
func (c *Context) Bind() {
	c.gid.Store(currentGID())
}

// Unbind releases the binding, e.g. when a UI instance stops and a
// later one will run on a fresh goroutine.
func (c *Context) Unbind() {
	c.gid.Store(0)
}

// Active reports whether the calling goroutine is the bound one.
func (c *Context) Active() bool {
	gid := c.gid.Load()
	return gid != 0 && gid == currentGID()
}

// Bound reports whether any goroutine currently services this context.
func (c *Context) Bound() bool {
	return c.gid.Load() != 0
}

// Guard returns a WrongContextError unless the calling goroutine is
// the bound one.
func (c *Context) Guard(op string) error {
	if c.Active() {
		return nil
	}
	return &WrongContextError{Op: op, Want: c.name, Current: currentGID()}
}

// GuardNot returns a WrongContextError if the calling goroutine IS the
// bound one. Used by blocking cross-context calls that would deadlock
// when issued from their own target context.
func (c *Context) GuardNot(op string) error {
	if !c.Active() {
		return nil
	}
	return &WrongContextError{Op: op, Want: "any non-" + c.name, Current: currentGID()}
}

var gidPrefix = []byte("goroutine ")

// currentGID parses the goroutine id out of the stack header. There is
// no library for this in the dependency set and the runtime does not
// expose it; the header format ("goroutine N [running]:") has been
// stable for every Go release this module supports.
func currentGID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, gidPrefix)
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
