package debugger

import "sync"

// Event is a connect/emit registry in the style of a debugger's event
// sources. Handlers run synchronously on the emitting goroutine, which
// for every event here is the host context. Disconnect is safe to call
// more than once.
type Event[T any] struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(T)
}

// Connect registers fn and returns its disconnect function.
func (e *Event[T]) Connect(fn func(T)) (disconnect func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[int]func(T))
	}
	id := e.next
	e.next++
	e.handlers[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers, id)
	}
}

// Emit calls every connected handler in registration order.
func (e *Event[T]) Emit(v T) {
	e.mu.Lock()
	fns := make([]func(T), 0, len(e.handlers))
	for id := 0; id < e.next; id++ {
		if fn, ok := e.handlers[id]; ok {
			fns = append(fns, fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// StopInfo describes why the debuggee stopped.
type StopInfo struct {
	Reason string
}

// Events are the host-side sources a UI instance subscribes to. All
// three fire on the host context.
type Events struct {
	// BeforePrompt fires before the host redisplays its prompt; the UI
	// refreshes its panels on it.
	BeforePrompt Event[struct{}]
	// Cont fires when the debuggee resumes.
	Cont Event[struct{}]
	// Stop fires when the debuggee stops.
	Stop Event[StopInfo]
}
