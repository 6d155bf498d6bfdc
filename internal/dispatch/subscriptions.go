package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscriptions ties a set of event handlers to one UI instance
// generation. Debugger events are delivered on the host context and a
// handler may still be registered for a short window after its UI has
// gone away; wrapped handlers check that their instance is still the
// current one and expire silently otherwise, so a stale delivery can
// never touch a dead UI.
type Subscriptions struct {
	bridge  *Bridge
	id      uuid.UUID
	expired atomic.Bool

	mu          sync.Mutex
	disconnects []func()
}

// NewSubscriptions creates the subscription set for a UI instance.
func NewSubscriptions(bridge *Bridge, id uuid.UUID) *Subscriptions {
	return &Subscriptions{bridge: bridge, id: id}
}

// ID returns the owning instance id.
func (s *Subscriptions) ID() uuid.UUID { return s.id }

func (s *Subscriptions) live() bool {
	return !s.expired.Load() && s.bridge.Instance() == s.id
}

// Wrap returns fn gated on the subscription set still being live.
func Wrap[T any](s *Subscriptions, fn func(T)) func(T) {
	return func(v T) {
		if s.live() {
			fn(v)
		}
	}
}

// Wrap0 is Wrap for parameterless handlers.
func Wrap0(s *Subscriptions, fn func()) func() {
	return func() {
		if s.live() {
			fn()
		}
	}
}

// OnUnsubscribe registers a disconnect step to run during
// UnsubscribeAllAndWait. Typically the Disconnect side of a registry
// Connect call.
func (s *Subscriptions) OnUnsubscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects = append(s.disconnects, fn)
}

// UnsubscribeAllAndWait expires the set and runs every registered
// disconnect on the host loop, synchronously. After it returns no
// wrapped handler will fire again and the registries no longer hold
// references into the instance. It must complete before the lifecycle
// controller clears the singleton slot.
func (s *Subscriptions) UnsubscribeAllAndWait() error {
	s.expired.Store(true)

	s.mu.Lock()
	steps := s.disconnects
	s.disconnects = nil
	s.mu.Unlock()

	return s.bridge.CallHost(func() {
		for _, fn := range steps {
			fn()
		}
	})
}
