// Package events provides named-event emitters and the gate that can
// silence an emitter's observers without unsubscribing them.
package events

import "sync"

// Handler observes one named event. Args are passed exactly as emitted.
type Handler func(args ...any)

// Source is anything observers can subscribe to by event name.
type Source interface {
	On(name string, h Handler)
}

// Emitter is a synchronous named-event source. Handlers run on the emitting
// goroutine in registration order.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

var _ Source = (*Emitter)(nil)

// NewEmitter creates an emitter with no subscriptions.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]Handler)}
}

// On registers h for name.
func (e *Emitter) On(name string, h Handler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string][]Handler)
	}
	e.handlers[name] = append(e.handlers[name], h)
}

// Emit invokes every handler registered for name and returns how many ran.
func (e *Emitter) Emit(name string, args ...any) int {
	e.mu.RLock()
	hs := e.handlers[name]
	e.mu.RUnlock()

	for _, h := range hs {
		h(args...)
	}
	return len(hs)
}

// Listeners returns the number of handlers registered for name.
func (e *Emitter) Listeners(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[name])
}
