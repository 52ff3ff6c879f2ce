package events

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNoSource is returned by Gate.On when no source has been attached.
var ErrNoSource = errors.New("events: gate has no source")

// Gate forwards events from one source to its observers while enabled.
// Disabling drops every later event; subscriptions stay in place.
type Gate struct {
	mu      sync.Mutex
	source  Source
	enabled atomic.Bool
}

// NewGate creates a gate bound to source. The gate starts disabled.
func NewGate(source Source) *Gate {
	return &Gate{source: source}
}

// Attach binds the gate to source. Observers registered earlier stay on the old source.
func (g *Gate) Attach(source Source) {
	g.mu.Lock()
	g.source = source
	g.mu.Unlock()
}

// SetEnabled toggles forwarding. The flag is read on every event arrival.
func (g *Gate) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

// Enabled reports whether events are currently forwarded.
func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}

// On subscribes h to name on the bound source. h only runs for events that
// fire while the gate is enabled.
func (g *Gate) On(name string, h Handler) error {
	g.mu.Lock()
	source := g.source
	g.mu.Unlock()

	if source == nil {
		return ErrNoSource
	}
	if h == nil {
		return nil
	}

	source.On(name, func(args ...any) {
		if g.enabled.Load() {
			h(args...)
		}
	})
	return nil
}
