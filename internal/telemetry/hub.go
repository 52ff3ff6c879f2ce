//
//
package telemetry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/radio-control/commandd/internal/config"
)

// Event is one published telemetry event.
type Event struct {
	ID   int64          `json:"id,omitempty"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Subscription is one live event stream. Replay holds buffered events newer
// than the requested id; Events delivers everything published afterwards.
type Subscription struct {
	ID     string
	Replay []Event
	Events <-chan Event

	hub *Hub
	sub *subscriber
}

// Close detaches the subscription from the hub. It is safe to call twice.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.sub)
}

type subscriber struct {
	id      string
	events  chan Event
	once    sync.Once
	dropped atomic.Uint64
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.events) })
}

// Hub fans events out to subscribers.
//
// LOCK ORDERING: h.mu, then EventBuffer.mu. Subscriber channels are only
// sent to and closed while h.mu is held, through sync.Once.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	nextID      int64
	buffer      *EventBuffer
	queueSize   int

	heartbeatInterval time.Duration
	heartbeatStop     chan struct{}

	logger  *slog.Logger
	done    chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewHub creates a hub sized by the admin configuration.
func NewHub(cfg config.AdminConfig, logger *slog.Logger) *Hub {
	size := cfg.EventBufferSize
	if size <= 0 {
		size = 100
	}
	return &Hub{
		subscribers:       make(map[string]*subscriber),
		buffer:            NewEventBuffer(size),
		queueSize:         size,
		heartbeatInterval: cfg.HeartbeatInterval,
		logger:            logger.With("component", "telemetry"),
		done:              make(chan struct{}),
	}
}

// Publish assigns the next id to an event, buffers it and delivers it to
// every subscriber. It returns the published event.
func (h *Hub) Publish(eventType string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	if h.stopped.Load() {
		return Event{Type: eventType, Data: data}
	}

	h.mu.Lock()
	h.nextID++
	event := Event{ID: h.nextID, Type: eventType, Data: data}
	h.buffer.AddEvent(event)
	h.deliverLocked(event)
	h.mu.Unlock()

	return event
}

// Subscribe registers a subscriber. Buffered events with an id greater than
// lastID are returned in Replay; lastID 0 replays nothing.
func (h *Hub) Subscribe(lastID int64) (*Subscription, error) {
	if h.stopped.Load() {
		return nil, ErrHubStopped
	}

	sub := &subscriber{
		id:     uuid.NewString(),
		events: make(chan Event, h.queueSize),
	}

	h.mu.Lock()
	var replay []Event
	if lastID > 0 {
		replay = h.buffer.GetEventsAfter(lastID)
	}
	h.subscribers[sub.id] = sub
	if len(h.subscribers) == 1 && h.heartbeatStop == nil && h.heartbeatInterval > 0 {
		h.startHeartbeatLocked()
	}
	h.mu.Unlock()

	h.logger.Debug("subscriber connected", "subscriber", sub.id, "replay", len(replay))
	return &Subscription{
		ID:     sub.id,
		Replay: replay,
		Events: sub.events,
		hub:    h,
		sub:    sub,
	}, nil
}

// LastID returns the id of the most recently published event.
func (h *Hub) LastID() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nextID
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Done is closed when the hub stops.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Stop disconnects every subscriber and ends the heartbeat.
func (h *Hub) Stop() {
	if !h.stopped.CompareAndSwap(false, true) {
		return
	}
	close(h.done)

	h.mu.Lock()
	h.stopHeartbeatLocked()
	for id, sub := range h.subscribers {
		sub.close()
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub.id]; ok {
		delete(h.subscribers, sub.id)
		if len(h.subscribers) == 0 {
			h.stopHeartbeatLocked()
		}
	}
	sub.close()
	h.mu.Unlock()

	if n := sub.dropped.Load(); n > 0 {
		h.logger.Debug("subscriber disconnected", "subscriber", sub.id, "dropped", n)
	}
}

// deliverLocked sends event to each subscriber without blocking. Caller
// holds h.mu, which keeps subscriber channels open during the send.
func (h *Hub) deliverLocked(event Event) {
	for _, s := range h.subscribers {
		select {
		case s.events <- event:
		default:
			s.dropped.Add(1)
		}
	}
}

// startHeartbeatLocked starts the heartbeat goroutine. Caller holds h.mu.
func (h *Hub) startHeartbeatLocked() {
	stop := make(chan struct{})
	h.heartbeatStop = stop
	ticker := time.NewTicker(h.heartbeatInterval)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.sendHeartbeat()
			case <-stop:
				return
			case <-h.done:
				return
			}
		}
	}()
}

// stopHeartbeatLocked stops the heartbeat goroutine if running. Caller holds h.mu.
func (h *Hub) stopHeartbeatLocked() {
	if h.heartbeatStop != nil {
		close(h.heartbeatStop)
		h.heartbeatStop = nil
	}
}

// sendHeartbeat delivers an unbuffered heartbeat to every subscriber.
func (h *Hub) sendHeartbeat() {
	event := Event{
		Type: "heartbeat",
		Data: map[string]any{"ts": time.Now().UTC().Format(time.RFC3339)},
	}
	h.mu.RLock()
	h.deliverLocked(event)
	h.mu.RUnlock()
}
