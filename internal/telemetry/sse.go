//
//
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// ErrHubStopped is returned when subscribing to a stopped hub.
var ErrHubStopped = errors.New("telemetry hub stopped")

// lastEventID reads the resume point from the Last-Event-ID header or the
// lastEventId query parameter.
func lastEventID(r *http.Request) int64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// readyEvent is the first event on every stream.
func (h *Hub) readyEvent() Event {
	return Event{
		Type: "ready",
		Data: map[string]any{"lastEventId": h.LastID()},
	}
}

// ServeSSE streams events as text/event-stream until the client disconnects
// or the hub stops.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := h.Subscribe(lastEventID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(e Event) bool {
		if err := writeSSE(w, e); err != nil {
			h.logger.Debug("sse write failed", "subscriber", sub.ID, "error", err)
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(h.readyEvent()) {
		return
	}
	for _, e := range sub.Replay {
		if !send(e) {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sub.Events:
			if !ok || !send(e) {
				return
			}
		}
	}
}

// writeSSE formats one event. Events without an id, such as heartbeats,
// omit the id line so they do not move the client's resume point.
func writeSSE(w io.Writer, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if e.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", e.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
