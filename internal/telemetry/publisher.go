//
//
package telemetry

import (
	"net"

	"github.com/radio-control/commandd/internal/engine"
	"github.com/radio-control/commandd/internal/server"
)

var (
	_ engine.Observer        = (*Hub)(nil)
	_ server.RequestObserver = (*Hub)(nil)
)

// InstructionDone publishes an executed instruction.
func (h *Hub) InstructionDone(r engine.Result) {
	eventType := "instruction"
	if r.Outcome == engine.OutcomeUnknown {
		eventType = "instruction.unknown"
	}
	data := map[string]any{
		"name":         r.Name,
		"submissionId": r.SubmissionID,
		"outcome":      string(r.Outcome),
		"durationMs":   float64(r.Duration.Microseconds()) / 1000,
	}
	if r.Err != nil {
		data["error"] = r.Err.Error()
	}
	h.Publish(eventType, data)
}

// RequestDone publishes a handled command request.
func (h *Hub) RequestDone(r server.RequestResult) {
	h.Publish("request", map[string]any{
		"requestId":  r.ID,
		"outcome":    r.Outcome,
		"status":     r.Status,
		"durationMs": float64(r.Duration.Microseconds()) / 1000,
	})
}

// WatchServer publishes the lifecycle notifications of s.
func (h *Hub) WatchServer(s *server.Server) {
	s.On(server.EventStarted, func(args ...any) {
		data := map[string]any{}
		if len(args) > 0 {
			if addr, ok := args[0].(net.Addr); ok && addr != nil {
				data["addr"] = addr.String()
			}
		}
		h.Publish("server.started", data)
	})
	s.On(server.EventStopped, func(...any) {
		h.Publish("server.stopped", map[string]any{"counters": s.Counters()})
	})
	s.On(server.EventStartError, func(args ...any) {
		h.Publish("server.startError", errorData(args))
	})
	s.On(server.EventError, func(args ...any) {
		h.Publish("server.error", errorData(args))
	})
}

func errorData(args []any) map[string]any {
	data := map[string]any{}
	if len(args) > 0 {
		if err, ok := args[0].(error); ok {
			data["error"] = err.Error()
		}
	}
	return data
}
