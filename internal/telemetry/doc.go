// Package telemetry implements the event hub behind the admin event streams.
//
// The hub assigns monotonic ids to published events, keeps the most recent
// ones in a ring buffer for Last-Event-ID resume, and fans them out to SSE
// and websocket subscribers. Delivery never blocks the publisher: a
// subscriber whose buffer is full misses events. Heartbeats run while at
// least one subscriber is connected and are not buffered.
//
// Event types:
//   - ready: first event on every stream
//   - heartbeat
//   - server.started, server.stopped, server.startError, server.error
//   - request: one per handled command request
//   - instruction, instruction.unknown: one per executed instruction
package telemetry
