// Package admin serves the operator HTTP surface of commandd.
//
// Routes:
//
//	GET  /healthz           liveness, never authenticated
//	GET  /status            command server state, counters, engine stats, handler names
//	GET  /metrics           Prometheus exposition
//	GET  /events            server-sent event stream with Last-Event-ID resume
//	GET  /events/ws         the same stream over a websocket
//	POST /handlers/reload   re-resolve every registered handler
//
// When an auth secret is configured every route except /healthz requires a
// bearer token with the admin scope.
package admin
