// Package server implements the lifecycle-managed command listener.
//
// A Server owns one HTTP listener and moves through Idle, Starting, Running
// and Stopping. The listener reports listening, request, close and error
// events; the Server observes them through an events.Gate so that stopping
// silences request handling and lifecycle events together while in-flight
// connections drain.
//
// Accepted requests are POSTs with Content-Type application/json;charset=UTF-8
// carrying a JSON body. Each one raises a jsonRequest notification with the
// raw payload and a single-use Responder. The handler goroutine waits until
// the responder is called, the client goes away, or the response timeout
// expires.
//
// Rejected requests are answered with a JSON error envelope:
//
//	{"result":"error","code":"UNSUPPORTED_MEDIA_TYPE","message":"...","correlationId":"..."}
package server
