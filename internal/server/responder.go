//
//
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAlreadyResponded is returned by every Respond call after the first.
	ErrAlreadyResponded = errors.New("response already sent")

	// ErrRequestGone is returned when the request finished before Respond was
	// called, because the client left or the response timeout expired.
	ErrRequestGone = errors.New("request no longer awaiting a response")
)

type responderState int

const (
	responderOpen responderState = iota
	responderAnswered
	responderGone
)

// Responder answers one accepted request. It is safe for use from any
// goroutine; only the first successful Respond is delivered.
type Responder struct {
	mu    sync.Mutex
	state responderState
	body  []byte
	done  chan struct{}
}

// NewResponder creates an open responder not bound to a request.
func NewResponder() *Responder {
	return &Responder{done: make(chan struct{})}
}

// Respond encodes v as JSON and hands it to the waiting request. An encoding
// failure leaves the responder usable.
func (r *Responder) Respond(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case responderAnswered:
		return ErrAlreadyResponded
	case responderGone:
		return ErrRequestGone
	}
	r.body = body
	r.state = responderAnswered
	close(r.done)
	return nil
}

// Done is closed once Respond succeeds.
func (r *Responder) Done() <-chan struct{} {
	return r.done
}

// Answered reports whether Respond has succeeded.
func (r *Responder) Answered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == responderAnswered
}

// abandon marks the request as finished without a response. It returns false
// if a response won the race.
func (r *Responder) abandon() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == responderAnswered {
		return false
	}
	r.state = responderGone
	return true
}

// Payload returns the encoded response, or nil before Respond succeeds.
func (r *Responder) Payload() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body
}
