//
//
package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/radio-control/commandd/internal/config"
	"github.com/radio-control/commandd/internal/events"
)

// Listener event names.
const (
	listenerListening = "listening"
	listenerRequest   = "request"
	listenerClose     = "close"
	listenerError     = "error"
)

// exchange is the argument of a request event. An observer that takes over
// the request sets claimed before returning.
type exchange struct {
	w       http.ResponseWriter
	r       *http.Request
	claimed bool
}

// listener binds one HTTP server to one address and reports what happens to
// it as events. It is used for exactly one listen/close cycle.
type listener struct {
	*events.Emitter

	srv  *http.Server
	done chan struct{}
}

func newListener(cfg config.ServerConfig) *listener {
	l := &listener{
		Emitter: events.NewEmitter(),
		done:    make(chan struct{}),
	}
	l.srv = &http.Server{
		Handler:      http.HandlerFunc(l.serveHTTP),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return l
}

// listen binds addr and serves in the background. A bind failure emits error;
// otherwise listening fires, then close once serving ends.
func (l *listener) listen(addr string) {
	go func() {
		defer close(l.done)

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			l.Emit(listenerError, err)
			return
		}
		l.Emit(listenerListening, ln.Addr())

		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Emit(listenerError, err)
		}
		l.Emit(listenerClose)
	}()
}

// shutdown stops accepting connections and waits for in-flight requests.
func (l *listener) shutdown(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}

// close drops every open connection.
func (l *listener) close() error {
	return l.srv.Close()
}

// serveHTTP emits the request. If no observer claims it, for example because
// the gate in front of the observers is disabled, it is refused.
func (l *listener) serveHTTP(w http.ResponseWriter, r *http.Request) {
	ex := &exchange{w: w, r: r}
	l.Emit(listenerRequest, ex)
	if !ex.claimed {
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "server is not accepting commands", "")
	}
}
