//
//
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/radio-control/commandd/internal/config"
	"github.com/radio-control/commandd/internal/events"
)

const tracerName = "github.com/radio-control/commandd/internal/server"

// Notification names raised by the Server.
const (
	EventStarted     = "started"
	EventStopped     = "stopped"
	EventStartError  = "startError"
	EventError       = "error"
	EventJSONRequest = "jsonRequest"
)

var (
	// ErrStart wraps listener bind failures.
	ErrStart = errors.New("server start failed")

	ErrMethodNotAllowed     = errors.New("method not allowed, use POST")
	ErrUnsupportedMediaType = errors.New("content type must be " + ContentType)
	ErrDecode               = errors.New("request body is not valid UTF-8 JSON")
	ErrResponseTimeout      = errors.New("no response produced before the deadline")
)

// State is the lifecycle state of a Server.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Counters counts requests seen during one start/stop cycle.
// Total always equals Success plus Failure once requests have been classified.
type Counters struct {
	Total   uint64 `json:"total"`
	Success uint64 `json:"success"`
	Failure uint64 `json:"failure"`
}

// JSONRequest is the payload of a jsonRequest notification.
type JSONRequest struct {
	ID        string
	Payload   json.RawMessage
	Responder *Responder
}

// Request outcomes reported to RequestObservers.
const (
	OutcomeResponded            = "responded"
	OutcomeTimeout              = "timeout"
	OutcomeGone                 = "gone"
	OutcomeMethodNotAllowed     = "method_not_allowed"
	OutcomeUnsupportedMediaType = "unsupported_media_type"
	OutcomeBodyError            = "body_error"
	OutcomeDecodeError          = "decode_error"
)

// RequestResult describes one finished request.
type RequestResult struct {
	ID       string
	Outcome  string
	Status   int
	Duration time.Duration
}

// RequestObserver is notified after every request the server handled.
type RequestObserver interface {
	RequestDone(r RequestResult)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) { s.tracer = tracer }
}

// WithRequestObserver adds an observer of finished requests.
func WithRequestObserver(o RequestObserver) Option {
	return func(s *Server) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// Server is the lifecycle-managed command listener.
type Server struct {
	cfg       config.ServerConfig
	logger    *slog.Logger
	tracer    trace.Tracer
	observers []RequestObserver
	notify    *events.Emitter

	mu      sync.Mutex
	state   State
	ln      *listener
	gate    *events.Gate
	addr    net.Addr
	lastErr error

	total   atomic.Uint64
	success atomic.Uint64
	failure atomic.Uint64
}

// New creates an idle server for cfg.
func New(cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		notify: events.NewEmitter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// On subscribes h to a server notification.
func (s *Server) On(name string, h events.Handler) {
	s.notify.On(name, h)
}

// OnJSONRequest subscribes fn to accepted requests. fn runs on the request
// goroutine and must not block on the response.
func (s *Server) OnJSONRequest(fn func(*JSONRequest)) {
	s.notify.On(EventJSONRequest, func(args ...any) {
		if len(args) == 0 {
			return
		}
		if req, ok := args[0].(*JSONRequest); ok {
			fn(req)
		}
	})
}

// Start binds a fresh listener and moves to Starting. It reports false if
// the server is not idle. The started or startError notification follows.
func (s *Server) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return false
	}

	s.total.Store(0)
	s.success.Store(0)
	s.failure.Store(0)
	s.addr = nil
	s.lastErr = nil

	ln := newListener(s.cfg)
	gate := events.NewGate(ln)
	gate.SetEnabled(true)
	subscriptions := map[string]events.Handler{
		listenerListening: func(args ...any) { s.onListening(ln, args...) },
		listenerRequest:   s.onRequest,
		listenerClose:     func(...any) { s.onClose(ln) },
		listenerError:     func(args ...any) { s.onError(ln, args...) },
	}
	for name, h := range subscriptions {
		if err := gate.On(name, h); err != nil {
			s.logger.Error("listener subscription failed", "event", name, "error", err)
		}
	}

	s.ln = ln
	s.gate = gate
	s.state = StateStarting
	ln.listen(s.cfg.Addr())
	return true
}

// Stop silences the listener and shuts it down in the background. It reports
// false unless the server is running. The stopped notification follows.
func (s *Server) Stop() bool {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	s.state = StateStopping
	s.gate.SetEnabled(false)
	ln := s.ln
	s.mu.Unlock()

	s.logger.Info("stopping command server")
	go s.shutdown(ln)
	return true
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address while running, nil otherwise.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return nil
	}
	return s.addr
}

// Err returns the last listener error of the current cycle.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Counters returns a snapshot of the request counters.
func (s *Server) Counters() Counters {
	return Counters{
		Total:   s.total.Load(),
		Success: s.success.Load(),
		Failure: s.failure.Load(),
	}
}

func (s *Server) shutdown(ln *listener) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := ln.shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown incomplete, closing connections", "error", err)
		if cerr := ln.close(); cerr != nil {
			s.logger.Error("listener close failed", "error", cerr)
		}
	}
	<-ln.done

	s.mu.Lock()
	s.state = StateIdle
	s.addr = nil
	s.mu.Unlock()

	s.logger.Info("command server stopped")
	s.notify.Emit(EventStopped)
}

func (s *Server) onListening(ln *listener, args ...any) {
	s.mu.Lock()
	if s.ln != ln || s.state != StateStarting {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	if len(args) > 0 {
		s.addr, _ = args[0].(net.Addr)
	}
	addr := s.addr
	s.mu.Unlock()

	s.logger.Info("command server listening", "addr", addr)
	s.notify.Emit(EventStarted, addr)
}

func (s *Server) onError(ln *listener, args ...any) {
	var err error
	if len(args) > 0 {
		err, _ = args[0].(error)
	}
	if err == nil {
		err = errors.New("unspecified listener error")
	}

	s.mu.Lock()
	if s.ln != ln {
		s.mu.Unlock()
		return
	}
	s.lastErr = err
	state := s.state
	if state == StateStarting {
		s.state = StateIdle
	}
	s.mu.Unlock()

	if state == StateStarting {
		startErr := fmt.Errorf("%w: %w", ErrStart, err)
		s.logger.Error("command server failed to start", "addr", s.cfg.Addr(), "error", err)
		s.notify.Emit(EventStartError, startErr)
		return
	}
	s.logger.Error("command server error", "error", err)
	s.notify.Emit(EventError, err)
}

// onClose handles a listener that closed without Stop, which leaves the server idle.
func (s *Server) onClose(ln *listener) {
	s.mu.Lock()
	if s.ln != ln || s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.addr = nil
	s.mu.Unlock()

	s.logger.Warn("command listener closed unexpectedly")
	s.notify.Emit(EventStopped)
}

func (s *Server) onRequest(args ...any) {
	if len(args) == 0 {
		return
	}
	ex, ok := args[0].(*exchange)
	if !ok {
		return
	}
	ex.claimed = true

	start := time.Now()
	result := s.serveCommand(ex.w, ex.r)
	result.Duration = time.Since(start)
	for _, o := range s.observers {
		o.RequestDone(result)
	}
}

// serveCommand validates one request, raises jsonRequest and waits for the
// response.
func (s *Server) serveCommand(w http.ResponseWriter, r *http.Request) RequestResult {
	id := uuid.NewString()
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := s.tracer.Start(ctx, "server.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("request.id", id),
			attribute.String("http.request.method", r.Method),
		),
	)
	defer span.End()

	s.total.Add(1)

	reject := func(status int, code, outcome string, err error) RequestResult {
		s.failure.Add(1)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug("request rejected", "request", id, "outcome", outcome, "error", err)
		WriteError(w, status, code, err.Error(), id)
		return RequestResult{ID: id, Outcome: outcome, Status: status}
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return reject(http.StatusMethodNotAllowed, CodeMethodNotAllowed, OutcomeMethodNotAllowed, ErrMethodNotAllowed)
	}
	if !strings.EqualFold(r.Header.Get("Content-Type"), ContentType) {
		return reject(http.StatusUnsupportedMediaType, CodeUnsupportedMediaType, OutcomeUnsupportedMediaType, ErrUnsupportedMediaType)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return reject(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, OutcomeBodyError,
				fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return reject(http.StatusBadRequest, CodeBadRequest, OutcomeBodyError, fmt.Errorf("read request body: %w", err))
	}
	if !utf8.Valid(body) || !json.Valid(body) {
		return reject(http.StatusBadRequest, CodeBadRequest, OutcomeDecodeError, ErrDecode)
	}

	s.success.Add(1)
	resp := NewResponder()
	s.notify.Emit(EventJSONRequest, &JSONRequest{
		ID:        id,
		Payload:   json.RawMessage(body),
		Responder: resp,
	})

	result := s.awaitResponse(ctx, w, resp, id)
	span.SetAttributes(attribute.String("request.outcome", result.Outcome))
	if result.Outcome != OutcomeResponded {
		span.SetStatus(codes.Error, result.Outcome)
	}
	return result
}

func (s *Server) awaitResponse(ctx context.Context, w http.ResponseWriter, resp *Responder, id string) RequestResult {
	timer := time.NewTimer(s.cfg.ResponseTimeout)
	defer timer.Stop()

	select {
	case <-resp.Done():
	case <-timer.C:
		if resp.abandon() {
			s.logger.Warn("no response before deadline", "request", id, "timeout", s.cfg.ResponseTimeout)
			WriteError(w, http.StatusGatewayTimeout, CodeTimeout, ErrResponseTimeout.Error(), id)
			return RequestResult{ID: id, Outcome: OutcomeTimeout, Status: http.StatusGatewayTimeout}
		}
	case <-ctx.Done():
		if resp.abandon() {
			s.logger.Debug("client left before response", "request", id)
			return RequestResult{ID: id, Outcome: OutcomeGone}
		}
	}

	writeJSON(w, http.StatusOK, resp.Payload())
	return RequestResult{ID: id, Outcome: OutcomeResponded, Status: http.StatusOK}
}
