//
//
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/radio-control/commandd/internal/auth"
	"github.com/radio-control/commandd/internal/config"
	"github.com/radio-control/commandd/internal/dispatch"
	"github.com/radio-control/commandd/internal/server"
	"github.com/radio-control/commandd/internal/telemetry"
)

// Error codes specific to the admin surface.
const (
	CodeNotFound = "NOT_FOUND"
	CodeInternal = "INTERNAL"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("admin server already started")

// Reloader re-resolves registered handlers.
type Reloader interface {
	Reload() (dispatch.ReloadResult, error)
}

// Deps are the components exposed through the admin routes. Nil members
// leave their routes unregistered.
type Deps struct {
	Reporter *Reporter
	Reloader Reloader
	Hub      *telemetry.Hub
	Metrics  http.Handler
}

// Response is the success envelope.
type Response struct {
	Result        string `json:"result"`
	Data          any    `json:"data,omitempty"`
	CorrelationID string `json:"correlationId"`
}

// Server is the admin HTTP server.
type Server struct {
	cfg     config.AdminConfig
	deps    Deps
	logger  *slog.Logger
	handler http.Handler
	started time.Time

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
	done       chan struct{}
}

// New builds the admin router. A configured auth secret enables bearer
// token checks on every route except /healthz.
func New(cfg config.AdminConfig, deps Deps, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With("component", "admin"),
		started: time.Now(),
	}

	var authMiddleware *auth.Middleware
	if cfg.AuthSecret != "" {
		verifier, err := auth.NewVerifier(cfg.AuthSecret)
		if err != nil {
			return nil, fmt.Errorf("admin auth: %w", err)
		}
		authMiddleware = auth.NewMiddleware(verifier, "/healthz")
	}

	s.handler = s.routes(authMiddleware)
	return s, nil
}

func (s *Server) routes(authMiddleware *auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLoggingMiddleware(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		server.WriteError(w, http.StatusNotFound, CodeNotFound, "no route for "+r.URL.Path, middleware.GetReqID(r.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		server.WriteError(w, http.StatusMethodNotAllowed, server.CodeMethodNotAllowed,
			r.Method+" is not allowed on "+r.URL.Path, middleware.GetReqID(r.Context()))
	})

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware.RequireAuth, authMiddleware.RequireScope(auth.ScopeAdmin))
		}
		if s.deps.Reporter != nil {
			r.Get("/status", s.handleStatus)
		}
		if s.deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
		}
		if s.deps.Hub != nil {
			r.Get("/events", s.deps.Hub.ServeSSE)
			r.Get("/events/ws", s.deps.Hub.ServeWS)
		}
		if s.deps.Reloader != nil {
			r.Post("/handlers/reload", s.handleReload)
		}
	})
	return r
}

// Handler returns the admin router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the admin address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", s.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	done := make(chan struct{})
	s.httpServer = srv
	s.addr = ln.Addr()
	s.done = done

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server failed", "error", err)
		}
	}()

	s.logger.Info("admin server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the server down, closing remaining connections when ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.httpServer, s.done
	s.httpServer, s.addr, s.done = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
		err = fmt.Errorf("failed to shutdown admin server: %w", err)
	}
	<-done
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, map[string]any{
		"status":    "ok",
		"uptimeSec": time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, s.deps.Reporter.Snapshot())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Reloader.Reload()
	if err != nil {
		s.logger.Error("handler reload failed", "error", err)
		server.WriteError(w, http.StatusInternalServerError, CodeInternal, err.Error(), middleware.GetReqID(r.Context()))
		return
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Publish("handlers.reloaded", map[string]any{
			"reloaded": result.Reloaded,
			"removed":  result.Removed,
		})
	}
	writeSuccess(w, r, result)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, data any) {
	id := middleware.GetReqID(r.Context())
	if id == "" {
		id = uuid.NewString()
	}
	body, err := json.Marshal(Response{Result: "ok", Data: data, CorrelationID: id})
	if err != nil {
		server.WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to encode response", id)
		return
	}
	w.Header().Set("Content-Type", server.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
