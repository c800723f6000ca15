package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/contextlens/contextlens/internal/errors"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/server/handlers"
	servermw "github.com/contextlens/contextlens/internal/server/middleware"
)

// Timeouts used when Deps leaves them zero. Writes get a long budget since
// a generation with search can take minutes.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 5 * time.Minute
	defaultIdleTimeout  = 2 * time.Minute
)

// Server is the HTTP front end: the chi router plus its listener.
type Server struct {
	router *chi.Mux
	http   *http.Server
	deps   Deps
}

// Deps wires the generation API and optional surfaces into the router.
// A nil API leaves /v1 unmounted; a nil MCP handler leaves /mcp unmounted.
type Deps struct {
	API *handlers.API
	MCP http.Handler

	// HideHealth drops the /health probe routes.
	HideHealth bool
	// Pprof mounts the runtime profiler under /debug.
	Pprof bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func New(host string, port int, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, servermw.RequestID, servermw.RequestMetrics, servermw.Recovery)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	handlers.SetHTTPErrorResponder(HandleError)

	s := &Server{
		router: r,
		deps:   deps,
		http: &http.Server{
			Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:      r,
			ReadTimeout:  orDefault(deps.ReadTimeout, defaultReadTimeout),
			WriteTimeout: orDefault(deps.WriteTimeout, defaultWriteTimeout),
			IdleTimeout:  orDefault(deps.IdleTimeout, defaultIdleTimeout),
		},
	}
	s.registerRoutes()
	return s
}

// Start listens until Shutdown; it returns http.ErrServerClosed after a
// clean shutdown.
func (s *Server) Start() error {
	observability.ServerLogger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	markStarted(time.Now())
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string {
	return s.http.Addr
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
