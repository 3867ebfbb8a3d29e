package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/server/handler"
	"github.com/jthomazinho/vimana-arbitrage/internal/server/middleware"
	"github.com/jthomazinho/vimana-arbitrage/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is the number of requests a client may send per RateWindow.
	// Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Nil handlers leave their routes unregistered.
type Handlers struct {
	Health    *handler.HealthHandler
	Instances *handler.InstanceHandler
	Fees      *handler.FeeHandler
	Orders    *handler.OrderHandler
	Archives  *handler.ArchiveHandler
	Metrics   http.Handler
}

// Options are the optional collaborators of the server.
type Options struct {
	Hub      *ws.Hub
	Limiter  domain.RateLimiter
	Observer middleware.RequestObserver
}

// Server is the HTTP + WebSocket API of the engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain applied.
func NewServer(cfg Config, handlers Handlers, opts Options, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	Routes(mux, handlers, opts.Hub)

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.Logging(logger, opts.Observer)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	if opts.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(opts.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Routes registers the endpoints of handlers on mux.
func Routes(mux *http.ServeMux, handlers Handlers, hub *ws.Hub) {
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	if in := handlers.Instances; in != nil {
		mux.HandleFunc("GET /api/instances", in.List)
		mux.HandleFunc("POST /api/instances", in.Create)
		mux.HandleFunc("GET /api/instances/{id}", in.Get)
		mux.HandleFunc("PUT /api/instances/{id}/input", in.SetInput)
		mux.HandleFunc("POST /api/instances/{id}/pause", in.TogglePause)
		mux.HandleFunc("POST /api/instances/{id}/finalize", in.Finalize)
		mux.HandleFunc("POST /api/instances/{id}/requote", in.Requote)
		mux.HandleFunc("GET /api/instances/{id}/executions", in.Executions)
	}

	if handlers.Fees != nil {
		mux.HandleFunc("GET /api/fees", handlers.Fees.List)
		mux.HandleFunc("PUT /api/fees", handlers.Fees.Upsert)
	}

	if handlers.Orders != nil {
		mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	}

	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.List)
		mux.HandleFunc("GET /api/archives/{path...}", handlers.Archives.Download)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
