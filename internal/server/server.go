package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/strideworks/formsync/internal/inference"
	"github.com/strideworks/formsync/internal/ratelimit"
	"github.com/strideworks/formsync/internal/storage"
)

// Server is the FormSync HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, Broker, DB, Registry, LiveHandler.
type Config struct {
	// Required dependencies.
	Rooms     RoomService
	Safety    SafetyService
	Inference inference.Client
	Logger    *slog.Logger

	// Optional dependencies (nil = disabled).
	Registry    LiveCounter
	LiveHandler http.Handler
	Broker      *Broker
	Limiter     ratelimit.Limiter
	DB          *storage.DB

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		Rooms:               cfg.Rooms,
		Safety:              cfg.Safety,
		Inference:           cfg.Inference,
		Registry:            cfg.Registry,
		Broker:              cfg.Broker,
		DB:                  cfg.DB,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	rl := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Room session lifecycle.
	mux.Handle("POST /v1/rooms", rl(http.HandlerFunc(h.HandleCreateRoom)))
	mux.Handle("POST /v1/rooms/{session_id}/sync", rl(http.HandlerFunc(h.HandleSyncRoom)))
	mux.Handle("POST /v1/rooms/{session_id}/incidents", rl(http.HandlerFunc(h.HandleLogIncident)))
	mux.Handle("POST /v1/rooms/{session_id}/metrics", rl(http.HandlerFunc(h.HandleRecordMetrics)))
	mux.Handle("POST /v1/rooms/{session_id}/resume", rl(http.HandlerFunc(h.HandleResumeRoom)))
	mux.Handle("POST /v1/rooms/{session_id}/complete", rl(http.HandlerFunc(h.HandleCompleteRoom)))
	mux.Handle("GET /v1/rooms/{session_id}/status", rl(http.HandlerFunc(h.HandleSyncStatus)))

	// Per-user reads.
	mux.Handle("GET /v1/users/{user_id}/rooms", rl(http.HandlerFunc(h.HandleUserRooms)))
	mux.Handle("GET /v1/users/{user_id}/trends", rl(http.HandlerFunc(h.HandleUserTrends)))
	mux.Handle("GET /v1/users/{user_id}/drills", rl(http.HandlerFunc(h.HandleUserDrills)))

	// Pattern recommendation: pure computation, no session required.
	mux.Handle("POST /v1/patterns/recommend", rl(http.HandlerFunc(h.HandleRecommendPatterns)))

	// Event subscription (no rate limit — long-lived connection).
	mux.Handle("GET /v1/subscribe", http.HandlerFunc(h.HandleSubscribe))

	// Live analysis websocket (no rate limit — long-lived connection).
	if cfg.LiveHandler != nil {
		mux.Handle("GET /v1/live", cfg.LiveHandler)
	}

	// Health (no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
