// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ip-report-scanner/internal/scan"
)

// ScanServiceInterface defines the scan engine operations used by handlers
type ScanServiceInterface interface {
	Submit(ctx context.Context, addresses []string, providers []string) (string, error)
	Snapshot(ctx context.Context, reportID string) (*scan.ReportSnapshot, error)
	ListReports(ctx context.Context) ([]scan.ReportSummary, error)
	Cancel(ctx context.Context, reportID string) error
}

// Pinger reports storage reachability for the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	scans      ScanServiceInterface
	storage    Pinger // optional
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	FreeTierRPS     int
	BasicTierRPS    int
	PremiumTierRPS  int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, scans ScanServiceInterface, storage Pinger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		scans:   scans,
		storage: storage,
		config:  config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.FreeTierRPS, s.config.BasicTierRPS, s.config.PremiumTierRPS)

	// Middleware order matters: logging wraps everything, recovery
	// before anything that can panic, rate limiting after CORS.
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes registers all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/reports", s.handleSubmitReport).Methods("POST")
	api.HandleFunc("/reports", s.handleListReports).Methods("GET")
	api.HandleFunc("/reports/{reportID}", s.handleGetReport).Methods("GET")
	api.HandleFunc("/reports/{reportID}/cancel", s.handleCancelReport).Methods("POST")
}

// Router exposes the configured router (used in tests)
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
