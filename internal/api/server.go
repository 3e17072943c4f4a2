package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"costguard/internal/api/health"
	"costguard/internal/metrics"
	"costguard/pkg/errors"
	"costguard/pkg/logger"
)

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	Port        int
	ServiceName string
	Version     string
	APIKey      string
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates and configures HTTP server with all routes
func NewServer(cfg ServerConfig, handler *Handler, healthHandler *health.Handler, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	// Health check endpoints (Kubernetes probes)
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/ready", healthHandler.HandleReadiness)
	mux.HandleFunc("/live", healthHandler.HandleLiveness)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", metrics.Handler())

	// Operator API
	auth := apiKeyMiddleware(cfg.APIKey)

	mux.Handle("POST /api/v1/usage", auth(http.HandlerFunc(handler.IngestUsage)))
	mux.Handle("GET /api/v1/usage", auth(http.HandlerFunc(handler.ListUsage)))
	mux.Handle("GET /api/v1/summary", auth(http.HandlerFunc(handler.MonthSummary)))

	mux.Handle("GET /api/v1/anomalies", auth(http.HandlerFunc(handler.ListAnomalies)))
	mux.Handle("POST /api/v1/anomalies", auth(http.HandlerFunc(handler.CreateAnomaly)))
	mux.Handle("GET /api/v1/anomalies/{id}", auth(http.HandlerFunc(handler.GetAnomaly)))

	mux.Handle("GET /api/v1/actions", auth(http.HandlerFunc(handler.ListActions)))
	mux.Handle("POST /api/v1/actions", auth(http.HandlerFunc(handler.CreateAction)))
	mux.Handle("GET /api/v1/actions/{id}", auth(http.HandlerFunc(handler.GetAction)))
	mux.Handle("POST /api/v1/actions/{id}/approve", auth(http.HandlerFunc(handler.ApproveAction)))
	mux.Handle("POST /api/v1/actions/{id}/deny", auth(http.HandlerFunc(handler.DenyAction)))
	mux.Handle("POST /api/v1/actions/{id}/execute", auth(http.HandlerFunc(handler.ExecuteAction)))

	mux.Handle("POST /api/v1/scan", auth(http.HandlerFunc(handler.TriggerScan)))
	mux.Handle("POST /api/v1/callbacks/workflow", auth(http.HandlerFunc(handler.WorkflowCallback)))
	mux.Handle("GET /api/v1/bridge/log", auth(http.HandlerFunc(handler.BridgeLog)))

	// Root endpoint (service info)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"service":"%s","version":"%s","status":"running"}`,
			cfg.ServiceName, cfg.Version)
	})

	port := 8080
	if cfg.Port > 0 {
		port = cfg.Port
	}

	log.Infof("HTTP server configured on port %d", port)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		log:        log,
	}
}

// apiKeyMiddleware guards the operator API with a shared key.
// An empty configured key disables the check (local development).
func apiKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" && r.Header.Get("X-API-Key") != apiKey {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Start begins listening for HTTP requests.
// Blocks until the server is stopped or encounters an error.
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("HTTP server stopped")
	return nil
}
