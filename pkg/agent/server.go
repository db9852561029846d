// Package agent exposes the simulator over HTTP(S) so remote benches can
// run trials and fetch host information.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mscrnt/scramsim/pkg/db"
)

// Server represents the agent server
type Server struct {
	config     Config
	httpServer *http.Server
	database   *db.DB
	logger     *slog.Logger
}

// NewServer creates a new agent server. database may be nil, in which case
// simulations are not stored.
func NewServer(config Config, database *db.DB, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		config:   config,
		database: database,
		logger:   logger.With("component", "agent"),
	}

	tlsConfig, err := config.LoadTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	server.httpServer = &http.Server{
		Addr:         config.Addr(),
		Handler:      server.Handler(),
		TLSConfig:    tlsConfig,
		ErrorLog:     slog.NewLogLogger(server.logger.Handler(), slog.LevelWarn),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

// Handler returns the routed handler with request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.loggingMiddleware(healthHandler))
	mux.HandleFunc("/standards", s.loggingMiddleware(standardsHandler))
	mux.HandleFunc("/scramblers", s.loggingMiddleware(scramblersHandler))
	mux.HandleFunc("/sysinfo", s.loggingMiddleware(sysinfoHandler))
	mux.HandleFunc("/simulate", s.loggingMiddleware(s.simulateHandler))
	return mux
}

// Serve accepts connections on l until Shutdown is called
func (s *Server) Serve(l net.Listener) error {
	mode := "http"
	if s.config.MutualTLS() {
		mode = "mtls"
	} else if s.config.TLSEnabled() {
		mode = "tls"
	}
	s.logger.Info("agent listening", "addr", l.Addr().String(), "mode", mode)

	var err error
	if s.config.TLSEnabled() {
		// Certificates are already in the TLS config
		err = s.httpServer.ServeTLS(l, "", "")
	} else {
		err = s.httpServer.Serve(l)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Start listens on the configured address and serves
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(l)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down agent server")
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests
func (s *Server) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientCert := "none"
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			clientCert = r.TLS.PeerCertificates[0].Subject.CommonName
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"remote", r.RemoteAddr,
			"client", clientCert,
			"duration", time.Since(start),
		)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
