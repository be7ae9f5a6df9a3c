package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server serves the scrape trigger and preference API
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

const defaultWriteTimeout = 10 * time.Minute

// NewServer creates a server listening on addr. writeTimeout must cover the
// longest scrape the handler accepts; a non-positive value uses 10 minutes.
func NewServer(addr string, handler http.Handler, writeTimeout time.Duration, log *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		log: log.Named("http"),
	}
}

// Run serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Run() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("Unexpected server shutdown", zap.Error(err))
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Closing HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("Failed to shutdown gracefully", zap.Error(err))
		return err
	}

	s.log.Info("HTTP server is closed")
	return nil
}

// WriteTimeout returns the response write deadline
func (s *Server) WriteTimeout() time.Duration {
	return s.httpServer.WriteTimeout
}
