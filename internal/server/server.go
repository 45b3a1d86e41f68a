package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tigerroll/bikeshare/internal/config"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// Server is an http.Server with explicit start and stop.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	listener        net.Listener
	done            chan error
}

// NewServer creates a Server for handler configured by cfg.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			ReadTimeout:       config.Seconds(cfg.ReadTimeoutSeconds),
			ReadHeaderTimeout: config.Seconds(cfg.ReadTimeoutSeconds),
			WriteTimeout:      config.Seconds(cfg.WriteTimeoutSeconds),
		},
		shutdownTimeout: config.Seconds(cfg.ShutdownTimeoutSeconds),
	}
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.listener = ln
	s.done = make(chan error, 1)
	logger.Infof("HTTP server listening on %s", ln.Addr())
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			logger.Errorf("HTTP server stopped: %v", err)
		}
		s.done <- err
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.srv.Addr
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	logger.Infof("Shutting down HTTP server on %s", s.Addr())
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return <-s.done
}
