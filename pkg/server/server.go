// Package server runs the gateway's web-mode HTTP+WS surface for a bounded
// lifetime, wrapping internal/httpapi with context-aware graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/opensvm/solana-mcp-gateway/internal/config"
	"github.com/opensvm/solana-mcp-gateway/internal/httpapi"
	"github.com/opensvm/solana-mcp-gateway/internal/telemetry"
	"github.com/opensvm/solana-mcp-gateway/pkg/mcpgateway"
)

// ShutdownTimeout bounds how long graceful shutdown waits for in-flight
// requests before Start returns.
const ShutdownTimeout = 10 * time.Second

// Server runs the web-mode HTTP surface tied to a context rather than
// process signals directly — cmd/ wires signal handling into ctx
// cancellation.
type Server struct {
	http *httpapi.Server
}

// NewServer builds the web-mode server around an already-constructed
// dispatcher, bound to host:port.
func NewServer(dispatcher *mcpgateway.Dispatcher, sink *telemetry.Sink, logger *zap.Logger, cfg *config.Config, host string, port int) (*Server, error) {
	httpCfg := &httpapi.Config{Host: host, Port: port, Version: cfg.ProtocolVersion}
	h, err := httpapi.NewServer(dispatcher, sink, logger, httpCfg, httpapi.UpstreamWSFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("server: build http layer: %w", err)
	}
	return &Server{http: h}, nil
}

// Start starts the HTTP server and blocks until context is cancelled.
//
// When ctx is cancelled, the server performs graceful shutdown with
// ShutdownTimeout. Returns http.ErrServerClosed on graceful shutdown, or
// any other error encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.http.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}
