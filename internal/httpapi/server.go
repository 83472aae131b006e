// Package httpapi provides the gateway's web-mode HTTP surface: health,
// Prometheus metrics, the MCP JSON-RPC endpoint, and the WebSocket
// subscription upgrade.
package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opensvm/solana-mcp-gateway/internal/config"
	"github.com/opensvm/solana-mcp-gateway/internal/telemetry"
	"github.com/opensvm/solana-mcp-gateway/pkg/mcpgateway"
	"github.com/opensvm/solana-mcp-gateway/pkg/mcpgateway/subscribe"
)

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// Server is the gateway's web-mode HTTP+WS surface.
type Server struct {
	echo       *echo.Echo
	logger     *zap.Logger
	config     *Config
	dispatcher *mcpgateway.Dispatcher
	sink       *telemetry.Sink
	upgrader   websocket.Upgrader
	dialer     subscribe.UpstreamSubscriber
	upstreamWS string
}

// NewServer builds the echo-based HTTP server around an already-constructed
// dispatcher. upstreamWS is the scheme-substituted upstream pub/sub
// endpoint the subscription multiplexer dials.
func NewServer(dispatcher *mcpgateway.Dispatcher, sink *telemetry.Sink, logger *zap.Logger, cfg *Config, upstreamWS string) (*Server, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 3000}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:       e,
		logger:     logger,
		config:     cfg,
		dispatcher: dispatcher,
		sink:       sink,
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		dialer:     subscribe.NewWebSocketDialer(),
		upstreamWS: upstreamWS,
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/api/mcp", s.handleMCP)
	s.echo.GET("/", s.handleWebSocketUpgrade)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

// handleMCP accepts one JSON-RPC envelope as the request body and returns
// the dispatcher's response, matching the stdio transport's semantics
// (notifications produce an empty 204 body).
func (s *Server) handleMCP(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	resp := s.dispatcher.Handle(c.Request().Context(), body)
	if resp == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSONBlob(http.StatusOK, resp)
}

// handleWebSocketUpgrade upgrades the connection and hands it to a fresh
// subscription multiplexer, per spec.md §4.5/§6.
func (s *Server) handleWebSocketUpgrade(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}

	mux := subscribe.NewMultiplexer(s.dialer, s.upstreamWS, s.logger)
	mux.Serve(c.Request().Context(), conn)
	return nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// UpstreamWSFromConfig derives the upstream pub/sub WebSocket URL from cfg
// via the spec's http(s)->ws(s) scheme substitution.
func UpstreamWSFromConfig(cfg *config.Config) string {
	return subscribe.DeriveUpstreamWS(cfg.RPCURL)
}
