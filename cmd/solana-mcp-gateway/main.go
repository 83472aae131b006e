// Command solana-mcp-gateway runs the Solana JSON-RPC gateway over MCP.
//
// With no subcommand (or the explicit "stdio" subcommand) it serves one
// line-delimited JSON-RPC envelope per line over stdin/stdout. The "web"
// subcommand instead serves HTTP+WebSocket on the given port.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/opensvm/solana-mcp-gateway/internal/config"
	"github.com/opensvm/solana-mcp-gateway/internal/logging"
	"github.com/opensvm/solana-mcp-gateway/internal/telemetry"
	"github.com/opensvm/solana-mcp-gateway/pkg/mcpgateway"
	"github.com/opensvm/solana-mcp-gateway/pkg/mcpgateway/stdio"
	"github.com/opensvm/solana-mcp-gateway/pkg/server"
	"github.com/opensvm/solana-mcp-gateway/pkg/upstream"
	"github.com/opensvm/solana-mcp-gateway/pkg/x402"
)

var version = "dev"

var webPort int

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "solana-mcp-gateway",
	Short:   "Solana JSON-RPC gateway exposed over MCP",
	Version: version,
	RunE:    runStdio,
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdin/stdout (default)",
	RunE:  runStdio,
}

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve MCP over HTTP and WebSocket",
	RunE:  runWeb,
}

func init() {
	webCmd.Flags().IntVar(&webPort, "port", 3000, "HTTP/WebSocket listen port")
	rootCmd.AddCommand(stdioCmd)
	rootCmd.AddCommand(webCmd)
}

func setupSignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func buildLogger() (*zap.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logCfg.Level = zapcore.DebugLevel
		logCfg.Format = "console"
	}
	l, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return l.Underlying(), nil
}

func buildDispatcher(cfg *config.Config, sink *telemetry.Sink) (*mcpgateway.Dispatcher, error) {
	factory := func(url string) upstream.Client {
		return upstream.NewHTTPClient(url, 0)
	}
	state, err := mcpgateway.NewServerState(cfg, factory, sink)
	if err != nil {
		return nil, fmt.Errorf("build server state: %w", err)
	}

	var payments mcpgateway.PaymentGate
	if interceptor := x402.NewInterceptor(cfg.X402); interceptor != nil {
		payments = interceptor
	}

	network := "mainnet"
	for id := range cfg.X402.Networks {
		network = id
		break
	}

	return mcpgateway.NewDispatcher(state, upstream.DefaultCatalogue(), sink, payments, network), nil
}

func runStdio(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sink := telemetry.NewSink(logger)
	dispatcher, err := buildDispatcher(cfg, sink)
	if err != nil {
		return err
	}

	ctx, cancel := setupSignalContext()
	defer cancel()

	logger.Info("starting stdio transport")
	srv := stdio.NewServer(dispatcher, logger)
	return srv.Run(ctx, os.Stdin, os.Stdout)
}

func runWeb(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sink := telemetry.NewSink(logger)
	dispatcher, err := buildDispatcher(cfg, sink)
	if err != nil {
		return err
	}

	ctx, cancel := setupSignalContext()
	defer cancel()

	srv, err := server.NewServer(dispatcher, sink, logger, cfg, "0.0.0.0", webPort)
	if err != nil {
		return fmt.Errorf("build web server: %w", err)
	}

	logger.Info("starting web transport", zap.Int("port", webPort))
	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
