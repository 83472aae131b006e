// Package logging provides structured logging for the gateway.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (trace_id, span_id, request.id)
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithRequestID(ctx, "req_123")
//	logger.Info(ctx, "request processed", zap.Duration("duration", d))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2025-11-24T10:15:30Z",
//	  "level": "info",
//	  "msg": "request processed",
//	  "trace_id": "abc123",
//	  "request.id": "req_123",
//	  "duration": "45ms"
//	}
//
// # Configuration
//
// The gateway builds its logging configuration from NewDefaultConfig; no
// config file or GATEWAY_LOGGING_* environment variable is read. The
// gateway binary switches to debug level and console encoding when
// LOG_LEVEL=debug.
//
// # Sampling
//
// Sampling prevents log floods:
//   - Trace, Debug, Info and Warn share one sampler using the
//     Sampling.Levels[InfoLevel] entry (default: first 100 per tick, then
//     1 every 10); the Levels entries for other levels are not applied
//   - Error+: never sampled
//
// Disable for debugging:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
package logging
