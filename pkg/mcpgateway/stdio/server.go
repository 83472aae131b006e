// Package stdio runs the gateway's dispatcher over stdin/stdout using
// line-delimited JSON-RPC envelopes, one per line, matching the transport
// MCP clients speak when they launch the gateway as a subprocess.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/opensvm/solana-mcp-gateway/pkg/mcpgateway"
)

// maxLineBytes bounds a single JSON-RPC envelope read from stdin, guarding
// against an unbounded bufio.Scanner buffer growth on a malformed stream.
const maxLineBytes = 10 << 20 // 10 MiB

// Server reads one JSON-RPC envelope per line from r and writes the
// dispatcher's response, one per line, to w. Notifications produce no
// output line.
type Server struct {
	dispatcher *mcpgateway.Dispatcher
	logger     *zap.Logger
}

// NewServer builds a stdio Server around an already-constructed dispatcher.
func NewServer(dispatcher *mcpgateway.Dispatcher, logger *zap.Logger) *Server {
	return &Server{dispatcher: dispatcher, logger: logger}
}

// Run blocks reading lines from r until r returns EOF, or until a line is
// read after ctx is cancelled (ctx is checked between lines, not while a
// read is blocked).
// Each line is handled synchronously and in order — the spec does not
// require concurrent in-flight requests over stdio, and serializing them
// keeps output line ordering trivially correct.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	writer := bufio.NewWriter(w)
	defer writer.Flush()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// Bytes() aliases the scanner's internal buffer; the dispatcher
		// may retain params via json.RawMessage, so hand it a copy.
		raw := append([]byte(nil), line...)

		resp := s.dispatcher.Handle(ctx, raw)
		if resp == nil {
			continue // notification: no response line
		}

		if _, err := writer.Write(resp); err != nil {
			return fmt.Errorf("stdio: write response: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("stdio: write newline: %w", err)
		}
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("stdio: flush response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdio: read request: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("stdio transport closed: input stream exhausted")
	}
	return nil
}
