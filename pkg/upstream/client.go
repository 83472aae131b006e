// Package upstream implements the HTTP JSON-RPC client the gateway uses to
// forward validated tool calls to a Solana RPC node, and the static tool
// catalogue exposed via tools/list.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/opensvm/solana-mcp-gateway/internal/errs"
)

// Client is the interface the pool rotates over and the dispatcher calls
// into. It is deliberately narrow: one method, taking a raw method name and
// raw params and returning a raw JSON result, so the gateway never needs to
// know the shape of any particular Solana RPC method's response.
type Client interface {
	// URL returns the upstream's RPC endpoint, for logging and error
	// attribution.
	URL() string

	// Call forwards method/params as a JSON-RPC 2.0 request and returns the
	// upstream's result field verbatim.
	Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
}

// HTTPClient is the default Client implementation: a single upstream RPC
// URL reached over plain HTTP JSON-RPC, with no retry and no failover — the
// pool handles redundancy by rotating across many HTTPClients, not by
// retrying within one.
type HTTPClient struct {
	url        string
	httpClient *http.Client
}

// NewHTTPClient builds an HTTPClient against url with a fixed request
// timeout.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) URL() string { return c.url }

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Call sends a single JSON-RPC request to the upstream and returns its
// result, surfacing upstream-reported JSON-RPC errors as *errs.Error of kind
// Rpc and transport failures as kind Network.
func (c *HTTPClient) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, errs.NewServer(err).WithMethod(method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errs.NewNetwork(c.url, err).WithMethod(method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.NewNetwork(c.url, err).WithMethod(method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewNetwork(c.url, err).WithMethod(method)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errs.NewNetwork(c.url, fmt.Errorf("upstream returned status %d", resp.StatusCode)).WithMethod(method)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errs.NewNetwork(c.url, err).WithMethod(method)
	}

	if parsed.Error != nil {
		rpcErr := errs.NewRpc(c.url, fmt.Errorf("%s", parsed.Error.Message)).WithMethod(method)
		return nil, rpcErr
	}

	return parsed.Result, nil
}
