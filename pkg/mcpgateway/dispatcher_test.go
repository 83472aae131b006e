package mcpgateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/opensvm/solana-mcp-gateway/internal/config"
	"github.com/opensvm/solana-mcp-gateway/internal/errs"
	"github.com/opensvm/solana-mcp-gateway/internal/telemetry"
	"github.com/opensvm/solana-mcp-gateway/pkg/upstream"
)

type scriptedClient struct {
	url     string
	calls   int
	results []json.RawMessage
	errs    []error
}

func (c *scriptedClient) URL() string { return c.url }
func (c *scriptedClient) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i < len(c.results) {
		return c.results[i], nil
	}
	return json.RawMessage(`{}`), nil
}

func newTestSink(t *testing.T) *telemetry.Sink {
	t.Helper()
	return telemetry.NewSinkWithRegisterer(zaptest.NewLogger(t), prometheus.NewRegistry())
}

func newTestDispatcher(t *testing.T, clients ...upstream.Client) (*Dispatcher, *ServerState) {
	t.Helper()
	cfg := config.Default()
	cfg.Upstreams = nil
	i := 0
	factory := func(url string) upstream.Client {
		c := clients[i%len(clients)]
		i++
		return c
	}
	if len(clients) == 0 {
		factory = func(url string) upstream.Client { return &scriptedClient{url: url} }
	}
	sink := newTestSink(t)
	state, err := NewServerState(cfg, factory, sink)
	require.NoError(t, err)
	catalogue := upstream.DefaultCatalogue()
	return NewDispatcher(state, catalogue, sink, nil, "mainnet"), state
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func decodeResponse(t *testing.T, raw []byte) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestInitializeHandshakeSucceedsOnExactVersionMatch(t *testing.T) {
	d, state := newTestDispatcher(t)

	req := Request{
		JSONRPC: "2.0",
		ID:      NewRequestID(json.RawMessage(`1`)),
		Method:  "initialize",
		Params:  mustJSON(t, InitializeParams{ProtocolVersion: config.ShippedProtocolVersion}),
	}
	raw := d.Handle(context.Background(), mustJSON(t, req))
	resp := decodeResponse(t, raw)

	require.Nil(t, resp.Error)
	var result InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, ServerName, result.ServerInfo.Name)
	assert.True(t, state.Initialized())
}

func TestToolsListBeforeInitializeIsRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)

	req := Request{
		JSONRPC: "2.0",
		ID:      NewRequestID(json.RawMessage(`1`)),
		Method:  "tools/list",
	}
	raw := d.Handle(context.Background(), mustJSON(t, req))
	resp := decodeResponse(t, raw)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32002, resp.Error.Code)
}

func TestMissingJSONRPCFieldIsRejectedWithNullID(t *testing.T) {
	d, _ := newTestDispatcher(t)

	raw := d.Handle(context.Background(), []byte(`{"id":1,"method":"initialize","params":{}}`))
	resp := decodeResponse(t, raw)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
	assert.True(t, resp.ID.IsNull())
}

func initializedDispatcher(t *testing.T, clients ...upstream.Client) (*Dispatcher, *ServerState) {
	t.Helper()
	d, state := newTestDispatcher(t, clients...)
	req := Request{
		JSONRPC: "2.0",
		ID:      NewRequestID(json.RawMessage(`1`)),
		Method:  "initialize",
		Params:  mustJSON(t, InitializeParams{ProtocolVersion: config.ShippedProtocolVersion}),
	}
	_ = d.Handle(context.Background(), mustJSON(t, req))
	return d, state
}

func TestCacheHitSkipsUpstreamCall(t *testing.T) {
	client := &scriptedClient{results: []json.RawMessage{json.RawMessage(`{"solana-core":"1.18"}`)}}
	d, _ := initializedDispatcher(t, client)

	req := Request{
		JSONRPC: "2.0",
		ID:      NewRequestID(json.RawMessage(`2`)),
		Method:  "tools/call",
		Params:  mustJSON(t, ToolCallParams{Name: "getVersion", Arguments: json.RawMessage(`{}`)}),
	}
	raw := d.Handle(context.Background(), mustJSON(t, req))
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)

	raw2 := d.Handle(context.Background(), mustJSON(t, req))
	resp2 := decodeResponse(t, raw2)
	require.Nil(t, resp2.Error)

	assert.Equal(t, 1, client.calls)
	assert.JSONEq(t, string(resp.Result), string(resp2.Result))
}

func TestToolsCallRoundRobinsOverThreeUpstreams(t *testing.T) {
	a := &scriptedClient{url: "a"}
	b := &scriptedClient{url: "b"}
	c := &scriptedClient{url: "c"}

	cfg := config.Default()
	cfg.Upstreams = []string{"a", "b", "c"}
	byURL := map[string]upstream.Client{"a": a, "b": b, "c": c}
	factory := func(url string) upstream.Client { return byURL[url] }

	sink := newTestSink(t)
	state, err := NewServerState(cfg, factory, sink)
	require.NoError(t, err)
	d := NewDispatcher(state, upstream.DefaultCatalogue(), sink, nil, "mainnet")

	initReq := Request{JSONRPC: "2.0", ID: NewRequestID(json.RawMessage(`1`)), Method: "initialize",
		Params: mustJSON(t, InitializeParams{ProtocolVersion: config.ShippedProtocolVersion})}
	_ = d.Handle(context.Background(), mustJSON(t, initReq))

	for i := 0; i < 3; i++ {
		req := Request{
			JSONRPC: "2.0",
			ID:      NewRequestID(json.RawMessage(`2`)),
			Method:  "tools/call",
			Params:  mustJSON(t, ToolCallParams{Name: "getClusterNodes", Arguments: json.RawMessage(`{}`)}),
		}
		raw := d.Handle(context.Background(), mustJSON(t, req))
		resp := decodeResponse(t, raw)
		require.Nil(t, resp.Error)
	}

	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 1, c.calls)
}

type fakePaymentGate struct {
	err *errs.Error
}

func (g *fakePaymentGate) Intercept(ctx context.Context, network, toolName string, rawPayment json.RawMessage) *errs.Error {
	return g.err
}

func TestToolsCallGatedByX402RejectsWithoutPayment(t *testing.T) {
	cfg := config.Default()
	cfg.Upstreams = nil
	factory := func(url string) upstream.Client { return &scriptedClient{url: url} }
	sink := newTestSink(t)
	state, err := NewServerState(cfg, factory, sink)
	require.NoError(t, err)

	gate := &fakePaymentGate{err: errs.NewPaymentRequired("Payment required", nil)}
	d := NewDispatcher(state, upstream.DefaultCatalogue(), sink, gate, "mainnet")

	initReq := Request{JSONRPC: "2.0", ID: NewRequestID(json.RawMessage(`1`)), Method: "initialize",
		Params: mustJSON(t, InitializeParams{ProtocolVersion: config.ShippedProtocolVersion})}
	_ = d.Handle(context.Background(), mustJSON(t, initReq))

	req := Request{
		JSONRPC: "2.0",
		ID:      NewRequestID(json.RawMessage(`2`)),
		Method:  "tools/call",
		Params:  mustJSON(t, ToolCallParams{Name: "getBalance", Arguments: mustJSON(t, map[string]string{"pubkey": "abc"})}),
	}
	raw := d.Handle(context.Background(), mustJSON(t, req))
	resp := decodeResponse(t, raw)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -40200, resp.Error.Code)
}

func TestToolsCallWithInvalidPaymentSurfacesInvalidPaymentCode(t *testing.T) {
	cfg := config.Default()
	cfg.Upstreams = nil
	factory := func(url string) upstream.Client { return &scriptedClient{url: url} }
	sink := newTestSink(t)
	state, err := NewServerState(cfg, factory, sink)
	require.NoError(t, err)

	gate := &fakePaymentGate{err: errs.NewInvalidPayment("bad payload")}
	d := NewDispatcher(state, upstream.DefaultCatalogue(), sink, gate, "mainnet")

	initReq := Request{JSONRPC: "2.0", ID: NewRequestID(json.RawMessage(`1`)), Method: "initialize",
		Params: mustJSON(t, InitializeParams{ProtocolVersion: config.ShippedProtocolVersion})}
	_ = d.Handle(context.Background(), mustJSON(t, initReq))

	req := Request{
		JSONRPC: "2.0",
		ID:      NewRequestID(json.RawMessage(`2`)),
		Method:  "tools/call",
		Params:  mustJSON(t, ToolCallParams{Name: "getBalance", Arguments: mustJSON(t, map[string]string{"pubkey": "abc"})}),
	}
	raw := d.Handle(context.Background(), mustJSON(t, req))
	resp := decodeResponse(t, raw)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -40201, resp.Error.Code)
}

func TestToolsCallUnknownToolReturnsMethodNotFound(t *testing.T) {
	d, _ := initializedDispatcher(t)

	req := Request{
		JSONRPC: "2.0",
		ID:      NewRequestID(json.RawMessage(`2`)),
		Method:  "tools/call",
		Params:  mustJSON(t, ToolCallParams{Name: "notATool", Arguments: json.RawMessage(`{}`)}),
	}
	raw := d.Handle(context.Background(), mustJSON(t, req))
	resp := decodeResponse(t, raw)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestToolsCallMissingRequiredParamIsRejected(t *testing.T) {
	d, _ := initializedDispatcher(t)

	req := Request{
		JSONRPC: "2.0",
		ID:      NewRequestID(json.RawMessage(`2`)),
		Method:  "tools/call",
		Params:  mustJSON(t, ToolCallParams{Name: "getBalance", Arguments: json.RawMessage(`{}`)}),
	}
	raw := d.Handle(context.Background(), mustJSON(t, req))
	resp := decodeResponse(t, raw)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestNotificationReceivesNoResponse(t *testing.T) {
	d, _ := newTestDispatcher(t)

	raw := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, raw)
}

func TestToolsListReturnsCatalogue(t *testing.T) {
	d, _ := initializedDispatcher(t)

	req := Request{JSONRPC: "2.0", ID: NewRequestID(json.RawMessage(`2`)), Method: "tools/list"}
	raw := d.Handle(context.Background(), mustJSON(t, req))
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)

	var result ToolsListResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.NotEmpty(t, result.Tools)
}
