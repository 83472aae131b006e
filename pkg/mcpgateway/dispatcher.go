package mcpgateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opensvm/solana-mcp-gateway/internal/errs"
	"github.com/opensvm/solana-mcp-gateway/internal/telemetry"
	"github.com/opensvm/solana-mcp-gateway/pkg/upstream"
)

// PaymentGate is the narrow interface the dispatcher needs from the x402
// interceptor — letting tests substitute a fake without pulling in a
// facilitator.
type PaymentGate interface {
	Intercept(ctx context.Context, network, toolName string, rawPayment json.RawMessage) *errs.Error
}

// cacheableMethods are the RPC methods the dispatcher routes through the
// cache. Every other method always reaches the upstream.
var cacheableMethods = map[string]bool{
	"getBlock": true, "getBlockTime": true, "getBlockHeight": true,
	"getAccountInfo": true, "getBalance": true, "getMultipleAccounts": true,
	"getTokenAccountBalance": true, "getTokenSupply": true,
	"getGenesisHash": true, "getVersion": true, "getEpochSchedule": true,
	"getSlot": true,
}

// Dispatcher parses an MCP/JSON-RPC envelope and routes it. A single
// instance serves both stdio and HTTP transports — both converge on
// Handle after their own framing is stripped.
type Dispatcher struct {
	state     *ServerState
	catalogue *upstream.ToolCatalogue
	sink      *telemetry.Sink
	payments  PaymentGate // nil when x402 is disabled
	network   string      // network key used to look up x402 requirements

	protocolVersion string
}

// NewDispatcher builds a Dispatcher. payments may be nil.
func NewDispatcher(state *ServerState, catalogue *upstream.ToolCatalogue, sink *telemetry.Sink, payments PaymentGate, network string) *Dispatcher {
	return &Dispatcher{
		state:           state,
		catalogue:       catalogue,
		sink:            sink,
		payments:        payments,
		network:         network,
		protocolVersion: state.Config().ProtocolVersion,
	}
}

// Handle parses raw as one JSON-RPC envelope and returns the encoded
// response, or nil if raw was a notification (no response expected).
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := newError(NullRequestID(), -32700, "Parse error", nil)
		return mustEncode(resp)
	}

	if req.JSONRPC != "2.0" {
		id := req.ID
		if req.JSONRPC == "" {
			// A missing jsonrpc field is answered with a null id.
			id = NullRequestID()
		}
		resp := newError(id, -32600, "Invalid Request: jsonrpc must be \"2.0\"", nil)
		return mustEncode(resp)
	}

	if req.IsNotification() {
		d.handleNotification(ctx, req)
		return nil
	}

	resp := d.route(ctx, req)
	return mustEncode(resp)
}

func (d *Dispatcher) handleNotification(ctx context.Context, req Request) {
	// notifications/* envelopes receive no response and carry no error
	// surface; they exist only so tests and future handlers have a seam.
	_ = ctx
	_ = req
}

func (d *Dispatcher) route(ctx context.Context, req Request) Response {
	if req.Method == "initialize" {
		return d.handleInitialize(req)
	}

	if !d.state.Initialized() {
		return newError(req.ID, -32002, "Server not initialized", nil)
	}

	switch req.Method {
	case "tools/list":
		return d.handleToolsList(req)
	case "tools/call":
		return d.handleToolsCall(ctx, req)
	default:
		return newError(req.ID, -32601, "Method not found", nil)
	}
}

func (d *Dispatcher) handleInitialize(req Request) Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return newError(req.ID, -32602, "Invalid params", nil)
		}
	}

	if params.ProtocolVersion != d.protocolVersion {
		return newError(req.ID, -32002, "Protocol version mismatch", map[string]string{
			"clientVersion": params.ProtocolVersion,
			"serverVersion": d.protocolVersion,
		})
	}

	d.state.MarkInitialized()

	result := InitializeResult{
		ProtocolVersion: d.protocolVersion,
		ServerInfo:      ServerInfo{Name: ServerName, Version: d.protocolVersion},
		Capabilities: Capabilities{
			Tools:     ToolsCapability{ListChanged: false},
			Resources: ResourcesCapability{Subscribe: false},
		},
	}
	return newResult(req.ID, mustMarshal(result))
}

func (d *Dispatcher) handleToolsList(req Request) Response {
	defs := d.catalogue.List()
	tools := make([]interface{}, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, def)
	}
	return newResult(req.ID, mustMarshal(ToolsListResult{Tools: tools}))
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req Request) Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, -32602, "Invalid params", nil)
	}

	if _, ok := d.catalogue.Lookup(params.Name); !ok {
		return newError(req.ID, -32601, "Method not found", nil)
	}

	requestID := telemetry.NewRequestID()
	start := time.Now()
	if d.sink != nil {
		d.sink.RequestStart(requestID, params.Name, "")
	}

	if d.payments != nil {
		var rawPayment json.RawMessage
		if params.Meta != nil {
			rawPayment = params.Meta.Payment
		}
		if gwErr := d.payments.Intercept(ctx, d.network, params.Name, rawPayment); gwErr != nil {
			d.recordFailure(requestID, params.Name, gwErr, start)
			return d.errorResponse(req.ID, gwErr)
		}
	}

	if err := d.catalogue.Validate(params.Name, params.Arguments); err != nil {
		gwErr := errs.NewValidation(params.Name, err.Error()).WithRequestID(requestID)
		d.recordFailure(requestID, params.Name, gwErr, start)
		return d.errorResponse(req.ID, gwErr)
	}

	client := d.state.Pool().Next()

	fetch := func() (json.RawMessage, error) {
		return client.Call(ctx, params.Name, params.Arguments)
	}

	var result json.RawMessage
	var err error
	if cacheableMethods[params.Name] {
		result, err = WithCache(d.state.Cache(), params.Name, params.Arguments, fetch)
	} else {
		result, err = fetch()
	}

	if err != nil {
		gwErr, ok := errs.As(err)
		if !ok {
			gwErr = errs.NewServer(err)
		}
		gwErr.RequestID = requestID
		d.recordFailure(requestID, params.Name, gwErr, start)
		return d.errorResponse(req.ID, gwErr)
	}

	if d.sink != nil {
		d.sink.RequestSuccess(requestID, params.Name, d.network, time.Since(start))
	}
	return newResult(req.ID, result)
}

func (d *Dispatcher) recordFailure(requestID, method string, gwErr *errs.Error, start time.Time) {
	if d.sink != nil {
		d.sink.RequestFailure(requestID, method, d.network, gwErr.Kind.String(), time.Since(start))
	}
}

func (d *Dispatcher) errorResponse(id RequestID, gwErr *errs.Error) Response {
	return newError(id, gwErr.Kind.Code(), gwErr.SafeMessage(), gwErr.Requirement)
}

func mustEncode(resp Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		// Marshaling our own Response type cannot fail in practice; fall
		// back to a minimal hand-built envelope rather than panic.
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal server error"}}`)
	}
	return b
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
