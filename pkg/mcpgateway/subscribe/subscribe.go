// Package subscribe implements the gateway's subscription multiplexer: one
// instance per accepted WebSocket connection, forwarding upstream pub/sub
// notifications to the client under locally-issued subscription ids.
package subscribe

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/opensvm/solana-mcp-gateway/pkg/mcpgateway"
)

// subscriptionCounter is process-wide and monotonic, per spec: subscription
// ids are not scoped to a single connection.
var subscriptionCounter atomic.Uint64

func nextSubscriptionID() uint64 {
	return subscriptionCounter.Add(1)
}

// subscribeVerbs are the nine methods that open a subscription.
var subscribeVerbs = map[string]bool{
	"accountSubscribe":      true,
	"blockSubscribe":        true,
	"logsSubscribe":         true,
	"programSubscribe":      true,
	"rootSubscribe":         true,
	"signatureSubscribe":    true,
	"slotSubscribe":         true,
	"slotsUpdatesSubscribe": true,
	"voteSubscribe":         true,
}

// unsubscribeVerbs map each unsubscribe method to the verb it tears down,
// for logging only — the wire contract itself only needs [S].
var unsubscribeVerbs = map[string]string{
	"accountUnsubscribe":      "accountSubscribe",
	"blockUnsubscribe":        "blockSubscribe",
	"logsUnsubscribe":         "logsSubscribe",
	"programUnsubscribe":      "programSubscribe",
	"rootUnsubscribe":         "rootSubscribe",
	"signatureUnsubscribe":    "signatureSubscribe",
	"slotUnsubscribe":         "slotSubscribe",
	"slotsUpdatesUnsubscribe": "slotsUpdatesSubscribe",
	"voteUnsubscribe":         "voteSubscribe",
}

// noForwarderVerbs never get a forwarder task spawned: the upstream this
// gateway targets doesn't wire one either, and spec.md §9/§12 says to
// preserve that rather than guess at "unsupported" semantics.
var noForwarderVerbs = map[string]bool{
	"slotsUpdatesSubscribe": true,
	"voteSubscribe":         true,
}

// UpstreamSubscriber opens one upstream pub/sub subscription and streams
// its notifications back as raw `result` payloads. The returned channel is
// closed when the upstream connection ends, by error or by ctx cancellation.
type UpstreamSubscriber interface {
	Subscribe(ctx context.Context, wsURL, verb string, params json.RawMessage) (<-chan json.RawMessage, error)
}

// WSConn is the subset of *websocket.Conn the multiplexer needs, so tests
// can substitute an in-memory fake without dialing a real socket.
type WSConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type subscriptionRecord struct {
	verb   string
	cancel context.CancelFunc
}

// Multiplexer serves exactly one WebSocket connection's subscription
// lifecycle: subscribe/unsubscribe bookkeeping, upstream forwarder tasks,
// and teardown. A fresh instance is constructed per accepted connection.
type Multiplexer struct {
	dialer     UpstreamSubscriber
	upstreamWS string // upstream pub/sub URL, ws(s)-scheme
	logger     *zap.Logger

	mu           sync.Mutex
	records      map[uint64]*subscriptionRecord
	warnedOnce   map[string]bool
	writeMu      sync.Mutex
}

// NewMultiplexer builds a Multiplexer for one connection. upstreamWS is the
// already scheme-substituted (http(s)->ws(s)) pub/sub endpoint.
func NewMultiplexer(dialer UpstreamSubscriber, upstreamWS string, logger *zap.Logger) *Multiplexer {
	return &Multiplexer{
		dialer:     dialer,
		upstreamWS: upstreamWS,
		logger:     logger,
		records:    make(map[uint64]*subscriptionRecord),
		warnedOnce: make(map[string]bool),
	}
}

// Serve runs the read loop for conn until it errors or closes, tearing down
// every outstanding subscription on exit.
func (m *Multiplexer) Serve(ctx context.Context, conn WSConn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		m.teardownAll()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m.handleFrame(connCtx, conn, data)
	}
}

func (m *Multiplexer) handleFrame(ctx context.Context, conn WSConn, data []byte) {
	var req mcpgateway.Request
	if err := json.Unmarshal(data, &req); err != nil {
		if m.logger != nil {
			m.logger.Debug("subscribe: malformed frame", zap.Error(err))
		}
		return
	}

	switch {
	case subscribeVerbs[req.Method]:
		m.handleSubscribe(ctx, conn, req)
	case unsubscribeVerbs[req.Method] != "":
		m.handleUnsubscribe(conn, req)
	default:
		if m.logger != nil {
			m.logger.Debug("subscribe: unrecognized method on subscription connection", zap.String("method", req.Method))
		}
	}
}

func (m *Multiplexer) handleSubscribe(ctx context.Context, conn WSConn, req mcpgateway.Request) {
	if req.Method == "logsSubscribe" {
		normalized, malformed := parseLogsFilter(req.Params)
		if malformed && m.logger != nil {
			m.logger.Debug("subscribe: malformed logsSubscribe filter, defaulting to \"all\"")
		}
		req.Params = normalized
	}

	id := nextSubscriptionID()

	// Respond before spawning the forwarder: ordering is load-bearing so
	// the client can correlate S before any notification arrives.
	m.writeResult(conn, req.ID, id)

	if noForwarderVerbs[req.Method] {
		m.warnOnce(req.Method, "accepted but upstream never wires a forwarder for this verb; no notifications will be delivered")
		m.mu.Lock()
		m.records[id] = &subscriptionRecord{verb: req.Method, cancel: func() {}}
		m.mu.Unlock()
		return
	}

	subCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.records[id] = &subscriptionRecord{verb: req.Method, cancel: cancel}
	m.mu.Unlock()

	notifications, err := m.dialer.Subscribe(subCtx, m.upstreamWS, req.Method, req.Params)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("subscribe: upstream subscription failed", zap.String("verb", req.Method), zap.Error(err))
		}
		m.removeRecord(id)
		cancel()
		return
	}

	if req.Method == "blockSubscribe" {
		m.warnOnce(req.Method, "acknowledged; upstream may not implement this subscription")
	}

	go m.forward(subCtx, conn, req.Method, id, notifications)
}

func (m *Multiplexer) forward(ctx context.Context, conn WSConn, verb string, id uint64, notifications <-chan json.RawMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-notifications:
			if !ok {
				return
			}
			m.writeNotification(conn, verb, id, payload)
		}
	}
}

func (m *Multiplexer) handleUnsubscribe(conn WSConn, req mcpgateway.Request) {
	var ids []uint64
	_ = json.Unmarshal(req.Params, &ids)

	found := false
	if len(ids) > 0 {
		found = m.removeRecord(ids[0])
	}
	m.writeResult(conn, req.ID, found)
}

// removeRecord cancels and deletes the record for id, reporting whether one
// existed.
func (m *Multiplexer) removeRecord(id uint64) bool {
	m.mu.Lock()
	rec, ok := m.records[id]
	if ok {
		delete(m.records, id)
	}
	m.mu.Unlock()

	if ok {
		rec.cancel()
	}
	return ok
}

func (m *Multiplexer) teardownAll() {
	m.mu.Lock()
	records := m.records
	m.records = make(map[uint64]*subscriptionRecord)
	m.mu.Unlock()

	for _, rec := range records {
		rec.cancel()
	}
}

func (m *Multiplexer) warnOnce(verb, message string) {
	m.mu.Lock()
	already := m.warnedOnce[verb]
	m.warnedOnce[verb] = true
	m.mu.Unlock()

	if !already && m.logger != nil {
		m.logger.Warn("subscribe: "+message, zap.String("verb", verb))
	}
}

func (m *Multiplexer) writeResult(conn WSConn, id mcpgateway.RequestID, result interface{}) {
	resultJSON, _ := json.Marshal(result)
	resp := struct {
		JSONRPC string               `json:"jsonrpc"`
		ID      mcpgateway.RequestID `json:"id"`
		Result  json.RawMessage      `json:"result"`
	}{JSONRPC: "2.0", ID: id, Result: resultJSON}
	m.writeJSONValue(conn, resp)
}

func (m *Multiplexer) writeNotification(conn WSConn, verb string, subscriptionID uint64, payload json.RawMessage) {
	notif := struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  struct {
			Subscription uint64          `json:"subscription"`
			Result       json.RawMessage `json:"result"`
		} `json:"params"`
	}{JSONRPC: "2.0", Method: verb + "Notification"}
	notif.Params.Subscription = subscriptionID
	notif.Params.Result = payload
	m.writeJSONValue(conn, notif)
}

func (m *Multiplexer) writeJSONValue(conn WSConn, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.WriteMessage(1, b) // websocket.TextMessage
}

// parseLogsFilter normalizes a logsSubscribe filter argument. It accepts the
// string shorthand "all"/"allWithVotes" or an object {mentions: [pubkey]};
// anything else defaults to "all" and is reported as malformed.
func parseLogsFilter(raw json.RawMessage) (json.RawMessage, bool) {
	if len(raw) == 0 {
		return json.RawMessage(`"all"`), false
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "all" || asString == "allWithVotes" {
			return raw, false
		}
		return json.RawMessage(`"all"`), true
	}

	var asObject struct {
		Mentions []string `json:"mentions"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil && asObject.Mentions != nil {
		return raw, false
	}

	return json.RawMessage(`"all"`), true
}
