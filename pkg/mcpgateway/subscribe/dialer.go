package subscribe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// WebSocketDialer is the production UpstreamSubscriber: it dials the
// upstream pub/sub endpoint directly, issues the subscribe verb as a
// JSON-RPC request, and forwards every subsequent upstream notification
// whose method matches "<verb>Notification" onto the returned channel.
type WebSocketDialer struct{}

// NewWebSocketDialer returns the production dialer.
func NewWebSocketDialer() *WebSocketDialer { return &WebSocketDialer{} }

func (d *WebSocketDialer) Subscribe(ctx context.Context, wsURL, verb string, params json.RawMessage) (<-chan json.RawMessage, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("subscribe: dial upstream %s: %w", wsURL, err)
	}

	subReq := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      int             `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}{JSONRPC: "2.0", ID: 1, Method: verb, Params: params}

	if err := conn.WriteJSON(subReq); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: send upstream subscribe: %w", err)
	}

	// The first inbound message is the subscribe confirmation (a bare
	// result, not a notification); it is consumed here and not forwarded.
	var confirmation struct {
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := conn.ReadJSON(&confirmation); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: read upstream confirmation: %w", err)
	}
	if confirmation.Error != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: upstream rejected subscription: %s", confirmation.Error)
	}

	notifications := make(chan json.RawMessage, 16)

	go func() {
		defer conn.Close()
		defer close(notifications)

		for {
			var msg struct {
				Params struct {
					Result json.RawMessage `json:"result"`
				} `json:"params"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			select {
			case notifications <- msg.Params.Result:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return notifications, nil
}

// DeriveUpstreamWS substitutes http(s) for ws(s) in httpURL, per the spec's
// scheme-substitution rule for locating the upstream pub/sub endpoint.
func DeriveUpstreamWS(httpURL string) string {
	switch {
	case len(httpURL) >= 8 && httpURL[:8] == "https://":
		return "wss://" + httpURL[8:]
	case len(httpURL) >= 7 && httpURL[:7] == "http://":
		return "ws://" + httpURL[7:]
	default:
		return httpURL
	}
}
