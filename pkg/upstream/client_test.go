package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensvm/solana-mcp-gateway/internal/errs"
)

func TestHTTPClientCallReturnsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getSlot", req.Method)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"x","result":123456}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	result, err := c.Call(context.Background(), "getSlot", json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.JSONEq(t, `123456`, string(result))
	assert.Equal(t, srv.URL, c.URL())
}

func TestHTTPClientCallSurfacesUpstreamRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"x","error":{"code":-32602,"message":"invalid params"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Call(context.Background(), "getBalance", json.RawMessage(`["bad"]`))
	require.Error(t, err)

	gwErr, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.Rpc, gwErr.Kind)
}

func TestHTTPClientCallSurfacesNetworkErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Call(context.Background(), "getSlot", json.RawMessage(`[]`))
	require.Error(t, err)

	gwErr, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.Network, gwErr.Kind)
}
