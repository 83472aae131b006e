package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeTableIsTotalAndStable(t *testing.T) {
	want := map[Kind]int{
		Client:          -32602,
		Validation:      -32602,
		Auth:            -32601,
		Server:          -32603,
		Rpc:             -32603,
		Network:         -32603,
		PaymentRequired: -40200,
		InvalidPayment:  -40201,
	}
	for kind, code := range want {
		assert.Equal(t, code, kind.Code(), "kind %s", kind)
	}
}

func TestSafeMessageNeverLeaksSource(t *testing.T) {
	e := NewServer(errors.New("leaked db password in stack trace"))
	assert.Equal(t, "Internal server error", e.SafeMessage())
	assert.NotContains(t, e.SafeMessage(), "leaked")

	e2 := NewRpc("https://rpc.internal", errors.New("connection refused 10.0.0.5"))
	assert.Equal(t, "RPC service temporarily unavailable", e2.SafeMessage())
	assert.NotContains(t, e2.SafeMessage(), "10.0.0.5")
}

func TestClientAndValidationProjectOriginalMessage(t *testing.T) {
	e := NewClient("bad request shape")
	assert.Equal(t, "bad request shape", e.SafeMessage())

	e2 := NewValidation("commitment", "must be one of processed, confirmed, finalized")
	assert.Equal(t, "must be one of processed, confirmed, finalized", e2.SafeMessage())
	assert.Equal(t, "commitment", e2.Parameter)
}

func TestInvalidPaymentWrapsReason(t *testing.T) {
	e := NewInvalidPayment("amount mismatch")
	assert.Equal(t, "Invalid payment: amount mismatch", e.SafeMessage())
}

func TestWithRequestIDAndMethodChain(t *testing.T) {
	e := NewAuth("no token").WithRequestID("req-1").WithMethod("tools/call")
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "tools/call", e.Method)
}

func TestAsUnwrapsThroughFmtErrorf(t *testing.T) {
	base := NewNetwork("wss://example", errors.New("dial timeout"))
	wrapped := fmt.Errorf("pool acquire: %w", base)

	got, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, Network, got.Kind)
}
