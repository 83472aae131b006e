package x402

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensvm/solana-mcp-gateway/internal/config"
	"github.com/opensvm/solana-mcp-gateway/internal/errs"
)

func testX402Config(facilitatorURL string) config.X402Config {
	return config.X402Config{
		Enabled:             true,
		FacilitatorBaseURL:  facilitatorURL,
		MaxRetries:          1,
		TimeoutSeconds:      5,
		Networks: map[string]config.X402NetworkConfig{
			"mainnet": {
				CAIP2Network: "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
				Assets:       []string{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
				PayTo:        "FeeRecipient123456789",
			},
		},
	}
}

func TestInterceptReturnsPaymentRequiredWhenAbsent(t *testing.T) {
	i := NewInterceptor(testX402Config("http://unused"))
	gwErr := i.Intercept(context.Background(), "mainnet", "getBalance", nil)
	require.NotNil(t, gwErr)
	assert.Equal(t, errs.PaymentRequired, gwErr.Kind)
	assert.Equal(t, -40200, gwErr.Kind.Code())

	pr, ok := gwErr.Requirement.(PaymentRequired)
	require.True(t, ok)
	assert.Equal(t, Version, pr.X402Version)
	assert.NotEmpty(t, pr.Accepts)
}

func TestInterceptRejectsWrongVersion(t *testing.T) {
	i := NewInterceptor(testX402Config("http://unused"))

	payload := json.RawMessage(`{"x402Version":1,"accepted":{"scheme":"exact","network":"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp","amount":"1000","asset":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","payTo":"FeeRecipient123456789","maxTimeoutSeconds":60},"payload":{}}`)

	gwErr := i.Intercept(context.Background(), "mainnet", "getBalance", payload)
	require.NotNil(t, gwErr)
	assert.Equal(t, errs.InvalidPayment, gwErr.Kind)
	assert.Equal(t, -40201, gwErr.Kind.Code())
}

func TestInterceptRejectsBadTimeout(t *testing.T) {
	i := NewInterceptor(testX402Config("http://unused"))

	payload := json.RawMessage(`{"x402Version":2,"accepted":{"scheme":"exact","network":"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp","amount":"1000","asset":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","payTo":"FeeRecipient123456789","maxTimeoutSeconds":9999},"payload":{}}`)

	gwErr := i.Intercept(context.Background(), "mainnet", "getBalance", payload)
	require.NotNil(t, gwErr)
	assert.Equal(t, errs.InvalidPayment, gwErr.Kind)
}

func TestInterceptVerifiesAndSettlesOnValidPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/verify":
			_, _ = w.Write([]byte(`{"isValid":true}`))
		case "/settle":
			_, _ = w.Write([]byte(`{"success":true,"transaction":"sig123","network":"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"}`))
		}
	}))
	defer srv.Close()

	i := NewInterceptor(testX402Config(srv.URL))

	payload := json.RawMessage(`{"x402Version":2,"accepted":{"scheme":"exact","network":"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp","amount":"1000","asset":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","payTo":"FeeRecipient123456789","maxTimeoutSeconds":60},"payload":{}}`)

	gwErr := i.Intercept(context.Background(), "mainnet", "getBalance", payload)
	assert.Nil(t, gwErr)
}

func TestInterceptSurfacesFacilitatorInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"isValid":false,"invalidReason":"insufficient funds"}`))
	}))
	defer srv.Close()

	i := NewInterceptor(testX402Config(srv.URL))
	payload := json.RawMessage(`{"x402Version":2,"accepted":{"scheme":"exact","network":"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp","amount":"1000","asset":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","payTo":"FeeRecipient123456789","maxTimeoutSeconds":60},"payload":{}}`)

	gwErr := i.Intercept(context.Background(), "mainnet", "getBalance", payload)
	require.NotNil(t, gwErr)
	assert.Equal(t, errs.InvalidPayment, gwErr.Kind)
	assert.Contains(t, gwErr.SafeMessage(), "insufficient funds")
}
