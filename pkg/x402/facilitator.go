package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/opensvm/solana-mcp-gateway/internal/errs"
)

// Facilitator is an x402 facilitator HTTP client: verify, settle, and
// supported, each with a hard timeout and bounded exponential backoff on
// transient transport failures.
type Facilitator struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewFacilitator builds a Facilitator. maxRetries is clamped to [0,10]; a
// timeout outside (0,300s] is replaced by 30s.
func NewFacilitator(baseURL string, maxRetries int, timeout time.Duration) *Facilitator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxRetries > 10 {
		maxRetries = 10
	}
	if timeout <= 0 || timeout > 300*time.Second {
		timeout = 30 * time.Second
	}
	return &Facilitator{
		baseURL:    baseURL,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type paymentRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// Verify calls POST <base>/verify.
func (f *Facilitator) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := f.postWithRetry(ctx, "/verify", paymentRequest{payload, requirements}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle calls POST <base>/settle.
func (f *Facilitator) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettlementResponse, error) {
	var out SettlementResponse
	if err := f.postWithRetry(ctx, "/settle", paymentRequest{payload, requirements}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Supported calls GET <base>/supported.
func (f *Facilitator) Supported(ctx context.Context) (*SupportedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/supported", nil)
	if err != nil {
		return nil, errs.NewServer(err)
	}
	req.Header.Set("X-Trace-ID", uuid.NewString())

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errs.NewNetwork(f.baseURL, err)
	}
	defer resp.Body.Close()

	var out SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.NewNetwork(f.baseURL, err)
	}
	return &out, nil
}

// postWithRetry POSTs body to base+path, retrying transport failures and 5xx
// responses (4xx responses, and a 5xx on the last attempt, are returned as
// errors) with exponential backoff: 100·2^(attempt-1) ms plus
// jitter(0..100ms), up to maxRetries retries (maxRetries+1 attempts total).
func (f *Facilitator) postWithRetry(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return errs.NewServer(err)
	}

	url := f.baseURL + path
	var lastErr error

	for attempt := 1; attempt <= f.maxRetries+1; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return errs.NewServer(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Trace-ID", uuid.NewString())

		resp, err := f.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt <= f.maxRetries {
				select {
				case <-ctx.Done():
					return errs.NewNetwork(url, ctx.Err())
				case <-time.After(backoff(attempt)):
				}
				continue
			}
			return errs.NewNetwork(url, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return errs.NewNetwork(url, readErr)
		}

		if resp.StatusCode >= 500 && attempt <= f.maxRetries {
			lastErr = fmt.Errorf("facilitator %s returned status %d", path, resp.StatusCode)
			select {
			case <-ctx.Done():
				return errs.NewNetwork(url, ctx.Err())
			case <-time.After(backoff(attempt)):
			}
			continue
		}

		if resp.StatusCode >= 400 {
			return errs.NewNetwork(url, fmt.Errorf("facilitator %s returned status %d", path, resp.StatusCode))
		}

		return json.Unmarshal(respBody, out)
	}

	return errs.NewNetwork(url, lastErr)
}

// backoff computes the delay before retry number attempt (1-indexed).
func backoff(attempt int) time.Duration {
	baseMs := 100 * (1 << (attempt - 1))
	jitterMs := rand.Intn(100)
	return time.Duration(baseMs+jitterMs) * time.Millisecond
}
