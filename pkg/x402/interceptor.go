package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/opensvm/solana-mcp-gateway/internal/config"
	"github.com/opensvm/solana-mcp-gateway/internal/errs"
)

// paymentPayloadWire mirrors PaymentPayload but accepts the scheme-specific
// payload as a raw object so ValidateSVMExact can pull out the base64
// transaction field without this package needing to know every scheme.
type paymentPayloadWire struct {
	X402Version int             `json:"x402Version"`
	Accepted    PaymentRequirements `json:"accepted"`
	Payload     struct {
		Transaction string `json:"transaction"`
	} `json:"payload"`
}

// Interceptor gates a tool call behind a verified and settled x402
// payment. Constructed once per ServerState from the x402 sub-config; it
// holds no per-request state.
type Interceptor struct {
	cfg         config.X402Config
	facilitator *Facilitator
}

// NewInterceptor builds an Interceptor. Returns nil if x402 is disabled —
// callers should skip interception entirely in that case rather than call
// through a disabled instance.
func NewInterceptor(cfg config.X402Config) *Interceptor {
	if !cfg.Enabled {
		return nil
	}
	return &Interceptor{
		cfg:         cfg,
		facilitator: NewFacilitator(cfg.FacilitatorBaseURL, cfg.MaxRetries, time.Duration(cfg.TimeoutSeconds)*time.Second),
	}
}

// Intercept runs the x402 gate for toolName against network, given the raw
// `_meta.payment` bytes from the tools/call request (nil if absent). It
// returns a non-nil *errs.Error to short-circuit the call (payment
// required or invalid) or nil to let the tool proceed.
func (i *Interceptor) Intercept(ctx context.Context, network, toolName string, rawPayment json.RawMessage) *errs.Error {
	netCfg, ok := i.cfg.Networks[network]
	if !ok {
		return errs.NewServer(fmt.Errorf("x402: no network config for %q", network))
	}

	requirements := buildRequirements(netCfg)

	if len(rawPayment) == 0 {
		return errs.NewPaymentRequired("Payment required", PaymentRequired{
			X402Version: Version,
			Error:       "Payment required",
			Resource:    ResourceInfo{URL: fmt.Sprintf("mcp://tools/%s", toolName)},
			Accepts:     requirements,
		})
	}

	var payload paymentPayloadWire
	if err := json.Unmarshal(rawPayment, &payload); err != nil {
		return errs.NewInvalidPayment(fmt.Sprintf("malformed payment payload: %v", err))
	}
	if payload.X402Version != Version {
		return errs.NewInvalidPayment(fmt.Sprintf("unsupported x402Version %d", payload.X402Version))
	}
	if _, err := parseNonNegativeInt(payload.Accepted.Amount); err != nil {
		return errs.NewInvalidPayment(fmt.Sprintf("amount: %v", err))
	}
	if payload.Accepted.MaxTimeoutSeconds < 1 || payload.Accepted.MaxTimeoutSeconds > 300 {
		return errs.NewInvalidPayment("maxTimeoutSeconds must be between 1 and 300")
	}

	if payload.Payload.Transaction != "" {
		if err := ValidateSVMExact(payload.Payload.Transaction, payload.Accepted, netCfg.MinComputeUnitPrice, netCfg.MaxComputeUnitPrice); err != nil {
			return errs.NewInvalidPayment(err.Error())
		}
	}

	fullPayload := PaymentPayload{
		X402Version: payload.X402Version,
		Accepted:    payload.Accepted,
	}
	txJSON, _ := json.Marshal(payload.Payload)
	fullPayload.Payload = txJSON

	verifyResp, err := i.facilitator.Verify(ctx, fullPayload, payload.Accepted)
	if err != nil {
		gwErr, ok := errs.As(err)
		if ok {
			return gwErr
		}
		return errs.NewServer(err)
	}
	if !verifyResp.IsValid {
		return errs.NewInvalidPayment(verifyResp.InvalidReason)
	}

	settleResp, err := i.facilitator.Settle(ctx, fullPayload, payload.Accepted)
	if err != nil {
		gwErr, ok := errs.As(err)
		if ok {
			return gwErr
		}
		return errs.NewServer(err)
	}
	if !settleResp.Success {
		return errs.NewServer(fmt.Errorf("settlement failed: %s", settleResp.ErrorReason))
	}

	return nil
}

func buildRequirements(netCfg config.X402NetworkConfig) []PaymentRequirements {
	out := make([]PaymentRequirements, 0, len(netCfg.Assets))
	for _, asset := range netCfg.Assets {
		out = append(out, PaymentRequirements{
			Scheme:            "exact",
			Network:           netCfg.CAIP2Network,
			Amount:            "0", // per-tool pricing is supplied by the caller's tool metadata, not modeled here
			Asset:             asset,
			PayTo:             netCfg.PayTo,
			MaxTimeoutSeconds: 60,
		})
	}
	return out
}

func parseNonNegativeInt(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a non-negative integer", s)
	}
	return v, nil
}

