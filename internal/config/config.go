package config

import (
	"fmt"

	"github.com/opensvm/solana-mcp-gateway/internal/validate"
)

// NetworkConfig describes one named upstream network.
type NetworkConfig struct {
	Name    string `json:"name" koanf:"name"`
	RPCURL  string `json:"rpc_url" koanf:"rpc_url"`
	Enabled bool   `json:"enabled" koanf:"enabled"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled            bool           `json:"enabled" koanf:"enabled"`
	MaxEntries         int            `json:"max_entries" koanf:"max_entries"`
	DefaultTTLSeconds  int            `json:"default_ttl_seconds" koanf:"default_ttl_seconds"`
	MethodTTLOverrides map[string]int `json:"method_ttl_overrides" koanf:"method_ttl_overrides"`
}

// DefaultMethodTTLOverrides returns the shipped per-method TTL table
// (seconds), matching the original reference implementation exactly.
func DefaultMethodTTLOverrides() map[string]int {
	return map[string]int{
		"getBlock":               300,
		"getBlockTime":           300,
		"getBlockHeight":         5,
		"getAccountInfo":         10,
		"getBalance":             10,
		"getMultipleAccounts":    10,
		"getTokenAccountBalance": 30,
		"getTokenSupply":         60,
		"getGenesisHash":         3600,
		"getVersion":             600,
		"getEpochSchedule":       3600,
		"getSlot":                2,
	}
}

// X402NetworkConfig describes one network's accepted payment parameters.
type X402NetworkConfig struct {
	CAIP2Network        string   `json:"caip2_network" koanf:"caip2_network"`
	Assets              []string `json:"assets" koanf:"assets"`
	PayTo               string   `json:"pay_to" koanf:"pay_to"`
	MinComputeUnitPrice *uint64  `json:"min_compute_unit_price,omitempty" koanf:"min_compute_unit_price"`
	MaxComputeUnitPrice *uint64  `json:"max_compute_unit_price,omitempty" koanf:"max_compute_unit_price"`
}

// X402Config controls the payment interceptor.
type X402Config struct {
	Enabled            bool                         `json:"enabled" koanf:"enabled"`
	FacilitatorBaseURL string                       `json:"facilitator_base_url" koanf:"facilitator_base_url"`
	MaxRetries         int                          `json:"max_retries" koanf:"max_retries"`
	TimeoutSeconds     int                          `json:"timeout_seconds" koanf:"timeout_seconds"`
	Networks           map[string]X402NetworkConfig `json:"networks" koanf:"networks"`
}

// Config holds the gateway's complete, immutable-after-load configuration.
type Config struct {
	RPCURL          string                   `json:"rpc_url" koanf:"rpc_url"`
	Commitment      string                   `json:"commitment" koanf:"commitment"`
	ProtocolVersion string                   `json:"protocol_version" koanf:"protocol_version"`
	Upstreams       []string                 `json:"upstreams" koanf:"upstreams"`
	Networks        map[string]NetworkConfig `json:"networks" koanf:"networks"`
	Cache           CacheConfig              `json:"cache" koanf:"cache"`
	X402            X402Config               `json:"x402" koanf:"x402"`
}

// ShippedProtocolVersion is the MCP protocol version this gateway advertises.
const ShippedProtocolVersion = "2024-11-05"

// Validate enforces the invariants named in SPEC_FULL.md §3. The first
// failing field wins, matching the reference source's single-reason
// validation error style.
func (c *Config) Validate() error {
	if _, err := validate.ValidateRPCURL(c.RPCURL); err != nil {
		return fmt.Errorf("rpc_url: %w", err)
	}
	if err := validate.ValidateCommitment(c.Commitment); err != nil {
		return err
	}
	if c.ProtocolVersion == "" {
		return fmt.Errorf("protocol_version must not be empty")
	}
	for id, nc := range c.Networks {
		if err := validate.ValidateNetworkID(id); err != nil {
			return fmt.Errorf("networks[%s]: %w", id, err)
		}
		if err := validate.ValidateNetworkName(nc.Name); err != nil {
			return fmt.Errorf("networks[%s].name: %w", id, err)
		}
		if _, err := validate.ValidateRPCURL(nc.RPCURL); err != nil {
			return fmt.Errorf("networks[%s].rpc_url: %w", id, err)
		}
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	if c.Cache.DefaultTTLSeconds < 0 {
		return fmt.Errorf("cache.default_ttl_seconds must not be negative")
	}
	if c.X402.Enabled {
		if _, err := validate.ValidateRPCURL(c.X402.FacilitatorBaseURL); err != nil {
			return fmt.Errorf("x402.facilitator_base_url: %w", err)
		}
		if c.X402.MaxRetries < 0 || c.X402.MaxRetries > 10 {
			return fmt.Errorf("x402.max_retries must be between 0 and 10")
		}
		if c.X402.TimeoutSeconds <= 0 || c.X402.TimeoutSeconds > 300 {
			return fmt.Errorf("x402.timeout_seconds must be between 1 and 300")
		}
		for id, nc := range c.X402.Networks {
			if err := validate.ValidateCAIP2(nc.CAIP2Network); err != nil {
				return fmt.Errorf("x402.networks[%s]: %w", id, err)
			}
		}
	}
	return nil
}

// UpstreamURLs returns the ordered list of RPC URLs the upstream pool should
// be built from: the explicit Upstreams list when present, otherwise the
// single primary RPCURL. The spec treats the pool as plural; this is the
// one seam where a singular config value is expanded into the plural form
// the pool requires.
func (c *Config) UpstreamURLs() []string {
	if len(c.Upstreams) > 0 {
		return c.Upstreams
	}
	return []string{c.RPCURL}
}

// Default returns a Config populated with the spec's documented defaults.
func Default() *Config {
	return &Config{
		RPCURL:          "https://api.opensvm.com",
		Commitment:      "confirmed",
		ProtocolVersion: ShippedProtocolVersion,
		Networks:        map[string]NetworkConfig{},
		Cache: CacheConfig{
			Enabled:            true,
			MaxEntries:         10000,
			DefaultTTLSeconds:  30,
			MethodTTLOverrides: DefaultMethodTTLOverrides(),
		},
		X402: X402Config{
			Enabled:        false,
			MaxRetries:     5,
			TimeoutSeconds: 30,
			Networks:       map[string]X402NetworkConfig{},
		},
	}
}
