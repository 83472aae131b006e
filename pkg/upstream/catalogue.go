package upstream

import (
	"encoding/json"
	"fmt"
)

// ToolDefinition describes one MCP tool backed by a single Solana JSON-RPC
// method call. The tool name is the RPC method name verbatim — there is no
// translation layer between MCP tool names and upstream method names, which
// keeps the cache's per-method TTL table (internal/config) and the tool
// catalogue in lockstep by construction.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Required    []string        `json:"-"`
}

// ToolCatalogue is the static tools/list payload plus per-tool required
// parameter validation. It holds no upstream client or dispatch logic of
// its own: every tool call is forwarded verbatim to whichever upstream the
// pool hands back, using the tool name as the RPC method name.
type ToolCatalogue struct {
	byName map[string]ToolDefinition
	order  []string
}

// NewToolCatalogue builds a catalogue from defs, preserving their order for
// tools/list.
func NewToolCatalogue(defs []ToolDefinition) *ToolCatalogue {
	c := &ToolCatalogue{byName: make(map[string]ToolDefinition, len(defs))}
	for _, d := range defs {
		c.byName[d.Name] = d
		c.order = append(c.order, d.Name)
	}
	return c
}

// List returns the tool definitions in catalogue order, for tools/list.
func (c *ToolCatalogue) List() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

// Lookup returns the tool definition for name, or false if unknown.
func (c *ToolCatalogue) Lookup(name string) (ToolDefinition, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Validate checks that params is a JSON object carrying every parameter the
// tool declares required. It does not validate parameter types beyond
// "present and non-null"; Solana-specific shapes (pubkeys, signatures) are
// not checked before the call is forwarded.
func (c *ToolCatalogue) Validate(name string, params json.RawMessage) error {
	def, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	if len(def.Required) == 0 {
		return nil
	}

	var obj map[string]json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &obj); err != nil {
			return fmt.Errorf("params must be a JSON object: %w", err)
		}
	}

	for _, key := range def.Required {
		raw, present := obj[key]
		if !present || string(raw) == "null" {
			return fmt.Errorf("missing required parameter %q", key)
		}
	}
	return nil
}

func schema(properties string, required ...string) json.RawMessage {
	reqJSON, _ := json.Marshal(required)
	return json.RawMessage(fmt.Sprintf(`{"type":"object","properties":%s,"required":%s}`, properties, reqJSON))
}

// DefaultCatalogue returns the gateway's shipped tool set, grounded on the
// original implementation's method coverage (slot/block, account, token,
// transaction, and system-info RPC calls).
func DefaultCatalogue() *ToolCatalogue {
	return NewToolCatalogue([]ToolDefinition{
		{Name: "getSlot", Description: "Get current slot",
			InputSchema: schema(`{}`)},
		{Name: "getSlotLeaders", Description: "Get slot leaders for a range",
			InputSchema: schema(`{"start_slot":{"type":"integer"},"limit":{"type":"integer"}}`, "start_slot", "limit"),
			Required:    []string{"start_slot", "limit"}},
		{Name: "getBlock", Description: "Get block information",
			InputSchema: schema(`{"slot":{"type":"integer"}}`, "slot"),
			Required:    []string{"slot"}},
		{Name: "getBlockHeight", Description: "Get current block height",
			InputSchema: schema(`{}`)},
		{Name: "getBlockTime", Description: "Get estimated production time of a block",
			InputSchema: schema(`{"slot":{"type":"integer"}}`, "slot"),
			Required:    []string{"slot"}},
		{Name: "getBlockProduction", Description: "Get block production information",
			InputSchema: schema(`{"identity":{"type":"string"},"first_slot":{"type":"integer"},"last_slot":{"type":"integer"}}`)},
		{Name: "getBlocks", Description: "Get confirmed blocks between two slots",
			InputSchema: schema(`{"start_slot":{"type":"integer"},"end_slot":{"type":"integer"}}`, "start_slot"),
			Required:    []string{"start_slot"}},
		{Name: "getBalance", Description: "Get account balance",
			InputSchema: schema(`{"pubkey":{"type":"string"}}`, "pubkey"),
			Required:    []string{"pubkey"}},
		{Name: "getAccountInfo", Description: "Get detailed account information",
			InputSchema: schema(`{"pubkey":{"type":"string"}}`, "pubkey"),
			Required:    []string{"pubkey"}},
		{Name: "getMultipleAccounts", Description: "Get information for multiple accounts",
			InputSchema: schema(`{"pubkeys":{"type":"array","items":{"type":"string"}}}`, "pubkeys"),
			Required:    []string{"pubkeys"}},
		{Name: "getProgramAccounts", Description: "Get all accounts owned by a program",
			InputSchema: schema(`{"program_id":{"type":"string"}}`, "program_id"),
			Required:    []string{"program_id"}},
		{Name: "getTransaction", Description: "Get transaction details",
			InputSchema: schema(`{"signature":{"type":"string"}}`, "signature"),
			Required:    []string{"signature"}},
		{Name: "getSignaturesForAddress", Description: "Get confirmed signatures for an address",
			InputSchema: schema(`{"address":{"type":"string"},"before":{"type":"string"},"until":{"type":"string"},"limit":{"type":"integer"}}`, "address"),
			Required:    []string{"address"}},
		{Name: "sendTransaction", Description: "Submit a signed transaction",
			InputSchema: schema(`{"transaction":{"type":"string"},"encoding":{"type":"string","enum":["base58","base64"]}}`, "transaction", "encoding"),
			Required:    []string{"transaction", "encoding"}},
		{Name: "getHealth", Description: "Get node health status",
			InputSchema: schema(`{}`)},
		{Name: "getVersion", Description: "Get node version information",
			InputSchema: schema(`{}`)},
		{Name: "getIdentity", Description: "Get node identity",
			InputSchema: schema(`{}`)},
		{Name: "getClusterNodes", Description: "Get information about nodes participating in the cluster",
			InputSchema: schema(`{}`)},
		{Name: "getEpochInfo", Description: "Get current epoch information",
			InputSchema: schema(`{}`)},
		{Name: "getEpochSchedule", Description: "Get epoch schedule information",
			InputSchema: schema(`{}`)},
		{Name: "getInflationRate", Description: "Get current inflation rate",
			InputSchema: schema(`{}`)},
		{Name: "getInflationGovernor", Description: "Get inflation governor parameters",
			InputSchema: schema(`{}`)},
		{Name: "getGenesisHash", Description: "Get the genesis hash of the ledger",
			InputSchema: schema(`{}`)},
		{Name: "getTokenAccountsByOwner", Description: "Get token accounts owned by an address",
			InputSchema: schema(`{"owner":{"type":"string"}}`, "owner"),
			Required:    []string{"owner"}},
		{Name: "getTokenAccountBalance", Description: "Get the token balance of an account",
			InputSchema: schema(`{"pubkey":{"type":"string"}}`, "pubkey"),
			Required:    []string{"pubkey"}},
		{Name: "getTokenSupply", Description: "Get total supply of a token",
			InputSchema: schema(`{"mint":{"type":"string"}}`, "mint"),
			Required:    []string{"mint"}},
		{Name: "getTokenLargestAccounts", Description: "Get token accounts with the largest balances",
			InputSchema: schema(`{"mint":{"type":"string"}}`, "mint"),
			Required:    []string{"mint"}},
	})
}
