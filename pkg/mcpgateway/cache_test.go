package mcpgateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensvm/solana-mcp-gateway/internal/config"
)

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:            true,
		MaxEntries:         100,
		DefaultTTLSeconds:  10,
		MethodTTLOverrides: map[string]int{},
	}
}

func TestCacheBasicSetGet(t *testing.T) {
	c := NewCache(testCacheConfig(), nil)

	params := json.RawMessage(`{"pubkey":"test123"}`)
	value := json.RawMessage(`{"balance":1000}`)

	_, ok := c.Get("getBalance", params)
	assert.False(t, ok)

	c.Set("getBalance", params, value)

	got, ok := c.Get("getBalance", params)
	require.True(t, ok)
	assert.JSONEq(t, string(value), string(got))

	different := json.RawMessage(`{"pubkey":"test456"}`)
	_, ok = c.Get("getBalance", different)
	assert.False(t, ok)
}

func TestCacheExpiration(t *testing.T) {
	cfg := testCacheConfig()
	cfg.DefaultTTLSeconds = 0 // overridden below, explicit for clarity
	c := NewCache(cfg, nil)

	// Force a tiny TTL directly on the entry instead of sleeping a full
	// second, keeping the test fast.
	params := json.RawMessage(`{"pubkey":"test123"}`)
	c.Set("getBalance", params, json.RawMessage(`{"balance":1000}`))

	key := cacheKey("getBalance", params)
	c.mu.Lock()
	c.entries[key].createdAt = time.Now().Add(-time.Hour)
	c.entries[key].ttl = time.Millisecond
	c.mu.Unlock()

	_, ok := c.Get("getBalance", params)
	assert.False(t, ok)
}

func TestCacheDisabledAlwaysMisses(t *testing.T) {
	cfg := testCacheConfig()
	cfg.Enabled = false
	c := NewCache(cfg, nil)

	params := json.RawMessage(`{"pubkey":"test123"}`)
	c.Set("getBalance", params, json.RawMessage(`{"balance":1000}`))

	_, ok := c.Get("getBalance", params)
	assert.False(t, ok)
}

func TestCacheMethodSpecificTTL(t *testing.T) {
	cfg := testCacheConfig()
	cfg.MethodTTLOverrides = map[string]int{"getGenesisHash": 3600}
	c := NewCache(cfg, nil)

	assert.Equal(t, 3600*time.Second, c.ttlFor("getGenesisHash"))
	assert.Equal(t, 10*time.Second, c.ttlFor("getBalance"))
}

func TestCacheEnforcesMaxEntriesFIFO(t *testing.T) {
	cfg := testCacheConfig()
	cfg.MaxEntries = 3
	c := NewCache(cfg, nil)

	for i := 0; i < 3; i++ {
		params, _ := json.Marshal(map[string]int{"i": i})
		c.Set("getBalance", params, json.RawMessage(`{"balance":1}`))
	}
	assert.EqualValues(t, 3, c.Size())

	extra, _ := json.Marshal(map[string]string{"pubkey": "new_address_xyz"})
	c.Set("getBalance", extra, json.RawMessage(`{"balance":999}`))

	assert.EqualValues(t, 3, c.Size())
}

func TestCacheEvictExpired(t *testing.T) {
	cfg := testCacheConfig()
	c := NewCache(cfg, nil)

	for i := 0; i < 5; i++ {
		params, _ := json.Marshal(map[string]int{"i": i})
		c.Set("getBalance", params, json.RawMessage(`{"balance":1}`))
	}
	assert.EqualValues(t, 5, c.Size())

	c.mu.Lock()
	for _, e := range c.entries {
		e.createdAt = time.Now().Add(-time.Hour)
		e.ttl = time.Millisecond
	}
	c.mu.Unlock()

	c.EvictExpired()
	assert.EqualValues(t, 0, c.Size())
}

func TestWithCacheSkipsFetchOnHit(t *testing.T) {
	c := NewCache(testCacheConfig(), nil)
	params := json.RawMessage(`{"pubkey":"test123"}`)

	calls := 0
	fetch := func() (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"balance":1000}`), nil
	}

	v1, err := WithCache(c, "getBalance", params, fetch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":1000}`, string(v1))
	assert.Equal(t, 1, calls)

	v2, err := WithCache(c, "getBalance", params, fetch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":1000}`, string(v2))
	assert.Equal(t, 1, calls, "second call must hit cache, not invoke fetch again")
}
