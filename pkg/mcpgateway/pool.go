package mcpgateway

import (
	"fmt"
	"sync/atomic"

	"github.com/opensvm/solana-mcp-gateway/internal/config"
	"github.com/opensvm/solana-mcp-gateway/pkg/upstream"
)

// Pool is a strict round-robin pool of upstream RPC clients. It performs no
// health-checking and no failover: a dead upstream stays in rotation until
// the pool is rebuilt from a new config. The spec's open question on
// singular-vs-plural upstream access resolves in favor of the plural form
// here — Next(), not a single client accessor.
type Pool struct {
	clients []upstream.Client
	counter atomic.Uint64
}

// NewPool builds a Pool from the configured upstream URLs using factory to
// construct one client per URL. factory is injected so tests can substitute
// fakes without reaching the network.
func NewPool(cfg *config.Config, factory func(url string) upstream.Client) (*Pool, error) {
	urls := cfg.UpstreamURLs()
	if len(urls) == 0 {
		return nil, fmt.Errorf("mcpgateway: no upstream URLs configured")
	}

	clients := make([]upstream.Client, 0, len(urls))
	for _, u := range urls {
		clients = append(clients, factory(u))
	}
	return &Pool{clients: clients}, nil
}

// Next returns the next client in rotation. The counter wraps via modulo so
// it never needs resetting; overflow of the underlying uint64 after ~1.8e19
// calls is not a practical concern.
func (p *Pool) Next() upstream.Client {
	idx := p.counter.Add(1) - 1
	return p.clients[idx%uint64(len(p.clients))]
}

// Len returns the number of clients in the pool.
func (p *Pool) Len() int {
	return len(p.clients)
}

// Rebuild replaces the pool's clients in place from a new config, resetting
// the round-robin counter. Callers hold the ServerState's config lock around
// this; Pool itself does not serialize Rebuild against concurrent Next().
func (p *Pool) Rebuild(cfg *config.Config, factory func(url string) upstream.Client) error {
	urls := cfg.UpstreamURLs()
	if len(urls) == 0 {
		return fmt.Errorf("mcpgateway: no upstream URLs configured")
	}

	clients := make([]upstream.Client, 0, len(urls))
	for _, u := range urls {
		clients = append(clients, factory(u))
	}
	p.clients = clients
	p.counter.Store(0)
	return nil
}
