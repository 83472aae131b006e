package mcpgateway

import (
	"sync"

	"github.com/opensvm/solana-mcp-gateway/internal/config"
	"github.com/opensvm/solana-mcp-gateway/internal/telemetry"
	"github.com/opensvm/solana-mcp-gateway/pkg/upstream"
)

// ClientFactory builds an upstream.Client for a given RPC URL. Injected so
// production code wires upstream.NewHTTPClient while tests wire fakes.
type ClientFactory func(url string) upstream.Client

// ServerState is the gateway's single shared mutable state: the current
// config snapshot, the upstream pool built from it, the cache, and whether
// the initialize handshake has completed. It is held behind one
// readers-writer lock — handlers take the read lock briefly to snapshot
// what they need, update_config takes the write lock, and no lock is held
// across a suspension point (an upstream or facilitator call).
//
// There is deliberately no package-level singleton: every stdio/HTTP server
// instance constructs its own ServerState explicitly.
type ServerState struct {
	mu          sync.RWMutex
	cfg         *config.Config
	pool        *Pool
	initialized bool

	factory ClientFactory
	cache   *Cache
	sink    *telemetry.Sink
}

// NewServerState constructs a ServerState from cfg, building the pool and
// cache immediately.
func NewServerState(cfg *config.Config, factory ClientFactory, sink *telemetry.Sink) (*ServerState, error) {
	pool, err := NewPool(cfg, factory)
	if err != nil {
		return nil, err
	}
	return &ServerState{
		cfg:     cfg,
		pool:    pool,
		factory: factory,
		cache:   NewCache(cfg.Cache, sink),
		sink:    sink,
	}, nil
}

// Config returns a snapshot of the current config pointer. Config is
// treated as immutable after load, so sharing the pointer under the read
// lock is safe — callers must not mutate it.
func (s *ServerState) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Pool returns the current upstream pool.
func (s *ServerState) Pool() *Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

// Cache returns the response cache. The cache keeps the CacheConfig it was
// built with; UpdateConfig neither rebuilds it nor changes its settings, so
// it can be shared for the ServerState's lifetime without a lock.
func (s *ServerState) Cache() *Cache {
	return s.cache
}

// Initialized reports whether the initialize handshake has completed.
func (s *ServerState) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// MarkInitialized records a completed handshake. Only called on an exact
// protocol version match (see Dispatcher.handleInitialize).
func (s *ServerState) MarkInitialized() {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
}

// UpdateConfig replaces the config and rebuilds the upstream pool in place.
// Existing Pool/Client borrows taken before this call remain valid; the
// next Pool() call sees the new rotation.
func (s *ServerState) UpdateConfig(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pool.Rebuild(cfg, s.factory); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}
