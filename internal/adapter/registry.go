package adapter

import (
	"fmt"
	"sync"

	"github.com/web3-storefront/internal/networks"
	"github.com/web3-storefront/internal/types"
)

// DialFunc opens an adapter for a chain at an RPC URL
type DialFunc func(chainID types.ChainID, rpcURL string) (ChainAdapter, error)

// Registry hands out one adapter per supported network, connecting lazily on first use
type Registry struct {
	mu         sync.Mutex
	adapters   map[types.ChainID]ChainAdapter
	dial       DialFunc
	alchemyKey string
	localURL   string
}

// RegistryConfig holds configuration for creating a Registry
type RegistryConfig struct {
	// AlchemyKey is substituted into Alchemy-hosted RPC URLs
	AlchemyKey string
	// LocalRPCURL overrides the local network endpoint
	LocalRPCURL string
	// Dial opens adapters. Default: NewEthereumAdapter
	Dial DialFunc
}

// NewRegistry creates an empty registry
func NewRegistry(cfg RegistryConfig) *Registry {
	dial := cfg.Dial
	if dial == nil {
		dial = func(chainID types.ChainID, rpcURL string) (ChainAdapter, error) {
			return NewEthereumAdapter(chainID, rpcURL)
		}
	}
	return &Registry{
		adapters:   make(map[types.ChainID]ChainAdapter),
		dial:       dial,
		alchemyKey: cfg.AlchemyKey,
		localURL:   cfg.LocalRPCURL,
	}
}

// Get returns the adapter for a supported chain, dialing it if needed
func (r *Registry) Get(chainID types.ChainID) (ChainAdapter, error) {
	network, ok := networks.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("unsupported chain %s", chainID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.adapters[chainID]; ok {
		return a, nil
	}

	a, err := r.dial(chainID, networks.RPCEndpoint(network, r.alchemyKey, r.localURL))
	if err != nil {
		return nil, err
	}
	r.adapters[chainID] = a
	return a, nil
}

// Close closes every dialed adapter
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.adapters {
		a.Close()
		delete(r.adapters, id)
	}
}
