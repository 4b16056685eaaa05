package clients

import (
	"context"
	"fmt"
	"sync"

	paytypes "github.com/vitwit/payrail/types"
)

// Endpoints resolves a chain to its RPC URL. *registry.Registry satisfies it.
type Endpoints interface {
	RPCURL(chain paytypes.Chain) string
}

// EVMDialer opens an EVM adapter for rpcURL.
type EVMDialer func(ctx context.Context, chain paytypes.Chain, rpcURL string, opts ...ClientOption) (EVMChain, error)

// SolanaDialer opens a Solana adapter for rpcURL.
type SolanaDialer func(chain paytypes.Chain, rpcURL string, opts ...ClientOption) SolanaChain

func dialEVM(ctx context.Context, chain paytypes.Chain, rpcURL string, opts ...ClientOption) (EVMChain, error) {
	c, err := NewEVMClient(ctx, chain, rpcURL, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func dialSolana(chain paytypes.Chain, rpcURL string, opts ...ClientOption) SolanaChain {
	return NewSolanaClient(chain, rpcURL, opts...)
}

// Provider hands out chain adapters.
type Provider interface {
	EVM(ctx context.Context, chain paytypes.Chain) (EVMChain, error)
	Solana(chain paytypes.Chain) (SolanaChain, error)
}

var _ Provider = (*Pool)(nil)

// Pool hands out one adapter per chain, dialing on first use.
type Pool struct {
	endpoints Endpoints
	opts      []ClientOption

	dialEVM    EVMDialer
	dialSolana SolanaDialer

	mu     sync.Mutex
	evm    map[paytypes.Chain]EVMChain
	solana map[paytypes.Chain]SolanaChain
}

// NewPool creates an empty pool; opts are passed to every adapter it dials.
func NewPool(endpoints Endpoints, opts ...ClientOption) *Pool {
	return &Pool{
		endpoints:  endpoints,
		opts:       opts,
		dialEVM:    dialEVM,
		dialSolana: dialSolana,
		evm:        make(map[paytypes.Chain]EVMChain),
		solana:     make(map[paytypes.Chain]SolanaChain),
	}
}

// SetDialers replaces the functions used to open new adapters. Nil keeps the
// current one.
func (p *Pool) SetDialers(evm EVMDialer, sol SolanaDialer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if evm != nil {
		p.dialEVM = evm
	}
	if sol != nil {
		p.dialSolana = sol
	}
}

// RegisterEVM installs a ready adapter for chain, replacing any existing one.
func (p *Pool) RegisterEVM(chain paytypes.Chain, c EVMChain) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.evm[chain]; ok && old != c {
		old.Close()
	}
	p.evm[chain] = c
}

// RegisterSolana installs a ready adapter for chain.
func (p *Pool) RegisterSolana(chain paytypes.Chain, c SolanaChain) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.solana[chain] = c
}

// EVM returns the adapter for an EVM chain.
func (p *Pool) EVM(ctx context.Context, chain paytypes.Chain) (EVMChain, error) {
	if !chain.IsEVM() {
		return nil, unsupported(chain)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.evm[chain]; ok {
		return c, nil
	}

	url, err := p.endpoint(chain)
	if err != nil {
		return nil, err
	}
	c, err := p.dialEVM(ctx, chain, url, p.opts...)
	if err != nil {
		return nil, err
	}
	p.evm[chain] = c
	return c, nil
}

// Solana returns the adapter for a Solana cluster.
func (p *Pool) Solana(chain paytypes.Chain) (SolanaChain, error) {
	if !chain.IsSolana() {
		return nil, unsupported(chain)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.solana[chain]; ok {
		return c, nil
	}

	url, err := p.endpoint(chain)
	if err != nil {
		return nil, err
	}
	c := p.dialSolana(chain, url, p.opts...)
	p.solana[chain] = c
	return c, nil
}

func (p *Pool) endpoint(chain paytypes.Chain) (string, error) {
	var url string
	if p.endpoints != nil {
		url = p.endpoints.RPCURL(chain)
	}
	if url == "" {
		return "", &paytypes.PaymentError{
			Code:    paytypes.ErrConfigError,
			Message: fmt.Sprintf("no RPC endpoint configured for %s", chain),
		}
	}
	return url, nil
}

// Close releases every adapter.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for chain, c := range p.evm {
		c.Close()
		delete(p.evm, chain)
	}
	for chain, c := range p.solana {
		c.Close()
		delete(p.solana, chain)
	}
}

func unsupported(chain paytypes.Chain) error {
	return &paytypes.PaymentError{
		Code:    paytypes.ErrUnsupportedChain,
		Message: fmt.Sprintf("unsupported chain: %s", chain),
	}
}
