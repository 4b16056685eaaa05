package types

import (
	"fmt"
	"slices"
)

// ChainFamily classifies a chain into a blockchain family.
type ChainFamily string

const (
	ChainEVM    ChainFamily = "evm"
	ChainSolana ChainFamily = "solana"
)

// Chain identifies a payment rail. The string value doubles as the
// configuration key for the chain's RPC endpoint.
type Chain string

const (
	ChainBaseSepolia Chain = "base-sepolia"
	ChainBaseMainnet Chain = "base-mainnet"
	ChainSolanaNet   Chain = "solana"
)

// AllChains returns every chain the engine knows about.
func AllChains() []Chain {
	return []Chain{ChainBaseSepolia, ChainBaseMainnet, ChainSolanaNet}
}

// ParseChain converts a configuration key into a Chain.
func ParseChain(s string) (Chain, error) {
	c := Chain(s)
	if slices.Contains(AllChains(), c) {
		return c, nil
	}
	return "", &PaymentError{
		Code:    ErrUnsupportedChain,
		Message: fmt.Sprintf("unsupported chain: %s", s),
	}
}

func (c Chain) Family() ChainFamily {
	switch c {
	case ChainSolanaNet:
		return ChainSolana
	default:
		return ChainEVM
	}
}

func (c Chain) IsEVM() bool {
	return c.Family() == ChainEVM
}

func (c Chain) IsSolana() bool {
	return c.Family() == ChainSolana
}

// X402Network returns the network name facilitators expect in payment
// requirements.
func (c Chain) X402Network() string {
	switch c {
	case ChainBaseMainnet:
		return "base"
	case ChainSolanaNet:
		return "solana-devnet"
	default:
		return string(c)
	}
}

func (c Chain) String() string {
	return string(c)
}
