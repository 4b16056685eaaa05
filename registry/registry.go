// Package registry resolves payment methods to the chain, asset and endpoint
// data needed to move or check a payment.
package registry

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/vitwit/payrail/types"
)

// ResolveMethod maps a payment method to its chain and currency. The switch is
// exhaustive over the closed method set.
func ResolveMethod(method types.PaymentMethod) (types.Chain, types.Currency, error) {
	switch method {
	case types.MethodETHBaseSepolia:
		return types.ChainBaseSepolia, types.CurrencyETH, nil
	case types.MethodUSDCBaseSepolia:
		return types.ChainBaseSepolia, types.CurrencyUSDC, nil
	case types.MethodUSDTBaseSepolia:
		return types.ChainBaseSepolia, types.CurrencyUSDT, nil
	case types.MethodETHBaseMainnet:
		return types.ChainBaseMainnet, types.CurrencyETH, nil
	case types.MethodUSDCBaseMainnet:
		return types.ChainBaseMainnet, types.CurrencyUSDC, nil
	case types.MethodUSDTBaseMainnet:
		return types.ChainBaseMainnet, types.CurrencyUSDT, nil
	case types.MethodSOLSolana:
		return types.ChainSolanaNet, types.CurrencySOL, nil
	case types.MethodUSDCSolana:
		return types.ChainSolanaNet, types.CurrencyUSDC, nil
	case types.MethodUSDTSolana:
		return types.ChainSolanaNet, types.CurrencyUSDT, nil
	default:
		return "", "", &types.PaymentError{
			Code:    types.ErrUnknownMethod,
			Message: fmt.Sprintf("Unsupported payment method: %s", method),
		}
	}
}

// Token describes a token deployment on one chain.
type Token struct {
	Address string `mapstructure:"address" json:"address"`

	// EIP-712 domain of the token contract; empty when the token does not
	// support transfer authorizations.
	EIP712Name    string `mapstructure:"eip712_name" json:"eip712Name,omitempty"`
	EIP712Version string `mapstructure:"eip712_version" json:"eip712Version,omitempty"`
}

// ChainConfig overrides the built-in data for one chain.
type ChainConfig struct {
	RPCURL      string                   `mapstructure:"rpc_url" json:"rpcUrl"`
	ExplorerURL string                   `mapstructure:"explorer_url" json:"explorerUrl"`
	Tokens      map[types.Currency]Token `mapstructure:"tokens" json:"tokens"`
}

type chainInfo struct {
	chainID     *big.Int
	rpcURL      string
	explorerURL string
	tokens      map[types.Currency]Token
}

// Resolution is everything the engine needs to act on one payment method.
type Resolution struct {
	Method   types.PaymentMethod
	Chain    types.Chain
	Currency types.CurrencyInfo
	ChainID  *big.Int
	RPCURL   string
	Token    Token
}

// Registry holds chain and token data. It is immutable after New.
type Registry struct {
	chains map[types.Chain]*chainInfo
}

// New builds a registry from the sandbox defaults and the given overrides.
// Mainnet RPC endpoints and token addresses are only known through overrides.
func New(overrides map[types.Chain]ChainConfig) *Registry {
	r := &Registry{chains: defaults()}
	for chain, cfg := range overrides {
		info, ok := r.chains[chain]
		if !ok {
			continue
		}
		if cfg.RPCURL != "" {
			info.rpcURL = cfg.RPCURL
		}
		if cfg.ExplorerURL != "" {
			info.explorerURL = cfg.ExplorerURL
		}
		for cur, tok := range cfg.Tokens {
			cur = types.Currency(strings.ToUpper(string(cur)))
			existing := info.tokens[cur]
			if tok.Address != "" {
				existing.Address = tok.Address
			}
			if tok.EIP712Name != "" {
				existing.EIP712Name = tok.EIP712Name
			}
			if tok.EIP712Version != "" {
				existing.EIP712Version = tok.EIP712Version
			}
			info.tokens[cur] = existing
		}
	}
	return r
}

func defaults() map[types.Chain]*chainInfo {
	return map[types.Chain]*chainInfo{
		types.ChainBaseSepolia: {
			chainID:     big.NewInt(84532),
			rpcURL:      "https://sepolia.base.org",
			explorerURL: "https://base-sepolia.blockscout.com/tx/%s",
			tokens: map[types.Currency]Token{
				types.CurrencyUSDC: {
					Address:       "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
					EIP712Name:    "USDC",
					EIP712Version: "2",
				},
				types.CurrencyUSDT: {
					Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb",
				},
			},
		},
		types.ChainBaseMainnet: {
			chainID:     big.NewInt(8453),
			explorerURL: "https://base.blockscout.com/tx/%s",
			tokens: map[types.Currency]Token{
				types.CurrencyUSDC: {
					EIP712Name:    "USD Coin",
					EIP712Version: "2",
				},
			},
		},
		types.ChainSolanaNet: {
			rpcURL:      "https://api.devnet.solana.com",
			explorerURL: "https://explorer.solana.com/tx/%s?cluster=devnet",
			tokens: map[types.Currency]Token{
				types.CurrencyUSDC: {
					Address: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
				},
			},
		},
	}
}

// ResolveCurrency returns decimals, native flag and chain-specific address
// for a currency. Tokens without a known address fail with ErrMissingContract.
func (r *Registry) ResolveCurrency(currency types.Currency, chain types.Chain) (types.CurrencyInfo, error) {
	info, ok := r.chains[chain]
	if !ok {
		return types.CurrencyInfo{}, &types.PaymentError{
			Code:    types.ErrUnsupportedChain,
			Message: fmt.Sprintf("unsupported chain: %s", chain),
		}
	}

	ci := types.CurrencyInfo{
		Symbol:   currency,
		Decimals: currency.Decimals(),
		IsNative: currency.IsNative(),
	}
	if ci.IsNative {
		return ci, nil
	}

	ci.Address = info.tokens[currency].Address
	if ci.Address == "" {
		return ci, &types.PaymentError{
			Code:    types.ErrMissingContract,
			Message: "Token contract address not found for this payment method",
		}
	}
	return ci, nil
}

// Resolve combines ResolveMethod and ResolveCurrency with chain data.
func (r *Registry) Resolve(method types.PaymentMethod) (*Resolution, error) {
	chain, currency, err := ResolveMethod(method)
	if err != nil {
		return nil, err
	}

	ci, err := r.ResolveCurrency(currency, chain)
	if err != nil {
		return nil, err
	}

	info := r.chains[chain]
	res := &Resolution{
		Method:   method,
		Chain:    chain,
		Currency: ci,
		RPCURL:   info.rpcURL,
		Token:    info.tokens[currency],
	}
	if info.chainID != nil {
		res.ChainID = new(big.Int).Set(info.chainID)
	}
	return res, nil
}

// RPCURL returns the configured endpoint for a chain, or "" when none is set.
func (r *Registry) RPCURL(chain types.Chain) string {
	if info, ok := r.chains[chain]; ok {
		return info.rpcURL
	}
	return ""
}

// ChainID returns the EIP-155 chain id of an EVM chain.
func (r *Registry) ChainID(chain types.Chain) (*big.Int, bool) {
	info, ok := r.chains[chain]
	if !ok || info.chainID == nil {
		return nil, false
	}
	return new(big.Int).Set(info.chainID), true
}

// ExplorerPlaceholder marks where the transaction hash goes in an explorer
// URL template.
const ExplorerPlaceholder = "%s"

// ValidateExplorerURL checks that a template carries exactly one hash
// placeholder and no other format verbs.
func ValidateExplorerURL(template string) error {
	if strings.Count(template, ExplorerPlaceholder) != 1 || strings.Count(template, "%") != 1 {
		return fmt.Errorf("explorer url %q must contain exactly one %s placeholder", template, ExplorerPlaceholder)
	}
	return nil
}

// ExplorerURL renders the block-explorer link for a transaction. Templates
// without a valid placeholder render nothing.
func (r *Registry) ExplorerURL(chain types.Chain, hash string) string {
	info, ok := r.chains[chain]
	if !ok || info.explorerURL == "" || ValidateExplorerURL(info.explorerURL) != nil {
		return ""
	}
	return strings.Replace(info.explorerURL, ExplorerPlaceholder, hash, 1)
}

// Methods lists every payment method that resolves fully and whose chain has
// an RPC endpoint.
func (r *Registry) Methods() []types.PaymentMethod {
	var out []types.PaymentMethod
	for _, m := range types.AllPaymentMethods() {
		res, err := r.Resolve(m)
		if err != nil || res.RPCURL == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
