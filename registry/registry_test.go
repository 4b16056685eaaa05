package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payrail/types"
)

func mainnetConfigured() *Registry {
	return New(map[types.Chain]ChainConfig{
		types.ChainBaseMainnet: {
			RPCURL: "https://base.example",
			Tokens: map[types.Currency]Token{
				types.CurrencyUSDC: {Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"},
				types.CurrencyUSDT: {Address: "0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2"},
			},
		},
		types.ChainSolanaNet: {
			Tokens: map[types.Currency]Token{
				"usdt": {Address: "EJwZgeZrdC8TXTQbQBoL6bfuAnFUUy1PVCMB4DYPzVaS"},
			},
		},
	})
}

func TestResolveMethod_AllMethods(t *testing.T) {
	r := mainnetConfigured()

	for _, m := range types.AllPaymentMethods() {
		t.Run(string(m), func(t *testing.T) {
			chain, cur, err := ResolveMethod(m)
			require.NoError(t, err)
			assert.NotEmpty(t, chain)

			res, err := r.Resolve(m)
			require.NoError(t, err)
			assert.Equal(t, cur, res.Currency.Symbol)
			assert.Contains(t, []int32{6, 9, 18}, res.Currency.Decimals)
			assert.Equal(t, res.Currency.IsNative, res.Currency.Address == "",
				"native flag must agree with the absence of a contract address")
			if chain.IsEVM() {
				require.NotNil(t, res.ChainID)
			}
		})
	}
}

func TestResolveMethod_Unknown(t *testing.T) {
	_, _, err := ResolveMethod("DOGE_BASE_SEPOLIA")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownMethod, types.ErrorCode(err))

	_, err = New(nil).Resolve("nope")
	assert.Equal(t, types.ErrUnknownMethod, types.ErrorCode(err))
}

func TestResolveCurrency_MainnetTokenNeedsConfig(t *testing.T) {
	r := New(nil)

	_, err := r.ResolveCurrency(types.CurrencyUSDC, types.ChainBaseMainnet)
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingContract, types.ErrorCode(err))
	assert.Equal(t, "Token contract address not found for this payment method", err.Error())

	ci, err := r.ResolveCurrency(types.CurrencyETH, types.ChainBaseMainnet)
	require.NoError(t, err)
	assert.True(t, ci.IsNative)
	assert.Equal(t, int32(18), ci.Decimals)
}

func TestResolveCurrency_AddressIsChainSpecific(t *testing.T) {
	r := mainnetConfigured()

	sepolia, err := r.ResolveCurrency(types.CurrencyUSDC, types.ChainBaseSepolia)
	require.NoError(t, err)
	mainnet, err := r.ResolveCurrency(types.CurrencyUSDC, types.ChainBaseMainnet)
	require.NoError(t, err)

	assert.NotEqual(t, sepolia.Address, mainnet.Address)
}

func TestNew_OverrideKeepsEIP712Domain(t *testing.T) {
	r := mainnetConfigured()

	res, err := r.Resolve(types.MethodUSDCBaseMainnet)
	require.NoError(t, err)
	assert.Equal(t, "USD Coin", res.Token.EIP712Name)
	assert.Equal(t, "2", res.Token.EIP712Version)
	assert.Equal(t, "https://base.example", res.RPCURL)
}

func TestMethods_OnlyConfigured(t *testing.T) {
	methods := New(nil).Methods()

	assert.Contains(t, methods, types.MethodUSDCBaseSepolia)
	assert.Contains(t, methods, types.MethodSOLSolana)
	assert.NotContains(t, methods, types.MethodETHBaseMainnet, "mainnet has no default endpoint")
	assert.NotContains(t, methods, types.MethodUSDTSolana)
}

func TestExplorerURL(t *testing.T) {
	r := New(nil)

	assert.Equal(t, "https://base-sepolia.blockscout.com/tx/0xabc", r.ExplorerURL(types.ChainBaseSepolia, "0xabc"))
	assert.Equal(t, "", r.ExplorerURL("unknown", "0xabc"))
	assert.Equal(t, "https://explorer.solana.com/tx/5abc?cluster=devnet", r.ExplorerURL(types.ChainSolanaNet, "5abc"))

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"override", "https://basescan.org/tx/%s", "https://basescan.org/tx/0xabc"},
		{"hash with verbs", "https://example.com/%d/%s", ""},
		{"missing placeholder", "https://example.com/tx/", ""},
		{"two placeholders", "https://example.com/%s/%s", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(map[types.Chain]ChainConfig{types.ChainBaseMainnet: {ExplorerURL: tt.template}})
			assert.Equal(t, tt.want, r.ExplorerURL(types.ChainBaseMainnet, "0xabc"))
		})
	}

	assert.Equal(t, "https://base.blockscout.com/tx/%25x", New(nil).ExplorerURL(types.ChainBaseMainnet, "%25x"),
		"the hash is substituted, never interpreted")
}
