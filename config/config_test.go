package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payrail/registry"
	"github.com/vitwit/payrail/types"
)

const sampleYAML = `
log_level: debug
server:
  addr: ":9090"
timeouts:
  rpc: 5s
chains:
  base-mainnet:
    rpc_url: https://mainnet.base.org
    tokens:
      usdc:
        address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
merchant:
  catalog:
    items:
      - name: Convert to PDF
        description: Convert a website to a PDF
        price: 0.5
        currency: USDC
    methods:
      - name: USDC
        description: USDC
        sellerAccountId: "0x069B0687C879b8E9633fb9BFeC3fea684bc238D5"
        paymentMethod: USDC_BASE_SEPOLIA
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payrail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileEnvAndDefaults(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := fmt.Sprintf("%x", crypto.FromECDSA(key))
	t.Setenv("PAYRAIL_KEYS_EVM_PRIVATE_KEY", hexKey)
	t.Setenv("PAYRAIL_FACILITATOR_URL", "http://localhost:4021")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:4021", cfg.Facilitator.URL)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.RPC)
	assert.Equal(t, DefaultTimeout, cfg.Timeouts.Facilitator)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	evm, err := cfg.EVMKey()
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(evm.PublicKey))

	sol, err := cfg.SolanaKey()
	require.NoError(t, err)
	assert.Nil(t, sol)

	require.Len(t, cfg.Merchant.Catalog.Items, 1)
	assert.Equal(t, "0.5", cfg.Merchant.Catalog.Items[0].Price.String())
	assert.Equal(t, types.MethodUSDCBaseSepolia, cfg.Merchant.Catalog.Methods[0].PaymentMethod)

	overrides, err := cfg.RegistryOverrides()
	require.NoError(t, err)
	reg := registry.New(overrides)
	res, err := reg.Resolve(types.MethodUSDCBaseMainnet)
	require.NoError(t, err)
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", res.Currency.Address)
	assert.Equal(t, "https://mainnet.base.org", reg.RPCURL(types.ChainBaseMainnet))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown chain", "chains:\n  dogechain:\n    rpc_url: http://x\n", "unsupported chain: dogechain"},
		{"bad level", "log_level: loud\n", "LogLevel"},
		{"bad default method", "facilitator:\n  default_method: BTC\n", "DefaultMethod"},
		{
			"explorer url format verbs",
			"chains:\n  base-mainnet:\n    explorer_url: \"https://basescan.org/tx/%d%s\"\n",
			"explorer url",
		},
		{"issue without admin token", "server:\n  enable_issue: true\n", "server.admin_token is required"},
		{"authorize without admin token", "server:\n  enable_authorize: true\n", "server.admin_token is required"},
		{
			"seller missing",
			"merchant:\n  catalog:\n    methods:\n      - paymentMethod: USDC_BASE_SEPOLIA\n",
			"no seller account for USDC_BASE_SEPOLIA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Equal(t, types.ErrConfigError, types.ErrorCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, types.ErrConfigError, types.ErrorCode(err))
}

func TestLoad_BadKeyDoesNotLeak(t *testing.T) {
	t.Setenv("PAYRAIL_KEYS_EVM_PRIVATE_KEY", "deadbeefnotakey")
	cfg, err := Load(writeConfig(t, "log_level: info\n"))
	require.NoError(t, err)

	_, err = cfg.EVMKey()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "deadbeefnotakey")
}

func TestSecret_Redacted(t *testing.T) {
	s := Secret("0xsupersecret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%+v", Keys{EVMPrivateKey: s}), "supersecret")
	assert.NotContains(t, fmt.Sprintf("%#v", Keys{EVMPrivateKey: s}), "supersecret")

	data, err := json.Marshal(Keys{EVMPrivateKey: s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "supersecret")

	assert.Equal(t, "0xsupersecret", s.Value())
	assert.Equal(t, "", Secret("").String())
}

func TestTimeouts_WithDefaults(t *testing.T) {
	got := Timeouts{RPC: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, got.RPC)
	assert.Equal(t, DefaultTimeout, got.Facilitator)
	assert.Equal(t, DefaultTimeout, got.Verification)
}
