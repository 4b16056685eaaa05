// Package config loads payrail configuration from a file, the environment and
// defaults.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/vitwit/payrail/merchant"
	"github.com/vitwit/payrail/registry"
	"github.com/vitwit/payrail/types"
	"github.com/vitwit/payrail/utils"
)

// EnvPrefix prefixes every environment override, e.g. PAYRAIL_SERVER_ADDR.
const EnvPrefix = "PAYRAIL"

const DefaultTimeout = 30 * time.Second

type Config struct {
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`

	Server      ServerConfig                    `mapstructure:"server"`
	Timeouts    Timeouts                        `mapstructure:"timeouts"`
	Keys        Keys                            `mapstructure:"keys"`
	Chains      map[string]registry.ChainConfig `mapstructure:"chains"`
	Issuance    IssuanceConfig                  `mapstructure:"issuance"`
	Facilitator FacilitatorConfig               `mapstructure:"facilitator"`
	Merchant    MerchantConfig                  `mapstructure:"merchant"`
	Metrics     MetricsConfig                   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr" validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// EnableIssue serves POST /v1/payments/issue, which spends from the
	// issuer key.
	EnableIssue bool `mapstructure:"enable_issue"`
	// EnableAuthorize serves POST /v1/payments/authorize, signing with the
	// buyer key. Sandbox only.
	EnableAuthorize bool `mapstructure:"enable_authorize"`
	// AdminToken is the bearer token required by the issue and authorize
	// routes.
	AdminToken Secret `mapstructure:"admin_token"`
}

// Timeouts bound outbound calls. Zero values take DefaultTimeout.
type Timeouts struct {
	RPC          time.Duration `mapstructure:"rpc"`
	Facilitator  time.Duration `mapstructure:"facilitator"`
	Verification time.Duration `mapstructure:"verification"`
}

func (t Timeouts) WithDefaults() Timeouts {
	if t.RPC <= 0 {
		t.RPC = DefaultTimeout
	}
	if t.Facilitator <= 0 {
		t.Facilitator = DefaultTimeout
	}
	if t.Verification <= 0 {
		t.Verification = DefaultTimeout
	}
	return t
}

// Keys holds signing material. Values never appear in formatted output.
type Keys struct {
	EVMPrivateKey    Secret `mapstructure:"evm_private_key"`
	SolanaPrivateKey Secret `mapstructure:"solana_private_key"`

	// Buyer key used by the sandbox authorize endpoint.
	BuyerPrivateKey Secret `mapstructure:"buyer_private_key"`
}

type IssuanceConfig struct {
	EmbedOrderMetadata bool `mapstructure:"embed_order_metadata"`
}

type FacilitatorConfig struct {
	URL           string `mapstructure:"url" validate:"required,url"`
	DefaultMethod string `mapstructure:"default_method" validate:"omitempty,paymentmethod"`
}

type MerchantConfig struct {
	Resource string           `mapstructure:"resource"`
	Catalog  merchant.Catalog `mapstructure:"catalog"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.enable_issue", false)
	v.SetDefault("server.enable_authorize", false)
	v.SetDefault("server.admin_token", "")
	v.SetDefault("timeouts.rpc", DefaultTimeout)
	v.SetDefault("timeouts.facilitator", DefaultTimeout)
	v.SetDefault("timeouts.verification", DefaultTimeout)
	v.SetDefault("keys.evm_private_key", "")
	v.SetDefault("keys.solana_private_key", "")
	v.SetDefault("keys.buyer_private_key", "")
	v.SetDefault("issuance.embed_order_metadata", false)
	v.SetDefault("facilitator.url", "https://x402.org/facilitator")
	v.SetDefault("facilitator.default_method", string(types.MethodUSDCBaseSepolia))
	v.SetDefault("merchant.resource", merchant.DefaultResource)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads configuration from path, or from payrail.{yaml,json,toml} in the
// working directory or /etc/payrail when path is empty. A missing file is
// not an error; PAYRAIL_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("payrail")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/payrail")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, configError("failed to read config", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalHook,
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, configError("failed to decode config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Timeouts = cfg.Timeouts.WithDefaults()
	return &cfg, nil
}

var validate = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("paymentmethod", func(fl validator.FieldLevel) bool {
		_, err := types.ParsePaymentMethod(fl.Field().String())
		return err == nil
	})
	return v
}()

// Validate checks field constraints, chain names and catalog payment methods.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return configError("invalid config", err)
	}
	if _, err := c.RegistryOverrides(); err != nil {
		return err
	}
	if (c.Server.EnableIssue || c.Server.EnableAuthorize) && c.Server.AdminToken.Empty() {
		return configError("invalid server section",
			errors.New("server.admin_token is required when issue or authorize is enabled"))
	}
	for _, m := range c.Merchant.Catalog.Methods {
		if _, err := types.ParsePaymentMethod(string(m.PaymentMethod)); err != nil {
			return configError("invalid merchant catalog", err)
		}
		if m.SellerAccountID == "" {
			return configError("invalid merchant catalog",
				fmt.Errorf("no seller account for %s", m.PaymentMethod))
		}
	}
	return nil
}

// RegistryOverrides converts the chains section into registry overrides.
func (c *Config) RegistryOverrides() (map[types.Chain]registry.ChainConfig, error) {
	out := make(map[types.Chain]registry.ChainConfig, len(c.Chains))
	for name, chainCfg := range c.Chains {
		chain, err := types.ParseChain(name)
		if err != nil {
			return nil, configError("invalid chains section", err)
		}
		if chainCfg.ExplorerURL != "" {
			if err := registry.ValidateExplorerURL(chainCfg.ExplorerURL); err != nil {
				return nil, configError("invalid chains section", fmt.Errorf("%s: %w", name, err))
			}
		}
		out[chain] = chainCfg
	}
	return out, nil
}

// EVMKey parses the issuer key. It returns nil when none is configured.
func (c *Config) EVMKey() (*ecdsa.PrivateKey, error) {
	return evmKey("keys.evm_private_key", c.Keys.EVMPrivateKey)
}

// BuyerKey parses the sandbox buyer key. It returns nil when none is configured.
func (c *Config) BuyerKey() (*ecdsa.PrivateKey, error) {
	return evmKey("keys.buyer_private_key", c.Keys.BuyerPrivateKey)
}

// SolanaKey parses the base58 Solana keypair. It returns nil when none is
// configured.
func (c *Config) SolanaKey() (solana.PrivateKey, error) {
	if c.Keys.SolanaPrivateKey.Empty() {
		return nil, nil
	}
	key, err := utils.SolanaKeyFromBase58(c.Keys.SolanaPrivateKey.Value())
	if err != nil {
		return nil, configError("invalid keys.solana_private_key", err)
	}
	return key, nil
}

func evmKey(name string, s Secret) (*ecdsa.PrivateKey, error) {
	if s.Empty() {
		return nil, nil
	}
	key, err := utils.PrivateKeyFromHex(s.Value())
	if err != nil {
		return nil, configError("invalid "+name, err)
	}
	return key, nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook decodes prices written as numbers or strings.
func decimalHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	}
	return data, nil
}

func configError(msg string, err error) error {
	return &types.PaymentError{
		Code:    types.ErrConfigError,
		Message: fmt.Sprintf("%s: %v", msg, err),
		Err:     err,
	}
}
