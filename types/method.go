package types

import "fmt"

// PaymentMethod names an asset on a specific chain, formatted CURRENCY_CHAIN.
type PaymentMethod string

const (
	// Base Sepolia
	MethodETHBaseSepolia  PaymentMethod = "ETH_BASE_SEPOLIA"
	MethodUSDCBaseSepolia PaymentMethod = "USDC_BASE_SEPOLIA"
	MethodUSDTBaseSepolia PaymentMethod = "USDT_BASE_SEPOLIA"

	// Base Mainnet
	MethodETHBaseMainnet  PaymentMethod = "ETH_BASE_MAINNET"
	MethodUSDCBaseMainnet PaymentMethod = "USDC_BASE_MAINNET"
	MethodUSDTBaseMainnet PaymentMethod = "USDT_BASE_MAINNET"

	// Solana
	MethodSOLSolana  PaymentMethod = "SOL_SOLANA"
	MethodUSDCSolana PaymentMethod = "USDC_SOLANA"
	MethodUSDTSolana PaymentMethod = "USDT_SOLANA"
)

// AllPaymentMethods returns the closed set of payment methods in a stable order.
func AllPaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		MethodETHBaseSepolia, MethodUSDCBaseSepolia, MethodUSDTBaseSepolia,
		MethodETHBaseMainnet, MethodUSDCBaseMainnet, MethodUSDTBaseMainnet,
		MethodSOLSolana, MethodUSDCSolana, MethodUSDTSolana,
	}
}

// ParsePaymentMethod validates an identifier received from outside the process.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	for _, m := range AllPaymentMethods() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", &PaymentError{
		Code:    ErrUnknownMethod,
		Message: fmt.Sprintf("Unsupported payment method: %s", s),
	}
}

func (m PaymentMethod) String() string {
	return string(m)
}

// Currency is an asset symbol independent of the chain it lives on.
type Currency string

const (
	CurrencyETH  Currency = "ETH"
	CurrencyUSDC Currency = "USDC"
	CurrencyUSDT Currency = "USDT"
	CurrencySOL  Currency = "SOL"
)

// Decimals is the precision of the currency's smallest unit.
func (c Currency) Decimals() int32 {
	switch c {
	case CurrencyETH:
		return 18
	case CurrencySOL:
		return 9
	default:
		return 6
	}
}

// IsNative reports whether the currency is the base coin of its chain.
func (c Currency) IsNative() bool {
	return c == CurrencyETH || c == CurrencySOL
}

func (c Currency) String() string {
	return string(c)
}

// CurrencyInfo is a currency resolved on a particular chain. Address is the
// token contract (EVM) or mint (Solana) and is empty for native assets.
type CurrencyInfo struct {
	Symbol   Currency `json:"symbol"`
	Decimals int32    `json:"decimals"`
	IsNative bool     `json:"isNative"`
	Address  string   `json:"address,omitempty"`
}
