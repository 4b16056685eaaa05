package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payrail/types"
)

var (
	moneyStrip  = regexp.MustCompile(`[^0-9.\-]`)
	hexPattern  = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	b58Pattern  = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
	minMoney    = decimal.RequireFromString("0.0001")
	maxMoney    = decimal.RequireFromString("999999999")
	moneyFormat = `Invalid amount (amount: %s). Must be in the form "$3.10", 0.10, "0.001"`
)

// ParseMoney parses a human price such as "$3.10", "0.10" or "0.001".
// Currency symbols and separators are dropped; the value must lie between
// 0.0001 and 999999999.
func ParseMoney(s string) (decimal.Decimal, error) {
	invalid := &types.PaymentError{
		Code:    types.ErrInvalidAmount,
		Message: fmt.Sprintf(moneyFormat, s),
	}

	cleaned := moneyStrip.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return decimal.Zero, invalid
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		invalid.Err = err
		return decimal.Zero, invalid
	}
	if d.LessThan(minMoney) || d.GreaterThan(maxMoney) {
		return decimal.Zero, invalid
	}
	return d, nil
}

// ValidateAmount checks that amount is a non-negative decimal.
func ValidateAmount(amount string) (decimal.Decimal, error) {
	if amount == "" {
		return decimal.Zero, &types.PaymentError{Code: types.ErrInvalidAmount, Message: "amount cannot be empty"}
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, &types.PaymentError{
			Code:    types.ErrInvalidAmount,
			Message: fmt.Sprintf("invalid amount format: %s", amount),
			Err:     err,
		}
	}
	if dec.IsNegative() {
		return decimal.Zero, &types.PaymentError{Code: types.ErrInvalidAmount, Message: "amount cannot be negative"}
	}
	return dec, nil
}

// ValidateBigInt parses a base-10 integer string.
func ValidateBigInt(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("value cannot be empty")
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid big integer format")
	}
	return n, nil
}

// ValidateTransactionHash checks the shape of a transaction id on chain.
func ValidateTransactionHash(hash string, chain types.Chain) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}

	switch chain.Family() {
	case types.ChainEVM:
		if !strings.HasPrefix(hash, "0x") {
			return fmt.Errorf("EVM transaction hash must start with 0x")
		}
		if len(hash) != 66 {
			return fmt.Errorf("EVM transaction hash must be 66 characters long")
		}
		if !hexPattern.MatchString(hash[2:]) {
			return fmt.Errorf("EVM transaction hash must be valid hex")
		}
	case types.ChainSolana:
		if len(hash) < 80 || len(hash) > 90 {
			return fmt.Errorf("Solana transaction signature has invalid length")
		}
		if !b58Pattern.MatchString(hash) {
			return fmt.Errorf("Solana transaction signature must be valid base58")
		}
	}
	return nil
}

// ValidateAddress checks the shape of an account address on chain.
func ValidateAddress(address string, chain types.Chain) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch chain.Family() {
	case types.ChainEVM:
		if !strings.HasPrefix(address, "0x") {
			return fmt.Errorf("EVM address must start with 0x")
		}
		if len(address) != 42 {
			return fmt.Errorf("EVM address must be 42 characters long")
		}
		if !hexPattern.MatchString(address[2:]) {
			return fmt.Errorf("EVM address must be valid hex")
		}
	case types.ChainSolana:
		if len(address) < 32 || len(address) > 44 {
			return fmt.Errorf("Solana address has invalid length")
		}
		if !b58Pattern.MatchString(address) {
			return fmt.Errorf("Solana address must be valid base58")
		}
	}
	return nil
}
