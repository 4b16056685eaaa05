package types

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToSmallestUnits converts an asset-relative amount to integer smallest units
// using floor(amount * 10^decimals). Fractions below one unit are truncated.
func ToSmallestUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, &PaymentError{
			Code:    ErrInvalidAmount,
			Message: fmt.Sprintf("amount cannot be negative: %s", amount.String()),
		}
	}
	return amount.Shift(decimals).Floor().BigInt(), nil
}

// FromSmallestUnits is the inverse of ToSmallestUnits for display purposes.
func FromSmallestUnits(units *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, -decimals)
}
