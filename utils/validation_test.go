package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payrail/types"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "$3.10", want: "3.1"},
		{in: "0.10", want: "0.1"},
		{in: "0.001", want: "0.001"},
		{in: "1,000.50", want: "1000.5"},
		{in: "0.0001", want: "0.0001"},
		{in: "invalid", wantErr: true},
		{in: "", wantErr: true},
		{in: "0.00001", wantErr: true},
		{in: "1000000000", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrInvalidAmount, types.ErrorCode(err))
				assert.Contains(t, err.Error(), "Invalid amount")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseMoney_Message(t *testing.T) {
	_, err := ParseMoney("invalid")
	assert.Equal(t, `Invalid amount (amount: invalid). Must be in the form "$3.10", 0.10, "0.001"`, err.Error())
}

func TestValidateTransactionHash(t *testing.T) {
	evmHash := "0x" + "ab12" + "00000000000000000000000000000000000000000000000000000000000f"
	require.Len(t, evmHash, 66)

	assert.NoError(t, ValidateTransactionHash(evmHash, types.ChainBaseSepolia))
	assert.Error(t, ValidateTransactionHash("", types.ChainBaseSepolia))
	assert.Error(t, ValidateTransactionHash("0x1234", types.ChainBaseSepolia))
	assert.Error(t, ValidateTransactionHash(evmHash[2:]+"00", types.ChainBaseSepolia))

	sig := "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
	assert.NoError(t, ValidateTransactionHash(sig, types.ChainSolanaNet))
	assert.Error(t, ValidateTransactionHash(evmHash, types.ChainSolanaNet))
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e", types.ChainBaseMainnet))
	assert.Error(t, ValidateAddress("036CbD53842c5426634e7929541eC2318f3dCF7e", types.ChainBaseMainnet))
	assert.NoError(t, ValidateAddress("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", types.ChainSolanaNet))
	assert.Error(t, ValidateAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e", types.ChainSolanaNet))
}

func TestValidate_PurchaseRequest(t *testing.T) {
	err := Validate(&types.PurchaseRequest{
		SignedTransaction: "0xabc",
		PaymentMethod:     "BTC_LIGHTNING",
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingField, types.ErrorCode(err))
	assert.Contains(t, err.Error(), "items")
	assert.Contains(t, err.Error(), "paymentMethod (paymentmethod)")
}
