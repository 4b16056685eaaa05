package eip712

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage(from common.Address) (Domain, TransferWithAuthorization) {
	d := Domain{
		Name:              "USDC",
		Version:           "2",
		ChainID:           big.NewInt(84532),
		VerifyingContract: common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
	}
	var nonce [32]byte
	copy(nonce[:], crypto.Keccak256([]byte("order-1")))

	a := TransferWithAuthorization{
		From:        from,
		To:          common.HexToAddress("0x209693Bc6afc0C5328bA36FaF03C514EF312287C"),
		Value:       big.NewInt(10_000),
		ValidAfter:  big.NewInt(1_700_000_000),
		ValidBefore: big.NewInt(1_700_003_600),
		Nonce:       nonce,
	}
	return d, a
}

func TestDigestMatchesTypedDataHash(t *testing.T) {
	d, a := sampleMessage(common.HexToAddress("0x857b06519E91e3A54538791bDbb0E22373e36b66"))

	want, _, err := apitypes.TypedDataAndHash(TypedData(d, a))
	require.NoError(t, err)

	got, err := Digest(d, a)
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash(want), got)
}

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	d, a := sampleMessage(from)

	sig, err := Sign(key, d, a)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	signer, err := RecoverSigner(d, a, sig)
	require.NoError(t, err)
	assert.Equal(t, from, signer)

	a.Value = big.NewInt(10_001)
	tampered, err := RecoverSigner(d, a, sig)
	require.NoError(t, err)
	assert.NotEqual(t, from, tampered)
}

func TestIncompleteInputs(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	d, a := sampleMessage(crypto.PubkeyToAddress(key.PublicKey))

	_, err = Sign(key, Domain{}, a)
	assert.Error(t, err)

	a.Value = nil
	_, err = Digest(d, a)
	assert.Error(t, err)

	_, err = RecoverSigner(d, a, []byte{0x01})
	assert.Error(t, err)
}
