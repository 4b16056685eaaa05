// Package eip712 hashes, signs and recovers EIP-3009 TransferWithAuthorization
// messages.
package eip712

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	PrimaryType = "TransferWithAuthorization"

	domainType       = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	transferAuthType = "TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"
)

var (
	domainTypeHash       = crypto.Keccak256Hash([]byte(domainType))
	transferAuthTypeHash = crypto.Keccak256Hash([]byte(transferAuthType))
)

// Domain is the EIP-712 domain of a token contract.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// TransferWithAuthorization is the EIP-3009 message.
type TransferWithAuthorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
}

func (d Domain) validate() error {
	if d.Name == "" || d.Version == "" || d.ChainID == nil {
		return errors.New("incomplete domain")
	}
	return nil
}

// DomainSeparator returns
// keccak256(abi.encode(typeHash, keccak256(name), keccak256(version), chainId, verifyingContract)).
func DomainSeparator(d Domain) (common.Hash, error) {
	if err := d.validate(); err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		word(d.ChainID),
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	), nil
}

// StructHash returns the EIP-712 hashStruct of the authorization.
func (a TransferWithAuthorization) StructHash() (common.Hash, error) {
	if a.Value == nil || a.ValidAfter == nil || a.ValidBefore == nil {
		return common.Hash{}, errors.New("incomplete authorization")
	}
	return crypto.Keccak256Hash(
		transferAuthTypeHash.Bytes(),
		common.LeftPadBytes(a.From.Bytes(), 32),
		common.LeftPadBytes(a.To.Bytes(), 32),
		word(a.Value),
		word(a.ValidAfter),
		word(a.ValidBefore),
		a.Nonce[:],
	), nil
}

// Digest returns keccak256(0x19 0x01 || domainSeparator || structHash).
func Digest(d Domain, a TransferWithAuthorization) (common.Hash, error) {
	sep, err := DomainSeparator(d)
	if err != nil {
		return common.Hash{}, err
	}
	sh, err := a.StructHash()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, sep.Bytes(), sh.Bytes()), nil
}

// TypedData renders the message as eth_signTypedData_v4 input.
func TypedData(d Domain, a TransferWithAuthorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			PrimaryType: []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        a.From.Hex(),
			"to":          a.To.Hex(),
			"value":       (*math.HexOrDecimal256)(a.Value),
			"validAfter":  (*math.HexOrDecimal256)(a.ValidAfter),
			"validBefore": (*math.HexOrDecimal256)(a.ValidBefore),
			"nonce":       hexutil.Encode(a.Nonce[:]),
		},
	}
}

// Sign signs the authorization with key. The returned signature is 65 bytes
// with V in {27, 28}.
func Sign(key *ecdsa.PrivateKey, d Domain, a TransferWithAuthorization) ([]byte, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	td := TypedData(d, a)
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	messageHash, err := td.HashStruct(PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	digest := crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, messageHash)
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSigner returns the address that produced sig over the authorization.
// V may be 0/1 or 27/28.
func RecoverSigner(d Domain, a TransferWithAuthorization, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("signature must be 65 bytes")
	}

	digest, err := Digest(d, a)
	if err != nil {
		return common.Address{}, err
	}

	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("sig to pub failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func word(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}
