package settlement

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/vitwit/payrail/registry"
	"github.com/vitwit/payrail/types"
	"github.com/vitwit/payrail/utils"
	"github.com/vitwit/payrail/utils/eip712"
)

const (
	// MaxTimeoutSeconds bounds how long an authorization stays valid.
	MaxTimeoutSeconds = 3600

	OrderDescription = "Payment for order"
	ResponseMimeType = "application/json"

	// clock skew allowance for validAfter
	validAfterSkew = 10 * time.Second
)

// Authorization is a signed payment header together with the requirements
// it was built for.
type Authorization struct {
	Header       string
	Payload      types.PaymentPayload
	Requirements types.PaymentRequirements
}

// AuthorizationBuilder signs EIP-3009 transfer authorizations on the buyer's
// side. It makes no network calls.
type AuthorizationBuilder struct {
	registry *registry.Registry
	now      func() time.Time
	entropy  io.Reader
}

func NewAuthorizationBuilder(reg *registry.Registry) *AuthorizationBuilder {
	return &AuthorizationBuilder{
		registry: reg,
		now:      time.Now,
		entropy:  rand.Reader,
	}
}

// Build authorizes a transfer of amount to payee and encodes it as a payment
// header.
func (b *AuthorizationBuilder) Build(amount decimal.Decimal, payee, resource string, method types.PaymentMethod, key *ecdsa.PrivateKey) (*Authorization, error) {
	if key == nil {
		return nil, &types.PaymentError{Code: types.ErrConfigError, Message: "no buyer signing key configured"}
	}
	if !common.IsHexAddress(payee) {
		return nil, &types.PaymentError{
			Code:    types.ErrMissingField,
			Message: fmt.Sprintf("invalid destination address: %s", payee),
		}
	}

	res, err := resolveAuthorizable(b.registry, method)
	if err != nil {
		return nil, err
	}
	units, err := types.ToSmallestUnits(amount, res.Currency.Decimals)
	if err != nil {
		return nil, err
	}

	var nonce [32]byte
	if _, err := io.ReadFull(b.entropy, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate authorization nonce: %w", err)
	}

	now := b.now()
	msg := eip712.TransferWithAuthorization{
		From:        utils.AddressFromPrivateKey(key),
		To:          common.HexToAddress(payee),
		Value:       units,
		ValidAfter:  big.NewInt(now.Add(-validAfterSkew).Unix()),
		ValidBefore: big.NewInt(now.Add(MaxTimeoutSeconds * time.Second).Unix()),
		Nonce:       nonce,
	}
	sig, err := eip712.Sign(key, domainFor(res), msg)
	if err != nil {
		return nil, err
	}

	payload := types.PaymentPayload{
		X402Version: int(types.X402Version1),
		Scheme:      types.SchemeExact,
		Network:     res.Chain.X402Network(),
		Payload: types.ExactEVMPayload{
			Signature: hexutil.Encode(sig),
			Authorization: types.EIP3009Authorization{
				From:        msg.From.Hex(),
				To:          msg.To.Hex(),
				Value:       msg.Value.String(),
				ValidAfter:  msg.ValidAfter.String(),
				ValidBefore: msg.ValidBefore.String(),
				Nonce:       hexutil.Encode(nonce[:]),
			},
		},
	}
	header, err := EncodePayment(payload)
	if err != nil {
		return nil, err
	}

	return &Authorization{
		Header:       header,
		Payload:      payload,
		Requirements: requirementsFor(res, units, payee, resource),
	}, nil
}

// AuthorizationSigner recovers the address that signed payload for method.
func AuthorizationSigner(reg *registry.Registry, method types.PaymentMethod, payload types.PaymentPayload) (common.Address, error) {
	res, err := resolveAuthorizable(reg, method)
	if err != nil {
		return common.Address{}, err
	}
	msg, err := parseAuthorization(payload.Payload.Authorization)
	if err != nil {
		return common.Address{}, err
	}
	sig, err := utils.DecodeSignature(payload.Payload.Signature)
	if err != nil {
		return common.Address{}, err
	}
	return eip712.RecoverSigner(domainFor(res), msg, sig)
}

// resolveAuthorizable resolves method and checks that its token supports
// transfer authorizations.
func resolveAuthorizable(reg *registry.Registry, method types.PaymentMethod) (*registry.Resolution, error) {
	res, err := reg.Resolve(method)
	if err != nil {
		return nil, err
	}
	if !res.Chain.IsEVM() || res.Currency.IsNative || res.Token.EIP712Name == "" || res.ChainID == nil {
		return nil, &types.PaymentError{
			Code:    types.ErrUnknownMethod,
			Message: fmt.Sprintf("transfer authorizations are not supported for %s", method),
		}
	}
	return res, nil
}

func domainFor(res *registry.Resolution) eip712.Domain {
	return eip712.Domain{
		Name:              res.Token.EIP712Name,
		Version:           res.Token.EIP712Version,
		ChainID:           res.ChainID,
		VerifyingContract: common.HexToAddress(res.Currency.Address),
	}
}

// requirementsFor rebuilds the payment requirements a seller accepts for
// units of the method's token.
func requirementsFor(res *registry.Resolution, units *big.Int, payee, resource string) types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           res.Chain.X402Network(),
		MaxAmountRequired: units.String(),
		Resource:          resource,
		Description:       OrderDescription,
		MimeType:          ResponseMimeType,
		PayTo:             payee,
		MaxTimeoutSeconds: MaxTimeoutSeconds,
		Asset:             res.Currency.Address,
		Extra: map[string]interface{}{
			"name":    res.Token.EIP712Name,
			"version": res.Token.EIP712Version,
		},
	}
}

func parseAuthorization(a types.EIP3009Authorization) (eip712.TransferWithAuthorization, error) {
	var msg eip712.TransferWithAuthorization

	if !common.IsHexAddress(a.From) || !common.IsHexAddress(a.To) {
		return msg, fmt.Errorf("authorization has an invalid address")
	}
	msg.From = common.HexToAddress(a.From)
	msg.To = common.HexToAddress(a.To)

	var err error
	if msg.Value, err = utils.ValidateBigInt(a.Value); err != nil {
		return msg, fmt.Errorf("authorization value: %w", err)
	}
	if msg.ValidAfter, err = utils.ValidateBigInt(a.ValidAfter); err != nil {
		return msg, fmt.Errorf("authorization validAfter: %w", err)
	}
	if msg.ValidBefore, err = utils.ValidateBigInt(a.ValidBefore); err != nil {
		return msg, fmt.Errorf("authorization validBefore: %w", err)
	}

	nonce, err := hexutil.Decode(a.Nonce)
	if err != nil || len(nonce) != 32 {
		return msg, fmt.Errorf("authorization nonce must be 32 bytes of hex")
	}
	copy(msg.Nonce[:], nonce)
	return msg, nil
}
