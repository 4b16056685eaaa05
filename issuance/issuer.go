// Package issuance builds, signs and submits outgoing payments.
package issuance

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/payrail/clients"
	"github.com/vitwit/payrail/logger"
	"github.com/vitwit/payrail/metrics"
	"github.com/vitwit/payrail/registry"
	"github.com/vitwit/payrail/types"
	"github.com/vitwit/payrail/utils"
)

// NativeTransferGas is the fixed gas limit of a plain value transfer.
const NativeTransferGas uint64 = 21000

// Issuer turns a PaymentRequest into a submitted transaction.
type Issuer struct {
	registry *registry.Registry
	chains   clients.Provider
	locker   *NonceLocker

	evmKey    *ecdsa.PrivateKey
	solanaKey solana.PrivateKey

	embedMetadata bool

	log     logger.Logger
	metrics metrics.Recorder
}

type Option func(*Issuer)

// WithEVMKey sets the key that signs EVM transactions.
func WithEVMKey(key *ecdsa.PrivateKey) Option {
	return func(i *Issuer) { i.evmKey = key }
}

// WithSolanaKey sets the keypair that signs Solana transactions.
func WithSolanaKey(key solana.PrivateKey) Option {
	return func(i *Issuer) { i.solanaKey = key }
}

// WithOrderMetadata embeds order metadata as JSON in native transfers.
func WithOrderMetadata(enabled bool) Option {
	return func(i *Issuer) { i.embedMetadata = enabled }
}

func WithLogger(l logger.Logger) Option {
	return func(i *Issuer) {
		if l != nil {
			i.log = l
		}
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(i *Issuer) {
		if m != nil {
			i.metrics = m
		}
	}
}

// WithNonceLocker shares a locker between issuers that sign with the same key.
func WithNonceLocker(l *NonceLocker) Option {
	return func(i *Issuer) {
		if l != nil {
			i.locker = l
		}
	}
}

func New(reg *registry.Registry, chains clients.Provider, opts ...Option) *Issuer {
	i := &Issuer{
		registry: reg,
		chains:   chains,
		locker:   NewNonceLocker(),
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// EVMAddress returns the address of the configured EVM key.
func (i *Issuer) EVMAddress() (common.Address, bool) {
	if i.evmKey == nil {
		return common.Address{}, false
	}
	return utils.AddressFromPrivateKey(i.evmKey), true
}

// Issue sends req.Amount of the method's asset to req.Destination. It never
// returns nil; failures carry an "Error: ..." message and an empty hash. A
// submission cut off in transit also reports the signed hash as PendingHash.
func (i *Issuer) Issue(ctx context.Context, req types.PaymentRequest) *types.IssuedPayment {
	start := time.Now()

	res, err := i.registry.Resolve(req.Method)
	if err != nil {
		return i.failed("", err)
	}
	labels := metrics.ChainLabels(res.Chain.String())
	defer func() {
		i.metrics.ObserveLatency("issue", time.Since(start), labels)
	}()

	units, err := types.ToSmallestUnits(req.Amount, res.Currency.Decimals)
	if err != nil {
		return i.failed(res.Chain, err)
	}

	var out *types.IssuedPayment
	if res.Chain.IsSolana() {
		out = i.issueSolana(ctx, res, req, units)
	} else {
		out = i.issueEVM(ctx, res, req, units)
	}

	if out.Succeeded() {
		i.metrics.IncCounter(metrics.EventIssued, labels)
		i.log.Info("payment issued", map[string]any{
			"chain":   res.Chain,
			"method":  req.Method,
			"hash":    out.TransactionHash,
			"retried": out.Retried,
		})
	} else {
		i.metrics.IncCounter(metrics.EventIssueFailed, labels)
	}
	return out
}

// evmTx holds everything needed to rebuild a transaction with another nonce.
type evmTx struct {
	to       common.Address
	value    *big.Int
	gas      uint64
	gasPrice *big.Int
	data     []byte
	chainID  *big.Int
}

func (t evmTx) sign(nonce uint64, key *ecdsa.PrivateKey) (*ethtypes.Transaction, error) {
	tx := ethtypes.NewTransaction(nonce, t.to, t.value, t.gas, t.gasPrice, t.data)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(t.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

func (i *Issuer) issueEVM(ctx context.Context, res *registry.Resolution, req types.PaymentRequest, units *big.Int) *types.IssuedPayment {
	if i.evmKey == nil {
		return i.failed(res.Chain, &types.PaymentError{Code: types.ErrConfigError, Message: "no EVM signing key configured"})
	}
	if err := utils.ValidateAddress(req.Destination, res.Chain); err != nil {
		return i.failed(res.Chain, &types.PaymentError{
			Code:    types.ErrMissingField,
			Message: fmt.Sprintf("invalid destination address: %s", req.Destination),
			Err:     err,
		})
	}
	dest := common.HexToAddress(req.Destination)
	from := utils.AddressFromPrivateKey(i.evmKey)

	client, err := i.chains.EVM(ctx, res.Chain)
	if err != nil {
		return i.failed(res.Chain, err)
	}

	unlock, err := i.locker.Lock(ctx, from.Hex())
	if err != nil {
		return i.failed(res.Chain, err)
	}
	defer unlock()

	nonce, err := nextNonce(ctx, client, from)
	if err != nil {
		return i.failed(res.Chain, err)
	}

	gasPrice, err := client.GasPrice(ctx)
	if err != nil {
		return i.failed(res.Chain, err)
	}

	chainID := res.ChainID
	if chainID == nil {
		if chainID, err = client.ChainID(ctx); err != nil {
			return i.failed(res.Chain, err)
		}
	}

	txn := evmTx{gasPrice: gasPrice, chainID: chainID}
	sentMsg, retryMsg := "Transaction sent: %s", "Transaction sent after nonce retry: %s"

	if res.Currency.IsNative {
		txn.to = dest
		txn.value = units
		txn.gas = NativeTransferGas

		if i.embedMetadata {
			data, err := metadataFor(req).encode()
			if err != nil {
				return i.failed(res.Chain, err)
			}
			if len(data) > 0 {
				txn.data = data
				if txn.gas, err = client.EstimateGas(ctx, from, dest, data); err != nil {
					return i.failed(res.Chain, err)
				}
			}
		}
	} else {
		token := common.HexToAddress(res.Currency.Address)
		data, err := clients.EncodeTransferCall(dest, units)
		if err != nil {
			return i.failed(res.Chain, err)
		}
		txn.to = token
		txn.value = big.NewInt(0)
		txn.data = data
		if txn.gas, err = client.EstimateGas(ctx, from, token, data); err != nil {
			return i.failed(res.Chain, err)
		}
		sentMsg, retryMsg = "Token transfer sent: %s", "Token transfer sent after nonce retry: %s"
	}

	tx, err := txn.sign(nonce, i.evmKey)
	if err != nil {
		return i.failed(res.Chain, err)
	}

	err = client.Submit(ctx, tx)
	if err == nil {
		return &types.IssuedPayment{
			ResultMessage:   fmt.Sprintf(sentMsg, tx.Hash().Hex()),
			TransactionHash: tx.Hash().Hex(),
		}
	}

	var nonceErr *clients.NonceTooLowError
	if !errors.As(err, &nonceErr) {
		return i.failed(res.Chain, err)
	}

	// One retry with a fresh nonce. A second failure of any kind is final.
	i.metrics.IncCounter(metrics.EventNonceRetry, metrics.ChainLabels(res.Chain.String()))
	retryNonce, err := client.Nonce(ctx, from, clients.NonceConfirmed)
	if err != nil {
		return i.failed(res.Chain, err)
	}
	if nonceErr.Next != nil && *nonceErr.Next > retryNonce {
		retryNonce = *nonceErr.Next
	}
	i.log.Warn("nonce conflict, retrying once", map[string]any{
		"chain":       res.Chain,
		"nonce":       nonce,
		"retry_nonce": retryNonce,
	})

	tx, err = txn.sign(retryNonce, i.evmKey)
	if err != nil {
		return i.failed(res.Chain, err)
	}
	if err := client.Submit(ctx, tx); err != nil {
		return i.failed(res.Chain, err)
	}

	return &types.IssuedPayment{
		ResultMessage:   fmt.Sprintf(retryMsg, tx.Hash().Hex()),
		TransactionHash: tx.Hash().Hex(),
		Retried:         true,
	}
}

// nextNonce returns the larger of the confirmed and pending nonce views.
func nextNonce(ctx context.Context, client clients.EVMChain, from common.Address) (uint64, error) {
	confirmed, err := client.Nonce(ctx, from, clients.NonceConfirmed)
	if err != nil {
		return 0, err
	}
	pending, err := client.Nonce(ctx, from, clients.NoncePending)
	if err != nil {
		return 0, err
	}
	if pending > confirmed {
		return pending, nil
	}
	return confirmed, nil
}

func (i *Issuer) issueSolana(ctx context.Context, res *registry.Resolution, req types.PaymentRequest, units *big.Int) *types.IssuedPayment {
	if len(i.solanaKey) == 0 {
		return i.failed(res.Chain, &types.PaymentError{Code: types.ErrConfigError, Message: "no Solana signing key configured"})
	}
	err := utils.ValidateAddress(req.Destination, res.Chain)
	var to solana.PublicKey
	if err == nil {
		to, err = solana.PublicKeyFromBase58(req.Destination)
	}
	if err != nil {
		return i.failed(res.Chain, &types.PaymentError{
			Code:    types.ErrMissingField,
			Message: fmt.Sprintf("invalid destination address: %s", req.Destination),
			Err:     err,
		})
	}
	if !units.IsUint64() {
		return i.failed(res.Chain, &types.PaymentError{
			Code:    types.ErrInvalidAmount,
			Message: fmt.Sprintf("amount out of range: %s", req.Amount),
		})
	}

	client, err := i.chains.Solana(res.Chain)
	if err != nil {
		return i.failed(res.Chain, err)
	}

	var (
		sig     solana.Signature
		sentMsg = "Transaction sent: %s"
	)
	if res.Currency.IsNative {
		sig, err = client.TransferNative(ctx, i.solanaKey, to, units.Uint64())
	} else {
		mint, perr := solana.PublicKeyFromBase58(res.Currency.Address)
		if perr != nil {
			return i.failed(res.Chain, &types.PaymentError{
				Code:    types.ErrMissingContract,
				Message: "Token contract address not found for this payment method",
				Err:     perr,
			})
		}
		sig, err = client.TransferToken(ctx, i.solanaKey, mint, to, units.Uint64(), uint8(res.Currency.Decimals))
		sentMsg = "Token transfer sent: %s"
	}
	if err != nil {
		return i.failed(res.Chain, err)
	}

	return &types.IssuedPayment{
		ResultMessage:   fmt.Sprintf(sentMsg, sig.String()),
		TransactionHash: sig.String(),
	}
}

func (i *Issuer) failed(chain types.Chain, err error) *types.IssuedPayment {
	out := &types.IssuedPayment{
		ResultMessage: fmt.Sprintf("Error: %s", err.Error()),
		Err:           err,
	}
	fields := map[string]any{
		"chain": chain,
		"error": err.Error(),
	}
	if hash, ok := clients.MaybeBroadcast(err); ok {
		out.PendingHash = hash
		out.ResultMessage = fmt.Sprintf("Error: %s (transaction %s may have been broadcast)", err.Error(), hash)
		fields["pending_hash"] = hash
	}
	i.log.Error("payment issuance failed", fields)
	return out
}
