package verification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
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

// ReceiptVerifier checks a broadcast transaction against what the seller
// expected to receive.
type ReceiptVerifier struct {
	registry *registry.Registry
	chains   clients.Provider
	log      logger.Logger
	metrics  metrics.Recorder
}

var _ Verifier = (*ReceiptVerifier)(nil)

func NewReceiptVerifier(reg *registry.Registry, chains clients.Provider, opts ...Option) *ReceiptVerifier {
	o := buildOptions(opts)
	return &ReceiptVerifier{
		registry: reg,
		chains:   chains,
		log:      o.log,
		metrics:  o.metrics,
	}
}

// Verify never returns nil. I/O errors become "Error verifying payment: ..."
// results.
func (v *ReceiptVerifier) Verify(ctx context.Context, req *types.VerificationRequest) *types.VerificationResult {
	if req == nil || req.TransactionHash == "" {
		return types.Fail(types.StageInput, "No transaction hash provided")
	}

	res, err := v.registry.Resolve(req.Method)
	if err != nil {
		return errorResult(types.StageInput, err)
	}
	if err := utils.ValidateTransactionHash(req.TransactionHash, res.Chain); err != nil {
		return types.Fail(types.StageInput, "Invalid transaction hash: %s", err.Error())
	}
	labels := metrics.ChainLabels(res.Chain.String())
	start := time.Now()

	var out *types.VerificationResult
	if res.Chain.IsSolana() {
		out = v.verifySolana(ctx, res, req)
	} else {
		out = v.verifyEVM(ctx, res, req)
	}

	v.metrics.ObserveLatency("verify_receipt", time.Since(start), labels)
	if out.Success {
		v.metrics.IncCounter(metrics.EventVerified, labels)
		out.ExplorerURL = v.registry.ExplorerURL(res.Chain, req.TransactionHash)
		out.ChainName = res.Chain.String()
	} else {
		v.metrics.IncCounter(metrics.EventVerificationFailed, labels)
		v.log.Info("payment verification failed", map[string]any{
			"chain":  res.Chain,
			"hash":   req.TransactionHash,
			"reason": out.Message,
		})
	}
	return out
}

func (v *ReceiptVerifier) verifyEVM(ctx context.Context, res *registry.Resolution, req *types.VerificationRequest) *types.VerificationResult {
	client, err := v.chains.EVM(ctx, res.Chain)
	if err != nil {
		return errorResult(types.StageVerification, err)
	}
	hash := common.HexToHash(req.TransactionHash)

	rcpt, err := client.Receipt(ctx, hash)
	if errors.Is(err, clients.ErrNotFound) {
		return types.Fail(types.StageVerification, "Transaction not found")
	}
	if err != nil {
		return errorResult(types.StageVerification, err)
	}
	if rcpt.Status != ethtypes.ReceiptStatusSuccessful {
		return types.Fail(types.StageVerification, "Transaction failed")
	}

	expected, err := expectedUnits(req.ExpectedAmount, res.Currency.Decimals)
	if err != nil {
		return errorResult(types.StageInput, err)
	}

	tx, err := client.Transaction(ctx, hash)
	if errors.Is(err, clients.ErrNotFound) {
		return types.Fail(types.StageVerification, "Transaction not found")
	}
	if err != nil {
		return errorResult(types.StageVerification, err)
	}

	got := ""
	if tx.To() != nil {
		got = strings.ToLower(tx.To().Hex())
	}

	if res.Currency.IsNative {
		want := strings.ToLower(req.ExpectedDestination)
		if got != want {
			return types.Fail(types.StageVerification,
				"Incorrect destination address. Expected: %s, Got: %s", want, got)
		}
		if tx.Value().Cmp(expected) != 0 {
			return types.Fail(types.StageVerification,
				"Incorrect amount transferred. Expected: %s, Got: %s", expected, tx.Value())
		}
		return verified()
	}

	contract := strings.ToLower(res.Currency.Address)
	if got != contract {
		return types.Fail(types.StageVerification,
			"Transaction not sent to token contract. Expected: %s, Got: %s", contract, got)
	}
	if !common.IsHexAddress(req.ExpectedDestination) {
		return types.Fail(types.StageVerification, "Token transfer data does not match expected values")
	}
	want, err := clients.EncodeTransferCall(common.HexToAddress(req.ExpectedDestination), expected)
	if err != nil {
		return errorResult(types.StageVerification, err)
	}
	if !bytes.Equal(tx.Data(), want) {
		return types.Fail(types.StageVerification, "Token transfer data does not match expected values")
	}
	return verified()
}

func (v *ReceiptVerifier) verifySolana(ctx context.Context, res *registry.Resolution, req *types.VerificationRequest) *types.VerificationResult {
	client, err := v.chains.Solana(res.Chain)
	if err != nil {
		return errorResult(types.StageVerification, err)
	}

	observed, err := client.Transfer(ctx, req.TransactionHash)
	if errors.Is(err, clients.ErrNotFound) {
		return types.Fail(types.StageVerification, "Transaction not found")
	}
	if err != nil {
		return errorResult(types.StageVerification, err)
	}
	if !observed.Succeeded {
		return types.Fail(types.StageVerification, "Transaction failed")
	}

	expected, err := expectedUnits(req.ExpectedAmount, res.Currency.Decimals)
	if err != nil {
		return errorResult(types.StageInput, err)
	}
	if err := utils.ValidateAddress(req.ExpectedDestination, res.Chain); err != nil {
		return errorResult(types.StageInput, fmt.Errorf("invalid destination address: %w", err))
	}
	dest, err := solana.PublicKeyFromBase58(req.ExpectedDestination)
	if err != nil {
		return errorResult(types.StageInput, fmt.Errorf("invalid destination address: %s", req.ExpectedDestination))
	}

	if res.Currency.IsNative {
		if observed.Kind != clients.TransferSystem || !observed.Destination.Equals(dest) {
			return types.Fail(types.StageVerification,
				"Incorrect destination address. Expected: %s, Got: %s", dest, observed.Destination)
		}
		if new(big.Int).SetUint64(observed.Amount).Cmp(expected) != 0 {
			return types.Fail(types.StageVerification,
				"Incorrect amount transferred. Expected: %s, Got: %d", expected, observed.Amount)
		}
		return verified()
	}

	mint, err := solana.PublicKeyFromBase58(res.Currency.Address)
	if err != nil {
		return errorResult(types.StageVerification, err)
	}
	if observed.Kind != clients.TransferToken || !observed.Mint.Equals(mint) {
		return types.Fail(types.StageVerification,
			"Transaction not sent to token contract. Expected: %s, Got: %s", mint, observed.Mint)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(dest, mint)
	if err != nil {
		return errorResult(types.StageVerification, err)
	}
	if !observed.Destination.Equals(ata) || new(big.Int).SetUint64(observed.Amount).Cmp(expected) != 0 {
		return types.Fail(types.StageVerification, "Token transfer data does not match expected values")
	}
	return verified()
}

func expectedUnits(amount string, decimals int32) (*big.Int, error) {
	dec, err := utils.ValidateAmount(amount)
	if err != nil {
		return nil, err
	}
	return types.ToSmallestUnits(dec, decimals)
}

func verified() *types.VerificationResult {
	return &types.VerificationResult{
		Success: true,
		Message: "Payment verified successfully",
		Stage:   types.StageComplete,
	}
}

func errorResult(stage types.VerificationStage, err error) *types.VerificationResult {
	return types.Fail(stage, "Error verifying payment: %s", err.Error())
}
