package issuance

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payrail/clients"
	"github.com/vitwit/payrail/clients/clienttest"
	"github.com/vitwit/payrail/registry"
	"github.com/vitwit/payrail/types"
)

const (
	sepoliaUSDC = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	payee       = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
)

type fixture struct {
	issuer  *Issuer
	backend *clienttest.Backend
	solana  *clienttest.Solana
	key     *ecdsa.PrivateKey
	from    common.Address
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := clienttest.NewBackend(84532)
	sol := clienttest.NewSolana(types.ChainSolanaNet)

	pool := clients.NewPool(nil)
	pool.RegisterEVM(types.ChainBaseSepolia, clients.NewEVMClientWithBackend(types.ChainBaseSepolia, backend, clients.WithTimeout(time.Second)))
	pool.RegisterSolana(types.ChainSolanaNet, sol)

	opts = append([]Option{WithEVMKey(key), WithSolanaKey(solana.NewWallet().PrivateKey)}, opts...)
	return &fixture{
		issuer:  New(registry.New(nil), pool, opts...),
		backend: backend,
		solana:  sol,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

func request(method types.PaymentMethod, amount string) types.PaymentRequest {
	return types.PaymentRequest{
		Amount:      decimal.RequireFromString(amount),
		Destination: payee,
		Method:      method,
	}
}

func TestIssue_NativeUsesHighestNonce(t *testing.T) {
	f := newFixture(t)
	f.backend.SetNonces(f.from, 3, 5)

	out := f.issuer.Issue(context.Background(), request(types.MethodETHBaseSepolia, "0.002"))
	require.True(t, out.Succeeded(), out.ResultMessage)
	assert.Equal(t, "Transaction sent: "+out.TransactionHash, out.ResultMessage)
	assert.False(t, out.Retried)

	sent := f.backend.Sent()
	require.Len(t, sent, 1)
	tx := sent[0]
	assert.Equal(t, uint64(5), tx.Nonce())
	assert.Equal(t, NativeTransferGas, tx.Gas())
	assert.Equal(t, common.HexToAddress(payee), *tx.To())
	assert.Equal(t, "2000000000000000", tx.Value().String())
	assert.Empty(t, tx.Data())
	assert.Equal(t, int64(84532), tx.ChainId().Int64())
}

func TestIssue_TokenTransferCallData(t *testing.T) {
	f := newFixture(t)

	out := f.issuer.Issue(context.Background(), request(types.MethodUSDCBaseSepolia, "0.5"))
	require.True(t, out.Succeeded(), out.ResultMessage)
	assert.True(t, strings.HasPrefix(out.ResultMessage, "Token transfer sent: 0x"))

	tx := f.backend.Sent()[0]
	assert.Equal(t, common.HexToAddress(sepoliaUSDC), *tx.To())
	assert.Equal(t, int64(0), tx.Value().Int64())
	assert.Equal(t, uint64(65_000), tx.Gas())

	to, value, err := clients.DecodeTransferCall(tx.Data())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(payee), to)
	assert.Equal(t, "500000", value.String())

	estimates := f.backend.Estimates()
	require.Len(t, estimates, 1)
	assert.Equal(t, common.HexToAddress(sepoliaUSDC), *estimates[0].To)
	assert.Equal(t, f.from, estimates[0].From)
}

func TestIssue_NonceRetry(t *testing.T) {
	tests := []struct {
		name      string
		sendErr   error
		wantNonce uint64
	}{
		{"fresh confirmed nonce", errors.New("nonce too low"), 4},
		{"provider hint wins when higher", errors.New("nonce too low: next nonce 9, tx nonce 4"), 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.SetNonces(f.from, 4, 4)
			f.backend.FailSends(tt.sendErr)

			out := f.issuer.Issue(context.Background(), request(types.MethodUSDCBaseSepolia, "1"))
			require.True(t, out.Succeeded(), out.ResultMessage)
			assert.True(t, out.Retried)
			assert.Equal(t, "Token transfer sent after nonce retry: "+out.TransactionHash, out.ResultMessage)

			sent := f.backend.Sent()
			require.Len(t, sent, 2)
			assert.Equal(t, tt.wantNonce, sent[1].Nonce())
			assert.Equal(t, sent[0].Data(), sent[1].Data(), "retry must rebuild the same transfer")
		})
	}
}

func TestIssue_NativeRetryMessage(t *testing.T) {
	f := newFixture(t)
	f.backend.FailSends(errors.New("nonce too low"))

	out := f.issuer.Issue(context.Background(), request(types.MethodETHBaseSepolia, "0.001"))
	require.True(t, out.Succeeded())
	assert.Equal(t, "Transaction sent after nonce retry: "+out.TransactionHash, out.ResultMessage)
}

func TestIssue_SecondNonceFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.backend.FailSends(errors.New("nonce too low"), errors.New("nonce too low"))

	out := f.issuer.Issue(context.Background(), request(types.MethodETHBaseSepolia, "0.001"))
	assert.False(t, out.Succeeded())
	assert.Empty(t, out.TransactionHash)
	assert.Equal(t, "Error: nonce too low", out.ResultMessage)
	assert.Len(t, f.backend.Sent(), 2, "exactly one retry")
}

func TestIssue_OtherSubmitErrorIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.backend.FailSends(errors.New("insufficient funds for gas * price + value"))

	out := f.issuer.Issue(context.Background(), request(types.MethodETHBaseSepolia, "0.001"))
	assert.False(t, out.Succeeded())
	assert.Equal(t, "Error: insufficient funds for gas * price + value", out.ResultMessage)
	assert.Len(t, f.backend.Sent(), 1)

	var se *clients.SubmissionError
	assert.ErrorAs(t, out.Err, &se)
	assert.Empty(t, out.PendingHash, "a node rejection never went out")
}

func TestIssue_LostResponseKeepsHash(t *testing.T) {
	f := newFixture(t)
	f.backend.FailAfterAccept(context.DeadlineExceeded)

	out := f.issuer.Issue(context.Background(), request(types.MethodUSDCBaseSepolia, "0.5"))
	assert.False(t, out.Succeeded())
	assert.Empty(t, out.TransactionHash)

	sent := f.backend.Sent()
	require.Len(t, sent, 1, "transport errors are not retried")
	hash := sent[0].Hash().Hex()
	assert.Equal(t, hash, out.PendingHash)
	assert.Equal(t, "Error: context deadline exceeded (transaction "+hash+" may have been broadcast)", out.ResultMessage)

	_, err := f.backend.TransactionReceipt(context.Background(), sent[0].Hash())
	assert.NoError(t, err, "the transaction did reach the chain")
}

func TestIssue_InputErrors(t *testing.T) {
	f := newFixture(t)

	out := f.issuer.Issue(context.Background(), request("DOGE_BASE", "1"))
	assert.Equal(t, "Error: Unsupported payment method: DOGE_BASE", out.ResultMessage)
	assert.Equal(t, types.ErrUnknownMethod, types.ErrorCode(out.Err))

	out = f.issuer.Issue(context.Background(), request(types.MethodUSDCBaseSepolia, "-1"))
	assert.Equal(t, types.ErrInvalidAmount, types.ErrorCode(out.Err))

	bad := request(types.MethodUSDCBaseSepolia, "1")
	bad.Destination = "not-an-address"
	out = f.issuer.Issue(context.Background(), bad)
	assert.Equal(t, "Error: invalid destination address: not-an-address", out.ResultMessage)

	for _, tt := range []struct {
		method types.PaymentMethod
		dest   string
	}{
		{types.MethodETHBaseSepolia, strings.TrimPrefix(payee, "0x")},
		{types.MethodSOLSolana, payee},
		{types.MethodUSDCSolana, "0OIl" + strings.Repeat("1", 36)},
	} {
		bad := request(tt.method, "1")
		bad.Destination = tt.dest
		out = f.issuer.Issue(context.Background(), bad)
		assert.Equal(t, "Error: invalid destination address: "+tt.dest, out.ResultMessage, tt.method)
		assert.Equal(t, types.ErrMissingField, types.ErrorCode(out.Err))
		assert.Empty(t, out.TransactionHash)
	}

	out = f.issuer.Issue(context.Background(), request(types.MethodUSDCBaseMainnet, "1"))
	assert.Equal(t, "Error: Token contract address not found for this payment method", out.ResultMessage)

	assert.Empty(t, f.backend.Sent())
}

func TestIssue_MissingKey(t *testing.T) {
	f := newFixture(t, WithEVMKey(nil))

	out := f.issuer.Issue(context.Background(), request(types.MethodETHBaseSepolia, "1"))
	assert.Equal(t, "Error: no EVM signing key configured", out.ResultMessage)
}

func TestIssue_OrderMetadata(t *testing.T) {
	f := newFixture(t, WithOrderMetadata(true))
	f.backend.SetGasEstimate(23_500)

	req := request(types.MethodETHBaseSepolia, "0.01")
	req.OrderID = "ord-42"
	req.Buyer = "agent-7"
	req.OrderDate = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	out := f.issuer.Issue(context.Background(), req)
	require.True(t, out.Succeeded(), out.ResultMessage)

	tx := f.backend.Sent()[0]
	assert.Equal(t, uint64(23_500), tx.Gas(), "metadata makes gas estimated")

	meta, err := DecodeOrderMetadata(tx.Data())
	require.NoError(t, err)
	assert.Equal(t, "ord-42", meta.OrderID)
	assert.Equal(t, "agent-7", meta.Buyer)
	assert.Equal(t, "2025-03-01T12:00:00Z", meta.OrderDate)
}

func TestIssue_ConcurrentRequestsGetDistinctNonces(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for n := 0; n < 6; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := f.issuer.Issue(context.Background(), request(types.MethodETHBaseSepolia, "0.001"))
			assert.True(t, out.Succeeded(), out.ResultMessage)
			assert.False(t, out.Retried)
		}()
	}
	wg.Wait()

	var nonces []int
	for _, tx := range f.backend.Sent() {
		nonces = append(nonces, int(tx.Nonce()))
	}
	sort.Ints(nonces)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, nonces)
}

func TestIssue_Solana(t *testing.T) {
	f := newFixture(t)
	dest := solana.NewWallet().PublicKey()

	req := types.PaymentRequest{
		Amount:      decimal.RequireFromString("0.25"),
		Destination: dest.String(),
		Method:      types.MethodSOLSolana,
	}
	out := f.issuer.Issue(context.Background(), req)
	require.True(t, out.Succeeded(), out.ResultMessage)
	assert.Equal(t, "Transaction sent: "+out.TransactionHash, out.ResultMessage)

	observed, err := f.solana.Transfer(context.Background(), out.TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, dest, observed.Destination)
	assert.Equal(t, uint64(250_000_000), observed.Amount)

	req.Method = types.MethodUSDCSolana
	out = f.issuer.Issue(context.Background(), req)
	require.True(t, out.Succeeded(), out.ResultMessage)
	assert.True(t, strings.HasPrefix(out.ResultMessage, "Token transfer sent: "))

	observed, err = f.solana.Transfer(context.Background(), out.TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000), observed.Amount)
}

func TestNonceLocker_RespectsContext(t *testing.T) {
	l := NewNonceLocker()
	unlock, err := l.Lock(context.Background(), "0xABC")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "0xabc")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "0xabc")
	require.NoError(t, err)
	again()
}

func TestNextNonce(t *testing.T) {
	backend := clienttest.NewBackend(84532)
	client := clients.NewEVMClientWithBackend(types.ChainBaseSepolia, backend)
	addr := common.HexToAddress(payee)

	backend.SetNonces(addr, 7, 2)
	n, err := nextNonce(context.Background(), client, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)

	backend.SetNonces(addr, 7, 11)
	n, err = nextNonce(context.Background(), client, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), n)
}
