package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTransfer_System(t *testing.T) {
	payer := solana.NewWallet()
	to := solana.NewWallet().PublicKey()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1_500_000, payer.PublicKey(), to).Build()},
		solana.Hash{},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)

	got, err := decodeTransfer(tx)
	require.NoError(t, err)
	assert.Equal(t, TransferSystem, got.Kind)
	assert.Equal(t, to, got.Destination)
	assert.Equal(t, payer.PublicKey(), got.From)
	assert.Equal(t, uint64(1_500_000), got.Amount)
}

func TestDecodeTransfer_TokenChecked(t *testing.T) {
	payer := solana.NewWallet()
	mint := solana.NewWallet().PublicKey()
	src, _, err := solana.FindAssociatedTokenAddress(payer.PublicKey(), mint)
	require.NoError(t, err)
	dst, _, err := solana.FindAssociatedTokenAddress(solana.NewWallet().PublicKey(), mint)
	require.NoError(t, err)

	ix := token.NewTransferCheckedInstruction(250_000, 6, src, mint, dst, payer.PublicKey(), nil).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)

	got, err := decodeTransfer(tx)
	require.NoError(t, err)
	assert.Equal(t, TransferToken, got.Kind)
	assert.Equal(t, mint, got.Mint)
	assert.Equal(t, dst, got.Destination)
	assert.Equal(t, uint64(250_000), got.Amount)
}

type fakeSolanaRPC struct {
	accounts   map[solana.PublicKey]bool
	accountErr error
	sent       []*solana.Transaction
}

func (f *fakeSolanaRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{}}, nil
}

func (f *fakeSolanaRPC) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeSolanaRPC) GetTransaction(context.Context, solana.Signature, *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	return nil, rpc.ErrNotFound
}

func (f *fakeSolanaRPC) GetAccountInfo(_ context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	if !f.accounts[account] {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{}}, nil
}

func programIDs(tx *solana.Transaction) []solana.PublicKey {
	out := make([]solana.PublicKey, len(tx.Message.Instructions))
	for i, inst := range tx.Message.Instructions {
		out[i] = tx.Message.AccountKeys[inst.ProgramIDIndex]
	}
	return out
}

func TestTransferToken_RecipientAccount(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	mint := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	dst, _, err := solana.FindAssociatedTokenAddress(to, mint)
	require.NoError(t, err)

	tests := []struct {
		name     string
		existing bool
		want     []solana.PublicKey
	}{
		{"missing account is created first", false, []solana.PublicKey{associatedtokenaccount.ProgramID, solana.TokenProgramID}},
		{"existing account is reused", true, []solana.PublicKey{solana.TokenProgramID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSolanaRPC{accounts: map[solana.PublicKey]bool{dst: tt.existing}}
			c := NewSolanaClientWithRPC("solana", fake)

			_, err := c.TransferToken(context.Background(), payer, mint, to, 250_000, 6)
			require.NoError(t, err)
			require.Len(t, fake.sent, 1)
			assert.Equal(t, tt.want, programIDs(fake.sent[0]))

			got, err := decodeTransfer(fake.sent[0])
			require.NoError(t, err)
			assert.Equal(t, dst, got.Destination)
			assert.Equal(t, uint64(250_000), got.Amount)
		})
	}
}

func TestTransferToken_AccountLookupFails(t *testing.T) {
	fake := &fakeSolanaRPC{accountErr: errors.New("connection refused")}
	c := NewSolanaClientWithRPC("solana", fake)

	_, err := c.TransferToken(context.Background(), solana.NewWallet().PrivateKey,
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1, 6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account lookup failed")
	assert.Empty(t, fake.sent)
}
