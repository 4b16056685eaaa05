package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/vitwit/payrail/logger"
	paytypes "github.com/vitwit/payrail/types"
)

var _ SolanaChain = (*SolanaClient)(nil)

// SolanaClient moves and inspects SOL and SPL token transfers.
type SolanaClient struct {
	chain   paytypes.Chain
	rpcURL  string
	rpc     SolanaRPC
	timeout time.Duration
	log     logger.Logger
}

// NewSolanaClient creates a client for the JSON-RPC endpoint at rpcURL.
func NewSolanaClient(chain paytypes.Chain, rpcURL string, opts ...ClientOption) *SolanaClient {
	c := NewSolanaClientWithRPC(chain, rpc.New(rpcURL), opts...)
	c.rpcURL = rpcURL
	return c
}

func NewSolanaClientWithRPC(chain paytypes.Chain, r SolanaRPC, opts ...ClientOption) *SolanaClient {
	o := buildOptions(opts)
	return &SolanaClient{
		chain:   chain,
		rpc:     r,
		timeout: o.timeout,
		log:     o.log,
	}
}

func (c *SolanaClient) Chain() paytypes.Chain { return c.chain }

func (c *SolanaClient) Close() {}

// TransferNative sends lamports from payer to `to`.
func (c *SolanaClient) TransferNative(
	ctx context.Context,
	payer solana.PrivateKey,
	to solana.PublicKey,
	lamports uint64,
) (solana.Signature, error) {
	ix := system.NewTransferInstruction(lamports, payer.PublicKey(), to).Build()
	return c.send(ctx, payer, ix)
}

// TransferToken sends an SPL token amount between the associated token
// accounts of payer and `to`. The recipient's account is created, paid for by
// payer, when it does not exist yet.
func (c *SolanaClient) TransferToken(
	ctx context.Context,
	payer solana.PrivateKey,
	mint, to solana.PublicKey,
	amount uint64,
	decimals uint8,
) (solana.Signature, error) {
	ixs, err := c.tokenTransferInstructions(ctx, payer.PublicKey(), mint, to, amount, decimals)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.send(ctx, payer, ixs...)
}

func (c *SolanaClient) tokenTransferInstructions(
	ctx context.Context,
	payer, mint, to solana.PublicKey,
	amount uint64,
	decimals uint8,
) ([]solana.Instruction, error) {
	src, _, err := solana.FindAssociatedTokenAddress(payer, mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	dst, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}

	exists, err := c.accountExists(ctx, dst)
	if err != nil {
		return nil, err
	}

	var ixs []solana.Instruction
	if !exists {
		c.log.Info("creating recipient token account", map[string]any{
			"chain":   c.chain,
			"owner":   to.String(),
			"account": dst.String(),
		})
		ixs = append(ixs, associatedtokenaccount.NewCreateInstruction(payer, to, mint).Build())
	}
	ixs = append(ixs, token.NewTransferCheckedInstruction(
		amount,
		decimals,
		src,
		mint,
		dst,
		payer,
		nil,
	).Build())
	return ixs, nil
}

func (c *SolanaClient) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.rpc.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, networkError("account lookup", err)
	}
	return true, nil
}

func (c *SolanaClient) send(ctx context.Context, payer solana.PrivateKey, ixs ...solana.Instruction) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, networkError("latest blockhash", err)
	}

	tx, err := solana.NewTransaction(ixs, recent.Value.Blockhash, solana.TransactionPayer(payer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		c.log.Warn("solana transaction rejected", map[string]any{
			"chain": c.chain,
			"error": err.Error(),
		})
		return solana.Signature{}, submissionError(err, tx.Signatures[0].String())
	}
	return sig, nil
}

// TransferKind tells which program moved funds.
type TransferKind string

const (
	TransferSystem TransferKind = "system"
	TransferToken  TransferKind = "token"
)

// ObservedTransfer is the first transfer instruction found in a confirmed
// Solana transaction.
type ObservedTransfer struct {
	Signature string
	Succeeded bool
	Kind      TransferKind
	From      solana.PublicKey
	// Destination is the recipient wallet for system transfers and the
	// recipient token account for token transfers.
	Destination solana.PublicKey
	Mint        solana.PublicKey
	Amount      uint64
}

// Transfer fetches a transaction by signature and decodes its transfer.
func (c *SolanaClient) Transfer(ctx context.Context, signature string) (*ObservedTransfer, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, &paytypes.PaymentError{
			Code:    paytypes.ErrMissingField,
			Message: fmt.Sprintf("invalid transaction signature: %s", signature),
			Err:     err,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, networkError("transaction lookup", err)
	}
	if out == nil || out.Transaction == nil {
		return nil, ErrNotFound
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	observed, err := decodeTransfer(tx)
	if err != nil {
		return nil, err
	}
	observed.Signature = signature
	observed.Succeeded = out.Meta != nil && out.Meta.Err == nil
	return observed, nil
}

func decodeTransfer(tx *solana.Transaction) (*ObservedTransfer, error) {
	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		prog := tx.Message.AccountKeys[inst.ProgramIDIndex]

		accountMetas := make([]*solana.AccountMeta, len(inst.Accounts))
		for i, accIdx := range inst.Accounts {
			if int(accIdx) >= len(tx.Message.AccountKeys) {
				return nil, errors.New("instruction references unknown account")
			}
			pub := tx.Message.AccountKeys[accIdx]
			writable, err := tx.Message.IsWritable(pub)
			if err != nil {
				return nil, fmt.Errorf("failed to decode transaction: %w", err)
			}
			accountMetas[i] = &solana.AccountMeta{
				PublicKey:  pub,
				IsSigner:   tx.Message.IsSigner(pub),
				IsWritable: writable,
			}
		}

		switch {
		case prog.Equals(solana.SystemProgramID):
			sysInst, err := system.DecodeInstruction(accountMetas, inst.Data)
			if err != nil {
				continue
			}
			transfer, ok := sysInst.Impl.(*system.Transfer)
			if !ok || transfer.Lamports == nil || len(accountMetas) < 2 {
				continue
			}
			return &ObservedTransfer{
				Kind:        TransferSystem,
				From:        accountMetas[0].PublicKey,
				Destination: accountMetas[1].PublicKey,
				Amount:      *transfer.Lamports,
			}, nil

		case prog.Equals(solana.TokenProgramID):
			tokInst, err := token.DecodeInstruction(accountMetas, inst.Data)
			if err != nil {
				continue
			}
			transfer, ok := tokInst.Impl.(*token.TransferChecked)
			if !ok || transfer.Amount == nil || len(accountMetas) < 4 {
				continue
			}
			return &ObservedTransfer{
				Kind:        TransferToken,
				From:        accountMetas[3].PublicKey,
				Mint:        accountMetas[1].PublicKey,
				Destination: accountMetas[2].PublicKey,
				Amount:      *transfer.Amount,
			}, nil
		}
	}

	return nil, errors.New("no transfer instruction found")
}
