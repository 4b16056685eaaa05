package clients

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/vitwit/payrail/logger"
	paytypes "github.com/vitwit/payrail/types"
)

// Backend is the part of *ethclient.Client the EVM adapter relies on.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	Close()
}

// NonceView selects which account nonce to read.
type NonceView int

const (
	NonceConfirmed NonceView = iota
	NoncePending
)

// EVMChain is a chain adapter bound to one EVM endpoint.
type EVMChain interface {
	Chain() paytypes.Chain
	ChainID(ctx context.Context) (*big.Int, error)
	Nonce(ctx context.Context, account common.Address, view NonceView) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, from, to common.Address, data []byte) (uint64, error)
	Submit(ctx context.Context, tx *ethtypes.Transaction) error
	Transaction(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, error)
	Receipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, poll time.Duration) (*ethtypes.Receipt, error)
	TransferEvents(ctx context.Context, token common.Address, fromBlock uint64, toBlock *uint64, filter TransferFilter) ([]TransferEvent, error)
	Close()
}

// SolanaRPC is the part of *rpc.Client the Solana adapter relies on.
type SolanaRPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, transaction *solana.Transaction) (solana.Signature, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// SolanaChain is a chain adapter bound to one Solana endpoint.
type SolanaChain interface {
	Chain() paytypes.Chain
	TransferNative(ctx context.Context, payer solana.PrivateKey, to solana.PublicKey, lamports uint64) (solana.Signature, error)
	TransferToken(ctx context.Context, payer solana.PrivateKey, mint, to solana.PublicKey, amount uint64, decimals uint8) (solana.Signature, error)
	Transfer(ctx context.Context, signature string) (*ObservedTransfer, error)
	Close()
}

type clientOptions struct {
	timeout time.Duration
	log     logger.Logger
}

// ClientOption configures a chain adapter.
type ClientOption func(*clientOptions)

// WithTimeout bounds every RPC call made by the adapter.
func WithTimeout(t time.Duration) ClientOption {
	return func(o *clientOptions) {
		if t > 0 {
			o.timeout = t
		}
	}
}

func WithLogger(l logger.Logger) ClientOption {
	return func(o *clientOptions) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []ClientOption) clientOptions {
	o := clientOptions{
		timeout: 30 * time.Second,
		log:     logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
