package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/payrail/logger"
	paytypes "github.com/vitwit/payrail/types"
)

var _ EVMChain = (*EVMClient)(nil)

// EVMClient talks to one EVM JSON-RPC endpoint. Every call is bounded by the
// configured timeout.
type EVMClient struct {
	chain   paytypes.Chain
	rpcURL  string
	backend Backend
	timeout time.Duration
	log     logger.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// NewEVMClient dials rpcURL and returns an adapter for chain.
func NewEVMClient(ctx context.Context, chain paytypes.Chain, rpcURL string, opts ...ClientOption) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, &paytypes.PaymentError{
			Code:    paytypes.ErrNetworkError,
			Message: fmt.Sprintf("failed to connect to %s RPC", chain),
			Err:     err,
		}
	}

	c := NewEVMClientWithBackend(chain, client, opts...)
	c.rpcURL = rpcURL
	return c, nil
}

// NewEVMClientWithBackend wraps an existing backend, such as a simulated chain.
func NewEVMClientWithBackend(chain paytypes.Chain, backend Backend, opts ...ClientOption) *EVMClient {
	o := buildOptions(opts)
	return &EVMClient{
		chain:   chain,
		backend: backend,
		timeout: o.timeout,
		log:     o.log,
	}
}

func (c *EVMClient) Chain() paytypes.Chain { return c.chain }

func (c *EVMClient) Close() { c.backend.Close() }

func (c *EVMClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// ChainID returns the endpoint's chain id. The first successful answer is
// cached.
func (c *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, networkError("chain id", err)
	}

	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

func (c *EVMClient) Nonce(ctx context.Context, account common.Address, view NonceView) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	var (
		n   uint64
		err error
	)
	switch view {
	case NoncePending:
		n, err = c.backend.PendingNonceAt(ctx, account)
	default:
		n, err = c.backend.NonceAt(ctx, account, nil)
	}
	if err != nil {
		return 0, networkError("nonce", err)
	}
	return n, nil
}

func (c *EVMClient) GasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, networkError("gas price", err)
	}
	return price, nil
}

// EstimateGas estimates a call from `from` to `to` carrying data.
func (c *EVMClient) EstimateGas(ctx context.Context, from, to common.Address, data []byte) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return 0, networkError("gas estimate", err)
	}
	return gas, nil
}

// Submit broadcasts a signed transaction. Rejections come back as
// *NonceTooLowError or *SubmissionError.
func (c *EVMClient) Submit(ctx context.Context, tx *ethtypes.Transaction) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		c.log.Warn("transaction rejected", map[string]any{
			"chain": c.chain,
			"nonce": tx.Nonce(),
			"error": err.Error(),
		})
		return classifySubmitError(err, tx.Hash().Hex())
	}

	c.log.Debug("transaction submitted", map[string]any{
		"chain": c.chain,
		"hash":  tx.Hash().Hex(),
	})
	return nil
}

func (c *EVMClient) Transaction(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	tx, _, err := c.backend.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, networkError("transaction lookup", err)
	}
	return tx, nil
}

func (c *EVMClient) Receipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	rcpt, err := c.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, networkError("receipt lookup", err)
	}
	return rcpt, nil
}

// WaitForReceipt polls until the transaction is mined or ctx is done.
func (c *EVMClient) WaitForReceipt(ctx context.Context, hash common.Hash, poll time.Duration) (*ethtypes.Receipt, error) {
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		rcpt, err := c.Receipt(ctx, hash)
		if err == nil {
			return rcpt, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func networkError(op string, err error) error {
	return &paytypes.PaymentError{
		Code:    paytypes.ErrNetworkError,
		Message: fmt.Sprintf("%s failed: %v", op, err),
		Err:     err,
	}
}
