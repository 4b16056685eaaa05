// Package clienttest provides in-memory chain backends for tests.
package clienttest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/payrail/clients"
)

// Backend is an in-memory EVM chain satisfying clients.Backend. Every
// accepted transaction is mined immediately into its own block.
type Backend struct {
	mu sync.Mutex

	chainID  *big.Int
	gasPrice *big.Int
	gas      uint64

	confirmed map[common.Address]uint64
	pending   map[common.Address]uint64
	txs       map[common.Hash]*ethtypes.Transaction
	receipts  map[common.Hash]*ethtypes.Receipt
	logs      []ethtypes.Log
	block     uint64

	sendErrs  []error
	lateErrs  []error
	sent      []*ethtypes.Transaction
	estimates []ethereum.CallMsg
}

var _ clients.Backend = (*Backend)(nil)

func NewBackend(chainID int64) *Backend {
	return &Backend{
		chainID:   big.NewInt(chainID),
		gasPrice:  big.NewInt(1_000_000_000),
		gas:       65_000,
		confirmed: make(map[common.Address]uint64),
		pending:   make(map[common.Address]uint64),
		txs:       make(map[common.Hash]*ethtypes.Transaction),
		receipts:  make(map[common.Hash]*ethtypes.Receipt),
		block:     100,
	}
}

// SetNonces sets the confirmed and pending nonce views of an account.
func (b *Backend) SetNonces(account common.Address, confirmed, pending uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmed[account] = confirmed
	b.pending[account] = pending
}

// SetGasEstimate fixes the value returned by EstimateGas.
func (b *Backend) SetGasEstimate(gas uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gas = gas
}

// FailSends queues errors returned by the next SendTransaction calls, in
// order. A nil entry lets that call through.
func (b *Backend) FailSends(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErrs = append(b.sendErrs, errs...)
}

// FailAfterAccept queues errors returned by the next SendTransaction calls
// after the transaction has already been mined, like a response lost in transit.
func (b *Backend) FailAfterAccept(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lateErrs = append(b.lateErrs, errs...)
}

// Sent returns every transaction passed to SendTransaction, including rejected
// ones.
func (b *Backend) Sent() []*ethtypes.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*ethtypes.Transaction(nil), b.sent...)
}

// Estimates returns every call message passed to EstimateGas.
func (b *Backend) Estimates() []ethereum.CallMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ethereum.CallMsg(nil), b.estimates...)
}

// SetReceiptStatus overrides the status of a mined transaction.
func (b *Backend) SetReceiptStatus(hash common.Hash, status uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[hash]; ok {
		r.Status = status
	}
}

// DropReceipt makes a transaction look pending.
func (b *Backend) DropReceipt(hash common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.receipts, hash)
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) NonceAt(_ context.Context, account common.Address, _ *big.Int) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.confirmed[account], nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[account], nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *Backend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.estimates = append(b.estimates, msg)
	return b.gas, nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sent = append(b.sent, tx)
	if len(b.sendErrs) > 0 {
		err := b.sendErrs[0]
		b.sendErrs = b.sendErrs[1:]
		if err != nil {
			return err
		}
	}

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return err
	}
	if tx.Nonce() < b.confirmed[from] {
		return errors.New("nonce too low")
	}

	b.block++
	b.confirmed[from] = tx.Nonce() + 1
	if b.pending[from] < b.confirmed[from] {
		b.pending[from] = b.confirmed[from]
	}

	rcpt := &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(b.block),
		GasUsed:     tx.Gas(),
	}
	if lg, ok := b.transferLog(from, tx); ok {
		rcpt.Logs = []*ethtypes.Log{lg}
		b.logs = append(b.logs, *lg)
	}

	b.txs[tx.Hash()] = tx
	b.receipts[tx.Hash()] = rcpt

	if len(b.lateErrs) > 0 {
		err := b.lateErrs[0]
		b.lateErrs = b.lateErrs[1:]
		return err
	}
	return nil
}

func (b *Backend) transferLog(from common.Address, tx *ethtypes.Transaction) (*ethtypes.Log, bool) {
	if tx.To() == nil {
		return nil, false
	}
	to, value, err := clients.DecodeTransferCall(tx.Data())
	if err != nil {
		return nil, false
	}
	return &ethtypes.Log{
		Address: *tx.To(),
		Topics: []common.Hash{
			clients.TransferEventTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:        common.LeftPadBytes(value.Bytes(), 32),
		BlockNumber: b.block,
		TxHash:      tx.Hash(),
	}, true
}

func (b *Backend) TransactionByHash(_ context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	_, mined := b.receipts[hash]
	return tx, !mined, nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []ethtypes.Log
	for _, lg := range b.logs {
		if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, lg.Address) {
			continue
		}
		if !topicsMatch(q.Topics, lg.Topics) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (b *Backend) Close() {}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func topicsMatch(query [][]common.Hash, topics []common.Hash) bool {
	for i, want := range query {
		if len(want) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		found := false
		for _, h := range want {
			if h == topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
