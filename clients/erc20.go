package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

const erc20ABIJSON = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"Transfer","anonymous":false,
	 "inputs":[{"name":"from","type":"address","indexed":true},
	           {"name":"to","type":"address","indexed":true},
	           {"name":"value","type":"uint256","indexed":false}]}
]`

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// TransferEventTopic is keccak256("Transfer(address,address,uint256)").
var TransferEventTopic = erc20ABI.Events["Transfer"].ID

var errNotTransferCall = errors.New("call data is not an ERC-20 transfer")

// EncodeTransferCall packs transfer(to, value).
func EncodeTransferCall(to common.Address, value *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, value)
}

// DecodeTransferCall unpacks call data produced by EncodeTransferCall.
func DecodeTransferCall(data []byte) (common.Address, *big.Int, error) {
	if len(data) < 4 {
		return common.Address{}, nil, errNotTransferCall
	}

	method, err := erc20ABI.MethodById(data[:4])
	if err != nil || method.Name != "transfer" {
		return common.Address{}, nil, errNotTransferCall
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("decode transfer arguments: %w", err)
	}
	if len(args) != 2 {
		return common.Address{}, nil, errNotTransferCall
	}

	to, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, errNotTransferCall
	}
	value, ok := args[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, errNotTransferCall
	}
	return to, value, nil
}

// TransferEvent is a decoded ERC-20 Transfer log.
type TransferEvent struct {
	Token       common.Address
	From        common.Address
	To          common.Address
	Value       *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// TransferFilter narrows a log query by sender and recipient. Empty slices
// match any address.
type TransferFilter struct {
	From []common.Address
	To   []common.Address
}

// DecodeTransferLog decodes a Transfer log emitted by an ERC-20 contract.
func DecodeTransferLog(lg ethtypes.Log) (*TransferEvent, error) {
	if len(lg.Topics) != 3 || lg.Topics[0] != TransferEventTopic {
		return nil, errors.New("log is not an ERC-20 Transfer")
	}

	vals, err := erc20ABI.Unpack("Transfer", lg.Data)
	if err != nil {
		return nil, fmt.Errorf("decode transfer value: %w", err)
	}
	if len(vals) != 1 {
		return nil, errors.New("unexpected Transfer data layout")
	}
	value, ok := vals[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected Transfer value type")
	}

	return &TransferEvent{
		Token:       lg.Address,
		From:        common.BytesToAddress(lg.Topics[1].Bytes()),
		To:          common.BytesToAddress(lg.Topics[2].Bytes()),
		Value:       value,
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
	}, nil
}

// TransferEvents lists Transfer events of token between fromBlock and toBlock
// (nil means latest).
func (c *EVMClient) TransferEvents(
	ctx context.Context,
	token common.Address,
	fromBlock uint64,
	toBlock *uint64,
	filter TransferFilter,
) ([]TransferEvent, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{token},
		Topics: [][]common.Hash{
			{TransferEventTopic},
			addressTopics(filter.From),
			addressTopics(filter.To),
		},
	}
	if toBlock != nil {
		q.ToBlock = new(big.Int).SetUint64(*toBlock)
	}

	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	logs, err := c.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, networkError("log query", err)
	}

	events := make([]TransferEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := DecodeTransferLog(lg)
		if err != nil {
			c.log.Debug("skipping undecodable log", map[string]any{
				"tx":    lg.TxHash.Hex(),
				"error": err.Error(),
			})
			continue
		}
		events = append(events, *ev)
	}
	return events, nil
}

func addressTopics(addrs []common.Address) []common.Hash {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]common.Hash, len(addrs))
	for i, a := range addrs {
		out[i] = common.BytesToHash(a.Bytes())
	}
	return out
}
