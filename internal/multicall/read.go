package multicall

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Caller executes read-only calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Read runs calls through aggregate3 with eth_call and returns one result per call.
func Read(ctx context.Context, caller Caller, multicall common.Address, calls []Call3, block *big.Int) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	data, err := EncodeAggregate3(calls)
	if err != nil {
		return nil, err
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &multicall, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", aggregate3Method, err)
	}
	results, err := DecodeAggregate3(resp)
	if err != nil {
		return nil, err
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("%s returned %d results for %d calls", aggregate3Method, len(results), len(calls))
	}
	return results, nil
}
