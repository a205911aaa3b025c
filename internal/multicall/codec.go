package multicall

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multicall3ABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "bool", "name": "allowFailure", "type": "bool"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Call3[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "aggregate3",
    "outputs": [
      {
        "components": [
          {"internalType": "bool", "name": "success", "type": "bool"},
          {"internalType": "bytes", "name": "returnData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Result[]",
        "name": "returnData",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getBlockNumber",
    "outputs": [{"internalType": "uint256", "name": "blockNumber", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const aggregate3Method = "aggregate3"

var (
	multicall3ABI     abi.ABI
	multicall3ABIOnce sync.Once
	multicall3ABIErr  error
)

// ABI returns the parsed Multicall3 ABI.
func ABI() (abi.ABI, error) {
	multicall3ABIOnce.Do(func() {
		multicall3ABI, multicall3ABIErr = abi.JSON(strings.NewReader(multicall3ABIJSON))
	})
	return multicall3ABI, multicall3ABIErr
}

// Call3 mirrors Multicall3.Call3. Field names match the ABI components.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result mirrors Multicall3.Result.
type Result struct {
	Success    bool
	ReturnData []byte
}

// EncodeAggregate3 packs calls into aggregate3 calldata.
func EncodeAggregate3(calls []Call3) ([]byte, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}
	data, err := parsed.Pack(aggregate3Method, calls)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", aggregate3Method, err)
	}
	return data, nil
}

// DecodeAggregate3Calls unpacks aggregate3 calldata back into calls.
func DecodeAggregate3Calls(data []byte) ([]Call3, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}
	method := parsed.Methods[aggregate3Method]
	if len(data) < 4 || string(data[:4]) != string(method.ID) {
		return nil, fmt.Errorf("calldata is not %s", aggregate3Method)
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s input: %w", aggregate3Method, err)
	}
	calls := *abi.ConvertType(values[0], new([]Call3)).(*[]Call3)
	return calls, nil
}

// DecodeAggregate3 unpacks the return data of aggregate3.
func DecodeAggregate3(data []byte) ([]Result, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}
	values, err := parsed.Unpack(aggregate3Method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", aggregate3Method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack %s: %d values", aggregate3Method, len(values))
	}
	results := *abi.ConvertType(values[0], new([]Result)).(*[]Result)
	return results, nil
}

// EncodeAggregate3Results packs results the way aggregate3 returns them.
func EncodeAggregate3Results(results []Result) ([]byte, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}
	return parsed.Methods[aggregate3Method].Outputs.Pack(results)
}
