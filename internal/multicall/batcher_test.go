package multicall

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"yieldRouter/internal/ledger"
	"yieldRouter/internal/model"
	"yieldRouter/internal/registry"
	"yieldRouter/internal/signer"
	"yieldRouter/internal/storage"
)

const testBlockchainID = 56

var (
	aggregatorAddr = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
	counterAddr    = common.HexToAddress("0x00000000000000000000000000000000000C0117")
	brokenAddr     = common.HexToAddress("0x00000000000000000000000000000000000BAD00")
	incrementCall  = crypto.Keccak256([]byte("increment()"))[:4]
)

// fakeChain executes aggregate3 batches against a single counter contract.
// Calls to brokenAddr always revert.
type fakeChain struct {
	mu          sync.Mutex
	counter     int
	estimateGas uint64
	estimateErr error
	revert      bool
	nonce       uint64
	sent        []*types.Transaction
	receipts    map[common.Hash]*types.Receipt
	head        uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{estimateGas: 100000, receipts: make(map[common.Hash]*types.Receipt), head: 100}
}

func (c *fakeChain) callSucceeds(call Call3) bool {
	return call.Target != brokenAddr && !(call.Target == counterAddr && !bytes.Equal(call.CallData, incrementCall))
}

func (c *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	calls, err := DecodeAggregate3Calls(msg.Data)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(calls))
	for i, call := range calls {
		results[i] = Result{Success: c.callSucceeds(call)}
	}
	return EncodeAggregate3Results(results)
}

func (c *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return c.estimateGas, c.estimateErr
}

func (c *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce, nil
}

func (c *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(5e9), nil
}

func (c *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	calls, err := DecodeAggregate3Calls(tx.Data())
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, tx)
	c.nonce++
	status := types.ReceiptStatusSuccessful
	if c.revert {
		status = types.ReceiptStatusFailed
	} else {
		for _, call := range calls {
			if call.Target == counterAddr && c.callSucceeds(call) {
				c.counter++
			}
		}
	}
	c.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(c.head),
	}
	return nil
}

func (c *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipts[hash], nil
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

type harness struct {
	chain   *fakeChain
	ledger  *ledger.Ledger
	batcher *Batcher
	account common.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	chain := newFakeChain()
	store := storage.NewMemoryStore()
	require.NoError(t, store.PutOperation(ctx, model.Operation{ID: "op-1", BlockchainID: testBlockchainID, CreatedAt: time.Now().UTC()}))

	l := ledger.New(store, chain, ledger.Config{PollInterval: 5 * time.Millisecond, ConfirmationTimeout: time.Second}, nil)

	keys := signer.NewKeySigner(big.NewInt(testBlockchainID))
	account, err := keys.AddHexKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	contracts := registry.NewStatic([]registry.ContractRef{{
		BlockchainID: testBlockchainID,
		Type:         model.ContractMulticall,
		Name:         "multicall3",
		Address:      aggregatorAddr,
	}})

	b := NewBatcher(chain, keys, contracts, l, Config{BlockchainID: testBlockchainID, ConfirmationTimeout: time.Second}, nil)
	return &harness{chain: chain, ledger: l, batcher: b, account: account}
}

func increments(n int) []model.CallDescriptor {
	calls := make([]model.CallDescriptor, n)
	for i := range calls {
		calls[i] = model.CallDescriptor{Target: counterAddr, EncodedCall: incrementCall}
	}
	return calls
}

func TestSendBatchIncrementsCounter(t *testing.T) {
	h := newHarness(t)

	res, err := h.batcher.SendBatch(context.Background(), BatchRequest{
		Account:          h.account,
		Calls:            increments(3),
		OperationID:      "op-1",
		IsProductionMode: true,
	})
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Len(t, res.Calls, 3)
	require.Equal(t, 3, h.chain.counter)
	require.Len(t, h.chain.sent, 1)
	require.Equal(t, h.chain.sent[0].Hash(), res.TxHash)
	require.Equal(t, uint64(120000), res.GasLimit)

	summary, err := h.ledger.GetStatus(context.Background(), "op-1")
	require.NoError(t, err)
	require.Equal(t, model.OperationConfirmed, summary.Operation.Status)
	require.Equal(t, 1, summary.Confirmed)
	require.Equal(t, defaultMethod, summary.Transactions[0].Method)
}

func TestSendBatchDryRunNeverSends(t *testing.T) {
	h := newHarness(t)

	res, err := h.batcher.SendBatch(context.Background(), BatchRequest{
		Account:     h.account,
		Calls:       increments(2),
		OperationID: "op-1",
	})
	require.NoError(t, err)
	require.True(t, res.DryRun)
	require.False(t, res.Succeeded())
	require.Equal(t, uint64(120000), res.GasLimit)
	require.Empty(t, h.chain.sent)
	require.Zero(t, h.chain.counter)

	summary, err := h.ledger.GetStatus(context.Background(), "op-1")
	require.NoError(t, err)
	require.Equal(t, model.OperationEmpty, summary.Operation.Status)
}

func TestSendBatchGasEstimationFailure(t *testing.T) {
	h := newHarness(t)
	h.chain.estimateErr = errors.New("execution reverted")

	_, err := h.batcher.SendBatch(context.Background(), BatchRequest{
		Account:          h.account,
		Calls:            increments(1),
		OperationID:      "op-1",
		IsProductionMode: true,
	})
	var gasErr *GasEstimationError
	require.ErrorAs(t, err, &gasErr)
	require.Equal(t, 1, gasErr.Calls)
	require.Empty(t, h.chain.sent)
}

func TestSendBatchReportsFailedCalls(t *testing.T) {
	h := newHarness(t)
	calls := increments(2)
	calls = append(calls, model.CallDescriptor{Target: brokenAddr, EncodedCall: []byte{0x01, 0x02, 0x03, 0x04}, Meta: map[string]string{"step": "claim"}})

	res, err := h.batcher.SendBatch(context.Background(), BatchRequest{
		Account:          h.account,
		Calls:            calls,
		OperationID:      "op-1",
		IsProductionMode: true,
	})
	require.NoError(t, err)
	require.True(t, res.Confirmation.Confirmed())
	require.False(t, res.Succeeded())
	require.Equal(t, 1, res.FailedCalls())
	require.False(t, res.Calls[2].Success)
	require.Equal(t, "claim", res.Calls[2].Meta["step"])
	require.Equal(t, 2, h.chain.counter)
}

func TestSendBatchRevertFailsEveryCall(t *testing.T) {
	h := newHarness(t)
	h.chain.revert = true

	res, err := h.batcher.SendBatch(context.Background(), BatchRequest{
		Account:          h.account,
		Calls:            increments(2),
		OperationID:      "op-1",
		IsProductionMode: true,
	})
	require.NoError(t, err)
	require.Equal(t, model.TxFailed, res.Confirmation.Transaction.Status)
	var reverted *ledger.RevertedError
	require.ErrorAs(t, res.Confirmation.Err, &reverted)
	require.Equal(t, 2, res.FailedCalls())
	require.False(t, res.Ambiguous())
	require.Zero(t, h.chain.counter)
	require.Len(t, h.chain.sent, 1)
}

func TestSendBatchUnknownOperation(t *testing.T) {
	h := newHarness(t)

	_, err := h.batcher.SendBatch(context.Background(), BatchRequest{
		Account:          h.account,
		Calls:            increments(1),
		OperationID:      "missing",
		IsProductionMode: true,
	})
	require.ErrorIs(t, err, ledger.ErrOperationNotFound)
	require.Empty(t, h.chain.sent)
	require.Zero(t, h.chain.counter)
	require.Zero(t, h.chain.nonce)
}

func TestSendBatchTimeoutKeepsSimulatedResults(t *testing.T) {
	h := newHarness(t)
	h.batcher.cfg.ConfirmationBlocks = 1000
	h.batcher.cfg.ConfirmationTimeout = 50 * time.Millisecond

	res, err := h.batcher.SendBatch(context.Background(), BatchRequest{
		Account:          h.account,
		Calls:            increments(3),
		OperationID:      "op-1",
		IsProductionMode: true,
	})
	require.NoError(t, err)
	require.Equal(t, model.TxFailed, res.Confirmation.Transaction.Status)
	var timeout *ledger.ConfirmationTimeoutError
	require.ErrorAs(t, res.Confirmation.Err, &timeout)
	require.True(t, res.Ambiguous())
	require.False(t, res.Succeeded())
	require.Zero(t, res.FailedCalls())
	require.Equal(t, 3, h.chain.counter)
}

func TestSendBatchRejectsEmptyBatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.batcher.SendBatch(context.Background(), BatchRequest{Account: h.account, OperationID: "op-1"})
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestSendBatchWithoutMulticallContract(t *testing.T) {
	h := newHarness(t)
	h.batcher.registry = registry.NewStatic(nil)

	_, err := h.batcher.SendBatch(context.Background(), BatchRequest{Account: h.account, Calls: increments(1), OperationID: "op-1"})
	require.ErrorIs(t, err, registry.ErrContractNotFound)
}

func TestSequentialBatchesUseIncreasingNonces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.batcher.SendBatch(ctx, BatchRequest{
			Account:          h.account,
			Calls:            increments(1),
			OperationID:      "op-1",
			IsProductionMode: true,
		})
		require.NoError(t, err)
	}
	require.Len(t, h.chain.sent, 2)
	require.Equal(t, uint64(0), h.chain.sent[0].Nonce())
	require.Equal(t, uint64(1), h.chain.sent[1].Nonce())
	require.Equal(t, 2, h.chain.counter)
}
