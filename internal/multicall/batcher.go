package multicall

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"yieldRouter/internal/ledger"
	"yieldRouter/internal/metrics"
	"yieldRouter/internal/model"
	"yieldRouter/internal/registry"
	"yieldRouter/internal/signer"
)

const (
	defaultMethod          = "multicall.aggregate3"
	defaultGasMultiplerBps = 12000
)

// ErrEmptyBatch is returned when SendBatch receives no calls.
var ErrEmptyBatch = errors.New("batch has no calls")

// GasEstimationError means the aggregate call could not be estimated. Nothing was submitted.
type GasEstimationError struct {
	OperationID string
	Calls       int
	Err         error
}

func (e *GasEstimationError) Error() string {
	return fmt.Sprintf("estimate gas for %d calls (operation %s): %v", e.Calls, e.OperationID, e.Err)
}

func (e *GasEstimationError) Unwrap() error {
	return e.Err
}

// ChainClient is the chain access needed to simulate, estimate and submit a batch.
type ChainClient interface {
	Caller
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Tracker records submitted transactions and waits for their confirmation.
type Tracker interface {
	// CheckOperation fails with ledger.ErrOperationNotFound for an unknown operation.
	CheckOperation(ctx context.Context, operationID string) error
	AcquireAccount(ctx context.Context, account common.Address) (func(), error)
	Record(ctx context.Context, operationID string, txHash common.Hash, method string, meta map[string]string) (*model.Transaction, error)
	AwaitConfirmation(ctx context.Context, tx model.Transaction, confirmationBlocks uint64, timeout time.Duration) (ledger.Confirmation, error)
}

// Config holds per-blockchain batching settings.
type Config struct {
	BlockchainID        uint64
	GasMultiplierBps    uint64
	ConfirmationBlocks  uint64
	ConfirmationTimeout time.Duration
}

// BatchRequest is one set of dependent calls submitted as a single transaction.
type BatchRequest struct {
	Account          common.Address
	Calls            []model.CallDescriptor
	OperationID      string
	Method           string
	IsProductionMode bool
}

// CallResult is the per-call outcome of a batch. Success and ReturnData come
// from the eth_call simulation before submission; Multicall3 emits no per-call
// events, so they are only overridden when the aggregate reverts on chain.
type CallResult struct {
	Index      int
	Target     common.Address
	Success    bool
	ReturnData []byte
	Meta       map[string]string
}

// BatchResult reports the aggregate transaction and every call in it.
type BatchResult struct {
	TxHash       common.Hash
	GasLimit     uint64
	DryRun       bool
	Calls        []CallResult
	Transaction  *model.Transaction
	Confirmation *ledger.Confirmation
}

// Succeeded reports whether the aggregate was confirmed and every call succeeded.
func (r *BatchResult) Succeeded() bool {
	if r.DryRun || r.Confirmation == nil || !r.Confirmation.Confirmed() {
		return false
	}
	return r.FailedCalls() == 0
}

// Ambiguous reports whether the aggregate timed out unconfirmed. It may still be
// mined, so the calls must not be resubmitted blindly.
func (r *BatchResult) Ambiguous() bool {
	if r.Confirmation == nil {
		return false
	}
	var timeout *ledger.ConfirmationTimeoutError
	return errors.As(r.Confirmation.Err, &timeout)
}

// FailedCalls counts calls reported as reverted.
func (r *BatchResult) FailedCalls() int {
	n := 0
	for _, call := range r.Calls {
		if !call.Success {
			n++
		}
	}
	return n
}

// Batcher packs calls into one Multicall3 aggregate3 transaction.
type Batcher struct {
	chain    ChainClient
	signer   signer.Signer
	registry registry.ContractRegistry
	tracker  Tracker
	cfg      Config
	logger   *zap.Logger
}

// NewBatcher builds a Batcher for one blockchain.
func NewBatcher(chain ChainClient, s signer.Signer, contracts registry.ContractRegistry, tracker Tracker, cfg Config, logger *zap.Logger) *Batcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GasMultiplierBps == 0 {
		cfg.GasMultiplierBps = defaultGasMultiplerBps
	}
	return &Batcher{
		chain:    chain,
		signer:   s,
		registry: contracts,
		tracker:  tracker,
		cfg:      cfg,
		logger:   logger.Named("multicall"),
	}
}

// SendBatch simulates, estimates and, in production mode, submits the calls as
// one transaction and waits for its confirmation. It never resubmits.
func (b *Batcher) SendBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.Calls) == 0 {
		return nil, ErrEmptyBatch
	}
	if req.OperationID == "" {
		return nil, fmt.Errorf("operation id is required")
	}
	method := req.Method
	if method == "" {
		method = defaultMethod
	}
	if err := b.tracker.CheckOperation(ctx, req.OperationID); err != nil {
		return nil, err
	}

	ref, err := b.registry.GetContract(ctx, registry.Criteria{BlockchainID: b.cfg.BlockchainID, Type: model.ContractMulticall})
	if err != nil {
		return nil, fmt.Errorf("resolve multicall: %w", err)
	}
	aggregator := ref.Address

	calls := make([]Call3, len(req.Calls))
	for i, call := range req.Calls {
		calls[i] = Call3{Target: call.Target, AllowFailure: true, CallData: call.EncodedCall}
	}
	data, err := EncodeAggregate3(calls)
	if err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{From: req.Account, To: &aggregator, Data: data}

	log := b.logger.With(
		zap.String("operation_id", req.OperationID),
		zap.String("method", method),
		zap.Int("calls", len(calls)),
		zap.Bool("production", req.IsProductionMode),
	)

	simulated, err := b.simulate(ctx, msg, len(calls))
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Calls: buildCallResults(req.Calls, simulated)}
	if failed := result.FailedCalls(); failed > 0 {
		log.Warn("calls revert in simulation", zap.Int("failed", failed))
	}

	gas, err := b.chain.EstimateGas(ctx, msg)
	if err != nil {
		metrics.IncGasEstimationFailures()
		log.Warn("gas estimation failed", zap.Error(err))
		return nil, &GasEstimationError{OperationID: req.OperationID, Calls: len(calls), Err: err}
	}
	result.GasLimit = gas * b.cfg.GasMultiplierBps / 10000

	if !req.IsProductionMode {
		result.DryRun = true
		metrics.IncBatchesDryRun()
		log.Info("batch validated (dry run)", zap.Uint64("gas_limit", result.GasLimit))
		return result, nil
	}

	record, err := b.submit(ctx, req, method, aggregator, data, result.GasLimit)
	if err != nil {
		return nil, err
	}
	result.TxHash = record.TxHash
	result.Transaction = record
	metrics.IncBatchesSubmitted()
	log.Info("batch submitted", zap.String("tx", record.TxHash.Hex()), zap.Uint64("gas_limit", result.GasLimit))

	conf, err := b.tracker.AwaitConfirmation(ctx, *record, b.cfg.ConfirmationBlocks, b.cfg.ConfirmationTimeout)
	if err != nil {
		return result, fmt.Errorf("await confirmation of %s: %w", record.TxHash.Hex(), err)
	}
	result.Confirmation = &conf
	var reverted *ledger.RevertedError
	if errors.As(conf.Err, &reverted) {
		// A reverted aggregate means no call took effect.
		for i := range result.Calls {
			result.Calls[i].Success = false
		}
	} else if result.Ambiguous() {
		log.Warn("batch outcome unknown, do not resubmit", zap.String("tx", record.TxHash.Hex()), zap.Error(conf.Err))
	}
	return result, nil
}

// simulate runs the aggregate with eth_call to learn each call's outcome.
func (b *Batcher) simulate(ctx context.Context, msg ethereum.CallMsg, n int) ([]Result, error) {
	resp, err := b.chain.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", aggregate3Method, err)
	}
	results, err := DecodeAggregate3(resp)
	if err != nil {
		return nil, err
	}
	if len(results) != n {
		return nil, fmt.Errorf("%s returned %d results for %d calls", aggregate3Method, len(results), n)
	}
	return results, nil
}

// submit signs and broadcasts while holding the account lock, then records the
// transaction. The lock is released once the node accepted the transaction.
func (b *Batcher) submit(ctx context.Context, req BatchRequest, method string, to common.Address, data []byte, gasLimit uint64) (*model.Transaction, error) {
	release, err := b.tracker.AcquireAccount(ctx, req.Account)
	if err != nil {
		return nil, fmt.Errorf("acquire account %s: %w", req.Account.Hex(), err)
	}
	defer release()

	nonce, err := b.chain.PendingNonceAt(ctx, req.Account)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := b.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := b.signer.Sign(ctx, tx, req.Account)
	if err != nil {
		return nil, fmt.Errorf("sign batch: %w", err)
	}
	if err := b.chain.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send batch: %w", err)
	}

	meta := map[string]string{
		"calls":     fmt.Sprintf("%d", len(req.Calls)),
		"account":   req.Account.Hex(),
		"nonce":     fmt.Sprintf("%d", nonce),
		"multicall": to.Hex(),
	}
	record, err := b.tracker.Record(ctx, req.OperationID, signed.Hash(), method, meta)
	if err != nil {
		// The transaction is already broadcast; surface the hash so the caller can reconcile.
		return nil, fmt.Errorf("record %s: %w", signed.Hash().Hex(), err)
	}
	return record, nil
}

func buildCallResults(calls []model.CallDescriptor, results []Result) []CallResult {
	out := make([]CallResult, len(calls))
	for i, call := range calls {
		out[i] = CallResult{
			Index:      i,
			Target:     call.Target,
			Success:    results[i].Success,
			ReturnData: results[i].ReturnData,
			Meta:       call.Meta,
		}
	}
	return out
}
