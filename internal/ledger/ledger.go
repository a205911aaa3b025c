package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"yieldRouter/internal/metrics"
	"yieldRouter/internal/model"
	"yieldRouter/internal/storage"
)

const (
	defaultPollInterval        = 3 * time.Second
	defaultConfirmationTimeout = 5 * time.Minute
)

// ChainReader is the read side of the chain needed to track confirmations.
type ChainReader interface {
	// TransactionReceipt returns nil, nil while the transaction is not mined.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config holds per-blockchain confirmation settings.
type Config struct {
	PollInterval        time.Duration
	ConfirmationBlocks  uint64
	ConfirmationTimeout time.Duration
}

// Confirmation is the outcome of waiting for a transaction. Err carries the
// chain level failure (revert or timeout) so callers decide on retries.
type Confirmation struct {
	Transaction model.Transaction
	Receipt     *types.Receipt
	Err         error
}

// Confirmed reports whether the transaction reached the confirmed state.
func (c Confirmation) Confirmed() bool {
	return c.Transaction.Status == model.TxConfirmed
}

// AsyncResult is delivered by AwaitConfirmationAsync.
type AsyncResult struct {
	Confirmation Confirmation
	Err          error
}

// OperationSummary aggregates the transactions recorded under an operation.
type OperationSummary struct {
	Operation    model.Operation
	Transactions []model.Transaction
	Pending      int
	Confirmed    int
	Failed       int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSink mirrors every transaction state change into sink.
func WithSink(sink storage.Sink) Option {
	return func(l *Ledger) {
		l.sink = sink
	}
}

// Ledger records transactions under caller supplied operation ids and tracks
// their confirmation. It never submits or resubmits transactions.
type Ledger struct {
	store  storage.Store
	chain  ChainReader
	sink   storage.Sink
	cfg    Config
	logger *zap.Logger
	locks  *AccountLocks
}

// New builds a Ledger.
func New(store storage.Store, chain ChainReader, cfg Config, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = defaultConfirmationTimeout
	}
	l := &Ledger{
		store:  store,
		chain:  chain,
		cfg:    cfg,
		logger: logger.Named("ledger"),
		locks:  NewAccountLocks(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the confirmation settings of the ledger.
func (l *Ledger) Config() Config {
	return l.cfg
}

// AcquireAccount serializes submissions from account. See AccountLocks.
func (l *Ledger) AcquireAccount(ctx context.Context, account common.Address) (func(), error) {
	return l.locks.Acquire(ctx, account)
}

// CheckOperation returns ErrOperationNotFound unless operationID exists.
// Submitters call it before broadcasting so no transaction goes out untracked.
func (l *Ledger) CheckOperation(ctx context.Context, operationID string) error {
	if _, ok, err := l.store.GetOperation(ctx, operationID); err != nil {
		return fmt.Errorf("load operation: %w", err)
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
	}
	return nil
}

// Record stores a pending transaction under operationID. Recording the same
// hash twice returns the stored transaction unchanged.
func (l *Ledger) Record(ctx context.Context, operationID string, txHash common.Hash, method string, meta map[string]string) (*model.Transaction, error) {
	if err := l.CheckOperation(ctx, operationID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tx := model.Transaction{
		UID:       operationID,
		Method:    method,
		Meta:      copyMeta(meta),
		TxHash:    txHash,
		Status:    model.TxPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	inserted, err := l.store.InsertTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if !inserted {
		existing, ok, err := l.store.GetTransaction(ctx, operationID, txHash)
		if err != nil {
			return nil, fmt.Errorf("load transaction: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("transaction %s vanished after insert", txHash.Hex())
		}
		return &existing, nil
	}

	l.journal(tx)
	l.logger.Info("transaction recorded",
		zap.String("operation_id", operationID),
		zap.String("tx", txHash.Hex()),
		zap.String("method", method),
	)
	return &tx, nil
}

// AwaitConfirmation polls until tx is confirmed by confirmationBlocks blocks,
// reverts, or timeout elapses. Cancelling ctx only stops the local wait: the
// transaction stays pending and ctx.Err() is returned.
func (l *Ledger) AwaitConfirmation(ctx context.Context, tx model.Transaction, confirmationBlocks uint64, timeout time.Duration) (Confirmation, error) {
	if timeout <= 0 {
		timeout = l.cfg.ConfirmationTimeout
	}

	current, ok, err := l.store.GetTransaction(ctx, tx.UID, tx.TxHash)
	if err != nil {
		return Confirmation{Transaction: tx}, fmt.Errorf("load transaction: %w", err)
	}
	if !ok {
		return Confirmation{Transaction: tx}, fmt.Errorf("transaction %s is not recorded under %s", tx.TxHash.Hex(), tx.UID)
	}
	if current.Status.Terminal() {
		return terminalConfirmation(current), nil
	}

	start := time.Now()
	defer func() {
		metrics.RecordConfirmationWait(time.Since(start).Milliseconds())
	}()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		conf, done, err := l.poll(ctx, waitCtx, current, confirmationBlocks)
		if err != nil || done {
			return conf, err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				l.logger.Info("confirmation wait abandoned", zap.String("tx", current.TxHash.Hex()), zap.Error(ctx.Err()))
				return Confirmation{Transaction: current}, ctx.Err()
			}
			return l.finish(ctx, current, model.TxFailed, 0, nil, &ConfirmationTimeoutError{TxHash: current.TxHash, Timeout: timeout})
		case <-ticker.C:
		}
	}
}

// AwaitConfirmationAsync runs AwaitConfirmation in the background.
func (l *Ledger) AwaitConfirmationAsync(ctx context.Context, tx model.Transaction, confirmationBlocks uint64, timeout time.Duration) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		defer close(out)
		conf, err := l.AwaitConfirmation(ctx, tx, confirmationBlocks, timeout)
		out <- AsyncResult{Confirmation: conf, Err: err}
	}()
	return out
}

// poll checks the receipt once. RPC failures are logged and retried on the next tick.
func (l *Ledger) poll(ctx, waitCtx context.Context, tx model.Transaction, confirmationBlocks uint64) (Confirmation, bool, error) {
	receipt, err := l.chain.TransactionReceipt(waitCtx, tx.TxHash)
	if err != nil {
		if waitCtx.Err() == nil {
			l.logger.Warn("receipt fetch failed", zap.String("tx", tx.TxHash.Hex()), zap.Error(err))
		}
		return Confirmation{}, false, nil
	}
	if receipt == nil {
		return Confirmation{}, false, nil
	}

	mined := receipt.BlockNumber.Uint64()
	if receipt.Status == types.ReceiptStatusFailed {
		conf, err := l.finish(ctx, tx, model.TxFailed, mined, receipt, &RevertedError{TxHash: tx.TxHash, BlockNumber: mined})
		return conf, true, err
	}

	head, err := l.chain.BlockNumber(waitCtx)
	if err != nil {
		if waitCtx.Err() == nil {
			l.logger.Warn("block number fetch failed", zap.String("tx", tx.TxHash.Hex()), zap.Error(err))
		}
		return Confirmation{}, false, nil
	}
	if head < mined+confirmationBlocks {
		l.logger.Debug("awaiting confirmations",
			zap.String("tx", tx.TxHash.Hex()),
			zap.Uint64("mined", mined),
			zap.Uint64("head", head),
			zap.Uint64("required", confirmationBlocks),
		)
		return Confirmation{}, false, nil
	}

	conf, err := l.finish(ctx, tx, model.TxConfirmed, mined, receipt, nil)
	return conf, true, err
}

// finish moves tx into a terminal state. If another writer already finished
// it, the stored state wins.
func (l *Ledger) finish(ctx context.Context, tx model.Transaction, status model.TxStatus, block uint64, receipt *types.Receipt, cause error) (Confirmation, error) {
	if !tx.Status.CanTransition(status) {
		return Confirmation{Transaction: tx}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, tx.Status, status)
	}

	updated := tx
	updated.Status = status
	updated.BlockNumber = block
	updated.UpdatedAt = time.Now().UTC()
	if cause != nil {
		updated.Error = cause.Error()
	}

	if err := l.store.UpdateTransaction(ctx, updated); err != nil {
		if !errors.Is(err, storage.ErrNotPending) {
			return Confirmation{Transaction: tx}, fmt.Errorf("update transaction: %w", err)
		}
		stored, ok, loadErr := l.store.GetTransaction(ctx, tx.UID, tx.TxHash)
		if loadErr != nil || !ok {
			return Confirmation{Transaction: tx}, fmt.Errorf("update transaction: %w", err)
		}
		return terminalConfirmation(stored), nil
	}

	if status == model.TxConfirmed {
		metrics.IncTransactionsConfirmed()
	} else {
		metrics.IncTransactionsFailed()
	}
	l.journal(updated)
	l.logger.Info("transaction finished",
		zap.String("operation_id", updated.UID),
		zap.String("tx", updated.TxHash.Hex()),
		zap.String("status", string(status)),
		zap.Uint64("block", block),
		zap.NamedError("cause", cause),
	)
	return Confirmation{Transaction: updated, Receipt: receipt, Err: cause}, nil
}

// GetStatus summarises the transactions recorded under operationID.
func (l *Ledger) GetStatus(ctx context.Context, operationID string) (OperationSummary, error) {
	op, ok, err := l.store.GetOperation(ctx, operationID)
	if err != nil {
		return OperationSummary{}, fmt.Errorf("load operation: %w", err)
	}
	if !ok {
		return OperationSummary{}, fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
	}

	txs, err := l.store.ListTransactions(ctx, operationID)
	if err != nil {
		return OperationSummary{}, fmt.Errorf("list transactions: %w", err)
	}

	summary := OperationSummary{Operation: op, Transactions: txs}
	for _, tx := range txs {
		switch tx.Status {
		case model.TxPending:
			summary.Pending++
		case model.TxConfirmed:
			summary.Confirmed++
		case model.TxFailed:
			summary.Failed++
		}
	}
	summary.Operation.Status = model.DeriveOperationStatus(txs)
	return summary, nil
}

func (l *Ledger) journal(tx model.Transaction) {
	if l.sink == nil {
		return
	}
	if err := l.sink.PutTransactionBatch([]model.Transaction{tx}); err != nil {
		l.logger.Warn("journal write failed", zap.String("tx", tx.TxHash.Hex()), zap.Error(err))
	}
}

func terminalConfirmation(tx model.Transaction) Confirmation {
	conf := Confirmation{Transaction: tx}
	if tx.Error != "" {
		conf.Err = errors.New(tx.Error)
	}
	return conf
}

func copyMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
