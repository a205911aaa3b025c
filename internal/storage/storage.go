package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"yieldRouter/internal/model"
)

var (
	// ErrNotPending is returned when a status update targets a transaction that already left pending.
	ErrNotPending = errors.New("transaction is not pending")
	// ErrTransactionNotFound is returned when updating an unknown transaction.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Store persists operations and their transactions keyed by (operation id, tx hash).
type Store interface {
	// PutOperation creates the operation if it does not exist yet.
	PutOperation(ctx context.Context, op model.Operation) error
	GetOperation(ctx context.Context, id string) (model.Operation, bool, error)

	// InsertTransaction stores tx unless (tx.UID, tx.TxHash) is already present.
	// It reports whether a new row was written.
	InsertTransaction(ctx context.Context, tx model.Transaction) (bool, error)
	GetTransaction(ctx context.Context, uid string, hash common.Hash) (model.Transaction, bool, error)
	// UpdateTransaction replaces a pending transaction. It fails with ErrNotPending
	// when the stored row is already terminal.
	UpdateTransaction(ctx context.Context, tx model.Transaction) error
	ListTransactions(ctx context.Context, uid string) ([]model.Transaction, error)
}

// Sink receives a copy of every transaction state written by the ledger.
type Sink interface {
	PutTransactionBatch(txs []model.Transaction) error
}
