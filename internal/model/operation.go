package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxStatus is the lifecycle state of a submitted transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// CanTransition reports whether moving from s to next is legal.
// Only pending -> confirmed and pending -> failed are allowed.
func (s TxStatus) CanTransition(next TxStatus) bool {
	return s == TxPending && next.Terminal()
}

// OperationStatus is derived from the transactions of an operation.
type OperationStatus string

const (
	OperationEmpty     OperationStatus = "empty"
	OperationPending   OperationStatus = "pending"
	OperationConfirmed OperationStatus = "confirmed"
	OperationFailed    OperationStatus = "failed"
	OperationPartial   OperationStatus = "partial"
)

// Operation is one logical unit of work, created by the strategy runner.
type Operation struct {
	ID           string          `json:"id"`
	BlockchainID uint64          `json:"blockchain_id"`
	StrategyID   string          `json:"strategy_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       OperationStatus `json:"status"`
}

// Transaction is a submitted call or call batch recorded under an operation.
type Transaction struct {
	UID         string            `json:"uid"`
	Method      string            `json:"method"`
	Meta        map[string]string `json:"meta,omitempty"`
	TxHash      common.Hash       `json:"tx_hash"`
	BlockNumber uint64            `json:"block_number,omitempty"`
	Status      TxStatus          `json:"status"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// DeriveOperationStatus folds transaction statuses into an operation status.
func DeriveOperationStatus(txs []Transaction) OperationStatus {
	if len(txs) == 0 {
		return OperationEmpty
	}
	var pending, confirmed, failed int
	for _, tx := range txs {
		switch tx.Status {
		case TxPending:
			pending++
		case TxConfirmed:
			confirmed++
		case TxFailed:
			failed++
		}
	}
	switch {
	case pending > 0:
		return OperationPending
	case failed == 0:
		return OperationConfirmed
	case confirmed == 0:
		return OperationFailed
	default:
		return OperationPartial
	}
}
