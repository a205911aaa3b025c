package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrOperationNotFound is returned when recording under an unknown operation.
	ErrOperationNotFound = errors.New("operation not found")
	// ErrIllegalTransition is returned for any status change other than pending -> terminal.
	ErrIllegalTransition = errors.New("illegal transaction status transition")
)

// ConfirmationTimeoutError is reported when a transaction was not confirmed in time.
// The outcome is ambiguous: the transaction may still be mined later.
type ConfirmationTimeoutError struct {
	TxHash  common.Hash
	Timeout time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed within %s", e.TxHash.Hex(), e.Timeout)
}

// RevertedError is reported when the receipt shows an execution failure.
type RevertedError struct {
	TxHash      common.Hash
	BlockNumber uint64
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("transaction %s reverted in block %d", e.TxHash.Hex(), e.BlockNumber)
}
