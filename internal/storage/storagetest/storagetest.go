// Package storagetest holds behaviour checks shared by every storage.Store.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"yieldRouter/internal/model"
	"yieldRouter/internal/storage"
)

// Run exercises store. The store must not hold the operation ids used here.
func Run(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	opID := "op-" + created.Format("20060102150405")
	first := common.HexToHash("0x01")
	second := common.HexToHash("0x02")

	t.Run("operations", func(t *testing.T) {
		_, ok, err := store.GetOperation(ctx, opID)
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, store.PutOperation(ctx, model.Operation{ID: opID, BlockchainID: 56, StrategyID: "farm", CreatedAt: created}))
		require.NoError(t, store.PutOperation(ctx, model.Operation{ID: opID, BlockchainID: 1, CreatedAt: created}))

		op, ok, err := store.GetOperation(ctx, opID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(56), op.BlockchainID)
		require.Equal(t, "farm", op.StrategyID)
	})

	t.Run("insert is idempotent", func(t *testing.T) {
		tx := model.Transaction{UID: opID, Method: "deposit", Meta: map[string]string{"pool": "7"}, TxHash: first, Status: model.TxPending, CreatedAt: created, UpdatedAt: created}
		inserted, err := store.InsertTransaction(ctx, tx)
		require.NoError(t, err)
		require.True(t, inserted)

		tx.Method = "other"
		inserted, err = store.InsertTransaction(ctx, tx)
		require.NoError(t, err)
		require.False(t, inserted)

		got, ok, err := store.GetTransaction(ctx, opID, first)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "deposit", got.Method)
		require.Equal(t, "7", got.Meta["pool"])
	})

	t.Run("update only from pending", func(t *testing.T) {
		tx, _, err := store.GetTransaction(ctx, opID, first)
		require.NoError(t, err)
		tx.Status = model.TxConfirmed
		tx.BlockNumber = 42
		require.NoError(t, store.UpdateTransaction(ctx, tx))

		tx.Status = model.TxFailed
		require.ErrorIs(t, store.UpdateTransaction(ctx, tx), storage.ErrNotPending)

		got, _, err := store.GetTransaction(ctx, opID, first)
		require.NoError(t, err)
		require.Equal(t, model.TxConfirmed, got.Status)
		require.Equal(t, uint64(42), got.BlockNumber)

		missing := model.Transaction{UID: opID, TxHash: common.HexToHash("0xdead"), Status: model.TxFailed}
		require.ErrorIs(t, store.UpdateTransaction(ctx, missing), storage.ErrTransactionNotFound)
	})

	t.Run("list in creation order", func(t *testing.T) {
		later := created.Add(time.Minute)
		_, err := store.InsertTransaction(ctx, model.Transaction{UID: opID, Method: "stake", TxHash: second, Status: model.TxPending, CreatedAt: later, UpdatedAt: later})
		require.NoError(t, err)

		txs, err := store.ListTransactions(ctx, opID)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		require.Equal(t, first, txs[0].TxHash)
		require.Equal(t, second, txs[1].TxHash)

		none, err := store.ListTransactions(ctx, "unknown")
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("concurrent updates settle once", func(t *testing.T) {
		contested := common.HexToHash("0x03")
		tx := model.Transaction{UID: opID, Method: "harvest", TxHash: contested, Status: model.TxPending, CreatedAt: created, UpdatedAt: created}
		_, err := store.InsertTransaction(ctx, tx)
		require.NoError(t, err)

		const writers = 8
		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				update := tx
				update.Status = model.TxConfirmed
				if i%2 == 1 {
					update.Status = model.TxFailed
				}
				update.BlockNumber = uint64(100 + i)
				errs[i] = store.UpdateTransaction(ctx, update)
			}(i)
		}
		wg.Wait()

		winner := -1
		for i, err := range errs {
			if err == nil {
				require.Equal(t, -1, winner, "more than one writer settled the transaction")
				winner = i
				continue
			}
			require.ErrorIs(t, err, storage.ErrNotPending)
		}
		require.NotEqual(t, -1, winner)

		got, _, err := store.GetTransaction(ctx, opID, contested)
		require.NoError(t, err)
		require.Equal(t, uint64(100+winner), got.BlockNumber)
	})
}
