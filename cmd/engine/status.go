package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yieldRouter/internal/config"
	"yieldRouter/internal/ledger"
	"yieldRouter/internal/model"
)

type statusOutput struct {
	Operation    model.Operation     `json:"operation"`
	Pending      int                 `json:"pending"`
	Confirmed    int                 `json:"confirmed"`
	Failed       int                 `json:"failed"`
	Transactions []model.Transaction `json:"transactions"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	// Status reads the store only, so no chain connection is needed.
	l := ledger.New(rt.store, nil, ledger.Config{}, rt.logger)
	summary, err := l.GetStatus(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(statusOutput{
		Operation:    summary.Operation,
		Pending:      summary.Pending,
		Confirmed:    summary.Confirmed,
		Failed:       summary.Failed,
		Transactions: summary.Transactions,
	})
}

func runOperationCreate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.cfg.Store.Kind == config.StoreMemory {
		rt.logger.Warn("memory store does not outlive this process")
	}

	bc, err := rt.selectBlockchain(cmd)
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = uuid.NewString()
	}
	strategy, _ := cmd.Flags().GetString("strategy")

	op := model.Operation{ID: id, BlockchainID: bc.ID, StrategyID: strategy, CreatedAt: time.Now().UTC()}
	if err := rt.store.PutOperation(ctx, op); err != nil {
		return fmt.Errorf("create operation: %w", err)
	}
	rt.logger.Info("operation created", zap.String("operation_id", id), zap.Uint64("blockchain", bc.ID))
	fmt.Println(id)
	return nil
}
