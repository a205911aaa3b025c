package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"yieldRouter/internal/config"
	"yieldRouter/internal/model"
	"yieldRouter/internal/multicall"
	"yieldRouter/internal/registry"
)

// batchFile is the YAML layout accepted by the batch command.
type batchFile struct {
	Method string      `yaml:"method"`
	Calls  []batchCall `yaml:"calls"`
}

type batchCall struct {
	Target string            `yaml:"target"`
	Data   string            `yaml:"data"`
	Meta   map[string]string `yaml:"meta"`
}

type batchCallOutput struct {
	Index      int               `json:"index"`
	Target     string            `json:"target"`
	Success    bool              `json:"success"`
	ReturnData string            `json:"return_data,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

type batchOutput struct {
	OperationID string            `json:"operation_id"`
	DryRun      bool              `json:"dry_run"`
	TxHash      string            `json:"tx_hash,omitempty"`
	GasLimit    uint64            `json:"gas_limit"`
	Status      string            `json:"status,omitempty"`
	Error       string            `json:"error,omitempty"`
	Calls       []batchCallOutput `json:"calls"`
}

func loadBatchFile(path string) (batchFile, []model.CallDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return batchFile{}, nil, fmt.Errorf("read batch file: %w", err)
	}
	var file batchFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return batchFile{}, nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(file.Calls) == 0 {
		return batchFile{}, nil, fmt.Errorf("batch file %s has no calls", path)
	}

	calls := make([]model.CallDescriptor, 0, len(file.Calls))
	for i, call := range file.Calls {
		if !common.IsHexAddress(call.Target) {
			return batchFile{}, nil, fmt.Errorf("calls[%d]: invalid target %q", i, call.Target)
		}
		encoded, err := hexutil.Decode(call.Data)
		if err != nil {
			return batchFile{}, nil, fmt.Errorf("calls[%d]: decode data: %w", i, err)
		}
		calls = append(calls, model.CallDescriptor{
			Target:      common.HexToAddress(call.Target),
			EncodedCall: encoded,
			Meta:        call.Meta,
		})
	}
	return file, calls, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	file, calls, err := loadBatchFile(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	bc, err := rt.selectBlockchain(cmd)
	if err != nil {
		return err
	}

	accountHex, _ := cmd.Flags().GetString("account")
	account, err := selectAccount(bc.Accounts, accountHex)
	if err != nil {
		return err
	}

	operationID, _ := cmd.Flags().GetString("operation")
	if operationID == "" {
		operationID = uuid.NewString()
		if err := rt.store.PutOperation(ctx, model.Operation{ID: operationID, BlockchainID: bc.ID, CreatedAt: time.Now().UTC()}); err != nil {
			return fmt.Errorf("create operation: %w", err)
		}
	}

	method, _ := cmd.Flags().GetString("method")
	if method == "" {
		method = file.Method
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	client, err := rt.dial(ctx, bc)
	if err != nil {
		return err
	}
	keys, err := loadSigner(ctx, client, bc, rt.logger)
	if err != nil {
		return err
	}

	batcher := multicall.NewBatcher(client, keys, registry.NewStatic(bc.Contracts), rt.newLedger(client, bc), multicall.Config{
		BlockchainID:        bc.ID,
		GasMultiplierBps:    bc.GasMultiplierBps,
		ConfirmationBlocks:  bc.ConfirmationBlocks,
		ConfirmationTimeout: bc.ConfirmationTimeout,
	}, rt.logger)

	rt.logger.Info("batch start",
		zap.Uint64("blockchain", bc.ID),
		zap.String("account", account.Hex()),
		zap.String("operation_id", operationID),
		zap.Int("calls", len(calls)),
		zap.Bool("production", bc.Production && !dryRun),
	)

	res, err := batcher.SendBatch(ctx, multicall.BatchRequest{
		Account:          account,
		Calls:            calls,
		OperationID:      operationID,
		Method:           method,
		IsProductionMode: bc.Production && !dryRun,
	})
	if res != nil {
		if printErr := printJSON(describeBatch(operationID, res)); printErr != nil && err == nil {
			err = printErr
		}
	}
	return err
}

func selectAccount(accounts []config.Account, hex string) (common.Address, error) {
	if hex != "" {
		if !common.IsHexAddress(hex) {
			return common.Address{}, fmt.Errorf("invalid account %q", hex)
		}
		return common.HexToAddress(hex), nil
	}
	if len(accounts) == 1 {
		return accounts[0].Address, nil
	}
	return common.Address{}, fmt.Errorf("--account is required when %d accounts are configured", len(accounts))
}

func describeBatch(operationID string, res *multicall.BatchResult) batchOutput {
	out := batchOutput{
		OperationID: operationID,
		DryRun:      res.DryRun,
		GasLimit:    res.GasLimit,
	}
	if res.Transaction != nil {
		out.TxHash = res.TxHash.Hex()
		out.Status = string(res.Transaction.Status)
	}
	if res.Confirmation != nil {
		out.Status = string(res.Confirmation.Transaction.Status)
		if res.Confirmation.Err != nil {
			out.Error = res.Confirmation.Err.Error()
		}
	}
	for _, call := range res.Calls {
		item := batchCallOutput{
			Index:   call.Index,
			Target:  call.Target.Hex(),
			Success: call.Success,
			Meta:    call.Meta,
		}
		if len(call.ReturnData) > 0 {
			item.ReturnData = hexutil.Encode(call.ReturnData)
		}
		out.Calls = append(out.Calls, item)
	}
	return out
}
