package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "engine",
		Short:        "Trade routing and batched execution engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("store", "memory", "ledger store (memory, postgres, redis)")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	root.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address")
	root.PersistentFlags().String("journal", "", "optional JSONL journal of transaction states")
	root.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	root.PersistentFlags().Uint64("blockchain", 0, "blockchain id, optional when only one is configured")

	routeCmd := &cobra.Command{
		Use:   "route",
		Short: "Find the best swap route on a platform",
		RunE:  runRoute,
	}

	routeCmd.Flags().String("platform", "", "AMM platform (pancakeswap, apeswap, biswap, mdex, babyswap)")
	routeCmd.Flags().String("from", "", "source token symbol or address")
	routeCmd.Flags().String("to", "", "destination token symbol or address")
	routeCmd.Flags().String("amount", "", "amount in token units (e.g. 1.5)")
	routeCmd.Flags().Bool("exact-out", false, "treat amount as the exact output")
	routeCmd.Flags().Int("max-hops", 3, "maximum number of hops")
	routeCmd.Flags().Int64("safety-margin-bps", 500, "largest share of a reserve one hop may consume")
	routeCmd.Flags().Int64("hops-threshold-bps", 50, "improvement a longer route needs over a shorter one")

	root.AddCommand(routeCmd)

	batchCmd := &cobra.Command{
		Use:   "batch <calls.yaml>",
		Short: "Submit a file of calls as one multicall transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	batchCmd.Flags().String("account", "", "signing account address")
	batchCmd.Flags().String("operation", "", "operation id, a new operation is created when empty")
	batchCmd.Flags().String("method", "", "method label recorded in the ledger")
	batchCmd.Flags().Bool("dry-run", false, "simulate and estimate only, even on production chains")

	root.AddCommand(batchCmd)

	statusCmd := &cobra.Command{
		Use:   "status <operation-id>",
		Short: "Show the transactions recorded under an operation",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}

	root.AddCommand(statusCmd)

	operationCmd := &cobra.Command{
		Use:   "operation",
		Short: "Manage operations",
	}
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an operation and print its id",
		RunE:  runOperationCreate,
	}
	createCmd.Flags().String("id", "", "operation id, generated when empty")
	createCmd.Flags().String("strategy", "", "strategy id")
	operationCmd.AddCommand(createCmd)

	root.AddCommand(operationCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
