package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yieldRouter/internal/chain"
	"yieldRouter/internal/config"
	"yieldRouter/internal/ledger"
	"yieldRouter/internal/signer"
	"yieldRouter/internal/storage"
	"yieldRouter/internal/storage/postgres"
	"yieldRouter/internal/storage/redisstore"
)

// app bundles what every command needs; close releases it in reverse order.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   storage.Store
	closers []func()
}

func (r *app) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	_ = r.logger.Sync()
}

func setup(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	rt := &app{cfg: cfg, logger: logger}

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.store = store
	rt.closers = append(rt.closers, closeStore)

	if cfg.MetricsAddr != "" {
		rt.closers = append(rt.closers, serveMetrics(cfg.MetricsAddr, logger))
	}
	return rt, nil
}

func openStore(ctx context.Context, cfg config.Store) (storage.Store, func(), error) {
	switch cfg.Kind {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, store.Close, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return redisstore.NewStore(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil
	default:
		return storage.NewMemoryStore(), func() {}, nil
	}
}

func serveMetrics(addr string, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("metrics server started", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

// selectBlockchain picks the chain named by --blockchain, or the only configured one.
func (r *app) selectBlockchain(cmd *cobra.Command) (config.Blockchain, error) {
	id, _ := cmd.Flags().GetUint64("blockchain")
	if id != 0 {
		return r.cfg.Blockchain(id)
	}
	switch len(r.cfg.Blockchains) {
	case 0:
		return config.Blockchain{}, fmt.Errorf("no blockchain configured")
	case 1:
		return r.cfg.Blockchains[0], nil
	default:
		return config.Blockchain{}, fmt.Errorf("--blockchain is required when %d blockchains are configured", len(r.cfg.Blockchains))
	}
}

func (r *app) dial(ctx context.Context, bc config.Blockchain) (*chain.Client, error) {
	client, err := chain.NewClient(ctx, bc.RPCURL, chain.Options{RPCTimeout: bc.RPCTimeout, RateLimit: bc.RPCRateLimit})
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	r.closers = append(r.closers, client.Close)
	return client, nil
}

func (r *app) newLedger(client ledger.ChainReader, bc config.Blockchain) *ledger.Ledger {
	var opts []ledger.Option
	if r.cfg.Store.Journal != "" {
		opts = append(opts, ledger.WithSink(storage.NewJsonlJournal(r.cfg.Store.Journal)))
	}
	return ledger.New(r.store, client, ledger.Config{
		PollInterval:        bc.PollInterval,
		ConfirmationBlocks:  bc.ConfirmationBlocks,
		ConfirmationTimeout: bc.ConfirmationTimeout,
	}, r.logger, opts...)
}

// loadSigner registers the key of every configured account whose key env var is set.
func loadSigner(ctx context.Context, client *chain.Client, bc config.Blockchain, logger *zap.Logger) (*signer.KeySigner, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	keys := signer.NewKeySigner(chainID)
	for _, account := range bc.Accounts {
		if account.KeyEnv == "" {
			continue
		}
		hexKey := strings.TrimSpace(os.Getenv(account.KeyEnv))
		if hexKey == "" {
			logger.Warn("account key not set", zap.String("account", account.Address.Hex()), zap.String("env", account.KeyEnv))
			continue
		}
		address, err := keys.AddHexKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", account.Address.Hex(), err)
		}
		if address != account.Address {
			return nil, fmt.Errorf("key in %s belongs to %s, not %s", account.KeyEnv, address.Hex(), account.Address.Hex())
		}
	}
	return keys, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
