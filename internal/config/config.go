package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"yieldRouter/internal/model"
	"yieldRouter/internal/registry"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel    string
	MetricsAddr string
	Routing     Routing
	Store       Store
	Blockchains []Blockchain
}

// Routing holds route optimizer defaults.
type Routing struct {
	MaxHops          int
	SafetyMarginBps  int64
	HopsThresholdBps int64
}

// Store selects the ledger backend.
type Store struct {
	Kind          string
	PGDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	Journal       string
}

// Blockchain is the resolved configuration of one chain.
type Blockchain struct {
	ID                  uint64
	Name                string
	RPCURL              string
	ConfirmationBlocks  uint64
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	RPCTimeout          time.Duration
	RPCRateLimit        float64
	GasMultiplierBps    uint64
	Production          bool
	Tokens              []model.Token
	Base                []model.Token
	Contracts           []registry.ContractRef
	Platforms           []model.Platform
	Accounts            []Account
}

// Account is a signing account whose private key is read from KeyEnv.
type Account struct {
	Address common.Address
	KeyEnv  string
}

// TokenSet indexes the configured tokens.
func (b Blockchain) TokenSet() *model.TokenSet {
	return model.NewTokenSet(b.Tokens)
}

// HasPlatform reports whether platform is enabled on the chain.
func (b Blockchain) HasPlatform(platform model.Platform) bool {
	for _, p := range b.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// Blockchain returns the chain with id.
func (c Config) Blockchain(id uint64) (Blockchain, error) {
	for _, chain := range c.Blockchains {
		if chain.ID == id {
			return chain, nil
		}
	}
	return Blockchain{}, fmt.Errorf("blockchain %d is not configured", id)
}

type rawToken struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Decimals uint8  `mapstructure:"decimals"`
	Platform string `mapstructure:"platform"`
	Base     bool   `mapstructure:"base"`
}

type rawContract struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Platform string `mapstructure:"platform"`
	Address  string `mapstructure:"address"`
}

type rawAccount struct {
	Address string `mapstructure:"address"`
	KeyEnv  string `mapstructure:"key-env"`
}

type rawBlockchain struct {
	ID                  uint64        `mapstructure:"id"`
	Name                string        `mapstructure:"name"`
	RPC                 string        `mapstructure:"rpc"`
	ConfirmationBlocks  uint64        `mapstructure:"confirmation-blocks"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation-timeout"`
	PollInterval        time.Duration `mapstructure:"poll-interval"`
	RPCTimeout          time.Duration `mapstructure:"rpc-timeout"`
	RPCRateLimit        float64       `mapstructure:"rpc-rate-limit"`
	GasMultiplierBps    uint64        `mapstructure:"gas-multiplier-bps"`
	Production          bool          `mapstructure:"production"`
	Tokens              []rawToken    `mapstructure:"tokens"`
	Contracts           []rawContract `mapstructure:"contracts"`
	Platforms           []string      `mapstructure:"platforms"`
	Accounts            []rawAccount  `mapstructure:"accounts"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("metrics-addr", "")
	v.SetDefault("max-hops", 3)
	v.SetDefault("safety-margin-bps", 500)
	v.SetDefault("hops-threshold-bps", 50)
	v.SetDefault("store", StoreMemory)
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-prefix", "engine:")
	v.SetDefault("journal", "")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		LogLevel:    v.GetString("log-level"),
		MetricsAddr: v.GetString("metrics-addr"),
		Routing: Routing{
			MaxHops:          v.GetInt("max-hops"),
			SafetyMarginBps:  v.GetInt64("safety-margin-bps"),
			HopsThresholdBps: v.GetInt64("hops-threshold-bps"),
		},
		Store: Store{
			Kind:          strings.ToLower(v.GetString("store")),
			PGDSN:         v.GetString("pg-dsn"),
			RedisAddr:     v.GetString("redis-addr"),
			RedisPassword: v.GetString("redis-password"),
			RedisDB:       v.GetInt("redis-db"),
			RedisPrefix:   v.GetString("redis-prefix"),
			Journal:       v.GetString("journal"),
		},
	}

	var raws []rawBlockchain
	if err := v.UnmarshalKey("blockchains", &raws); err != nil {
		return Config{}, fmt.Errorf("decode blockchains: %w", err)
	}
	for i, raw := range raws {
		chain, err := resolveBlockchain(raw)
		if err != nil {
			return Config{}, fmt.Errorf("blockchains[%d]: %w", i, err)
		}
		cfg.Blockchains = append(cfg.Blockchains, chain)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that do not depend on a specific command.
func (c Config) Validate() error {
	if c.Routing.MaxHops < 1 {
		return fmt.Errorf("max-hops must be at least 1")
	}
	if c.Routing.SafetyMarginBps <= 0 || c.Routing.SafetyMarginBps > 10000 {
		return fmt.Errorf("safety-margin-bps must be in (0, 10000]")
	}
	if c.Routing.HopsThresholdBps < 0 {
		return fmt.Errorf("hops-threshold-bps must not be negative")
	}
	switch c.Store.Kind {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.Store.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store.Kind)
	}

	seen := make(map[uint64]struct{}, len(c.Blockchains))
	for _, chain := range c.Blockchains {
		if _, ok := seen[chain.ID]; ok {
			return fmt.Errorf("blockchain %d configured twice", chain.ID)
		}
		seen[chain.ID] = struct{}{}
	}
	return nil
}

func resolveBlockchain(raw rawBlockchain) (Blockchain, error) {
	if raw.ID == 0 {
		return Blockchain{}, fmt.Errorf("id is required")
	}
	if raw.RPC == "" {
		return Blockchain{}, fmt.Errorf("rpc is required")
	}

	chain := Blockchain{
		ID:                  raw.ID,
		Name:                raw.Name,
		RPCURL:              raw.RPC,
		ConfirmationBlocks:  raw.ConfirmationBlocks,
		ConfirmationTimeout: withDefault(raw.ConfirmationTimeout, 5*time.Minute),
		PollInterval:        withDefault(raw.PollInterval, 3*time.Second),
		RPCTimeout:          withDefault(raw.RPCTimeout, 10*time.Second),
		RPCRateLimit:        raw.RPCRateLimit,
		GasMultiplierBps:    raw.GasMultiplierBps,
		Production:          raw.Production,
	}
	if chain.GasMultiplierBps == 0 {
		chain.GasMultiplierBps = 12000
	}
	if chain.GasMultiplierBps < 10000 {
		return Blockchain{}, fmt.Errorf("gas-multiplier-bps must be at least 10000")
	}

	for _, name := range raw.Platforms {
		platform, err := model.ParsePlatform(name)
		if err != nil {
			return Blockchain{}, err
		}
		chain.Platforms = append(chain.Platforms, platform)
	}

	for _, rt := range raw.Tokens {
		if !common.IsHexAddress(rt.Address) {
			return Blockchain{}, fmt.Errorf("token %q: invalid address %q", rt.Symbol, rt.Address)
		}
		token := model.Token{Address: common.HexToAddress(rt.Address), Symbol: rt.Symbol, Decimals: rt.Decimals}
		if rt.Platform != "" {
			platform, err := model.ParsePlatform(rt.Platform)
			if err != nil {
				return Blockchain{}, fmt.Errorf("token %q: %w", rt.Symbol, err)
			}
			token.Platform = &platform
		}
		chain.Tokens = append(chain.Tokens, token)
		if rt.Base {
			chain.Base = append(chain.Base, token)
		}
	}

	for _, rc := range raw.Contracts {
		typ, err := model.ParseContractType(rc.Type)
		if err != nil {
			return Blockchain{}, fmt.Errorf("contract %q: %w", rc.Name, err)
		}
		if !common.IsHexAddress(rc.Address) {
			return Blockchain{}, fmt.Errorf("contract %q: invalid address %q", rc.Name, rc.Address)
		}
		ref := registry.ContractRef{BlockchainID: raw.ID, Type: typ, Name: rc.Name, Address: common.HexToAddress(rc.Address)}
		if rc.Platform != "" {
			platform, err := model.ParsePlatform(rc.Platform)
			if err != nil {
				return Blockchain{}, fmt.Errorf("contract %q: %w", rc.Name, err)
			}
			ref.Platform = platform
		}
		chain.Contracts = append(chain.Contracts, ref)
	}

	for _, ra := range raw.Accounts {
		if !common.IsHexAddress(ra.Address) {
			return Blockchain{}, fmt.Errorf("invalid account address %q", ra.Address)
		}
		chain.Accounts = append(chain.Accounts, Account{Address: common.HexToAddress(ra.Address), KeyEnv: ra.KeyEnv})
	}

	return chain, nil
}

func withDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
