package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yieldRouter/internal/model"
	"yieldRouter/internal/multicall"
)

// TokenCache caches resolved token metadata by address.
type TokenCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.Token
}

func NewTokenCache() *TokenCache {
	return &TokenCache{data: make(map[common.Address]model.Token)}
}

func (c *TokenCache) Get(address common.Address) (model.Token, bool) {
	c.mu.RLock()
	token, ok := c.data[address]
	c.mu.RUnlock()
	return token, ok
}

func (c *TokenCache) Set(token model.Token) {
	c.mu.Lock()
	c.data[token.Address] = token
	c.mu.Unlock()
}

// MetadataResolver loads ERC20 decimals and symbols for tokens configured by address.
type MetadataResolver struct {
	caller       multicall.Caller
	cache        *TokenCache
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger
}

func NewMetadataResolver(caller multicall.Caller, cache *TokenCache, logger *zap.Logger) *MetadataResolver {
	if cache == nil {
		cache = NewTokenCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataResolver{
		caller:       caller,
		cache:        cache,
		maxRetries:   3,
		retryBackoff: 200 * time.Millisecond,
		logger:       logger.Named("tokens"),
	}
}

// Resolve fills missing decimals and symbol of token. Decimals are required;
// a missing symbol falls back to the shortened address.
func (r *MetadataResolver) Resolve(ctx context.Context, token model.Token) (model.Token, error) {
	if cached, ok := r.cache.Get(token.Address); ok {
		if token.Platform != nil {
			cached.Platform = token.Platform
		}
		return cached, nil
	}
	if token.Symbol != "" && token.Decimals > 0 {
		r.cache.Set(token)
		return token, nil
	}

	var meta model.Token
	err := withRetry(ctx, r.maxRetries, r.retryBackoff, func(ctx context.Context) error {
		var err error
		meta, err = FetchTokenMeta(ctx, r.caller, token.Address, r.logger)
		return err
	})
	if err != nil {
		return token, fmt.Errorf("resolve token %s: %w", token.Address.Hex(), err)
	}
	if token.Symbol != "" {
		meta.Symbol = token.Symbol
	}
	if meta.Symbol == "" {
		meta.Symbol = shortAddress(token.Address)
	}
	meta.Platform = token.Platform
	r.cache.Set(meta)
	return meta, nil
}

// ResolveAll resolves tokens in order, stopping at the first failure.
func (r *MetadataResolver) ResolveAll(ctx context.Context, tokens []model.Token) ([]model.Token, error) {
	out := make([]model.Token, 0, len(tokens))
	for _, token := range tokens {
		resolved, err := r.Resolve(ctx, token)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

// FetchTokenMeta loads token metadata via ERC20 calls.
func FetchTokenMeta(ctx context.Context, caller multicall.Caller, token common.Address, logger *zap.Logger) (model.Token, error) {
	meta := model.Token{Address: token}
	if caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}

	stringABI, err := erc20StringABI.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABI.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		msg := ethereum.CallMsg{To: &token, Data: data}
		resp, err := caller.CallContract(ctx, msg, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		return values, nil
	}

	values, err := call("decimals", stringABI)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := call("symbol", stringABI); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := call("symbol", bytes32ABI); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func shortAddress(address common.Address) string {
	hex := address.Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
