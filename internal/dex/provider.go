package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"yieldRouter/internal/metrics"
	"yieldRouter/internal/model"
	"yieldRouter/internal/multicall"
	"yieldRouter/internal/registry"
)

const (
	defaultSnapshotTTL = 15 * time.Second
	defaultChunkSize   = 200
)

// ProviderConfig holds settings of a chain backed pair provider for one blockchain.
type ProviderConfig struct {
	BlockchainID uint64
	// Tokens is the routing universe; pairs are looked up for every combination.
	Tokens       []model.Token
	SnapshotTTL  time.Duration
	ChunkSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

// ChainReader is the chain access a Provider needs: batched reads pinned to a block.
type ChainReader interface {
	multicall.Caller
	BlockNumber(ctx context.Context) (uint64, error)
}

// pairSnapshot is one cached load, read entirely at block.
type pairSnapshot struct {
	block uint64
	pairs []model.Pair
}

// Provider reads UniswapV2 style pairs from chain. It resolves pair addresses
// through the platform factory and reads token0 and reserves in batched
// aggregate3 calls, all pinned to the block current at load time. Snapshots are
// cached per platform for SnapshotTTL.
type Provider struct {
	chain     ChainReader
	contracts registry.ContractRegistry
	cfg       ProviderConfig
	cache     *gocache.Cache
	logger    *zap.Logger
}

func NewProvider(chain ChainReader, contracts registry.ContractRegistry, cfg ProviderConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = defaultSnapshotTTL
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Provider{
		chain:     chain,
		contracts: contracts,
		cfg:       cfg,
		cache:     gocache.New(cfg.SnapshotTTL, 2*cfg.SnapshotTTL),
		logger:    logger.Named("pairs"),
	}
}

func snapshotKey(blockchainID uint64, platform model.Platform) string {
	return fmt.Sprintf("%d/%s", blockchainID, platform)
}

// Invalidate drops the cached snapshot of platform.
func (p *Provider) Invalidate(platform model.Platform) {
	p.cache.Delete(snapshotKey(p.cfg.BlockchainID, platform))
}

// GetPairs returns the usable pairs of platform among the configured tokens.
func (p *Provider) GetPairs(ctx context.Context, blockchainID uint64, platform model.Platform) ([]model.Pair, error) {
	if blockchainID != p.cfg.BlockchainID {
		return nil, fmt.Errorf("provider serves blockchain %d, not %d", p.cfg.BlockchainID, blockchainID)
	}
	key := snapshotKey(blockchainID, platform)
	if cached, ok := p.cache.Get(key); ok {
		metrics.IncPairSnapshotCacheHits()
		return clonePairs(cached.(pairSnapshot).pairs), nil
	}

	snap, err := p.load(ctx, platform)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, snap, gocache.DefaultExpiration)
	metrics.IncPairSnapshotsLoaded()
	p.logger.Info("pair snapshot loaded",
		zap.Stringer("platform", platform),
		zap.Uint64("block", snap.block),
		zap.Int("tokens", len(p.tokens(platform))),
		zap.Int("pairs", len(snap.pairs)),
	)
	return clonePairs(snap.pairs), nil
}

// Block returns the block the cached snapshot of platform was read at.
func (p *Provider) Block(platform model.Platform) (uint64, bool) {
	cached, ok := p.cache.Get(snapshotKey(p.cfg.BlockchainID, platform))
	if !ok {
		return 0, false
	}
	return cached.(pairSnapshot).block, true
}

// GetPair returns the pair trading a and b on platform, or nil when none exists.
func (p *Provider) GetPair(ctx context.Context, platform model.Platform, a, b common.Address) (*model.Pair, error) {
	pairs, err := p.GetPairs(ctx, p.cfg.BlockchainID, platform)
	if err != nil {
		return nil, err
	}
	want := model.NewPairKey(a, b)
	for i := range pairs {
		if pairs[i].Key() == want {
			return &pairs[i], nil
		}
	}
	return nil, nil
}

func (p *Provider) tokens(platform model.Platform) []model.Token {
	out := make([]model.Token, 0, len(p.cfg.Tokens))
	for _, token := range p.cfg.Tokens {
		if token.Platform != nil && *token.Platform != platform {
			continue
		}
		out = append(out, token)
	}
	return out
}

type pairCandidate struct {
	address common.Address
	a, b    model.Token
}

func (p *Provider) load(ctx context.Context, platform model.Platform) (pairSnapshot, error) {
	if p.chain == nil {
		return pairSnapshot{}, fmt.Errorf("chain client is nil")
	}
	factory, err := p.contracts.GetContract(ctx, registry.Criteria{BlockchainID: p.cfg.BlockchainID, Platform: platform, Type: model.ContractFactory})
	if err != nil {
		return pairSnapshot{}, fmt.Errorf("resolve factory: %w", err)
	}
	aggregator, err := p.contracts.GetContract(ctx, registry.Criteria{BlockchainID: p.cfg.BlockchainID, Type: model.ContractMulticall})
	if err != nil {
		return pairSnapshot{}, fmt.Errorf("resolve multicall: %w", err)
	}

	var head uint64
	err = withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = p.chain.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return pairSnapshot{}, fmt.Errorf("get block number: %w", err)
	}
	block := new(big.Int).SetUint64(head)

	candidates, err := p.lookupPairs(ctx, aggregator.Address, factory.Address, p.tokens(platform), block)
	if err != nil {
		return pairSnapshot{}, err
	}
	pairs, err := p.readReserves(ctx, aggregator.Address, platform, candidates, block)
	if err != nil {
		return pairSnapshot{}, err
	}
	return pairSnapshot{block: head, pairs: pairs}, nil
}

// lookupPairs asks the factory for the pair of every token combination.
func (p *Provider) lookupPairs(ctx context.Context, aggregator, factory common.Address, tokens []model.Token, block *big.Int) ([]pairCandidate, error) {
	factoryABI, err := V2FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}

	var (
		combos []pairCandidate
		calls  []multicall.Call3
	)
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			data, err := factoryABI.Pack("getPair", tokens[i].Address, tokens[j].Address)
			if err != nil {
				return nil, fmt.Errorf("pack getPair: %w", err)
			}
			combos = append(combos, pairCandidate{a: tokens[i], b: tokens[j]})
			calls = append(calls, multicall.Call3{Target: factory, AllowFailure: true, CallData: data})
		}
	}

	results, err := p.read(ctx, aggregator, calls, block)
	if err != nil {
		return nil, fmt.Errorf("lookup pairs: %w", err)
	}

	out := make([]pairCandidate, 0, len(combos))
	for i, res := range results {
		if !res.Success {
			continue
		}
		values, err := factoryABI.Unpack("getPair", res.ReturnData)
		if err != nil || len(values) == 0 {
			p.logger.Debug("getPair decode failed", zap.Stringer("a", combos[i].a), zap.Stringer("b", combos[i].b), zap.Error(err))
			continue
		}
		address, err := asAddress(values[0])
		if err != nil || address == (common.Address{}) {
			continue
		}
		combos[i].address = address
		out = append(out, combos[i])
	}
	return out, nil
}

// readReserves reads token0 and getReserves of every candidate and orients
// the reserves to the candidate's tokens.
func (p *Provider) readReserves(ctx context.Context, aggregator common.Address, platform model.Platform, candidates []pairCandidate, block *big.Int) ([]model.Pair, error) {
	pairABI, err := V2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	token0Data, err := pairABI.Pack("token0")
	if err != nil {
		return nil, fmt.Errorf("pack token0: %w", err)
	}
	reservesData, err := pairABI.Pack("getReserves")
	if err != nil {
		return nil, fmt.Errorf("pack getReserves: %w", err)
	}

	calls := make([]multicall.Call3, 0, 2*len(candidates))
	for _, c := range candidates {
		calls = append(calls,
			multicall.Call3{Target: c.address, AllowFailure: true, CallData: token0Data},
			multicall.Call3{Target: c.address, AllowFailure: true, CallData: reservesData},
		)
	}

	results, err := p.read(ctx, aggregator, calls, block)
	if err != nil {
		return nil, fmt.Errorf("read reserves: %w", err)
	}

	pairs := make([]model.Pair, 0, len(candidates))
	for i, c := range candidates {
		token0Res, reservesRes := results[2*i], results[2*i+1]
		if !token0Res.Success || !reservesRes.Success {
			p.logger.Debug("pair read failed", zap.String("pair", c.address.Hex()))
			continue
		}
		values, err := pairABI.Unpack("token0", token0Res.ReturnData)
		if err != nil || len(values) == 0 {
			continue
		}
		token0, err := asAddress(values[0])
		if err != nil {
			continue
		}
		values, err = pairABI.Unpack("getReserves", reservesRes.ReturnData)
		if err != nil || len(values) < 2 {
			continue
		}
		reserve0, err0 := asBigInt(values[0])
		reserve1, err1 := asBigInt(values[1])
		if err0 != nil || err1 != nil {
			continue
		}

		pair := model.Pair{Platform: platform, Address: c.address, TokenA: c.a, TokenB: c.b}
		switch token0 {
		case c.a.Address:
			pair.ReserveA, pair.ReserveB = reserve0, reserve1
		case c.b.Address:
			pair.ReserveA, pair.ReserveB = reserve1, reserve0
		default:
			p.logger.Warn("pair token0 not in pair", zap.String("pair", c.address.Hex()), zap.String("token0", token0.Hex()))
			continue
		}
		if !pair.Usable() {
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// read runs calls in chunks at block, retrying each chunk on failure.
func (p *Provider) read(ctx context.Context, aggregator common.Address, calls []multicall.Call3, block *big.Int) ([]multicall.Result, error) {
	out := make([]multicall.Result, 0, len(calls))
	for start := 0; start < len(calls); start += p.cfg.ChunkSize {
		end := start + p.cfg.ChunkSize
		if end > len(calls) {
			end = len(calls)
		}
		var chunk []multicall.Result
		err := withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			chunk, err = multicall.Read(ctx, p.chain, aggregator, calls[start:end], block)
			if err != nil {
				p.logger.Warn("batched read failed", zap.Int("calls", end-start), zap.Error(err))
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func clonePairs(pairs []model.Pair) []model.Pair {
	out := make([]model.Pair, len(pairs))
	for i, pair := range pairs {
		out[i] = pair
		out[i].ReserveA = new(big.Int).Set(pair.ReserveA)
		out[i].ReserveB = new(big.Int).Set(pair.ReserveB)
	}
	return out
}
