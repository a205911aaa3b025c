package route

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yieldRouter/internal/metrics"
	"yieldRouter/internal/model"
)

const (
	DefaultMaxHops          = 3
	DefaultSafetyMarginBps  = 500
	DefaultHopsThresholdBps = 50
)

// PairSource exposes the current pair graph of a platform.
type PairSource interface {
	GetPairs(ctx context.Context, blockchainID uint64, platform model.Platform) ([]model.Pair, error)
	GetPair(ctx context.Context, platform model.Platform, tokenA, tokenB common.Address) (*model.Pair, error)
}

// Options tunes a single routing call. Zero values fall back to the optimizer defaults.
type Options struct {
	// BaseTokens are the high liquidity tokens allowed as intermediate hops.
	BaseTokens []model.Token
	MaxHops    int
	// SafetyMarginBps is the largest share of a reserve a single hop may consume.
	SafetyMarginBps int64
	// HopsThresholdBps is the improvement a longer route needs over a shorter one.
	// Zero selects the default and a negative value disables the threshold.
	HopsThresholdBps int64
	// FeeBps overrides the platform swap fee.
	FeeBps int64
	// Snapshot reuses an already loaded pair index instead of querying the source.
	Snapshot *Snapshot
}

// Request describes one routing query.
type Request struct {
	Source       model.Token
	Dest         model.Token
	Platform     model.Platform
	Amount       *big.Int
	Direction    model.Direction
	BlockchainID uint64
	Options      Options
}

// Optimizer selects the best swap route. It holds no per-call state and is safe
// for concurrent use.
type Optimizer struct {
	source   PairSource
	defaults Options
	logger   *zap.Logger
}

// NewOptimizer builds an Optimizer reading pairs from source.
func NewOptimizer(source PairSource, defaults Options, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.MaxHops <= 0 {
		defaults.MaxHops = DefaultMaxHops
	}
	if defaults.SafetyMarginBps <= 0 {
		defaults.SafetyMarginBps = DefaultSafetyMarginBps
	}
	defaults.HopsThresholdBps = thresholdOrDefault(defaults.HopsThresholdBps, DefaultHopsThresholdBps)
	return &Optimizer{
		source:   source,
		defaults: defaults,
		logger:   logger.Named("route"),
	}
}

// Snapshot loads the pairs of a platform into a reusable index labelled with block.
func (o *Optimizer) Snapshot(ctx context.Context, blockchainID uint64, platform model.Platform, block uint64) (*Snapshot, error) {
	if o.source == nil {
		return nil, fmt.Errorf("pair source is nil")
	}
	pairs, err := o.source.GetPairs(ctx, blockchainID, platform)
	if err != nil {
		return nil, fmt.Errorf("get pairs: %w", err)
	}
	return NewSnapshot(blockchainID, platform, block, pairs), nil
}

// FindBestRoute returns the most profitable feasible route for req.
func (o *Optimizer) FindBestRoute(ctx context.Context, req Request) (model.Route, error) {
	opts := o.merge(req.Options)

	if err := validate(req, opts); err != nil {
		return model.Route{}, err
	}

	snap := opts.Snapshot
	if snap == nil {
		var err error
		snap, err = o.Snapshot(ctx, req.BlockchainID, req.Platform, 0)
		if err != nil {
			return model.Route{}, err
		}
	} else if snap.BlockchainID != req.BlockchainID || snap.Platform != req.Platform {
		return model.Route{}, &InvalidRouteRequestError{Reason: fmt.Sprintf("snapshot is for %d/%s", snap.BlockchainID, snap.Platform)}
	}

	fee := opts.FeeBps
	if fee <= 0 {
		fee = req.Platform.DefaultFeeBps()
	}

	paths := enumeratePaths(snap, req.Source, req.Dest, intermediates(req, opts.BaseTokens), opts.MaxHops)

	bestByHops := make([]*model.Route, opts.MaxHops+1)
	feasible := 0
	for _, path := range paths {
		candidate, ok := simulate(snap, path, req, fee, opts.SafetyMarginBps)
		if !ok {
			continue
		}
		feasible++
		hops := candidate.HopCount()
		better, err := IsBetter(bestByHops[hops], candidate, 0)
		if err != nil {
			return model.Route{}, err
		}
		if better {
			bestByHops[hops] = candidate
		}
	}

	// Walk hop limits upwards; a route with more hops replaces the incumbent
	// only when it beats it by more than the threshold.
	var best, within *model.Route
	for hops := 1; hops <= opts.MaxHops; hops++ {
		better, err := IsBetter(within, bestByHops[hops], 0)
		if err != nil {
			return model.Route{}, err
		}
		if better {
			within = bestByHops[hops]
		}
		if within == nil || within == best {
			continue
		}
		better, err = IsBetter(best, within, opts.HopsThresholdBps)
		if err != nil {
			return model.Route{}, err
		}
		if better {
			best = within
		}
	}

	if best == nil {
		metrics.IncRouteNoPath()
		o.logger.Debug("no feasible path",
			zap.Stringer("source", req.Source),
			zap.Stringer("dest", req.Dest),
			zap.Stringer("platform", req.Platform),
			zap.Int("paths", len(paths)),
		)
		return model.Route{}, &NoProfitablePathError{Asset: req.Source, AssetTo: req.Dest, Amount: new(big.Int).Set(req.Amount)}
	}

	metrics.IncRouteFound(best.HopCount())
	o.logger.Debug("route selected",
		zap.Stringer("route", best),
		zap.Stringer("platform", req.Platform),
		zap.Int("paths", len(paths)),
		zap.Int("feasible", feasible),
		zap.String("amount_in", best.AmountIn.String()),
		zap.String("amount_out", best.AmountOut.String()),
	)
	return *best, nil
}

func (o *Optimizer) merge(opts Options) Options {
	if opts.BaseTokens == nil {
		opts.BaseTokens = o.defaults.BaseTokens
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = o.defaults.MaxHops
	}
	if opts.SafetyMarginBps <= 0 {
		opts.SafetyMarginBps = o.defaults.SafetyMarginBps
	}
	opts.HopsThresholdBps = thresholdOrDefault(opts.HopsThresholdBps, o.defaults.HopsThresholdBps)
	if opts.FeeBps <= 0 {
		opts.FeeBps = o.defaults.FeeBps
	}
	return opts
}

func thresholdOrDefault(value, fallback int64) int64 {
	switch {
	case value == 0:
		return fallback
	case value < 0:
		return 0
	default:
		return value
	}
}

func validate(req Request, opts Options) error {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return &InvalidRouteRequestError{Reason: "amount must be positive"}
	}
	if req.Source.Equal(req.Dest) {
		return &InvalidRouteRequestError{Reason: fmt.Sprintf("source and destination are both %s", req.Source)}
	}
	if req.Platform == model.PlatformUnknown {
		return &InvalidRouteRequestError{Reason: "platform is required"}
	}
	if req.Direction != model.ExactIn && req.Direction != model.ExactOut {
		return &InvalidRouteRequestError{Reason: "unknown direction"}
	}
	if opts.FeeBps >= 10000 {
		return &InvalidRouteRequestError{Reason: fmt.Sprintf("fee %d bps must be below 10000", opts.FeeBps)}
	}
	if opts.SafetyMarginBps > 10000 {
		return &InvalidRouteRequestError{Reason: fmt.Sprintf("safety margin %d bps exceeds 10000", opts.SafetyMarginBps)}
	}
	return nil
}

// intermediates returns the deduplicated base tokens other than source and
// destination, ordered by address so enumeration is deterministic.
func intermediates(req Request, bases []model.Token) []model.Token {
	seen := map[common.Address]struct{}{
		req.Source.Address: {},
		req.Dest.Address:   {},
	}
	out := make([]model.Token, 0, len(bases))
	for _, token := range bases {
		if _, ok := seen[token.Address]; ok {
			continue
		}
		seen[token.Address] = struct{}{}
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out
}

// enumeratePaths lists every simple path from source to dest with at most
// maxHops hops whose consecutive tokens share a usable pair.
func enumeratePaths(snap *Snapshot, source, dest model.Token, mids []model.Token, maxHops int) [][]model.Token {
	var paths [][]model.Token
	visited := make(map[common.Address]bool, len(mids)+2)
	path := make([]model.Token, 0, maxHops+1)

	var walk func(current model.Token)
	walk = func(current model.Token) {
		hops := len(path) - 1
		if hops >= maxHops {
			return
		}
		if _, ok := snap.Pair(current.Address, dest.Address); ok {
			full := make([]model.Token, len(path)+1)
			copy(full, path)
			full[len(path)] = dest
			paths = append(paths, full)
		}
		if hops+1 >= maxHops {
			return
		}
		for _, next := range mids {
			if visited[next.Address] {
				continue
			}
			if _, ok := snap.Pair(current.Address, next.Address); !ok {
				continue
			}
			visited[next.Address] = true
			path = append(path, next)
			walk(next)
			path = path[:len(path)-1]
			visited[next.Address] = false
		}
	}

	visited[source.Address] = true
	path = append(path, source)
	walk(source)
	return paths
}

// simulate prices path hop by hop. It returns false when any hop would consume
// more than marginBps of a reserve or cannot be filled at all.
func simulate(snap *Snapshot, path []model.Token, req Request, feeBps, marginBps int64) (*model.Route, bool) {
	hops := len(path) - 1
	pairs := make([]model.Pair, hops)
	for i := 0; i < hops; i++ {
		pair, ok := snap.Pair(path[i].Address, path[i+1].Address)
		if !ok {
			return nil, false
		}
		pairs[i] = pair
	}

	amounts := make([]*big.Int, hops+1)
	switch req.Direction {
	case model.ExactIn:
		amounts[0] = new(big.Int).Set(req.Amount)
		for i := 0; i < hops; i++ {
			reserveIn, reserveOut, _ := pairs[i].Reserves(path[i].Address, path[i+1].Address)
			if exceedsMargin(amounts[i], reserveIn, marginBps) {
				return nil, false
			}
			out, err := GetAmountOut(amounts[i], reserveIn, reserveOut, feeBps)
			if err != nil || out.Sign() <= 0 || exceedsMargin(out, reserveOut, marginBps) {
				return nil, false
			}
			amounts[i+1] = out
		}
	case model.ExactOut:
		amounts[hops] = new(big.Int).Set(req.Amount)
		for i := hops - 1; i >= 0; i-- {
			reserveIn, reserveOut, _ := pairs[i].Reserves(path[i].Address, path[i+1].Address)
			if exceedsMargin(amounts[i+1], reserveOut, marginBps) {
				return nil, false
			}
			in, err := GetAmountIn(amounts[i+1], reserveIn, reserveOut, feeBps)
			if err != nil || exceedsMargin(in, reserveIn, marginBps) {
				return nil, false
			}
			amounts[i] = in
		}
	}

	return &model.Route{
		Path:      path,
		Pairs:     pairs,
		Platform:  req.Platform,
		Direction: req.Direction,
		AmountIn:  amounts[0],
		AmountOut: amounts[hops],
	}, true
}
