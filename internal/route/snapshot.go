package route

import (
	"github.com/ethereum/go-ethereum/common"

	"yieldRouter/internal/model"
)

// Snapshot is an immutable pair index for one blockchain and platform.
// It can be shared by concurrent routing calls; Stale marks the point where
// callers must rebuild it.
type Snapshot struct {
	BlockchainID uint64
	Platform     model.Platform
	Block        uint64

	pairs map[model.PairKey]model.Pair
}

// NewSnapshot indexes the usable pairs of platform. Pairs with an empty reserve
// and pairs of other platforms are dropped.
func NewSnapshot(blockchainID uint64, platform model.Platform, block uint64, pairs []model.Pair) *Snapshot {
	s := &Snapshot{
		BlockchainID: blockchainID,
		Platform:     platform,
		Block:        block,
		pairs:        make(map[model.PairKey]model.Pair, len(pairs)),
	}
	for _, pair := range pairs {
		if pair.Platform != platform || !pair.Usable() {
			continue
		}
		if pair.TokenA.Address == pair.TokenB.Address {
			continue
		}
		s.pairs[pair.Key()] = pair
	}
	return s
}

// Pair returns the usable pair trading a and b, in either order.
func (s *Snapshot) Pair(a, b common.Address) (model.Pair, bool) {
	pair, ok := s.pairs[model.NewPairKey(a, b)]
	return pair, ok
}

// Len returns the number of usable pairs.
func (s *Snapshot) Len() int {
	return len(s.pairs)
}

// Stale reports whether the snapshot was taken at a different block than head.
func (s *Snapshot) Stale(head uint64) bool {
	return s.Block != head
}
