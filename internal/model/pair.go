package model

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pair is a liquidity pool snapshot for one platform. Reserves are raw token units.
type Pair struct {
	Platform Platform       `json:"platform"`
	Address  common.Address `json:"address"`
	TokenA   Token          `json:"token_a"`
	TokenB   Token          `json:"token_b"`
	ReserveA *big.Int       `json:"reserve_a"`
	ReserveB *big.Int       `json:"reserve_b"`
}

// Usable reports whether both reserves are strictly positive.
func (p Pair) Usable() bool {
	return p.ReserveA != nil && p.ReserveB != nil && p.ReserveA.Sign() > 0 && p.ReserveB.Sign() > 0
}

// Has reports whether the pair trades the given token.
func (p Pair) Has(token common.Address) bool {
	return p.TokenA.Address == token || p.TokenB.Address == token
}

// Reserves returns the reserves oriented for a swap from tokenIn to tokenOut.
func (p Pair) Reserves(tokenIn, tokenOut common.Address) (reserveIn, reserveOut *big.Int, ok bool) {
	switch {
	case p.TokenA.Address == tokenIn && p.TokenB.Address == tokenOut:
		return p.ReserveA, p.ReserveB, true
	case p.TokenB.Address == tokenIn && p.TokenA.Address == tokenOut:
		return p.ReserveB, p.ReserveA, true
	default:
		return nil, nil, false
	}
}

// PairKey identifies a token pair independent of order.
type PairKey struct {
	Lo common.Address
	Hi common.Address
}

// NewPairKey orders the two addresses so A/B and B/A map to the same key.
func NewPairKey(a, b common.Address) PairKey {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// Key returns the order independent key of the pair.
func (p Pair) Key() PairKey {
	return NewPairKey(p.TokenA.Address, p.TokenB.Address)
}
