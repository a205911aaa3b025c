package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Direction tells which side of a trade is fixed.
type Direction uint8

const (
	ExactIn Direction = iota
	ExactOut
)

func (d Direction) String() string {
	switch d {
	case ExactIn:
		return "exactIn"
	case ExactOut:
		return "exactOut"
	default:
		return "unknown"
	}
}

// ParseDirection accepts "exactIn"/"in" and "exactOut"/"out".
func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "exactin", "in", "":
		return ExactIn, nil
	case "exactout", "out":
		return ExactOut, nil
	default:
		return ExactIn, fmt.Errorf("unknown trade direction: %q", value)
	}
}

// Route is a computed multi hop swap. It is never mutated after construction.
type Route struct {
	Path      []Token   `json:"path"`
	Pairs     []Pair    `json:"pairs"`
	Platform  Platform  `json:"platform"`
	Direction Direction `json:"direction"`
	AmountIn  *big.Int  `json:"amount_in"`
	AmountOut *big.Int  `json:"amount_out"`
}

// HopCount is the number of swaps in the route.
func (r Route) HopCount() int {
	if len(r.Path) == 0 {
		return 0
	}
	return len(r.Path) - 1
}

// Input returns the first token of the path.
func (r Route) Input() Token {
	return r.Path[0]
}

// Output returns the last token of the path.
func (r Route) Output() Token {
	return r.Path[len(r.Path)-1]
}

// Intermediates returns the addresses between input and output.
func (r Route) Intermediates() []common.Address {
	if len(r.Path) <= 2 {
		return nil
	}
	out := make([]common.Address, 0, len(r.Path)-2)
	for _, token := range r.Path[1 : len(r.Path)-1] {
		out = append(out, token.Address)
	}
	return out
}

// Addresses returns the path as token addresses, the form routers expect.
func (r Route) Addresses() []common.Address {
	out := make([]common.Address, len(r.Path))
	for i, token := range r.Path {
		out[i] = token.Address
	}
	return out
}

func (r Route) String() string {
	symbols := make([]string, len(r.Path))
	for i, token := range r.Path {
		symbols[i] = token.String()
	}
	return strings.Join(symbols, " -> ")
}
