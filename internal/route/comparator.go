package route

import (
	"bytes"
	"math/big"

	"yieldRouter/internal/model"
)

// IsBetter reports whether b is strictly better than a.
//
// thresholdBps is the minimum relative improvement b must show; with a positive
// threshold a longer route only wins when it is meaningfully more profitable.
// Exact amount ties prefer fewer hops, then the smaller intermediate address list.
func IsBetter(a, b *model.Route, thresholdBps int64) (bool, error) {
	if b == nil {
		return false, nil
	}
	if a == nil {
		return true, nil
	}
	if !sameTrade(a, b) {
		return false, &TradesNotComparableError{A: a, B: b}
	}

	scale := new(big.Int).Add(bpsDivisor, big.NewInt(thresholdBps))

	var cmp int
	switch a.Direction {
	case model.ExactIn:
		// b.out * 10000 vs a.out * (10000 + threshold)
		lhs := new(big.Int).Mul(b.AmountOut, bpsDivisor)
		rhs := new(big.Int).Mul(a.AmountOut, scale)
		if lhs.Cmp(rhs) > 0 {
			return true, nil
		}
		cmp = b.AmountOut.Cmp(a.AmountOut)
	default:
		// b.in * (10000 + threshold) vs a.in * 10000
		lhs := new(big.Int).Mul(b.AmountIn, scale)
		rhs := new(big.Int).Mul(a.AmountIn, bpsDivisor)
		if lhs.Cmp(rhs) < 0 {
			return true, nil
		}
		cmp = a.AmountIn.Cmp(b.AmountIn)
	}
	if cmp != 0 {
		return false, nil
	}

	if b.HopCount() != a.HopCount() {
		return b.HopCount() < a.HopCount(), nil
	}
	return lessAddresses(b, a), nil
}

// MustBeBetter is IsBetter for callers that treat incomparable trades as a bug.
func MustBeBetter(a, b *model.Route, thresholdBps int64) bool {
	better, err := IsBetter(a, b, thresholdBps)
	if err != nil {
		panic(err)
	}
	return better
}

func sameTrade(a, b *model.Route) bool {
	if a.Direction != b.Direction {
		return false
	}
	if len(a.Path) == 0 || len(b.Path) == 0 {
		return false
	}
	return a.Input().Equal(b.Input()) && a.Output().Equal(b.Output())
}

func lessAddresses(x, y *model.Route) bool {
	xs, ys := x.Intermediates(), y.Intermediates()
	for i := 0; i < len(xs) && i < len(ys); i++ {
		if c := bytes.Compare(xs[i].Bytes(), ys[i].Bytes()); c != 0 {
			return c < 0
		}
	}
	return len(xs) < len(ys)
}
