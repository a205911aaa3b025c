package route

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// bpsDivisor represents 100% in basis points.
	bpsDivisor = big.NewInt(10000)

	one = big.NewInt(1)

	// ErrInsufficientLiquidity is returned when a requested output is not below the reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrInvalidAmount is returned when an amount is nil or negative.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
	// ErrInvalidFee is returned when a fee is outside [0, 10000) basis points.
	ErrInvalidFee = errors.New("fee must be in [0, 10000) basis points")
)

func validFee(feeBps int64) bool {
	return feeBps >= 0 && feeBps < 10000
}

// GetAmountOut returns the constant product output for amountIn, deducting feeBps
// from the input before pricing.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if !validFee(feeBps) {
		return nil, ErrInvalidFee
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int), nil
	}

	feeMultiplier := new(big.Int).Sub(bpsDivisor, big.NewInt(feeBps))
	amountInWithFee := new(big.Int).Mul(amountIn, feeMultiplier)
	numerator := new(big.Int).Mul(reserveOut, amountInWithFee)
	denominator := new(big.Int).Mul(reserveIn, bpsDivisor)
	denominator.Add(denominator, amountInWithFee)

	return numerator.Div(numerator, denominator), nil
}

// GetAmountIn returns the input required to receive amountOut, rounded up.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int, feeBps int64) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if !validFee(feeBps) {
		return nil, ErrInvalidFee
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested %s of reserve %s", ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	// amountIn = reserveIn * amountOut * 10000 / ((reserveOut - amountOut) * (10000 - fee)) + 1
	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, bpsDivisor)
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, new(big.Int).Sub(bpsDivisor, big.NewInt(feeBps)))
	if denominator.Sign() <= 0 {
		return nil, ErrInvalidFee
	}

	amountIn := numerator.Div(numerator, denominator)
	return amountIn.Add(amountIn, one), nil
}

// exceedsMargin reports whether amount is more than marginBps of reserve.
func exceedsMargin(amount, reserve *big.Int, marginBps int64) bool {
	lhs := new(big.Int).Mul(amount, bpsDivisor)
	rhs := new(big.Int).Mul(reserve, big.NewInt(marginBps))
	return lhs.Cmp(rhs) > 0
}
