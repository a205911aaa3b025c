package route

import (
	"errors"
	"math/big"
	"testing"
)

func TestGetAmountOut(t *testing.T) {
	out, err := GetAmountOut(big.NewInt(1000), big.NewInt(10000), big.NewInt(10000), 30)
	if err != nil {
		t.Fatalf("get amount out: %v", err)
	}
	if out.Int64() != 906 {
		t.Fatalf("expected 906, got %s", out)
	}

	zero, err := GetAmountOut(big.NewInt(1000), big.NewInt(0), big.NewInt(10000), 30)
	if err != nil {
		t.Fatalf("empty reserve: %v", err)
	}
	if zero.Sign() != 0 {
		t.Fatalf("expected zero output for empty reserve, got %s", zero)
	}

	if _, err := GetAmountOut(big.NewInt(-1), big.NewInt(10), big.NewInt(10), 30); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestGetAmountIn(t *testing.T) {
	in, err := GetAmountIn(big.NewInt(906), big.NewInt(10000), big.NewInt(10000), 30)
	if err != nil {
		t.Fatalf("get amount in: %v", err)
	}
	if in.Int64() != 1000 {
		t.Fatalf("expected 1000, got %s", in)
	}

	out, err := GetAmountOut(in, big.NewInt(10000), big.NewInt(10000), 30)
	if err != nil {
		t.Fatalf("get amount out: %v", err)
	}
	if out.Cmp(big.NewInt(906)) < 0 {
		t.Fatalf("round trip lost output: %s", out)
	}

	if _, err := GetAmountIn(big.NewInt(10000), big.NewInt(10000), big.NewInt(10000), 30); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestExceedsMargin(t *testing.T) {
	reserve := big.NewInt(10000)
	if exceedsMargin(big.NewInt(500), reserve, 500) {
		t.Fatalf("5%% of reserve must be allowed")
	}
	if !exceedsMargin(big.NewInt(501), reserve, 500) {
		t.Fatalf("more than 5%% of reserve must be rejected")
	}
}

func TestAmountsRejectInvalidFee(t *testing.T) {
	reserve := big.NewInt(10000)
	for _, fee := range []int64{-1, 10000, 12000} {
		if _, err := GetAmountOut(big.NewInt(100), reserve, reserve, fee); !errors.Is(err, ErrInvalidFee) {
			t.Fatalf("out with fee %d: expected ErrInvalidFee, got %v", fee, err)
		}
		if _, err := GetAmountIn(big.NewInt(100), reserve, reserve, fee); !errors.Is(err, ErrInvalidFee) {
			t.Fatalf("in with fee %d: expected ErrInvalidFee, got %v", fee, err)
		}
	}
}
