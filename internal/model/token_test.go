package model

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	wbnb = Token{Address: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), Symbol: "WBNB", Decimals: 18}
	usdc = Token{Address: common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"), Symbol: "USDC", Decimals: 6}
)

func TestTokenParseAndFormatAmount(t *testing.T) {
	amount, err := wbnb.ParseAmount("1.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	if amount.Cmp(want) != 0 {
		t.Fatalf("got %s want %s", amount, want)
	}
	if got := wbnb.FormatAmount(amount); got != "1.5" {
		t.Fatalf("format: got %q", got)
	}
	if got := usdc.FormatAmount(nil); got != "0" {
		t.Fatalf("format nil: got %q", got)
	}

	for _, bad := range []string{"-1", "abc", "0.0000001"} {
		if _, err := usdc.ParseAmount(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestTokenSetLookup(t *testing.T) {
	set := NewTokenSet([]Token{wbnb, usdc})

	if token, ok := set.Lookup("wbnb"); !ok || token.Address != wbnb.Address {
		t.Fatalf("symbol lookup failed: %v %v", token, ok)
	}
	if token, ok := set.Lookup(usdc.Address.Hex()); !ok || token.Symbol != "USDC" {
		t.Fatalf("address lookup failed: %v %v", token, ok)
	}
	if _, ok := set.Lookup("CAKE"); ok {
		t.Fatalf("unexpected hit for CAKE")
	}
	if len(set.All()) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(set.All()))
	}
}

func TestPairReservesAndKey(t *testing.T) {
	pair := Pair{TokenA: wbnb, TokenB: usdc, ReserveA: big.NewInt(10), ReserveB: big.NewInt(3000)}

	in, out, ok := pair.Reserves(usdc.Address, wbnb.Address)
	if !ok || in.Int64() != 3000 || out.Int64() != 10 {
		t.Fatalf("unexpected reserves %v %v %v", in, out, ok)
	}
	if _, _, ok := pair.Reserves(usdc.Address, common.HexToAddress("0x01")); ok {
		t.Fatalf("expected foreign token to be rejected")
	}
	if pair.Key() != NewPairKey(usdc.Address, wbnb.Address) {
		t.Fatalf("pair key depends on order")
	}
	if !pair.Usable() {
		t.Fatalf("expected pair to be usable")
	}
	pair.ReserveB = big.NewInt(0)
	if pair.Usable() {
		t.Fatalf("expected empty pair to be unusable")
	}
}

func TestRouteAccessors(t *testing.T) {
	busd := Token{Address: common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56"), Symbol: "BUSD"}
	r := Route{Path: []Token{busd, usdc, wbnb}}
	if r.HopCount() != 2 {
		t.Fatalf("hops: %d", r.HopCount())
	}
	if r.Input().Symbol != "BUSD" || r.Output().Symbol != "WBNB" {
		t.Fatalf("unexpected ends %s %s", r.Input(), r.Output())
	}
	if mids := r.Intermediates(); len(mids) != 1 || mids[0] != usdc.Address {
		t.Fatalf("unexpected intermediates %v", mids)
	}
	if r.String() != "BUSD -> USDC -> WBNB" {
		t.Fatalf("unexpected string %q", r.String())
	}
	if (Route{}).HopCount() != 0 {
		t.Fatalf("empty route has hops")
	}
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{"": ExactIn, "in": ExactIn, "exactIn": ExactIn, "OUT": ExactOut, "exactOut": ExactOut}
	for value, want := range cases {
		got, err := ParseDirection(value)
		if err != nil || got != want {
			t.Fatalf("parse %q: got %s, %v", value, got, err)
		}
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatalf("expected error")
	}
}
