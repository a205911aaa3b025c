package model

import "testing"

func TestParsePlatform(t *testing.T) {
	cases := map[string]Platform{
		"pancakeswap": PlatformPancakeSwap,
		" ApeSwap ":   PlatformApeSwap,
		"BISWAP":      PlatformBiSwap,
		"mdex":        PlatformMdex,
		"babyswap":    PlatformBabySwap,
	}
	for name, want := range cases {
		got, err := ParsePlatform(name)
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s want %s", name, got, want)
		}
	}
	if _, err := ParsePlatform("sushiswap"); err == nil {
		t.Fatalf("expected error for unknown platform")
	}
}

func TestPlatformTextRoundTrip(t *testing.T) {
	text, err := PlatformBiSwap.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var p Platform
	if err := p.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p != PlatformBiSwap {
		t.Fatalf("got %s", p)
	}
	if PlatformUnknown.String() != "unknown" {
		t.Fatalf("unexpected name %q", PlatformUnknown.String())
	}
	if PlatformPancakeSwap.DefaultFeeBps() != 25 {
		t.Fatalf("unexpected pancakeswap fee %d", PlatformPancakeSwap.DefaultFeeBps())
	}
}

func TestParseContractType(t *testing.T) {
	got, err := ParseContractType("Multicall")
	if err != nil || got != ContractMulticall {
		t.Fatalf("got %s, %v", got, err)
	}
	if _, err := ParseContractType("vault"); err == nil {
		t.Fatalf("expected error for unknown contract type")
	}
}
