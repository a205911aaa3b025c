package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Token is the identity of a fungible asset on one blockchain.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Platform *Platform      `json:"platform,omitempty"`
}

// Equal reports whether both tokens share the same address.
func (t Token) Equal(other Token) bool {
	return t.Address == other.Address
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

// FormatAmount renders a raw amount using the token decimals.
func (t Token) FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(t.Decimals)).String()
}

// ParseAmount converts a human readable amount ("1.5") into raw token units.
func (t Token) ParseAmount(value string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", value)
	}
	scaled := d.Shift(int32(t.Decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q exceeds %d decimals", value, t.Decimals)
	}
	return scaled.BigInt(), nil
}

// TokenSet indexes tokens of one blockchain by address and symbol.
type TokenSet struct {
	byAddress map[common.Address]Token
	bySymbol  map[string]Token
}

func NewTokenSet(tokens []Token) *TokenSet {
	set := &TokenSet{
		byAddress: make(map[common.Address]Token, len(tokens)),
		bySymbol:  make(map[string]Token, len(tokens)),
	}
	for _, token := range tokens {
		set.byAddress[token.Address] = token
		if token.Symbol != "" {
			set.bySymbol[strings.ToUpper(token.Symbol)] = token
		}
	}
	return set
}

// Lookup resolves a token by hex address or symbol.
func (s *TokenSet) Lookup(key string) (Token, bool) {
	key = strings.TrimSpace(key)
	if common.IsHexAddress(key) {
		token, ok := s.byAddress[common.HexToAddress(key)]
		return token, ok
	}
	token, ok := s.bySymbol[strings.ToUpper(key)]
	return token, ok
}

// All returns the tokens in the set.
func (s *TokenSet) All() []Token {
	out := make([]Token, 0, len(s.byAddress))
	for _, token := range s.byAddress {
		out = append(out, token)
	}
	return out
}
