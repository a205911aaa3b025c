package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUnknownAccount is returned when no key is held for the account.
var ErrUnknownAccount = errors.New("unknown signing account")

// Signer signs transactions on behalf of an account. Key custody is external.
type Signer interface {
	Sign(ctx context.Context, tx *types.Transaction, account common.Address) (*types.Transaction, error)
}

// KeySigner signs with in-memory ECDSA keys.
type KeySigner struct {
	signer types.Signer

	mu   sync.RWMutex
	keys map[common.Address]*ecdsa.PrivateKey
}

// NewKeySigner creates a signer for chainID.
func NewKeySigner(chainID *big.Int) *KeySigner {
	return &KeySigner{
		signer: types.LatestSignerForChainID(chainID),
		keys:   make(map[common.Address]*ecdsa.PrivateKey),
	}
}

// AddHexKey registers a hex encoded private key and returns its account.
func (s *KeySigner) AddHexKey(hexKey string) (common.Address, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return s.AddKey(key), nil
}

// AddKey registers a private key and returns its account.
func (s *KeySigner) AddKey(key *ecdsa.PrivateKey) common.Address {
	account := crypto.PubkeyToAddress(key.PublicKey)
	s.mu.Lock()
	s.keys[account] = key
	s.mu.Unlock()
	return account
}

// Accounts lists the accounts with a registered key.
func (s *KeySigner) Accounts() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Address, 0, len(s.keys))
	for account := range s.keys {
		out = append(out, account)
	}
	return out
}

// Sign signs tx with the key of account.
func (s *KeySigner) Sign(_ context.Context, tx *types.Transaction, account common.Address) (*types.Transaction, error) {
	s.mu.RLock()
	key, ok := s.keys[account]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	return types.SignTx(tx, s.signer, key)
}
