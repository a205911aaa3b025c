package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"yieldRouter/internal/model"
)

// ErrContractNotFound is returned when no contract matches the criteria.
var ErrContractNotFound = errors.New("contract not found")

// ContractRef locates a deployed contract.
type ContractRef struct {
	BlockchainID uint64
	Platform     model.Platform
	Type         model.ContractType
	Name         string
	Address      common.Address
}

// Criteria selects a contract. Platform may be PlatformUnknown for
// platform independent contracts such as the multicall aggregator.
type Criteria struct {
	BlockchainID uint64
	Platform     model.Platform
	Type         model.ContractType
	Name         string
}

// ContractRegistry resolves contract addresses.
type ContractRegistry interface {
	GetContract(ctx context.Context, criteria Criteria) (ContractRef, error)
}

// Static is an in-memory registry loaded from configuration.
type Static struct {
	mu        sync.RWMutex
	contracts []ContractRef
}

func NewStatic(contracts []ContractRef) *Static {
	out := make([]ContractRef, len(contracts))
	copy(out, contracts)
	return &Static{contracts: out}
}

// Add registers an additional contract.
func (s *Static) Add(ref ContractRef) {
	s.mu.Lock()
	s.contracts = append(s.contracts, ref)
	s.mu.Unlock()
}

// GetContract returns the first contract matching criteria. An empty Name matches any name.
func (s *Static) GetContract(_ context.Context, criteria Criteria) (ContractRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ref := range s.contracts {
		if ref.BlockchainID != criteria.BlockchainID || ref.Type != criteria.Type || ref.Platform != criteria.Platform {
			continue
		}
		if criteria.Name != "" && ref.Name != criteria.Name {
			continue
		}
		return ref, nil
	}
	return ContractRef{}, fmt.Errorf("%w: %s on %d (platform %s)", ErrContractNotFound, criteria.Type, criteria.BlockchainID, criteria.Platform)
}
