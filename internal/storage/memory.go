package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"yieldRouter/internal/model"
)

type txKey struct {
	uid  string
	hash common.Hash
}

// MemoryStore keeps operations and transactions in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	operations map[string]model.Operation
	txs        map[txKey]model.Transaction
	byOp       map[string][]common.Hash
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		operations: make(map[string]model.Operation),
		txs:        make(map[txKey]model.Transaction),
		byOp:       make(map[string][]common.Hash),
	}
}

func (s *MemoryStore) PutOperation(_ context.Context, op model.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operations[op.ID]; !ok {
		s.operations[op.ID] = op
	}
	return nil
}

func (s *MemoryStore) GetOperation(_ context.Context, id string) (model.Operation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operations[id]
	return op, ok, nil
}

func (s *MemoryStore) InsertTransaction(_ context.Context, tx model.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := txKey{uid: tx.UID, hash: tx.TxHash}
	if _, ok := s.txs[key]; ok {
		return false, nil
	}
	s.txs[key] = cloneTransaction(tx)
	s.byOp[tx.UID] = append(s.byOp[tx.UID], tx.TxHash)
	return true, nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, uid string, hash common.Hash) (model.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[txKey{uid: uid, hash: hash}]
	return cloneTransaction(tx), ok, nil
}

func (s *MemoryStore) UpdateTransaction(_ context.Context, tx model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := txKey{uid: tx.UID, hash: tx.TxHash}
	current, ok := s.txs[key]
	if !ok {
		return ErrTransactionNotFound
	}
	if current.Status != model.TxPending {
		return ErrNotPending
	}
	s.txs[key] = cloneTransaction(tx)
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, uid string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := s.byOp[uid]
	out := make([]model.Transaction, 0, len(hashes))
	for _, hash := range hashes {
		out = append(out, cloneTransaction(s.txs[txKey{uid: uid, hash: hash}]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneTransaction(tx model.Transaction) model.Transaction {
	if tx.Meta != nil {
		meta := make(map[string]string, len(tx.Meta))
		for k, v := range tx.Meta {
			meta[k] = v
		}
		tx.Meta = meta
	}
	return tx
}
