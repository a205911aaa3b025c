package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"yieldRouter/internal/model"
	"yieldRouter/internal/storage"
)

const maxWatchRetries = 3

// Store keeps the ledger in Redis: one JSON string per operation and one hash
// per operation holding its transactions keyed by tx hash.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ storage.Store = (*Store)(nil)

func NewStore(client *redis.Client, keyPrefix string) *Store {
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) operationKey(id string) string {
	return s.keyPrefix + "op:" + id
}

func (s *Store) transactionsKey(uid string) string {
	return s.keyPrefix + "txs:" + uid
}

func (s *Store) PutOperation(ctx context.Context, op model.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return s.client.SetNX(ctx, s.operationKey(op.ID), data, 0).Err()
}

func (s *Store) GetOperation(ctx context.Context, id string) (model.Operation, bool, error) {
	data, err := s.client.Get(ctx, s.operationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Operation{}, false, nil
	}
	if err != nil {
		return model.Operation{}, false, err
	}
	var op model.Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return model.Operation{}, false, fmt.Errorf("decode operation %s: %w", id, err)
	}
	return op, true, nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx model.Transaction) (bool, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return false, err
	}
	return s.client.HSetNX(ctx, s.transactionsKey(tx.UID), tx.TxHash.Hex(), data).Result()
}

func (s *Store) GetTransaction(ctx context.Context, uid string, hash common.Hash) (model.Transaction, bool, error) {
	data, err := s.client.HGet(ctx, s.transactionsKey(uid), hash.Hex()).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Transaction{}, false, nil
	}
	if err != nil {
		return model.Transaction{}, false, err
	}
	var tx model.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return model.Transaction{}, false, fmt.Errorf("decode transaction %s: %w", hash.Hex(), err)
	}
	return tx, true, nil
}

// UpdateTransaction replaces a pending transaction inside an optimistic WATCH
// transaction so concurrent writers cannot overwrite a terminal state.
func (s *Store) UpdateTransaction(ctx context.Context, tx model.Transaction) error {
	key := s.transactionsKey(tx.UID)
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	update := func(rtx *redis.Tx) error {
		raw, err := rtx.HGet(ctx, key, tx.TxHash.Hex()).Bytes()
		if errors.Is(err, redis.Nil) {
			return storage.ErrTransactionNotFound
		}
		if err != nil {
			return err
		}
		var current model.Transaction
		if err := json.Unmarshal(raw, &current); err != nil {
			return err
		}
		if current.Status != model.TxPending {
			return storage.ErrNotPending
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, tx.TxHash.Hex(), data)
			return nil
		})
		return err
	}

	// A lost WATCH race is retried so the loser observes the winner's terminal state.
	for attempt := 0; ; attempt++ {
		err = s.client.Watch(ctx, update, key)
		if !errors.Is(err, redis.TxFailedErr) || attempt == maxWatchRetries {
			return err
		}
	}
}

func (s *Store) ListTransactions(ctx context.Context, uid string) ([]model.Transaction, error) {
	values, err := s.client.HGetAll(ctx, s.transactionsKey(uid)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Transaction, 0, len(values))
	for hash, raw := range values {
		var tx model.Transaction
		if err := json.Unmarshal([]byte(raw), &tx); err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", hash, err)
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteAll removes every key under the prefix. It is slow and meant for tests.
func (s *Store) DeleteAll(ctx context.Context) error {
	keys, err := s.client.Keys(ctx, s.keyPrefix+"*").Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
