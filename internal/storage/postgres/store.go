package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yieldRouter/internal/model"
	"yieldRouter/internal/storage"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS operations (
	id            TEXT PRIMARY KEY,
	blockchain_id BIGINT NOT NULL,
	strategy_id   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	uid          TEXT NOT NULL REFERENCES operations (id),
	tx_hash      TEXT NOT NULL,
	method       TEXT NOT NULL,
	meta         JSONB,
	block_number BIGINT NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (uid, tx_hash)
);`

// Store provides Postgres persistence for the ledger.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *Store) PutOperation(ctx context.Context, op model.Operation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO operations (id, blockchain_id, strategy_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, op.ID, int64(op.BlockchainID), op.StrategyID, op.CreatedAt)
	return err
}

func (s *Store) GetOperation(ctx context.Context, id string) (model.Operation, bool, error) {
	var (
		op           model.Operation
		blockchainID int64
	)
	row := s.pool.QueryRow(ctx, `SELECT id, blockchain_id, strategy_id, created_at FROM operations WHERE id=$1`, id)
	if err := row.Scan(&op.ID, &blockchainID, &op.StrategyID, &op.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Operation{}, false, nil
		}
		return model.Operation{}, false, err
	}
	op.BlockchainID = uint64(blockchainID)
	return op, true, nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx model.Transaction) (bool, error) {
	meta, err := json.Marshal(tx.Meta)
	if err != nil {
		return false, fmt.Errorf("marshal meta: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (uid, tx_hash, method, meta, block_number, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (uid, tx_hash) DO NOTHING
	`,
		tx.UID,
		tx.TxHash.Hex(),
		tx.Method,
		meta,
		int64(tx.BlockNumber),
		string(tx.Status),
		tx.Error,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetTransaction(ctx context.Context, uid string, hash common.Hash) (model.Transaction, bool, error) {
	rows, err := s.pool.Query(ctx, selectTransactions+` WHERE uid=$1 AND tx_hash=$2`, uid, hash.Hex())
	if err != nil {
		return model.Transaction{}, false, err
	}
	txs, err := scanTransactions(rows)
	if err != nil {
		return model.Transaction{}, false, err
	}
	if len(txs) == 0 {
		return model.Transaction{}, false, nil
	}
	return txs[0], true, nil
}

// UpdateTransaction writes a status change; the WHERE clause keeps terminal rows immutable.
func (s *Store) UpdateTransaction(ctx context.Context, tx model.Transaction) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET status = $3, block_number = $4, error = $5, updated_at = $6
		WHERE uid = $1 AND tx_hash = $2 AND status = 'pending'
	`,
		tx.UID,
		tx.TxHash.Hex(),
		string(tx.Status),
		int64(tx.BlockNumber),
		tx.Error,
		tx.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, ok, err := s.GetTransaction(ctx, tx.UID, tx.TxHash); err != nil {
		return err
	} else if !ok {
		return storage.ErrTransactionNotFound
	}
	return storage.ErrNotPending
}

func (s *Store) ListTransactions(ctx context.Context, uid string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx, selectTransactions+` WHERE uid=$1 ORDER BY created_at`, uid)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

const selectTransactions = `SELECT uid, tx_hash, method, meta, block_number, status, error, created_at, updated_at FROM transactions`

func scanTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var (
			tx          model.Transaction
			hash        string
			meta        []byte
			blockNumber int64
			status      string
		)
		if err := rows.Scan(&tx.UID, &hash, &tx.Method, &meta, &blockNumber, &status, &tx.Error, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &tx.Meta); err != nil {
				return nil, fmt.Errorf("decode meta of %s: %w", hash, err)
			}
		}
		tx.TxHash = common.HexToHash(hash)
		tx.BlockNumber = uint64(blockNumber)
		tx.Status = model.TxStatus(status)
		out = append(out, tx)
	}
	return out, rows.Err()
}
