package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AccountLocks serializes submissions per signing account so nonces are
// assigned and broadcast in order. It only coordinates within one process.
type AccountLocks struct {
	mu    sync.Mutex
	slots map[common.Address]chan struct{}
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{slots: make(map[common.Address]chan struct{})}
}

func (l *AccountLocks) slot(account common.Address) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[account]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[account] = ch
	}
	return ch
}

// Acquire blocks until account is free or ctx is done. The returned release
// function must be called exactly once.
func (l *AccountLocks) Acquire(ctx context.Context, account common.Address) (func(), error) {
	ch := l.slot(account)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
