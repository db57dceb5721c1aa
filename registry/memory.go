package registry

import (
	"context"
	"sync"
)

// Memory is an in-process registry.
type Memory struct {
	mu  sync.Mutex
	ids map[entry]struct{}
}

var _ Registry = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{ids: make(map[entry]struct{})}
}

func (m *Memory) MessageIDExists(ctx context.Context, senderID, messageID string) (bool, error) {
	return m.exists(entry{ScopeMessage, senderID, messageID}), nil
}

func (m *Memory) TransactionIDExists(ctx context.Context, senderID, transactionID string) (bool, error) {
	return m.exists(entry{ScopeTransaction, senderID, transactionID}), nil
}

func (m *Memory) exists(e entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[e]
	return ok
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{m: m}, nil
}

// Len returns the number of registered ids.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}

type memoryTx struct {
	m        *Memory
	reserved []entry
	done     bool
}

// Register reserves every id or none of them.
func (tx *memoryTx) Register(ctx context.Context, senderID, messageID string, transactionIDs []string) error {
	if tx.done {
		return ErrTxDone
	}
	es, err := entries(senderID, messageID, transactionIDs)
	if err != nil {
		return err
	}

	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	for _, e := range es {
		if _, ok := tx.m.ids[e]; ok {
			return &DuplicateError{Scope: e.scope, SenderID: e.senderID, ID: e.id}
		}
	}
	for _, e := range es {
		tx.m.ids[e] = struct{}{}
	}
	tx.reserved = append(tx.reserved, es...)
	return nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true

	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	for _, e := range tx.reserved {
		delete(tx.m.ids, e)
	}
	return nil
}
