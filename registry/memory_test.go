package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, r Registry, senderID, messageID string, transactionIDs ...string) error {
	t.Helper()
	ctx := context.Background()
	tx, err := r.Begin(ctx)
	require.NoError(t, err)
	if err := tx.Register(ctx, senderID, messageID, transactionIDs); err != nil {
		require.NoError(t, tx.Rollback(ctx))
		return err
	}
	return tx.Commit(ctx)
}

func TestMemory_Register(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewMemory()
	require.NoError(t, register(t, r, "1111111111111", "m1", "t1", "t2"))

	found, err := r.MessageIDExists(ctx, "1111111111111", "m1")
	require.NoError(t, err)
	assert.True(t, found)
	found, err = r.TransactionIDExists(ctx, "1111111111111", "t2")
	require.NoError(t, err)
	assert.True(t, found)

	// Ids are scoped per sender.
	found, err = r.MessageIDExists(ctx, "2222222222222", "m1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, register(t, r, "2222222222222", "m1", "t1"))
}

func TestMemory_Duplicates(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		messageID      string
		transactionIDs []string
		want           *DuplicateError
	}{
		"Message id": {
			messageID:      "m1",
			transactionIDs: []string{"t9"},
			want:           &DuplicateError{ScopeMessage, "1111111111111", "m1"},
		},
		"Transaction id": {
			messageID:      "m2",
			transactionIDs: []string{"t8", "t1"},
			want:           &DuplicateError{ScopeTransaction, "1111111111111", "t1"},
		},
		"Transaction id repeated in message": {
			messageID:      "m3",
			transactionIDs: []string{"t7", "t7"},
			want:           &DuplicateError{ScopeTransaction, "1111111111111", "t7"},
		},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := NewMemory()
			require.NoError(t, register(t, r, "1111111111111", "m1", "t1"))

			err := register(t, r, "1111111111111", tc.messageID, tc.transactionIDs...)
			var dup *DuplicateError
			require.True(t, errors.As(err, &dup), "%v", err)
			assert.Equal(t, tc.want, dup)

			// Nothing of the rejected message is kept.
			assert.Equal(t, 2, r.Len())
		})
	}
}

func TestMemory_Rollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewMemory()
	tx, err := r.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Register(ctx, "1111111111111", "m1", []string{"t1"}))
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 0, r.Len())

	assert.Equal(t, ErrTxDone, tx.Commit(ctx))
	assert.Equal(t, ErrTxDone, tx.Register(ctx, "1111111111111", "m2", nil))

	// The ids can be used again.
	assert.NoError(t, register(t, r, "1111111111111", "m1", "t1"))
}

func TestMemory_ConcurrentRegistrations(t *testing.T) {
	t.Parallel()

	const workers = 16
	r := NewMemory()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			tx, err := r.Begin(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			err = tx.Register(ctx, "1111111111111", "same-message", []string{fmt.Sprintf("t%d", i)})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				conflicts++
				_ = tx.Rollback(ctx)
				return
			}
			accepted++
			_ = tx.Commit(ctx)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 2, r.Len())
}

func TestDuplicateError(t *testing.T) {
	t.Parallel()

	err := &DuplicateError{ScopeTransaction, "1111111111111", "t1"}
	assert.Equal(t, `transaction id "t1" already registered for sender 1111111111111`, err.Error())
	assert.Equal(t, "unknown", Scope(0).String())
}
