// Package registry records the message ids and transaction ids that actors
// have used. Ids are unique per sender; the registry's uniqueness constraint
// is what decides between two concurrent requests reusing the same id.
package registry

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Reader answers duplicate lookups.
type Reader interface {
	MessageIDExists(ctx context.Context, senderID, messageID string) (bool, error)
	TransactionIDExists(ctx context.Context, senderID, transactionID string) (bool, error)
}

// Registry reserves ids inside a transaction.
type Registry interface {
	Reader
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one registration. Register reserves the ids of a message; the
// reservation is kept by Commit and released by Rollback. A Tx must end with
// exactly one of them.
type Tx interface {
	// Register returns a *DuplicateError when an id is already taken.
	Register(ctx context.Context, senderID, messageID string, transactionIDs []string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Scope tells which kind of id collided.
type Scope int

const (
	_ Scope = iota
	ScopeMessage
	ScopeTransaction
)

func (s Scope) String() string {
	switch s {
	case ScopeMessage:
		return "message"
	case ScopeTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// DuplicateError is returned when an id was registered before by the same
// sender, or when the same transaction id is used twice in one message.
type DuplicateError struct {
	Scope    Scope
	SenderID string
	ID       string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s id %q already registered for sender %s", e.Scope, e.ID, e.SenderID)
}

// ErrTxDone is returned by operations on a transaction that has already been
// committed or rolled back.
var ErrTxDone = errors.New("registry: transaction has already been committed or rolled back")

// entry is a registered id.
type entry struct {
	scope    Scope
	senderID string
	id       string
}

// entries lists the ids of a message in registration order. A transaction id
// repeated within the message is reported as a duplicate.
func entries(senderID, messageID string, transactionIDs []string) ([]entry, error) {
	es := make([]entry, 0, len(transactionIDs)+1)
	es = append(es, entry{ScopeMessage, senderID, messageID})
	seen := make(map[string]struct{}, len(transactionIDs))
	for _, id := range transactionIDs {
		if _, ok := seen[id]; ok {
			return nil, &DuplicateError{Scope: ScopeTransaction, SenderID: senderID, ID: id}
		}
		seen[id] = struct{}{}
		es = append(es, entry{ScopeTransaction, senderID, id})
	}
	return es, nil
}
