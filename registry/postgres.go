package registry

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// uniqueViolation is the SQLSTATE of a primary key conflict.
const uniqueViolation = "23505"

// PostgresSchema creates the registry tables.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS transaction_registry_message_ids (
	sender_id     TEXT NOT NULL,
	message_id    TEXT NOT NULL,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (sender_id, message_id)
);
CREATE TABLE IF NOT EXISTS transaction_registry_transaction_ids (
	sender_id      TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	registered_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (sender_id, transaction_id)
);`

// Postgres is a registry stored in PostgreSQL. A registration is an SQL
// transaction; concurrent registrations of the same id are decided by the
// primary keys.
type Postgres struct {
	db *sql.DB
}

var _ Registry = (*Postgres)(nil)

// OpenPostgres connects to the database at dsn, e.g.
// "postgres://gateway@localhost/edi?sslmode=disable".
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connecting to database")
	}
	return NewPostgres(db), nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the registry tables if they do not exist.
func (r *Postgres) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, PostgresSchema)
	return errors.Wrap(err, "creating registry tables")
}

func (r *Postgres) Close() error {
	return r.db.Close()
}

func (r *Postgres) MessageIDExists(ctx context.Context, senderID, messageID string) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS (SELECT 1 FROM transaction_registry_message_ids WHERE sender_id = $1 AND message_id = $2)", senderID, messageID)
}

func (r *Postgres) TransactionIDExists(ctx context.Context, senderID, transactionID string) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS (SELECT 1 FROM transaction_registry_transaction_ids WHERE sender_id = $1 AND transaction_id = $2)", senderID, transactionID)
}

func (r *Postgres) exists(ctx context.Context, query, senderID, id string) (bool, error) {
	var found bool
	if err := r.db.QueryRowContext(ctx, query, senderID, id).Scan(&found); err != nil {
		return false, errors.Wrap(err, "looking up id")
	}
	return found, nil
}

func (r *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Register(ctx context.Context, senderID, messageID string, transactionIDs []string) error {
	es, err := entries(senderID, messageID, transactionIDs)
	if err != nil {
		return err
	}
	for _, e := range es {
		query := "INSERT INTO transaction_registry_transaction_ids (sender_id, transaction_id) VALUES ($1, $2)"
		if e.scope == ScopeMessage {
			query = "INSERT INTO transaction_registry_message_ids (sender_id, message_id) VALUES ($1, $2)"
		}
		if _, err := t.tx.ExecContext(ctx, query, e.senderID, e.id); err != nil {
			return translate(err, e)
		}
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return translate(t.tx.Commit(), entry{})
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	return translate(t.tx.Rollback(), entry{})
}

// translate maps driver errors to registry errors. A unique violation on
// commit cannot be traced to an id, so it is reported on the message.
func translate(err error, e entry) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrTxDone {
		return ErrTxDone
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if e.scope == 0 {
			return &DuplicateError{Scope: ScopeMessage}
		}
		return &DuplicateError{Scope: e.scope, SenderID: e.senderID, ID: e.id}
	}
	return errors.Wrap(err, "registry transaction")
}
