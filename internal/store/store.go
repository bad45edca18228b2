// Package store binds every ledger repository to one PostgreSQL transaction.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/posting"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// UnitOfWork implements posting.UnitOfWork on a pgx pool.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork constructs UnitOfWork.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// WithTx runs fn in one READ COMMITTED transaction.
func (u *UnitOfWork) WithTx(ctx context.Context, fn func(context.Context, posting.Tx) error) error {
	if u == nil {
		return errors.New("store: unit of work not initialised")
	}
	return db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, newTx(tx))
	})
}

type txStore struct {
	sequences   sequence.TxRepository
	journal     ledger.TxRepository
	inventory   inventory.TxRepository
	accounts    accountledger.TxRepository
	documents   posting.DocumentRepository
	audit       *shared.AuditLogger
	idempotency *shared.IdempotencyStore
}

func newTx(tx shared.DBTX) *txStore {
	return &txStore{
		sequences:   sequence.NewTxRepository(tx),
		journal:     ledger.NewTxRepository(tx),
		inventory:   inventory.NewTxRepository(tx),
		accounts:    accountledger.NewTxRepository(tx),
		documents:   NewDocumentRepository(tx),
		audit:       shared.NewAuditLogger(tx),
		idempotency: shared.NewIdempotencyStore(tx),
	}
}

func (t *txStore) Sequences() sequence.TxRepository      { return t.sequences }
func (t *txStore) Journal() ledger.TxRepository          { return t.journal }
func (t *txStore) Inventory() inventory.TxRepository     { return t.inventory }
func (t *txStore) Accounts() accountledger.TxRepository  { return t.accounts }
func (t *txStore) Documents() posting.DocumentRepository { return t.documents }
func (t *txStore) Audit() posting.AuditPort              { return t.audit }
func (t *txStore) Idempotency() posting.IdempotencyPort  { return t.idempotency }
