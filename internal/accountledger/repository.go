package accountledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LockCounterparty(ctx context.Context, counterpartyID int64) error
	LatestTransaction(ctx context.Context, counterpartyID int64) (Transaction, error)
	InsertTransaction(ctx context.Context, t Transaction) (int64, error)
	TransactionsByReference(ctx context.Context, ref shared.Reference) ([]Transaction, error)
	DeleteTransactions(ctx context.Context, ids []int64) error
	BalanceBefore(ctx context.Context, counterpartyID, beforeID int64) (decimal.Decimal, error)
	TransactionsAfter(ctx context.Context, counterpartyID, afterID int64) ([]Transaction, error)
	UpdateBalanceAfter(ctx context.Context, id int64, balance decimal.Decimal) error
	Statement(ctx context.Context, counterpartyID int64) ([]Transaction, error)
}

// Repository persists account transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accountledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepository struct {
	db shared.DBTX
}

// NewTxRepository binds the repository to an open transaction.
func NewTxRepository(tx shared.DBTX) TxRepository {
	return &txRepository{db: tx}
}

const transactionColumns = `id, transaction_number, transaction_date, counterparty_id, transaction_type, direction, amount, reference_type, reference_id, balance_after, COALESCE(created_by,0), created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.Number, &t.Date, &t.CounterpartyID, &t.Type, &t.Direction, &t.Amount,
		&t.Reference.Type, &t.Reference.ID, &t.BalanceAfter, &t.CreatedBy, &t.CreatedAt)
	return t, err
}

func collect(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LockCounterparty takes a transaction-scoped advisory lock released on commit or rollback.
func (r *txRepository) LockCounterparty(ctx context.Context, counterpartyID int64) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, shared.CounterpartyLockKey(counterpartyID))
	return err
}

func (r *txRepository) LatestTransaction(ctx context.Context, counterpartyID int64) (Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM account_transactions
WHERE counterparty_id=$1 ORDER BY id DESC LIMIT 1`, counterpartyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNoTransactions
		}
		return Transaction{}, err
	}
	return t, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO account_transactions (transaction_number, transaction_date, counterparty_id, transaction_type, direction, amount, reference_type, reference_id, balance_after, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id`,
		t.Number, t.Date, t.CounterpartyID, string(t.Type), string(t.Direction), t.Amount, t.Reference.Type, t.Reference.ID, t.BalanceAfter, nullInt(t.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) TransactionsByReference(ctx context.Context, ref shared.Reference) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM account_transactions WHERE reference_type=$1 AND reference_id=$2 ORDER BY id`, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *txRepository) DeleteTransactions(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `DELETE FROM account_transactions WHERE id = ANY($1)`, ids)
	return err
}

func (r *txRepository) BalanceBefore(ctx context.Context, counterpartyID, beforeID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT balance_after FROM account_transactions WHERE counterparty_id=$1 AND id < $2 ORDER BY id DESC LIMIT 1`, counterpartyID, beforeID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return balance, err
}

func (r *txRepository) TransactionsAfter(ctx context.Context, counterpartyID, afterID int64) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM account_transactions WHERE counterparty_id=$1 AND id > $2 ORDER BY id`, counterpartyID, afterID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *txRepository) UpdateBalanceAfter(ctx context.Context, id int64, balance decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `UPDATE account_transactions SET balance_after=$2 WHERE id=$1`, id, balance)
	return err
}

func (r *txRepository) Statement(ctx context.Context, counterpartyID int64) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM account_transactions WHERE counterparty_id=$1 ORDER BY id`, counterpartyID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
