package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Sequences() sequence.TxRepository
	InsertEntry(ctx context.Context, entry JournalEntry) (int64, error)
	InsertLines(ctx context.Context, entryID int64, lines []Line) error
	DeleteByReference(ctx context.Context, ref shared.Reference) (int, error)
	EntriesByReference(ctx context.Context, ref shared.Reference) ([]JournalEntry, error)
}

// Repository persists journals in PostgreSQL.
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
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// ListAccounts returns the chart of accounts.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name, type, is_active FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Code, &a.Name, &a.Type, &a.IsActive); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListMappings returns every configured account mapping.
func (r *Repository) ListMappings(ctx context.Context) ([]Mapping, error) {
	rows, err := r.pool.Query(ctx, `SELECT event_type, key, account_code FROM account_mappings ORDER BY event_type, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.EventType, &m.Key, &m.AccountCode); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TrialBalance sums posted lines per account.
func (r *Repository) TrialBalance(ctx context.Context) ([]AccountTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT account_code, COALESCE(SUM(debit),0), COALESCE(SUM(credit),0)
FROM journal_lines GROUP BY account_code ORDER BY account_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotal
	for rows.Next() {
		var t AccountTotal
		if err := rows.Scan(&t.AccountCode, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UnbalancedEntries lists entries whose stored lines no longer balance.
func (r *Repository) UnbalancedEntries(ctx context.Context) ([]UnbalancedEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.entry_number, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_entries e LEFT JOIN journal_lines l ON l.entry_id = e.id
GROUP BY e.id, e.entry_number
HAVING COALESCE(SUM(l.debit),0) <> COALESCE(SUM(l.credit),0) OR COUNT(l.id) < 2
ORDER BY e.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UnbalancedEntry
	for rows.Next() {
		var u UnbalancedEntry
		if err := rows.Scan(&u.EntryID, &u.Number, &u.Debit, &u.Credit); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type txRepository struct {
	db shared.DBTX
}

// NewTxRepository binds the repository to an open transaction.
func NewTxRepository(tx shared.DBTX) TxRepository {
	return &txRepository{db: tx}
}

func (r *txRepository) Sequences() sequence.TxRepository {
	return sequence.NewTxRepository(r.db)
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO journal_entries (entry_number, entry_date, description, reference_type, reference_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`, entry.Number, entry.Date, entry.Description, entry.Reference.Type, entry.Reference.ID, nullInt(entry.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []Line) error {
	for _, line := range lines {
		if _, err := r.db.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_code, debit, credit, memo) VALUES ($1,$2,$3,$4,$5)`,
			entryID, line.AccountCode, line.Debit, line.Credit, line.Memo); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByReference removes entries; lines go with them through ON DELETE CASCADE.
func (r *txRepository) DeleteByReference(ctx context.Context, ref shared.Reference) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM journal_entries WHERE reference_type=$1 AND reference_id=$2`, ref.Type, ref.ID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *txRepository) EntriesByReference(ctx context.Context, ref shared.Reference) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT e.id, e.entry_number, e.entry_date, e.description, e.reference_type, e.reference_id, COALESCE(e.created_by,0), e.created_at,
l.account_code, l.debit, l.credit, l.memo
FROM journal_entries e JOIN journal_lines l ON l.entry_id = e.id
WHERE e.reference_type=$1 AND e.reference_id=$2
ORDER BY e.id, l.id`, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalEntry
	for rows.Next() {
		var (
			entry JournalEntry
			line  Line
		)
		if err := rows.Scan(&entry.ID, &entry.Number, &entry.Date, &entry.Description, &entry.Reference.Type, &entry.Reference.ID, &entry.CreatedBy, &entry.CreatedAt,
			&line.AccountCode, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].ID == entry.ID {
			out[n-1].Lines = append(out[n-1].Lines, line)
			continue
		}
		entry.Lines = []Line{line}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
