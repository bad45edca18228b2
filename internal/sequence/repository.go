package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// TxRepository exposes the transactional operations used by Service.
type TxRepository interface {
	GetSequence(ctx context.Context, documentType string) (Sequence, error)
	IncrementSequence(ctx context.Context, documentType string) (Sequence, error)
	AdvanceSequence(ctx context.Context, documentType string, atLeast int64) (Sequence, error)
	UpsertSequence(ctx context.Context, seq Sequence) error
	ClaimNumber(ctx context.Context, documentType, number string) error
}

// Repository persists sequences in PostgreSQL.
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
		return errors.New("sequence repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetSequence reads a sequence without locking it.
func (r *Repository) GetSequence(ctx context.Context, documentType string) (Sequence, error) {
	if r == nil {
		return Sequence{}, errors.New("sequence repository not initialised")
	}
	return getSequence(ctx, r.pool, documentType)
}

type txRepository struct {
	db shared.DBTX
}

// NewTxRepository binds the repository to an open transaction.
func NewTxRepository(tx shared.DBTX) TxRepository {
	return &txRepository{db: tx}
}

const sequenceColumns = `document_type, prefix, digit_width, current_number, updated_at`

func scanSequence(row pgx.Row) (Sequence, error) {
	var seq Sequence
	if err := row.Scan(&seq.DocumentType, &seq.Prefix, &seq.DigitWidth, &seq.CurrentNumber, &seq.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sequence{}, ErrSequenceNotConfigured
		}
		return Sequence{}, err
	}
	return seq, nil
}

func getSequence(ctx context.Context, q shared.DBTX, documentType string) (Sequence, error) {
	return scanSequence(q.QueryRow(ctx, `SELECT `+sequenceColumns+` FROM document_sequences WHERE document_type=$1`, documentType))
}

func (r *txRepository) GetSequence(ctx context.Context, documentType string) (Sequence, error) {
	return getSequence(ctx, r.db, documentType)
}

// IncrementSequence bumps the counter; the row stays locked until the
// enclosing transaction ends.
func (r *txRepository) IncrementSequence(ctx context.Context, documentType string) (Sequence, error) {
	return scanSequence(r.db.QueryRow(ctx, `UPDATE document_sequences SET current_number=current_number+1, updated_at=NOW()
WHERE document_type=$1 RETURNING `+sequenceColumns, documentType))
}

func (r *txRepository) AdvanceSequence(ctx context.Context, documentType string, atLeast int64) (Sequence, error) {
	return scanSequence(r.db.QueryRow(ctx, `UPDATE document_sequences SET current_number=GREATEST(current_number, $2), updated_at=NOW()
WHERE document_type=$1 RETURNING `+sequenceColumns, documentType, atLeast))
}

func (r *txRepository) UpsertSequence(ctx context.Context, seq Sequence) error {
	_, err := r.db.Exec(ctx, `INSERT INTO document_sequences (document_type, prefix, digit_width, current_number, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (document_type) DO UPDATE SET prefix=EXCLUDED.prefix, digit_width=EXCLUDED.digit_width, updated_at=NOW()`,
		seq.DocumentType, seq.Prefix, seq.DigitWidth, seq.CurrentNumber)
	return err
}

func (r *txRepository) ClaimNumber(ctx context.Context, documentType, number string) error {
	tag, err := r.db.Exec(ctx, `INSERT INTO document_numbers (document_type, number, claimed_at) VALUES ($1,$2,NOW())
ON CONFLICT (document_type, number) DO NOTHING`, documentType, number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNumberTaken
	}
	return nil
}
