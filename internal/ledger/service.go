package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/ledgercore/internal/sequence"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	TrialBalance(ctx context.Context) ([]AccountTotal, error)
	UnbalancedEntries(ctx context.Context) ([]UnbalancedEntry, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Precision int32
}

// Service posts and reverses journal entries.
type Service struct {
	repo      RepositoryPort
	numbers   *sequence.Service
	precision int32
	now       func() time.Time
	logger    *slog.Logger
}

// NewService builds Service. Entry numbers come from the journal_entry sequence.
func NewService(repo RepositoryPort, numbers *sequence.Service, cfg ServiceConfig, logger *slog.Logger) *Service {
	precision := cfg.Precision
	if precision <= 0 {
		precision = shared.DefaultPrecision
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, numbers: numbers, precision: precision, now: time.Now, logger: logger}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Post records a balanced entry in its own transaction.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.PostTx(ctx, tx, input)
		return err
	})
	return entry, err
}

// PostTx validates and records an entry inside the caller's unit of work.
func (s *Service) PostTx(ctx context.Context, tx TxRepository, input PostingInput) (JournalEntry, error) {
	normalized := input.Normalize(s.precision)
	if err := normalized.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if s.numbers == nil {
		return JournalEntry{}, fmt.Errorf("ledger: entry numbering not configured: %w", sequence.ErrSequenceNotConfigured)
	}
	number, err := s.numbers.AllocateTx(ctx, tx.Sequences(), SequenceDocumentType)
	if err != nil {
		return JournalEntry{}, err
	}
	date := normalized.Date
	if date.IsZero() {
		date = s.now()
	}
	entry := JournalEntry{
		Number:      number,
		Date:        date,
		Description: normalized.Description,
		Reference:   normalized.Reference,
		CreatedBy:   normalized.CreatedBy,
		Lines:       normalized.Lines,
	}
	id, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("ledger: insert entry: %w", err)
	}
	entry.ID = id
	if err := tx.InsertLines(ctx, id, entry.Lines); err != nil {
		return JournalEntry{}, fmt.Errorf("ledger: insert lines: %w", err)
	}
	return entry, nil
}

// Reverse deletes every entry of a reference. Reversing nothing is not an error.
func (s *Service) Reverse(ctx context.Context, ref shared.Reference) (int, error) {
	var n int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		n, err = s.ReverseTx(ctx, tx, ref)
		return err
	})
	return n, err
}

// ReverseTx is Reverse inside the caller's unit of work.
func (s *Service) ReverseTx(ctx context.Context, tx TxRepository, ref shared.Reference) (int, error) {
	n, err := tx.DeleteByReference(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("ledger: reverse %s: %w", ref, err)
	}
	return n, nil
}

// EntriesByReference loads a reference's entries with their lines.
func (s *Service) EntriesByReference(ctx context.Context, ref shared.Reference) ([]JournalEntry, error) {
	var out []JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.EntriesByReference(ctx, ref)
		return err
	})
	return out, err
}

// TrialBalance sums posted lines per account.
func (s *Service) TrialBalance(ctx context.Context) ([]AccountTotal, error) {
	return s.repo.TrialBalance(ctx)
}

// UnbalancedEntries lists stored entries that violate the balance invariant.
func (s *Service) UnbalancedEntries(ctx context.Context) ([]UnbalancedEntry, error) {
	return s.repo.UnbalancedEntries(ctx)
}
