package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultMaxAttempts bounds collision retries when no config is given.
const DefaultMaxAttempts = 5

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSequence(ctx context.Context, documentType string) (Sequence, error)
}

// Observer receives allocation telemetry.
type Observer interface {
	SequenceCollision(documentType string)
	SequenceAllocated(documentType string)
}

// Config groups Service settings.
type Config struct {
	MaxAttempts int
}

// Service owns every mutation of the numbering series.
type Service struct {
	repo        RepositoryPort
	maxAttempts int
	observer    Observer
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg Config, logger *slog.Logger) *Service {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, maxAttempts: attempts, logger: logger}
}

// WithObserver attaches allocation telemetry.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// Peek previews the next number without mutating anything.
func (s *Service) Peek(ctx context.Context, documentType string) (string, error) {
	seq, err := s.repo.GetSequence(ctx, documentType)
	if err != nil {
		return "", err
	}
	return seq.Next(), nil
}

// Allocate issues the next number in its own transaction.
func (s *Service) Allocate(ctx context.Context, documentType string) (string, error) {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		number, err = s.AllocateTx(ctx, tx, documentType)
		return err
	})
	return number, err
}

// AllocateTx issues the next number inside the caller's unit of work. The
// sequence row stays locked until that unit of work ends.
func (s *Service) AllocateTx(ctx context.Context, tx TxRepository, documentType string) (string, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		seq, err := tx.IncrementSequence(ctx, documentType)
		if err != nil {
			return "", fmt.Errorf("sequence: allocate %s: %w", documentType, err)
		}
		number := seq.Format(seq.CurrentNumber)
		err = tx.ClaimNumber(ctx, documentType, number)
		if err == nil {
			if s.observer != nil {
				s.observer.SequenceAllocated(documentType)
			}
			return number, nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return "", fmt.Errorf("sequence: claim %s: %w", number, err)
		}
		if s.observer != nil {
			s.observer.SequenceCollision(documentType)
		}
		s.logger.Warn("sequence collision", slog.String("document_type", documentType), slog.String("number", number), slog.Int("attempt", attempt))
	}
	return "", fmt.Errorf("%w: %s after %d attempts", ErrSequenceCollision, documentType, s.maxAttempts)
}

// AdvanceToAtLeast pushes the counter forward so later allocations exceed n.
func (s *Service) AdvanceToAtLeast(ctx context.Context, documentType string, n int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.AdvanceTx(ctx, tx, documentType, n)
	})
}

// AdvanceTx is AdvanceToAtLeast inside the caller's unit of work.
func (s *Service) AdvanceTx(ctx context.Context, tx TxRepository, documentType string, n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: cannot advance to %d", ErrInvalidSequence, n)
	}
	if _, err := tx.AdvanceSequence(ctx, documentType, n); err != nil {
		return fmt.Errorf("sequence: advance %s: %w", documentType, err)
	}
	return nil
}

// ClaimManual registers an operator-chosen number in its own transaction.
func (s *Service) ClaimManual(ctx context.Context, documentType, number string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.ClaimManualTx(ctx, tx, documentType, number)
	})
}

// ClaimManualTx claims number for documentType. A number in this series'
// format advances the counter to its tail.
func (s *Service) ClaimManualTx(ctx context.Context, tx TxRepository, documentType, number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return fmt.Errorf("%w: manual number empty", ErrInvalidSequence)
	}
	seq, err := tx.GetSequence(ctx, documentType)
	if err != nil {
		return fmt.Errorf("sequence: claim %s: %w", documentType, err)
	}
	if err := tx.ClaimNumber(ctx, documentType, number); err != nil {
		if errors.Is(err, ErrNumberTaken) {
			return fmt.Errorf("%w: %s", ErrNumberTaken, number)
		}
		return fmt.Errorf("sequence: claim %s: %w", number, err)
	}
	if tail, ok := seq.Tail(number); ok {
		return s.AdvanceTx(ctx, tx, documentType, tail)
	}
	return nil
}

// Configure creates or updates a series. The counter is never reset here.
func (s *Service) Configure(ctx context.Context, input ConfigInput) (Sequence, error) {
	if err := input.Validate(); err != nil {
		return Sequence{}, err
	}
	width := input.DigitWidth
	if width == 0 {
		width = DefaultDigitWidth
	}
	var out Sequence
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpsertSequence(ctx, Sequence{DocumentType: input.DocumentType, Prefix: input.Prefix, DigitWidth: width}); err != nil {
			return err
		}
		var err error
		out, err = tx.GetSequence(ctx, input.DocumentType)
		return err
	})
	return out, err
}
