package accountledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Precision      int32
	ReversalPolicy ReversalPolicy
}

// Service maintains running balances per counterparty.
type Service struct {
	repo      RepositoryPort
	precision int32
	policy    ReversalPolicy
	now       func() time.Time
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	precision := cfg.Precision
	if precision <= 0 {
		precision = shared.DefaultPrecision
	}
	policy := cfg.ReversalPolicy
	if policy == "" {
		policy = PolicyRecompute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, precision: precision, policy: policy, now: time.Now, logger: logger}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Policy reports the configured reversal policy.
func (s *Service) Policy() ReversalPolicy {
	return s.policy
}

// Record appends a transaction in its own transaction.
func (s *Service) Record(ctx context.Context, input RecordInput) (Transaction, error) {
	var out Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.RecordTx(ctx, tx, input)
		return err
	})
	return out, err
}

// RecordTx locks the counterparty, reads its tail and appends the next
// balance. The lock is held until the caller's unit of work ends.
func (s *Service) RecordTx(ctx context.Context, tx TxRepository, input RecordInput) (Transaction, error) {
	if err := input.Validate(); err != nil {
		return Transaction{}, err
	}
	if err := tx.LockCounterparty(ctx, input.CounterpartyID); err != nil {
		return Transaction{}, fmt.Errorf("accountledger: lock counterparty %d: %w", input.CounterpartyID, err)
	}
	previous, err := s.currentBalance(ctx, tx, input.CounterpartyID)
	if err != nil {
		return Transaction{}, err
	}
	amount := shared.Round(input.Amount, s.precision)
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	number := input.Number
	if number == "" {
		number = transactionNumber(s.now())
	}
	t := Transaction{
		Number:         number,
		Date:           date,
		CounterpartyID: input.CounterpartyID,
		Type:           input.Type,
		Direction:      input.Direction,
		Amount:         amount,
		Reference:      input.Reference,
		BalanceAfter:   previous.Add(signed(input.Direction, amount)),
		CreatedBy:      input.CreatedBy,
	}
	id, err := tx.InsertTransaction(ctx, t)
	if err != nil {
		return Transaction{}, fmt.Errorf("accountledger: insert transaction: %w", err)
	}
	t.ID = id
	return t, nil
}

func transactionNumber(at time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TXN-%s-%s", at.Format("20060102150405"), short)
}

// CurrentBalance is the latest balance_after, or zero.
func (s *Service) CurrentBalance(ctx context.Context, counterpartyID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		balance, err = s.currentBalance(ctx, tx, counterpartyID)
		return err
	})
	return balance, err
}

// CurrentBalanceTx locks the counterparty and reads its balance, so the
// value stays current for the rest of the caller's unit of work.
func (s *Service) CurrentBalanceTx(ctx context.Context, tx TxRepository, counterpartyID int64) (decimal.Decimal, error) {
	if err := tx.LockCounterparty(ctx, counterpartyID); err != nil {
		return decimal.Zero, fmt.Errorf("accountledger: lock counterparty %d: %w", counterpartyID, err)
	}
	return s.currentBalance(ctx, tx, counterpartyID)
}

func (s *Service) currentBalance(ctx context.Context, tx TxRepository, counterpartyID int64) (decimal.Decimal, error) {
	latest, err := tx.LatestTransaction(ctx, counterpartyID)
	if err != nil {
		if errors.Is(err, ErrNoTransactions) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("accountledger: latest transaction: %w", err)
	}
	return latest.BalanceAfter, nil
}

// Statement lists a counterparty's transactions in creation order.
func (s *Service) Statement(ctx context.Context, counterpartyID int64) ([]Transaction, error) {
	var out []Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.Statement(ctx, counterpartyID)
		return err
	})
	return out, err
}

// Reverse deletes a reference's transactions. Deleting nothing is not an error.
func (s *Service) Reverse(ctx context.Context, ref shared.Reference) (int, error) {
	var n int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		n, err = s.ReverseTx(ctx, tx, ref)
		return err
	})
	return n, err
}

// ReverseTx deletes a reference's transactions under the configured policy.
func (s *Service) ReverseTx(ctx context.Context, tx TxRepository, ref shared.Reference) (int, error) {
	found, err := tx.TransactionsByReference(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("accountledger: load %s: %w", ref, err)
	}
	if len(found) == 0 {
		return 0, nil
	}
	byCounterparty := make(map[int64][]Transaction)
	for _, t := range found {
		byCounterparty[t.CounterpartyID] = append(byCounterparty[t.CounterpartyID], t)
	}
	counterparties := make([]int64, 0, len(byCounterparty))
	for id := range byCounterparty {
		counterparties = append(counterparties, id)
	}
	sort.Slice(counterparties, func(i, j int) bool { return counterparties[i] < counterparties[j] })

	for _, cp := range counterparties {
		if err := tx.LockCounterparty(ctx, cp); err != nil {
			return 0, fmt.Errorf("accountledger: lock counterparty %d: %w", cp, err)
		}
	}
	for _, cp := range counterparties {
		if err := s.reverseChain(ctx, tx, cp, byCounterparty[cp]); err != nil {
			return 0, err
		}
	}
	return len(found), nil
}

func (s *Service) reverseChain(ctx context.Context, tx TxRepository, counterpartyID int64, removed []Transaction) error {
	ids := make([]int64, 0, len(removed))
	doomed := make(map[int64]bool, len(removed))
	first := removed[0].ID
	for _, t := range removed {
		ids = append(ids, t.ID)
		doomed[t.ID] = true
		if t.ID < first {
			first = t.ID
		}
	}
	later, err := tx.TransactionsAfter(ctx, counterpartyID, first)
	if err != nil {
		return fmt.Errorf("accountledger: load later transactions: %w", err)
	}
	var survivors []Transaction
	for _, t := range later {
		if !doomed[t.ID] {
			survivors = append(survivors, t)
		}
	}
	if s.policy == PolicyLatestOnly && len(survivors) > 0 {
		return fmt.Errorf("%w: counterparty %d has %d later transactions", ErrNotLatestTransaction, counterpartyID, len(survivors))
	}
	if err := tx.DeleteTransactions(ctx, ids); err != nil {
		return fmt.Errorf("accountledger: delete transactions: %w", err)
	}
	if len(survivors) == 0 {
		return nil
	}
	running, err := tx.BalanceBefore(ctx, counterpartyID, first)
	if err != nil {
		return fmt.Errorf("accountledger: balance before %d: %w", first, err)
	}
	for _, t := range survivors {
		running = running.Add(t.Signed())
		if running.Equal(t.BalanceAfter) {
			continue
		}
		if err := tx.UpdateBalanceAfter(ctx, t.ID, running); err != nil {
			return fmt.Errorf("accountledger: rechain %d: %w", t.ID, err)
		}
	}
	s.logger.Info("account balance chain recomputed", slog.Int64("counterparty_id", counterpartyID), slog.Int("transactions", len(survivors)))
	return nil
}
