package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
)

// UnbalancedScanner lists journal entries whose debits and credits differ.
type UnbalancedScanner interface {
	UnbalancedEntries(ctx context.Context) ([]ledger.UnbalancedEntry, error)
}

// IntegrityJob reports journal entries that break double entry.
type IntegrityJob struct {
	Scanner UnbalancedScanner
	Guard   *Guard
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob initialises the integrity handler.
func NewIntegrityJob(scanner UnbalancedScanner, guard *Guard, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Scanner: scanner, Guard: guard, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Scanner == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx)
	return err
}

// Run scans once. Unbalanced entries are reported, not repaired.
func (j *IntegrityJob) Run(ctx context.Context) ([]ledger.UnbalancedEntry, error) {
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	logger := jobLogger(j.Logger)
	var entries []ledger.UnbalancedEntry
	_, err := j.Guard.Run(ctx, TaskLedgerIntegrity, func(ctx context.Context) error {
		var err error
		entries, err = j.Scanner.UnbalancedEntries(ctx)
		return err
	})
	if err != nil {
		logger.Error("ledger integrity scan failed", slog.Any("error", err))
		return nil, tracker.End(err)
	}
	for _, e := range entries {
		logger.Error("unbalanced journal entry",
			slog.Int64("entry_id", e.EntryID),
			slog.String("number", e.Number),
			slog.String("debit", e.Debit.String()),
			slog.String("credit", e.Credit.String()),
		)
	}
	j.Metrics.AddAnomalies(jobmetrics.AnomalyUnbalancedEntry, len(entries))
	logger.Info("ledger integrity scan finished", slog.Int("unbalanced", len(entries)))
	return entries, tracker.End(nil)
}
