package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
	"github.com/odyssey-erp/ledgercore/internal/posting"
)

// RecurringGenerator posts overdue recurring periods.
type RecurringGenerator interface {
	GenerateRecurring(ctx context.Context, asOf time.Time) (posting.GenerationReport, error)
}

// RecurringJob drives recurring revenue and expense generation.
type RecurringJob struct {
	Generator RecurringGenerator
	Guard     *Guard
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewRecurringJob initialises the recurring generation handler.
func NewRecurringJob(generator RecurringGenerator, guard *Guard, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecurringJob {
	return &RecurringJob{
		Generator: generator,
		Guard:     guard,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskRecurringGenerate tasks.
func (j *RecurringJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Generator == nil {
		return errors.New("recurring: handler not configured")
	}
	var payload RecurringPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.clock()
	}
	return j.Run(ctx, asOf)
}

// Run generates every period due on or before asOf.
func (j *RecurringJob) Run(ctx context.Context, asOf time.Time) error {
	tracker := j.Metrics.Track(TaskRecurringGenerate)
	logger := jobLogger(j.Logger).With(slog.String("as_of", asOf.Format("2006-01-02")))
	_, err := j.Guard.Run(ctx, TaskRecurringGenerate, func(ctx context.Context) error {
		report, err := j.Generator.GenerateRecurring(ctx, asOf)
		logger.Info("recurring generation finished",
			slog.Int("generated", len(report.Generated)),
			slog.Int("skipped", report.Skipped),
			slog.Int("failed", report.Failed),
		)
		return err
	})
	if err != nil {
		logger.Error("recurring generation failed", slog.Any("error", err))
	}
	return tracker.End(err)
}

func jobLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
