package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Frequency is how often a recurring template falls due.
type Frequency string

const (
	FrequencyDaily      Frequency = "daily"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiAnnual Frequency = "semi_annual"
	FrequencyAnnual     Frequency = "annual"
)

var (
	// ErrInvalidFrequency indicates an unknown schedule.
	ErrInvalidFrequency = errors.New("posting: unknown recurring frequency")
	// ErrTemplateNotFound indicates an unknown recurring template.
	ErrTemplateNotFound = errors.New("posting: recurring template not found")
)

// maxCatchUp bounds how many overdue periods one template posts per run.
const maxCatchUp = 400

// recurringNamespace derives stable document ids from idempotency keys.
var recurringNamespace = uuid.MustParse("6f0c7a52-3a4e-4c1b-9d55-2b8f4b7e1a10")

// Next returns the due date after from. Monthly steps keep anchorDay and
// clamp to the last day of shorter months.
func (f Frequency) Next(from time.Time, anchorDay int) (time.Time, error) {
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1), nil
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7), nil
	case FrequencyMonthly:
		return addMonths(from, 1, anchorDay), nil
	case FrequencyQuarterly:
		return addMonths(from, 3, anchorDay), nil
	case FrequencySemiAnnual:
		return addMonths(from, 6, anchorDay), nil
	case FrequencyAnnual:
		return addMonths(from, 12, anchorDay), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, f)
}

func addMonths(from time.Time, months, anchorDay int) time.Time {
	first := time.Date(from.Year(), from.Month()+time.Month(months), 1, 0, 0, 0, 0, from.Location())
	last := first.AddDate(0, 1, -1).Day()
	day := anchorDay
	if day <= 0 || day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, from.Location())
}

// RecurringTemplate schedules revenue or expense entries.
type RecurringTemplate struct {
	ID            int64
	Kind          RecurringKind
	Name          string
	CategoryCode  string
	Amount        decimal.Decimal
	PaymentMethod ledger.PaymentMethod
	Frequency     Frequency
	StartDate     time.Time
	EndDate       *time.Time
	NextDueDate   time.Time
	LastGenerated *time.Time
	AutoGenerate  bool
	IsActive      bool
	CreatedBy     int64
}

// DueOn reports whether the template has a period due on or before asOf.
func (t RecurringTemplate) DueOn(asOf time.Time) bool {
	if !t.IsActive || !t.AutoGenerate {
		return false
	}
	if t.NextDueDate.After(asOf) {
		return false
	}
	return t.EndDate == nil || !t.NextDueDate.After(*t.EndDate)
}

func (t RecurringTemplate) payload(due time.Time) RecurringEntryPayload {
	return RecurringEntryPayload{
		Date:          due,
		Kind:          t.Kind,
		CategoryCode:  t.CategoryCode,
		Amount:        t.Amount,
		PaymentMethod: t.PaymentMethod,
		Description:   t.Name,
		TemplateID:    t.ID,
		ActorID:       t.CreatedBy,
	}
}

// GenerationReport summarises one GenerateRecurring run.
type GenerationReport struct {
	Generated []Result
	Skipped   int
	Failed    int
}

// GenerateRecurring posts every overdue period of every active template.
// Each period commits on its own, guarded by its idempotency key, so a
// rerun after a partial failure resumes where the last one stopped.
func (o *Orchestrator) GenerateRecurring(ctx context.Context, asOf time.Time) (GenerationReport, error) {
	var templates []RecurringTemplate
	err := o.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		templates, err = tx.Documents().DueTemplates(ctx, asOf)
		return err
	})
	if err != nil {
		return GenerationReport{}, fmt.Errorf("posting: load due templates: %w", err)
	}

	var report GenerationReport
	var errs []error
	for _, tmpl := range templates {
		for i := 0; i < maxCatchUp; i++ {
			if err := ctx.Err(); err != nil {
				return report, errors.Join(append(errs, err)...)
			}
			result, posted, more, err := o.generateNext(ctx, tmpl.ID, asOf)
			if err != nil {
				report.Failed++
				errs = append(errs, fmt.Errorf("template %d: %w", tmpl.ID, err))
				o.logger.Error("recurring generation failed", slog.Int64("template_id", tmpl.ID), slog.Any("error", err))
				break
			}
			if posted {
				report.Generated = append(report.Generated, result)
			} else if more {
				report.Skipped++
			}
			if !more {
				break
			}
		}
	}
	o.logger.Info("recurring generation finished", slog.Int("generated", len(report.Generated)),
		slog.Int("skipped", report.Skipped), slog.Int("failed", report.Failed))
	return report, errors.Join(errs...)
}

// generateNext posts the template's next due period. more is false once
// nothing is due.
func (o *Orchestrator) generateNext(ctx context.Context, templateID int64, asOf time.Time) (Result, bool, bool, error) {
	var (
		result Result
		posted bool
		more   bool
	)
	err := o.observe(EventRecurringEntry, "generate", func() error {
		return o.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			result, posted, more = Result{}, false, false
			tmpl, err := tx.Documents().LockTemplate(ctx, templateID)
			if err != nil {
				return err
			}
			if !tmpl.DueOn(asOf) {
				return nil
			}
			more = true
			due := tmpl.NextDueDate
			key := shared.RecurringIdempotencyKey(tmpl.ID, due)
			switch err := tx.Idempotency().CheckAndInsert(ctx, key, string(EventRecurringEntry)); {
			case errors.Is(err, shared.ErrIdempotencyConflict):
				o.logger.Warn("recurring period already generated", slog.String("key", key))
			case err != nil:
				return err
			default:
				id := uuid.NewSHA1(recurringNamespace, []byte(key))
				result, err = o.createRecurringEntryTx(ctx, tx, id, tmpl.payload(due))
				if err != nil {
					return err
				}
				posted = true
			}
			next, err := tmpl.Frequency.Next(due, tmpl.StartDate.Day())
			if err != nil {
				return err
			}
			tmpl.LastGenerated = &due
			tmpl.NextDueDate = next
			return tx.Documents().UpdateTemplateSchedule(ctx, tmpl)
		})
	})
	if err != nil {
		return Result{}, false, false, err
	}
	return result, posted, more, nil
}
