package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledgercore/internal/inventory"
	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
)

// StockReconciler rewrites drifted stock balances.
type StockReconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Drift, error)
}

// StockReconcileJob compares materialized stock balances against the movement ledger.
type StockReconcileJob struct {
	Reconciler StockReconciler
	Guard      *Guard
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewStockReconcileJob initialises the reconciliation handler.
func NewStockReconcileJob(reconciler StockReconciler, guard *Guard, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockReconcileJob {
	return &StockReconcileJob{Reconciler: reconciler, Guard: guard, Logger: logger, Metrics: metrics}
}

// Handle processes TaskStockReconcile tasks.
func (j *StockReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("stock reconcile: handler not configured")
	}
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx)
	return err
}

// Run reconciles once and returns the rows that drifted.
func (j *StockReconcileJob) Run(ctx context.Context) ([]inventory.Drift, error) {
	tracker := j.Metrics.Track(TaskStockReconcile)
	logger := jobLogger(j.Logger)
	start := time.Now()
	var drifts []inventory.Drift
	_, err := j.Guard.Run(ctx, TaskStockReconcile, func(ctx context.Context) error {
		var err error
		drifts, err = j.Reconciler.Reconcile(ctx)
		return err
	})
	if err != nil {
		logger.Error("stock reconcile failed", slog.Any("error", err))
		return nil, tracker.End(err)
	}
	for _, d := range drifts {
		logger.Warn("stock balance drift corrected",
			slog.Int64("product_id", d.ProductID),
			slog.Int64("warehouse_id", d.WarehouseID),
			slog.String("stored", d.Stored.String()),
			slog.String("derived", d.Derived.String()),
		)
	}
	j.Metrics.AddAnomalies(jobmetrics.AnomalyStockDrift, len(drifts))
	logger.Info("stock reconcile finished", slog.Int("drifts", len(drifts)), slog.Duration("duration", time.Since(start)))
	return drifts, tracker.End(nil)
}
