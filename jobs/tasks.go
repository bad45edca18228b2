package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecurringGenerate posts every overdue recurring revenue/expense period.
	TaskRecurringGenerate = "ledger:recurring:generate"
	// TaskStockReconcile rebuilds materialized stock balances from movements.
	TaskStockReconcile = "inventory:reconcile"
	// TaskLedgerIntegrity scans the journal for unbalanced entries.
	TaskLedgerIntegrity = "ledger:integrity"
)

// RecurringPayload selects the generation cut-off. A zero AsOf means today.
type RecurringPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// ScanPayload carries scheduling metadata for the scan jobs.
type ScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewRecurringTask constructs a recurring-generation task.
func NewRecurringTask(asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(RecurringPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurringGenerate, body, asynq.Queue(QueueDefault)), nil
}

// NewStockReconcileTask constructs a stock reconciliation task.
func NewStockReconcileTask(at time.Time) (*asynq.Task, error) {
	return newScanTask(TaskStockReconcile, at)
}

// NewLedgerIntegrityTask constructs a journal integrity task.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	return newScanTask(TaskLedgerIntegrity, at)
}

func newScanTask(taskType string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}
