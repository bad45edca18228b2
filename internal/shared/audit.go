package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AuditAction names what happened to a posted document.
type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditDelete AuditAction = "delete"
)

// AuditLog is one row of the document trail: who created or deleted which
// document, under which number and for what total.
type AuditLog struct {
	ActorID   int64
	Action    AuditAction
	Reference Reference
	Number    string
	Total     decimal.Decimal
	At        time.Time
}

// Validate checks the mandatory columns.
func (l AuditLog) Validate() error {
	if l.Action != AuditCreate && l.Action != AuditDelete {
		return fmt.Errorf("%w: unknown audit action %q", ErrInvalidInput, l.Action)
	}
	if !l.Reference.Valid() {
		return fmt.Errorf("%w: audit log requires a document reference", ErrInvalidInput)
	}
	return nil
}

// AuditLogger appends to audit_logs through whatever executor it is bound
// to. Bound to a transaction, the record commits or rolls back with it.
type AuditLogger struct {
	db DBTX
}

func NewAuditLogger(db DBTX) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists log. A zero At falls back to the database clock.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("shared: audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err := l.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, reference_type, reference_id, number, total, occurred_at)
VALUES (NULLIF($1, 0), $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		log.ActorID, string(log.Action), log.Reference.Type, log.Reference.ID, log.Number, log.Total, at)
	if err != nil {
		return fmt.Errorf("shared: record audit %s %s: %w", log.Action, log.Reference, err)
	}
	return nil
}
