package posting

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/catalog"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Tx exposes every repository bound to one unit of work.
type Tx interface {
	Sequences() sequence.TxRepository
	Journal() ledger.TxRepository
	Inventory() inventory.TxRepository
	Accounts() accountledger.TxRepository
	Documents() DocumentRepository
	Audit() AuditPort
	Idempotency() IdempotencyPort
}

// UnitOfWork runs fn in a single transaction, committing only when fn
// returns nil.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// DocumentRepository persists business records and recurring templates.
type DocumentRepository interface {
	InsertDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, eventType EventType, id uuid.UUID) (Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	DueTemplates(ctx context.Context, asOf time.Time) ([]RecurringTemplate, error)
	LockTemplate(ctx context.Context, id int64) (RecurringTemplate, error)
	UpdateTemplateSchedule(ctx context.Context, t RecurringTemplate) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards generated events against replay.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// Catalog supplies product pricing and stock attributes.
type Catalog interface {
	Product(ctx context.Context, id int64) (catalog.Product, error)
}

// CounterpartyRegistry supplies counterparty kind and credit limit.
type CounterpartyRegistry interface {
	Counterparty(ctx context.Context, id int64) (catalog.Counterparty, error)
}

// Observer receives posting telemetry.
type Observer interface {
	ObservePosting(event string, operation string, err error, elapsed time.Duration)
}
