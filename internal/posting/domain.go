package posting

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// EventType names a business event the orchestrator can post.
type EventType string

const (
	EventSalesInvoice    EventType = "sales_invoice"
	EventPOSInvoice      EventType = "pos_invoice"
	EventSalesReturn     EventType = "sales_return"
	EventPurchaseInvoice EventType = "purchase_invoice"
	EventPurchaseReturn  EventType = "purchase_return"
	EventCreditNote      EventType = "credit_note"
	EventPayroll         EventType = "payroll"
	EventRecurringEntry  EventType = "recurring_entry"
)

// Reference is the back-reference every ledger row of a document carries.
func (e EventType) Reference(id uuid.UUID) shared.Reference {
	return shared.Reference{Type: string(e), ID: id}
}

// COGSReference is the reference of the document's separate cost entry.
func (e EventType) COGSReference(id uuid.UUID) shared.Reference {
	return shared.Reference{Type: string(e) + "_cogs", ID: id}
}

var (
	// ErrInvalidInput wraps payload validation failures.
	ErrInvalidInput = shared.ErrInvalidInput
	// ErrDocumentNotFound indicates delete of an unknown document.
	ErrDocumentNotFound = errors.New("posting: document not found")
	// ErrUnsupportedEvent indicates an unknown event type or mismatched payload.
	ErrUnsupportedEvent = errors.New("posting: unsupported event")
	// ErrCreditLimitExceeded is matched by every *CreditLimitExceededError.
	ErrCreditLimitExceeded = errors.New("posting: credit limit exceeded")
)

// CreditLimitExceededError rejects a credit sale before any write.
type CreditLimitExceededError struct {
	CounterpartyID int64
	Limit          decimal.Decimal
	Exposure       decimal.Decimal
	Requested      decimal.Decimal
	Over           decimal.Decimal
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("posting: credit limit exceeded for counterparty %d: limit %s, exposure %s, requested %s, over by %s",
		e.CounterpartyID, e.Limit.StringFixed(3), e.Exposure.StringFixed(3), e.Requested.StringFixed(3), e.Over.StringFixed(3))
}

func (e *CreditLimitExceededError) Unwrap() error { return ErrCreditLimitExceeded }

// LineInput is one product line of a trade document. A zero UnitPrice
// takes the catalog price and a nil TaxRate the catalog rate.
type LineInput struct {
	ProductID int64           `validate:"required,gt=0"`
	Quantity  decimal.Decimal `validate:"gt=0"`
	UnitPrice decimal.Decimal `validate:"gte=0"`
	TaxRate   *decimal.Decimal
}

// TradePayload creates a sales, POS, purchase or return document. SourceID
// links a return to the document it returns.
type TradePayload struct {
	ManualNumber   string
	Date           time.Time
	CounterpartyID int64                `validate:"gte=0"`
	WarehouseID    int64                `validate:"required,gt=0"`
	PaymentMethod  ledger.PaymentMethod `validate:"required,oneof=cash credit bank transfer check cheque"`
	Lines          []LineInput          `validate:"required,min=1,dive"`
	Discount       decimal.Decimal      `validate:"gte=0"`
	InclusiveTax   bool
	OverrideStock  bool
	SourceID       uuid.UUID
	Notes          string
	ActorID        int64
}

// CreditNotePayload reduces what a customer owes without moving stock.
type CreditNotePayload struct {
	ManualNumber   string
	Date           time.Time
	CounterpartyID int64           `validate:"required,gt=0"`
	Amount         decimal.Decimal `validate:"gt=0"`
	Notes          string
	ActorID        int64
}

// PayrollPayload posts a processed payroll run.
type PayrollPayload struct {
	ManualNumber   string
	Date           time.Time
	Period         string          `validate:"required"`
	Gross          decimal.Decimal `validate:"gt=0"`
	SocialSecurity decimal.Decimal `validate:"gte=0"`
	Net            decimal.Decimal `validate:"gte=0"`
	ActorID        int64
}

// RecurringKind separates revenue from expense entries.
type RecurringKind string

const (
	RecurringRevenue RecurringKind = "revenue"
	RecurringExpense RecurringKind = "expense"
)

// RecurringEntryPayload posts one revenue or expense entry.
type RecurringEntryPayload struct {
	ManualNumber  string
	Date          time.Time
	Kind          RecurringKind        `validate:"required,oneof=revenue expense"`
	CategoryCode  string               `validate:"required"`
	Amount        decimal.Decimal      `validate:"gt=0"`
	PaymentMethod ledger.PaymentMethod `validate:"required,oneof=cash bank transfer check cheque"`
	Description   string
	TemplateID    int64
	ActorID       int64
}

// Totals summarises a priced document.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Net is subtotal minus discount.
func (t Totals) Net() decimal.Decimal {
	return t.Subtotal.Sub(t.Discount)
}

// Document is the persisted business record.
type Document struct {
	ID             uuid.UUID
	EventType      EventType
	Number         string
	Date           time.Time
	CounterpartyID int64
	WarehouseID    int64
	PaymentMethod  ledger.PaymentMethod
	Totals         Totals
	InclusiveTax   bool
	SourceID       uuid.UUID
	Notes          string
	CreatedBy      int64
	Lines          []DocumentLine
}

// DocumentLine is a persisted priced line.
type DocumentLine struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// Result reports everything a create wrote. Warnings lists stock
// shortfalls the caller overrode.
type Result struct {
	Document    Document
	Entries     []ledger.JournalEntry
	Movements   []inventory.Movement
	Transaction *accountledger.Transaction
	Warnings    []inventory.StockWarning
}
