package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Deps groups the collaborators of the orchestrator.
type Deps struct {
	UnitOfWork     UnitOfWork
	Sequences      *sequence.Service
	Journal        *ledger.Service
	Inventory      *inventory.Service
	Accounts       *accountledger.Service
	Resolver       *ledger.Resolver
	Catalog        Catalog
	Counterparties CounterpartyRegistry
	Observer       Observer
	Logger         *slog.Logger
	Precision      int32
}

// Orchestrator is the single entry point for posting business events.
type Orchestrator struct {
	uow            UnitOfWork
	sequences      *sequence.Service
	journal        *ledger.Service
	inventory      *inventory.Service
	accounts       *accountledger.Service
	resolver       *ledger.Resolver
	catalog        Catalog
	counterparties CounterpartyRegistry
	observer       Observer
	validate       *validator.Validate
	precision      int32
	now            func() time.Time
	logger         *slog.Logger
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.UnitOfWork == nil:
		return nil, errors.New("posting: unit of work required")
	case deps.Sequences == nil || deps.Journal == nil || deps.Inventory == nil || deps.Accounts == nil:
		return nil, errors.New("posting: ledger services required")
	case deps.Resolver == nil:
		return nil, errors.New("posting: account resolver required")
	case deps.Catalog == nil || deps.Counterparties == nil:
		return nil, errors.New("posting: catalog and counterparty registry required")
	}
	precision := deps.Precision
	if precision <= 0 {
		precision = shared.DefaultPrecision
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		uow:            deps.UnitOfWork,
		sequences:      deps.Sequences,
		journal:        deps.Journal,
		inventory:      deps.Inventory,
		accounts:       deps.Accounts,
		resolver:       deps.Resolver,
		catalog:        deps.Catalog,
		counterparties: deps.Counterparties,
		observer:       deps.Observer,
		validate:       newValidator(),
		precision:      precision,
		now:            time.Now,
		logger:         logger,
	}, nil
}

// WithNow overrides the clock, used by tests.
func (o *Orchestrator) WithNow(fn func() time.Time) *Orchestrator {
	if fn != nil {
		o.now = fn
	}
	return o
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func (o *Orchestrator) validateStruct(payload any) error {
	if err := o.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// CreateEvent posts a business event. The payload type must match the event.
func (o *Orchestrator) CreateEvent(ctx context.Context, eventType EventType, payload any) (Result, error) {
	switch p := payload.(type) {
	case TradePayload:
		if _, ok := tradeRulesFor[eventType]; ok {
			return o.createTrade(ctx, eventType, p)
		}
	case *TradePayload:
		if _, ok := tradeRulesFor[eventType]; ok && p != nil {
			return o.createTrade(ctx, eventType, *p)
		}
	case CreditNotePayload:
		if eventType == EventCreditNote {
			return o.CreateCreditNote(ctx, p)
		}
	case PayrollPayload:
		if eventType == EventPayroll {
			return o.CreatePayroll(ctx, p)
		}
	case RecurringEntryPayload:
		if eventType == EventRecurringEntry {
			return o.CreateRecurringEntry(ctx, p)
		}
	}
	return Result{}, fmt.Errorf("%w: %s with %T", ErrUnsupportedEvent, eventType, payload)
}

// DeleteEvent reverses every posting of a document and deletes it: account
// balance, journals, inventory movements, then the record itself. The delete
// audit row is attributed to actorID.
func (o *Orchestrator) DeleteEvent(ctx context.Context, eventType EventType, referenceID uuid.UUID, actorID int64) error {
	if !knownEvent(eventType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}
	return o.observe(eventType, "delete", func() error {
		return o.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			doc, err := tx.Documents().GetDocument(ctx, eventType, referenceID)
			if err != nil {
				return err
			}
			ref := eventType.Reference(doc.ID)
			if _, err := o.accounts.ReverseTx(ctx, tx.Accounts(), ref); err != nil {
				return err
			}
			if _, err := o.journal.ReverseTx(ctx, tx.Journal(), ref); err != nil {
				return err
			}
			if _, err := o.journal.ReverseTx(ctx, tx.Journal(), eventType.COGSReference(doc.ID)); err != nil {
				return err
			}
			if _, err := o.inventory.ReverseMovementsTx(ctx, tx.Inventory(), ref); err != nil {
				return err
			}
			if err := tx.Documents().DeleteDocument(ctx, doc.ID); err != nil {
				return fmt.Errorf("posting: delete document: %w", err)
			}
			return o.audit(ctx, tx, doc, shared.AuditDelete, actorID)
		})
	})
}

func knownEvent(e EventType) bool {
	switch e {
	case EventCreditNote, EventPayroll, EventRecurringEntry:
		return true
	}
	_, ok := tradeRulesFor[e]
	return ok
}

func (o *Orchestrator) observe(eventType EventType, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	if o.observer != nil {
		o.observer.ObservePosting(string(eventType), operation, err, time.Since(start))
	}
	return err
}

// number claims the operator's number or allocates the next one.
func (o *Orchestrator) number(ctx context.Context, tx Tx, eventType EventType, manual string) (string, error) {
	if manual = strings.TrimSpace(manual); manual != "" {
		if err := o.sequences.ClaimManualTx(ctx, tx.Sequences(), string(eventType), manual); err != nil {
			return "", err
		}
		return manual, nil
	}
	return o.sequences.AllocateTx(ctx, tx.Sequences(), string(eventType))
}

func (o *Orchestrator) resolve(event ledger.EventType, key ledger.AccountKey) (string, error) {
	return o.resolver.Resolve(event, key)
}

// post resolves keyed lines and posts them as one entry.
func (o *Orchestrator) post(ctx context.Context, tx Tx, event ledger.EventType, input ledger.PostingInput, lines []keyedLine) (ledger.JournalEntry, error) {
	input.Lines = make([]ledger.Line, 0, len(lines))
	for _, l := range lines {
		code, err := o.resolve(event, l.key)
		if err != nil {
			return ledger.JournalEntry{}, err
		}
		input.Lines = append(input.Lines, ledger.Line{AccountCode: code, Debit: l.debit, Credit: l.credit, Memo: l.memo})
	}
	return o.journal.PostTx(ctx, tx.Journal(), input)
}

type keyedLine struct {
	key    ledger.AccountKey
	debit  decimal.Decimal
	credit decimal.Decimal
	memo   string
}

func debit(key ledger.AccountKey, amount decimal.Decimal) keyedLine {
	return keyedLine{key: key, debit: amount, credit: decimal.Zero}
}

func credit(key ledger.AccountKey, amount decimal.Decimal) keyedLine {
	return keyedLine{key: key, debit: decimal.Zero, credit: amount}
}

func (o *Orchestrator) audit(ctx context.Context, tx Tx, doc Document, action shared.AuditAction, actorID int64) error {
	return tx.Audit().Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		Action:    action,
		Reference: doc.EventType.Reference(doc.ID),
		Number:    doc.Number,
		Total:     doc.Totals.Total,
		At:        o.now(),
	})
}

func (o *Orchestrator) documentDate(d time.Time) time.Time {
	if d.IsZero() {
		return o.now()
	}
	return d
}
