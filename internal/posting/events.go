package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/catalog"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// CreateCreditNote reduces a customer's balance. No stock moves.
func (o *Orchestrator) CreateCreditNote(ctx context.Context, p CreditNotePayload) (Result, error) {
	if err := o.validateStruct(p); err != nil {
		return Result{}, err
	}
	party, err := o.counterparties.Counterparty(ctx, p.CounterpartyID)
	if err != nil {
		if errors.Is(err, catalog.ErrCounterpartyNotFound) {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return Result{}, err
	}
	if !party.IsActive {
		return Result{}, fmt.Errorf("%w: counterparty %d is inactive", ErrInvalidInput, party.ID)
	}
	if party.Kind != catalog.KindCustomer {
		return Result{}, fmt.Errorf("%w: credit notes are issued to customers", ErrInvalidInput)
	}
	amount := shared.Round(p.Amount, o.precision)
	doc := Document{
		ID:             uuid.New(),
		EventType:      EventCreditNote,
		Date:           o.documentDate(p.Date),
		CounterpartyID: party.ID,
		PaymentMethod:  ledger.PaymentCredit,
		Totals:         Totals{Subtotal: amount, Total: amount},
		Notes:          p.Notes,
		CreatedBy:      p.ActorID,
	}

	var result Result
	err = o.observe(EventCreditNote, "create", func() error {
		return o.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			result = Result{}
			if err := o.persist(ctx, tx, &doc, p.ManualNumber); err != nil {
				return err
			}
			entry, err := o.post(ctx, tx, ledger.EventCreditNote, o.entryInput(doc), []keyedLine{
				debit(ledger.KeySalesReturns, amount),
				credit(ledger.KeyReceivable, amount),
			})
			if err != nil {
				return err
			}
			txn, err := o.accounts.RecordTx(ctx, tx.Accounts(), accountledger.RecordInput{
				Date:           doc.Date,
				CounterpartyID: doc.CounterpartyID,
				Type:           accountledger.TypeCreditNote,
				Direction:      accountledger.DirectionCredit,
				Amount:         amount,
				Reference:      EventCreditNote.Reference(doc.ID),
				CreatedBy:      doc.CreatedBy,
			})
			if err != nil {
				return err
			}
			result = Result{Document: doc, Entries: []ledger.JournalEntry{entry}, Transaction: &txn}
			return o.audit(ctx, tx, doc, shared.AuditCreate, doc.CreatedBy)
		})
	})
	if err != nil {
		return Result{}, err
	}
	o.logger.Info("credit note posted", slog.String("number", doc.Number), slog.Int64("counterparty_id", doc.CounterpartyID))
	return result, nil
}

// CreatePayroll posts a payroll run. Gross must equal deductions plus net.
func (o *Orchestrator) CreatePayroll(ctx context.Context, p PayrollPayload) (Result, error) {
	if err := o.validateStruct(p); err != nil {
		return Result{}, err
	}
	gross := shared.Round(p.Gross, o.precision)
	ss := shared.Round(p.SocialSecurity, o.precision)
	net := shared.Round(p.Net, o.precision)
	if !gross.Equal(ss.Add(net)) {
		return Result{}, fmt.Errorf("%w: gross %s does not equal deductions %s plus net %s", ErrInvalidInput, gross, ss, net)
	}
	doc := Document{
		ID:        uuid.New(),
		EventType: EventPayroll,
		Date:      o.documentDate(p.Date),
		Totals:    Totals{Subtotal: gross, Total: gross},
		Notes:     p.Period,
		CreatedBy: p.ActorID,
	}

	var result Result
	err := o.observe(EventPayroll, "create", func() error {
		return o.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			result = Result{}
			if err := o.persist(ctx, tx, &doc, p.ManualNumber); err != nil {
				return err
			}
			entry, err := o.post(ctx, tx, ledger.EventPayroll, o.entryInput(doc), []keyedLine{
				debit(ledger.KeySalariesExpense, gross),
				credit(ledger.KeySocialSecurityPayable, ss),
				credit(ledger.KeySalariesPayable, net),
			})
			if err != nil {
				return err
			}
			result = Result{Document: doc, Entries: []ledger.JournalEntry{entry}}
			return o.audit(ctx, tx, doc, shared.AuditCreate, doc.CreatedBy)
		})
	})
	if err != nil {
		return Result{}, err
	}
	o.logger.Info("payroll posted", slog.String("number", doc.Number), slog.String("period", p.Period))
	return result, nil
}

// CreateRecurringEntry posts a single revenue or expense entry.
func (o *Orchestrator) CreateRecurringEntry(ctx context.Context, p RecurringEntryPayload) (Result, error) {
	if err := o.validateStruct(p); err != nil {
		return Result{}, err
	}
	var result Result
	err := o.observe(EventRecurringEntry, "create", func() error {
		return o.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			result, err = o.createRecurringEntryTx(ctx, tx, uuid.New(), p)
			return err
		})
	})
	if err != nil {
		return Result{}, err
	}
	o.logger.Info("recurring entry posted", slog.String("number", result.Document.Number), slog.String("kind", string(p.Kind)))
	return result, nil
}

func (o *Orchestrator) createRecurringEntryTx(ctx context.Context, tx Tx, id uuid.UUID, p RecurringEntryPayload) (Result, error) {
	event := ledger.EventRecurringRevenue
	if p.Kind == RecurringExpense {
		event = ledger.EventRecurringExpense
	}
	settle, err := ledger.SettlementKey(event, p.PaymentMethod, "")
	if err != nil {
		return Result{}, err
	}
	amount := shared.Round(p.Amount, o.precision)
	doc := Document{
		ID:            id,
		EventType:     EventRecurringEntry,
		Date:          o.documentDate(p.Date),
		PaymentMethod: p.PaymentMethod,
		Totals:        Totals{Subtotal: amount, Total: amount},
		Notes:         p.Description,
		CreatedBy:     p.ActorID,
	}
	if err := o.persist(ctx, tx, &doc, p.ManualNumber); err != nil {
		return Result{}, err
	}
	category := ledger.CategoryKey(p.CategoryCode)
	lines := []keyedLine{debit(settle, amount), credit(category, amount)}
	if p.Kind == RecurringExpense {
		lines = []keyedLine{debit(category, amount), credit(settle, amount)}
	}
	entry, err := o.post(ctx, tx, event, o.entryInput(doc), lines)
	if err != nil {
		return Result{}, err
	}
	if err := o.audit(ctx, tx, doc, shared.AuditCreate, doc.CreatedBy); err != nil {
		return Result{}, err
	}
	return Result{Document: doc, Entries: []ledger.JournalEntry{entry}}, nil
}

// persist numbers and stores a document inside the unit of work.
func (o *Orchestrator) persist(ctx context.Context, tx Tx, doc *Document, manual string) error {
	number, err := o.number(ctx, tx, doc.EventType, manual)
	if err != nil {
		return err
	}
	doc.Number = number
	if err := tx.Documents().InsertDocument(ctx, *doc); err != nil {
		return fmt.Errorf("posting: insert document: %w", err)
	}
	return nil
}

func (o *Orchestrator) entryInput(doc Document) ledger.PostingInput {
	description := fmt.Sprintf("%s %s", doc.EventType, doc.Number)
	if doc.Notes != "" {
		description += ": " + doc.Notes
	}
	return ledger.PostingInput{
		Date:        doc.Date,
		Description: description,
		Reference:   doc.EventType.Reference(doc.ID),
		CreatedBy:   doc.CreatedBy,
	}
}
