package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/posting"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Sequences returns the store as a sequence.RepositoryPort.
func (s *Store) Sequences() sequence.RepositoryPort { return sequencePort{s} }

// Journal returns the store as a ledger.RepositoryPort.
func (s *Store) Journal() ledger.RepositoryPort { return journalPort{s} }

// Inventory returns the store as an inventory.RepositoryPort.
func (s *Store) Inventory() inventory.RepositoryPort { return inventoryPort{s} }

// Accounts returns the store as an accountledger.RepositoryPort.
func (s *Store) Accounts() accountledger.RepositoryPort { return accountPort{s} }

type sequencePort struct{ s *Store }

func (p sequencePort) WithTx(ctx context.Context, fn func(context.Context, sequence.TxRepository) error) error {
	return p.s.run(ctx, func(tx *txState) error { return fn(ctx, &sequenceTx{tx}) })
}

func (p sequencePort) GetSequence(_ context.Context, documentType string) (sequence.Sequence, error) {
	var (
		seq sequence.Sequence
		ok  bool
	)
	p.s.read(func(st *state) { seq, ok = st.sequences[documentType] })
	if !ok {
		return sequence.Sequence{}, sequence.ErrSequenceNotConfigured
	}
	return seq, nil
}

type sequenceTx struct{ tx *txState }

func (r *sequenceTx) GetSequence(_ context.Context, documentType string) (sequence.Sequence, error) {
	seq, ok := r.tx.st.sequences[documentType]
	if !ok {
		return sequence.Sequence{}, sequence.ErrSequenceNotConfigured
	}
	return seq, nil
}

func (r *sequenceTx) IncrementSequence(_ context.Context, documentType string) (sequence.Sequence, error) {
	if err := r.tx.fault("IncrementSequence"); err != nil {
		return sequence.Sequence{}, err
	}
	seq, ok := r.tx.st.sequences[documentType]
	if !ok {
		return sequence.Sequence{}, sequence.ErrSequenceNotConfigured
	}
	seq.CurrentNumber++
	seq.UpdatedAt = r.tx.now()
	r.tx.st.sequences[documentType] = seq
	return seq, nil
}

func (r *sequenceTx) AdvanceSequence(_ context.Context, documentType string, atLeast int64) (sequence.Sequence, error) {
	seq, ok := r.tx.st.sequences[documentType]
	if !ok {
		return sequence.Sequence{}, sequence.ErrSequenceNotConfigured
	}
	if atLeast > seq.CurrentNumber {
		seq.CurrentNumber = atLeast
		seq.UpdatedAt = r.tx.now()
		r.tx.st.sequences[documentType] = seq
	}
	return seq, nil
}

func (r *sequenceTx) UpsertSequence(_ context.Context, seq sequence.Sequence) error {
	if existing, ok := r.tx.st.sequences[seq.DocumentType]; ok {
		seq.CurrentNumber = existing.CurrentNumber
	}
	seq.UpdatedAt = r.tx.now()
	r.tx.st.sequences[seq.DocumentType] = seq
	return nil
}

func (r *sequenceTx) ClaimNumber(_ context.Context, documentType, number string) error {
	claimed := r.tx.st.numbers[documentType]
	if claimed == nil {
		claimed = make(map[string]bool)
		r.tx.st.numbers[documentType] = claimed
	}
	if claimed[number] {
		return sequence.ErrNumberTaken
	}
	claimed[number] = true
	return nil
}

type journalPort struct{ s *Store }

func (p journalPort) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return p.s.run(ctx, func(tx *txState) error { return fn(ctx, &journalTx{tx}) })
}

func (p journalPort) TrialBalance(_ context.Context) ([]ledger.AccountTotal, error) {
	byAccount := make(map[string]ledger.AccountTotal)
	p.s.read(func(st *state) {
		for _, e := range st.entries {
			for _, l := range e.Lines {
				t := byAccount[l.AccountCode]
				t.AccountCode = l.AccountCode
				t.Debit = t.Debit.Add(l.Debit)
				t.Credit = t.Credit.Add(l.Credit)
				byAccount[l.AccountCode] = t
			}
		}
	})
	out := make([]ledger.AccountTotal, 0, len(byAccount))
	for _, t := range byAccount {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountCode < out[j].AccountCode })
	return out, nil
}

func (p journalPort) UnbalancedEntries(_ context.Context) ([]ledger.UnbalancedEntry, error) {
	var out []ledger.UnbalancedEntry
	p.s.read(func(st *state) {
		for _, e := range st.entries {
			debit, credit := e.Totals()
			if !debit.Equal(credit) {
				out = append(out, ledger.UnbalancedEntry{EntryID: e.ID, Number: e.Number, Debit: debit, Credit: credit})
			}
		}
	})
	return out, nil
}

type journalTx struct{ tx *txState }

func (r *journalTx) Sequences() sequence.TxRepository { return &sequenceTx{r.tx} }

func (r *journalTx) InsertEntry(_ context.Context, entry ledger.JournalEntry) (int64, error) {
	if err := r.tx.fault("InsertEntry"); err != nil {
		return 0, err
	}
	entry.ID = r.tx.st.id()
	entry.CreatedAt = r.tx.now()
	entry.Lines = nil
	r.tx.st.entries = append(r.tx.st.entries, entry)
	return entry.ID, nil
}

func (r *journalTx) InsertLines(_ context.Context, entryID int64, lines []ledger.Line) error {
	if err := r.tx.fault("InsertLines"); err != nil {
		return err
	}
	for i := range r.tx.st.entries {
		if r.tx.st.entries[i].ID == entryID {
			r.tx.st.entries[i].Lines = append([]ledger.Line(nil), lines...)
			return nil
		}
	}
	return ledger.ErrInvalidLine
}

func (r *journalTx) DeleteByReference(_ context.Context, ref shared.Reference) (int, error) {
	if err := r.tx.fault("DeleteEntries"); err != nil {
		return 0, err
	}
	kept := r.tx.st.entries[:0:0]
	n := 0
	for _, e := range r.tx.st.entries {
		if e.Reference == ref {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.tx.st.entries = kept
	return n, nil
}

func (r *journalTx) EntriesByReference(_ context.Context, ref shared.Reference) ([]ledger.JournalEntry, error) {
	var out []ledger.JournalEntry
	for _, e := range r.tx.st.entries {
		if e.Reference == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

type inventoryPort struct{ s *Store }

func (p inventoryPort) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return p.s.run(ctx, func(tx *txState) error { return fn(ctx, &inventoryTx{tx}) })
}

type inventoryTx struct{ tx *txState }

func (r *inventoryTx) InsertMovement(_ context.Context, m inventory.Movement) (int64, error) {
	if err := r.tx.fault("InsertMovement"); err != nil {
		return 0, err
	}
	m.ID = r.tx.st.id()
	m.CreatedAt = r.tx.now()
	r.tx.st.movements = append(r.tx.st.movements, m)
	return m.ID, nil
}

func (r *inventoryTx) DeleteByReference(_ context.Context, ref shared.Reference) ([]inventory.Movement, error) {
	if err := r.tx.fault("DeleteMovements"); err != nil {
		return nil, err
	}
	var deleted []inventory.Movement
	kept := r.tx.st.movements[:0:0]
	for _, m := range r.tx.st.movements {
		if m.Reference == ref {
			deleted = append(deleted, m)
			continue
		}
		kept = append(kept, m)
	}
	r.tx.st.movements = kept
	return deleted, nil
}

func (r *inventoryTx) MovementsByReference(_ context.Context, ref shared.Reference) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, m := range r.tx.st.movements {
		if m.Reference == ref {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *inventoryTx) StockQuantity(_ context.Context, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	qty := decimal.Zero
	for _, m := range r.tx.st.movements {
		if m.ProductID != productID || (warehouseID != nil && m.WarehouseID != *warehouseID) {
			continue
		}
		qty = qty.Add(m.SignedQuantity())
	}
	return qty, nil
}

func (r *inventoryTx) CostLayers(_ context.Context, productID int64) ([]inventory.CostLayer, error) {
	var layers []inventory.CostLayer
	for _, m := range r.tx.st.movements {
		if m.ProductID == productID && m.Type == inventory.MovementIn && m.Valued() {
			layers = append(layers, inventory.CostLayer{MovementID: m.ID, Date: m.Date, Quantity: m.Quantity, UnitCost: m.UnitCost})
		}
	}
	return layers, nil
}

func (r *inventoryTx) IssuedQuantity(_ context.Context, productID int64) (decimal.Decimal, error) {
	qty := decimal.Zero
	for _, m := range r.tx.st.movements {
		if m.ProductID == productID && m.Type == inventory.MovementOut && m.Valued() {
			qty = qty.Add(m.Quantity)
		}
	}
	return qty, nil
}

func (r *inventoryTx) GetBalanceForUpdate(_ context.Context, productID, warehouseID int64) (inventory.Balance, error) {
	b, ok := r.tx.st.balances[balanceKey{productID, warehouseID}]
	if !ok {
		return inventory.Balance{ProductID: productID, WarehouseID: warehouseID}, inventory.ErrBalanceNotFound
	}
	return b, nil
}

func (r *inventoryTx) UpsertBalance(_ context.Context, b inventory.Balance) error {
	if err := r.tx.fault("UpsertBalance"); err != nil {
		return err
	}
	b.UpdatedAt = r.tx.now()
	r.tx.st.balances[balanceKey{b.ProductID, b.WarehouseID}] = b
	return nil
}

func (r *inventoryTx) ListBalances(_ context.Context) ([]inventory.Balance, error) {
	out := make([]inventory.Balance, 0, len(r.tx.st.balances))
	for _, b := range r.tx.st.balances {
		out = append(out, b)
	}
	sortBalances(out)
	return out, nil
}

func (r *inventoryTx) DerivedBalances(_ context.Context) ([]inventory.Balance, error) {
	derived := make(map[balanceKey]decimal.Decimal)
	for _, m := range r.tx.st.movements {
		k := balanceKey{m.ProductID, m.WarehouseID}
		derived[k] = derived[k].Add(m.SignedQuantity())
	}
	out := make([]inventory.Balance, 0, len(derived))
	for k, qty := range derived {
		out = append(out, inventory.Balance{ProductID: k.product, WarehouseID: k.warehouse, Qty: qty})
	}
	sortBalances(out)
	return out, nil
}

func sortBalances(out []inventory.Balance) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
}

type accountPort struct{ s *Store }

func (p accountPort) WithTx(ctx context.Context, fn func(context.Context, accountledger.TxRepository) error) error {
	return p.s.run(ctx, func(tx *txState) error { return fn(ctx, &accountTx{tx}) })
}

type accountTx struct{ tx *txState }

// LockCounterparty is a no-op: the store already serialises transactions.
func (r *accountTx) LockCounterparty(_ context.Context, _ int64) error {
	return r.tx.fault("LockCounterparty")
}

func (r *accountTx) LatestTransaction(_ context.Context, counterpartyID int64) (accountledger.Transaction, error) {
	for i := len(r.tx.st.transactions) - 1; i >= 0; i-- {
		if t := r.tx.st.transactions[i]; t.CounterpartyID == counterpartyID {
			return t, nil
		}
	}
	return accountledger.Transaction{}, accountledger.ErrNoTransactions
}

func (r *accountTx) InsertTransaction(_ context.Context, t accountledger.Transaction) (int64, error) {
	if err := r.tx.fault("InsertTransaction"); err != nil {
		return 0, err
	}
	t.ID = r.tx.st.id()
	t.CreatedAt = r.tx.now()
	r.tx.st.transactions = append(r.tx.st.transactions, t)
	return t.ID, nil
}

func (r *accountTx) TransactionsByReference(_ context.Context, ref shared.Reference) ([]accountledger.Transaction, error) {
	var out []accountledger.Transaction
	for _, t := range r.tx.st.transactions {
		if t.Reference == ref {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *accountTx) DeleteTransactions(_ context.Context, ids []int64) error {
	if err := r.tx.fault("DeleteTransactions"); err != nil {
		return err
	}
	doomed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}
	kept := r.tx.st.transactions[:0:0]
	for _, t := range r.tx.st.transactions {
		if !doomed[t.ID] {
			kept = append(kept, t)
		}
	}
	r.tx.st.transactions = kept
	return nil
}

func (r *accountTx) BalanceBefore(_ context.Context, counterpartyID, beforeID int64) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, t := range r.tx.st.transactions {
		if t.CounterpartyID == counterpartyID && t.ID < beforeID {
			balance = t.BalanceAfter
		}
	}
	return balance, nil
}

func (r *accountTx) TransactionsAfter(_ context.Context, counterpartyID, afterID int64) ([]accountledger.Transaction, error) {
	var out []accountledger.Transaction
	for _, t := range r.tx.st.transactions {
		if t.CounterpartyID == counterpartyID && t.ID > afterID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *accountTx) UpdateBalanceAfter(_ context.Context, id int64, balance decimal.Decimal) error {
	for i := range r.tx.st.transactions {
		if r.tx.st.transactions[i].ID == id {
			r.tx.st.transactions[i].BalanceAfter = balance
			return nil
		}
	}
	return accountledger.ErrNoTransactions
}

func (r *accountTx) Statement(ctx context.Context, counterpartyID int64) ([]accountledger.Transaction, error) {
	return r.TransactionsAfter(ctx, counterpartyID, 0)
}

type documentTx struct{ tx *txState }

func (r *documentTx) InsertDocument(_ context.Context, doc posting.Document) error {
	if err := r.tx.fault("InsertDocument"); err != nil {
		return err
	}
	for _, d := range r.tx.st.documents {
		if d.EventType == doc.EventType && d.Number == doc.Number {
			return sequence.ErrNumberTaken
		}
	}
	r.tx.st.documents[doc.ID] = doc
	return nil
}

func (r *documentTx) GetDocument(_ context.Context, eventType posting.EventType, id uuid.UUID) (posting.Document, error) {
	doc, ok := r.tx.st.documents[id]
	if !ok || doc.EventType != eventType {
		return posting.Document{}, posting.ErrDocumentNotFound
	}
	return doc, nil
}

func (r *documentTx) DeleteDocument(_ context.Context, id uuid.UUID) error {
	if err := r.tx.fault("DeleteDocument"); err != nil {
		return err
	}
	if _, ok := r.tx.st.documents[id]; !ok {
		return posting.ErrDocumentNotFound
	}
	delete(r.tx.st.documents, id)
	return nil
}

func (r *documentTx) DueTemplates(_ context.Context, asOf time.Time) ([]posting.RecurringTemplate, error) {
	var out []posting.RecurringTemplate
	for _, t := range r.tx.st.templates {
		if t.DueOn(asOf) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *documentTx) LockTemplate(_ context.Context, id int64) (posting.RecurringTemplate, error) {
	t, ok := r.tx.st.templates[id]
	if !ok {
		return posting.RecurringTemplate{}, posting.ErrTemplateNotFound
	}
	return t, nil
}

func (r *documentTx) UpdateTemplateSchedule(_ context.Context, t posting.RecurringTemplate) error {
	if err := r.tx.fault("UpdateTemplateSchedule"); err != nil {
		return err
	}
	r.tx.st.templates[t.ID] = t
	return nil
}

type auditTx struct{ tx *txState }

func (r *auditTx) Record(_ context.Context, log shared.AuditLog) error {
	if err := r.tx.fault("RecordAudit"); err != nil {
		return err
	}
	if err := log.Validate(); err != nil {
		return err
	}
	r.tx.st.audit = append(r.tx.st.audit, log)
	return nil
}

type idempotencyTx struct{ tx *txState }

func (r *idempotencyTx) CheckAndInsert(_ context.Context, key, module string) error {
	if _, ok := r.tx.st.idempotency[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	r.tx.st.idempotency[key] = module
	return nil
}
