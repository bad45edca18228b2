// Package memstore is an in-memory implementation of every ledger
// repository with all-or-nothing transactions and fault injection.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/catalog"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/posting"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

type balanceKey struct {
	product   int64
	warehouse int64
}

type state struct {
	sequences    map[string]sequence.Sequence
	numbers      map[string]map[string]bool
	entries      []ledger.JournalEntry
	movements    []inventory.Movement
	balances     map[balanceKey]inventory.Balance
	transactions []accountledger.Transaction
	documents    map[uuid.UUID]posting.Document
	templates    map[int64]posting.RecurringTemplate
	idempotency  map[string]string
	audit        []shared.AuditLog
	nextID       int64
}

func newState() *state {
	return &state{
		sequences:   make(map[string]sequence.Sequence),
		numbers:     make(map[string]map[string]bool),
		balances:    make(map[balanceKey]inventory.Balance),
		documents:   make(map[uuid.UUID]posting.Document),
		templates:   make(map[int64]posting.RecurringTemplate),
		idempotency: make(map[string]string),
	}
}

func (s *state) clone() *state {
	c := &state{
		sequences:    make(map[string]sequence.Sequence, len(s.sequences)),
		numbers:      make(map[string]map[string]bool, len(s.numbers)),
		entries:      append([]ledger.JournalEntry(nil), s.entries...),
		movements:    append([]inventory.Movement(nil), s.movements...),
		balances:     make(map[balanceKey]inventory.Balance, len(s.balances)),
		transactions: append([]accountledger.Transaction(nil), s.transactions...),
		documents:    make(map[uuid.UUID]posting.Document, len(s.documents)),
		templates:    make(map[int64]posting.RecurringTemplate, len(s.templates)),
		idempotency:  make(map[string]string, len(s.idempotency)),
		audit:        append([]shared.AuditLog(nil), s.audit...),
		nextID:       s.nextID,
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.numbers {
		claimed := make(map[string]bool, len(v))
		for n := range v {
			claimed[n] = true
		}
		c.numbers[k] = claimed
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.documents {
		c.documents[k] = v
	}
	for k, v := range s.templates {
		c.templates[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store holds every table in memory. A transaction works on a copy that
// replaces the committed state only when the callback succeeds.
type Store struct {
	mu     sync.Mutex
	state  *state
	faults map[string]error

	catalogMu      sync.RWMutex
	products       map[int64]catalog.Product
	counterparties map[int64]catalog.Counterparty

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		state:          newState(),
		faults:         make(map[string]error),
		products:       make(map[int64]catalog.Product),
		counterparties: make(map[int64]catalog.Counterparty),
		now:            time.Now,
	}
}

// FailOn makes the named repository operation return err until cleared.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// ClearFaults removes every injected failure.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]error)
}

// run executes fn against a copy of the state and commits it on success.
func (s *Store) run(ctx context.Context, fn func(*txState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &txState{st: s.state.clone(), faults: s.faults, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

func (s *Store) read(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

type txState struct {
	st     *state
	faults map[string]error
	now    func() time.Time
}

func (t *txState) fault(op string) error {
	if err, ok := t.faults[op]; ok {
		return fmt.Errorf("memstore: %s: %w", op, err)
	}
	return nil
}

// WithTx implements posting.UnitOfWork.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, posting.Tx) error) error {
	return s.run(ctx, func(tx *txState) error {
		return fn(ctx, &postingTx{tx})
	})
}

type postingTx struct{ tx *txState }

func (p *postingTx) Sequences() sequence.TxRepository      { return &sequenceTx{p.tx} }
func (p *postingTx) Journal() ledger.TxRepository          { return &journalTx{p.tx} }
func (p *postingTx) Inventory() inventory.TxRepository     { return &inventoryTx{p.tx} }
func (p *postingTx) Accounts() accountledger.TxRepository  { return &accountTx{p.tx} }
func (p *postingTx) Documents() posting.DocumentRepository { return &documentTx{p.tx} }
func (p *postingTx) Audit() posting.AuditPort              { return &auditTx{p.tx} }
func (p *postingTx) Idempotency() posting.IdempotencyPort  { return &idempotencyTx{p.tx} }

// ConfigureSequence seeds a document sequence.
func (s *Store) ConfigureSequence(documentType, prefix string, width int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.sequences[documentType] = sequence.Sequence{DocumentType: documentType, Prefix: prefix, DigitWidth: width, UpdatedAt: s.now()}
}

// PutProduct adds or replaces a catalog product.
func (s *Store) PutProduct(p catalog.Product) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	s.products[p.ID] = p
}

// PutCounterparty adds or replaces a counterparty.
func (s *Store) PutCounterparty(c catalog.Counterparty) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	s.counterparties[c.ID] = c
}

// Product implements posting.Catalog.
func (s *Store) Product(_ context.Context, id int64) (catalog.Product, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	p, ok := s.products[id]
	if !ok || !p.IsActive {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

// Counterparty implements posting.CounterpartyRegistry.
func (s *Store) Counterparty(_ context.Context, id int64) (catalog.Counterparty, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	c, ok := s.counterparties[id]
	if !ok || !c.IsActive {
		return catalog.Counterparty{}, catalog.ErrCounterpartyNotFound
	}
	return c, nil
}

// PutTemplate adds or replaces a recurring template.
func (s *Store) PutTemplate(t posting.RecurringTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.state.id()
	}
	s.state.templates[t.ID] = t
}

// Template returns a stored template.
func (s *Store) Template(id int64) (posting.RecurringTemplate, bool) {
	var (
		t  posting.RecurringTemplate
		ok bool
	)
	s.read(func(st *state) { t, ok = st.templates[id] })
	return t, ok
}

// Entries returns committed journal entries in posting order.
func (s *Store) Entries() []ledger.JournalEntry {
	var out []ledger.JournalEntry
	s.read(func(st *state) { out = append(out, st.entries...) })
	return out
}

// Movements returns committed inventory movements.
func (s *Store) Movements() []inventory.Movement {
	var out []inventory.Movement
	s.read(func(st *state) { out = append(out, st.movements...) })
	return out
}

// Transactions returns committed account transactions.
func (s *Store) Transactions() []accountledger.Transaction {
	var out []accountledger.Transaction
	s.read(func(st *state) { out = append(out, st.transactions...) })
	return out
}

// Documents returns committed documents ordered by number.
func (s *Store) Documents() []posting.Document {
	var out []posting.Document
	s.read(func(st *state) {
		for _, d := range st.documents {
			out = append(out, d)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// AuditLogs returns committed audit records.
func (s *Store) AuditLogs() []shared.AuditLog {
	var out []shared.AuditLog
	s.read(func(st *state) { out = append(out, st.audit...) })
	return out
}

// StoredBalance returns the materialized balance row, if any.
func (s *Store) StoredBalance(productID, warehouseID int64) (inventory.Balance, bool) {
	var (
		b  inventory.Balance
		ok bool
	)
	s.read(func(st *state) { b, ok = st.balances[balanceKey{productID, warehouseID}] })
	return b, ok
}

// CorruptBalance overwrites a materialized balance, simulating drift.
func (s *Store) CorruptBalance(b inventory.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.balances[balanceKey{b.ProductID, b.WarehouseID}] = b
}

// InjectEntry stores an entry as is, bypassing validation.
func (s *Store) InjectEntry(e ledger.JournalEntry) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.state.id()
	s.state.entries = append(s.state.entries, e)
	return e.ID
}

// Counts reports row counts across the ledgers.
type Counts struct {
	Entries      int
	Movements    int
	Transactions int
	Documents    int
	Audit        int
}

// Counts snapshots row counts.
func (s *Store) Counts() Counts {
	var c Counts
	s.read(func(st *state) {
		c = Counts{
			Entries:      len(st.entries),
			Movements:    len(st.movements),
			Transactions: len(st.transactions),
			Documents:    len(st.documents),
			Audit:        len(st.audit),
		}
	})
	return c
}
