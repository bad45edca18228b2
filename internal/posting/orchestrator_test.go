package posting_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/catalog"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/posting"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/testing/memstore"
)

const (
	widgetID     = int64(1)
	consultingID = int64(2)
	warehouseID  = int64(1)
	limitedID    = int64(100)
	customerID   = int64(101)
	supplierID   = int64(200)
)

var today = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type recordingObserver struct {
	mu     sync.Mutex
	events []string
	errs   int
}

func (o *recordingObserver) ObservePosting(event, operation string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event+":"+operation)
	if err != nil {
		o.errs++
	}
}

type harness struct {
	store     *memstore.Store
	orch      *posting.Orchestrator
	numbers   *sequence.Service
	journal   *ledger.Service
	inventory *inventory.Service
	accounts  *accountledger.Service
	observer  *recordingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memstore.New()
	store.SeedSequences()
	store.PutProduct(catalog.Product{ID: widgetID, SKU: "W-1", Name: "Widget", CostPrice: d("2"), SalePrice: d("10"),
		TaxRate: d("10"), MinimumQuantity: d("3"), TrackStock: true, IsActive: true})
	store.PutProduct(catalog.Product{ID: consultingID, SKU: "SVC-1", Name: "Consulting", SalePrice: d("50"), IsActive: true})
	store.PutCounterparty(catalog.Counterparty{ID: limitedID, Kind: catalog.KindCustomer, Name: "Limited Co", CreditLimit: d("500"), IsActive: true})
	store.PutCounterparty(catalog.Counterparty{ID: customerID, Kind: catalog.KindCustomer, Name: "Open Account", IsActive: true})
	store.PutCounterparty(catalog.Counterparty{ID: supplierID, Kind: catalog.KindSupplier, Name: "Supplier", IsActive: true})

	resolver, err := ledger.LoadResolver(context.Background(), memstore.StandardChart())
	require.NoError(t, err)

	numbers := sequence.NewService(store.Sequences(), sequence.Config{}, nil)
	h := &harness{
		store:     store,
		numbers:   numbers,
		journal:   ledger.NewService(store.Journal(), numbers, ledger.ServiceConfig{}, nil),
		inventory: inventory.NewService(store.Inventory(), inventory.ServiceConfig{}, nil),
		accounts:  accountledger.NewService(store.Accounts(), accountledger.ServiceConfig{}, nil),
		observer:  &recordingObserver{},
	}
	h.orch, err = posting.NewOrchestrator(posting.Deps{
		UnitOfWork:     store,
		Sequences:      numbers,
		Journal:        h.journal,
		Inventory:      h.inventory,
		Accounts:       h.accounts,
		Resolver:       resolver,
		Catalog:        store,
		Counterparties: store,
		Observer:       h.observer,
	})
	require.NoError(t, err)
	h.orch.WithNow(func() time.Time { return today })
	return h
}

func (h *harness) purchase(t *testing.T, qty, price string) posting.Result {
	t.Helper()
	res, err := h.orch.CreateEvent(context.Background(), posting.EventPurchaseInvoice, posting.TradePayload{
		CounterpartyID: supplierID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d(qty), UnitPrice: d(price)}},
	})
	require.NoError(t, err)
	return res
}

func (h *harness) stock(t *testing.T) decimal.Decimal {
	t.Helper()
	qty, err := h.inventory.CurrentStock(context.Background(), widgetID, nil)
	require.NoError(t, err)
	return qty
}

func (h *harness) balance(t *testing.T, counterpartyID int64) decimal.Decimal {
	t.Helper()
	b, err := h.accounts.CurrentBalance(context.Background(), counterpartyID)
	require.NoError(t, err)
	return b
}

// accountBalance is debit minus credit for one account code.
func (h *harness) accountBalance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	rows, err := h.journal.TrialBalance(context.Background())
	require.NoError(t, err)
	for _, r := range rows {
		if r.AccountCode == code {
			return r.Balance()
		}
	}
	return decimal.Zero
}

func (h *harness) requireBalancedBooks(t *testing.T) {
	t.Helper()
	rows, err := h.journal.TrialBalance(context.Background())
	require.NoError(t, err)
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Balance())
	}
	require.True(t, total.IsZero(), "trial balance off by %s", total)
	for _, e := range h.store.Entries() {
		debit, credit := e.Totals()
		require.True(t, debit.Equal(credit), "entry %s unbalanced", e.Number)
	}
}

func TestPurchaseThenSalePostsAllLedgers(t *testing.T) {
	h := newHarness(t)
	purchase := h.purchase(t, "10", "2")
	require.Equal(t, "PI-000001", purchase.Document.Number)
	require.Len(t, purchase.Movements, 1)
	require.NotNil(t, purchase.Transaction)
	require.Equal(t, accountledger.DirectionCredit, purchase.Transaction.Direction)
	require.True(t, h.balance(t, supplierID).Equal(d("-22")))

	sale, err := h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, posting.TradePayload{
		CounterpartyID: customerID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCash,
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d("4")}},
	})
	require.NoError(t, err)
	require.Equal(t, "INV-000001", sale.Document.Number)
	require.Equal(t, "44.000", sale.Document.Totals.Total.StringFixed(3))
	require.Len(t, sale.Entries, 2)
	require.Equal(t, posting.EventSalesInvoice.COGSReference(sale.Document.ID), sale.Entries[1].Reference)
	require.Nil(t, sale.Transaction)
	require.Len(t, sale.Movements, 1)
	require.Equal(t, "8.000", sale.Movements[0].TotalCost.StringFixed(3))

	require.True(t, h.stock(t).Equal(d("6")))
	require.True(t, h.accountBalance(t, memstore.AccountCash).Equal(d("44")))
	require.True(t, h.accountBalance(t, memstore.AccountSales).Equal(d("-40")))
	require.True(t, h.accountBalance(t, memstore.AccountTaxPayable).Equal(d("-4")))
	require.True(t, h.accountBalance(t, memstore.AccountCOGS).Equal(d("8")))
	require.True(t, h.accountBalance(t, memstore.AccountInventory).Equal(d("12")))
	require.True(t, h.accountBalance(t, memstore.AccountPayable).Equal(d("-22")))
	h.requireBalancedBooks(t)

	logs := h.store.AuditLogs()
	require.Len(t, logs, 2)
	require.Equal(t, shared.AuditCreate, logs[1].Action)
	require.Equal(t, sale.Document.ID, logs[1].Reference.ID)
	require.Equal(t, sale.Document.Number, logs[1].Number)
}

func TestCreditLimitRejectsBeforeAnyWrite(t *testing.T) {
	h := newHarness(t)
	_, err := h.accounts.Record(context.Background(), accountledger.RecordInput{
		CounterpartyID: limitedID,
		Type:           accountledger.TypeReceipt,
		Direction:      accountledger.DirectionCredit,
		Amount:         d("450"),
		Reference:      shared.Reference{Type: "opening_balance", ID: [16]byte{1}},
	})
	require.NoError(t, err)
	before := h.store.Counts()

	_, err = h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, posting.TradePayload{
		CounterpartyID: limitedID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		Lines:          []posting.LineInput{{ProductID: consultingID, Quantity: d("2")}},
	})
	var exceeded *posting.CreditLimitExceededError
	require.ErrorAs(t, err, &exceeded)
	require.ErrorIs(t, err, posting.ErrCreditLimitExceeded)
	require.Equal(t, "50.000", exceeded.Over.StringFixed(3))
	require.Equal(t, "450.000", exceeded.Exposure.StringFixed(3))
	require.Equal(t, before, h.store.Counts())

	next, err := h.numbers.Peek(context.Background(), string(posting.EventSalesInvoice))
	require.NoError(t, err)
	require.Equal(t, "INV-000001", next)

	_, err = h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, posting.TradePayload{
		CounterpartyID: limitedID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		Lines:          []posting.LineInput{{ProductID: consultingID, Quantity: d("1")}},
	})
	require.NoError(t, err)
	require.True(t, h.balance(t, limitedID).Equal(d("-400")))
}

func TestDeleteRestoresEveryLedger(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, "10", "2")
	trialBefore, err := h.journal.TrialBalance(context.Background())
	require.NoError(t, err)

	sale, err := h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, posting.TradePayload{
		CounterpartyID: customerID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		ActorID:        7,
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d("4")}},
	})
	require.NoError(t, err)
	require.True(t, h.stock(t).Equal(d("6")))
	require.True(t, h.balance(t, customerID).Equal(d("44")))

	require.NoError(t, h.orch.DeleteEvent(context.Background(), posting.EventSalesInvoice, sale.Document.ID, 42))

	require.True(t, h.stock(t).Equal(d("10")))
	require.True(t, h.balance(t, customerID).IsZero())
	trialAfter, err := h.journal.TrialBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(trialBefore), len(trialAfter))
	for i := range trialBefore {
		require.Equal(t, trialBefore[i].AccountCode, trialAfter[i].AccountCode)
		require.True(t, trialBefore[i].Balance().Equal(trialAfter[i].Balance()))
	}
	bal, ok := h.store.StoredBalance(widgetID, warehouseID)
	require.True(t, ok)
	require.True(t, bal.Qty.Equal(d("10")))
	require.Len(t, h.store.Documents(), 1)

	logs := h.store.AuditLogs()
	require.Equal(t, shared.AuditDelete, logs[len(logs)-1].Action)
	require.Equal(t, int64(42), logs[len(logs)-1].ActorID)
	require.Equal(t, int64(7), logs[len(logs)-2].ActorID)

	err = h.orch.DeleteEvent(context.Background(), posting.EventSalesInvoice, sale.Document.ID, 42)
	require.ErrorIs(t, err, posting.ErrDocumentNotFound)
}

func TestUnmappedAccountWritesNothing(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.CreateEvent(context.Background(), posting.EventRecurringEntry, posting.RecurringEntryPayload{
		Kind:          posting.RecurringExpense,
		CategoryCode:  "marketing",
		Amount:        d("75"),
		PaymentMethod: ledger.PaymentBank,
	})
	var resolution *ledger.AccountResolutionError
	require.ErrorAs(t, err, &resolution)
	require.Equal(t, ledger.CategoryKey("marketing"), resolution.Key)
	require.Equal(t, memstore.Counts{}, h.store.Counts())

	next, err := h.numbers.Peek(context.Background(), string(posting.EventRecurringEntry))
	require.NoError(t, err)
	require.Equal(t, "REC-000001", next)
}

func TestStockWarningBlocksUnlessOverridden(t *testing.T) {
	h := newHarness(t)
	payload := posting.TradePayload{
		WarehouseID:   warehouseID,
		PaymentMethod: ledger.PaymentCash,
		Lines:         []posting.LineInput{{ProductID: widgetID, Quantity: d("5")}},
	}
	_, err := h.orch.CreateEvent(context.Background(), posting.EventPOSInvoice, payload)
	var shortage *inventory.InsufficientStockWarning
	require.ErrorAs(t, err, &shortage)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Len(t, shortage.Warnings, 1)
	require.Equal(t, inventory.StockOut, shortage.Warnings[0].Level)
	require.Equal(t, memstore.Counts{}, h.store.Counts())

	payload.OverrideStock = true
	res, err := h.orch.CreateEvent(context.Background(), posting.EventPOSInvoice, payload)
	require.NoError(t, err)
	require.Equal(t, "POS-000001", res.Document.Number)
	require.Len(t, res.Warnings, 1)
	require.True(t, h.stock(t).Equal(d("-5")))
	require.Equal(t, "10.000", res.Movements[0].TotalCost.StringFixed(3))
	h.requireBalancedBooks(t)
}

func TestFailureMidWayRollsBackEverything(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, "10", "2")
	before := h.store.Counts()
	h.store.FailOn("InsertTransaction", errors.New("connection reset"))

	_, err := h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, posting.TradePayload{
		CounterpartyID: customerID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d("4")}},
	})
	require.ErrorContains(t, err, "connection reset")
	require.Equal(t, before, h.store.Counts())
	require.True(t, h.stock(t).Equal(d("10")))
	bal, _ := h.store.StoredBalance(widgetID, warehouseID)
	require.True(t, bal.Qty.Equal(d("10")))

	next, err := h.numbers.Peek(context.Background(), string(posting.EventSalesInvoice))
	require.NoError(t, err)
	require.Equal(t, "INV-000001", next)
	next, err = h.numbers.Peek(context.Background(), ledger.SequenceDocumentType)
	require.NoError(t, err)
	require.Equal(t, "JE-000002", next)

	h.store.ClearFaults()
	_, err = h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, posting.TradePayload{
		CounterpartyID: customerID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d("4")}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, h.observer.errs)
}

func TestSalesReturnUsesSourceCost(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, "10", "2")
	h.purchase(t, "10", "4")
	sale, err := h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, posting.TradePayload{
		CounterpartyID: customerID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d("12")}},
	})
	require.NoError(t, err)
	require.Equal(t, "28.000", sale.Movements[0].TotalCost.StringFixed(3))

	ret, err := h.orch.CreateEvent(context.Background(), posting.EventSalesReturn, posting.TradePayload{
		CounterpartyID: customerID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		SourceID:       sale.Document.ID,
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d("2")}},
	})
	require.NoError(t, err)
	require.Equal(t, sale.Movements[0].UnitCost, ret.Movements[0].UnitCost)
	require.Equal(t, inventory.MovementIn, ret.Movements[0].Type)
	require.Len(t, ret.Entries, 2)
	require.Equal(t, accountledger.DirectionCredit, ret.Transaction.Direction)
	require.True(t, h.balance(t, customerID).Equal(d("110")))
	require.True(t, h.stock(t).Equal(d("10")))
	h.requireBalancedBooks(t)
}

func TestPurchaseReturnReducesSupplierBalance(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, "10", "2")
	ret, err := h.orch.CreateEvent(context.Background(), posting.EventPurchaseReturn, posting.TradePayload{
		CounterpartyID: supplierID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d("3"), UnitPrice: d("2")}},
	})
	require.NoError(t, err)
	require.Equal(t, "PR-000001", ret.Document.Number)
	require.Equal(t, accountledger.DirectionDebit, ret.Transaction.Direction)
	require.True(t, h.balance(t, supplierID).Equal(d("-15.4")))
	require.True(t, h.stock(t).Equal(d("7")))
	require.True(t, h.accountBalance(t, memstore.AccountInventory).Equal(d("14")))
	h.requireBalancedBooks(t)
}

func TestPurchaseDiscountFlowsIntoCost(t *testing.T) {
	h := newHarness(t)
	purchase, err := h.orch.CreateEvent(context.Background(), posting.EventPurchaseInvoice, posting.TradePayload{
		CounterpartyID: supplierID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		Discount:       d("5"),
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d("10"), UnitPrice: d("2")}},
	})
	require.NoError(t, err)
	require.Equal(t, "15.000", purchase.Movements[0].TotalCost.StringFixed(3))
	require.Equal(t, "1.500", purchase.Movements[0].UnitCost.StringFixed(3))
	require.True(t, h.accountBalance(t, memstore.AccountInventory).Equal(d("15")))

	sale, err := h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, posting.TradePayload{
		CounterpartyID: customerID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d("10")}},
	})
	require.NoError(t, err)
	require.Equal(t, "15.000", sale.Movements[0].TotalCost.StringFixed(3))
	require.True(t, h.stock(t).IsZero())
	require.True(t, h.accountBalance(t, memstore.AccountInventory).IsZero())
	require.True(t, h.accountBalance(t, memstore.AccountCOGS).Equal(d("15")))
	h.requireBalancedBooks(t)
}

func TestPurchaseReturnDiscountFlowsIntoCost(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, "10", "2")
	ret, err := h.orch.CreateEvent(context.Background(), posting.EventPurchaseReturn, posting.TradePayload{
		CounterpartyID: supplierID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCredit,
		Discount:       d("1"),
		Lines:          []posting.LineInput{{ProductID: widgetID, Quantity: d("3"), UnitPrice: d("2")}},
	})
	require.NoError(t, err)
	require.Equal(t, "5.000", ret.Movements[0].TotalCost.StringFixed(3))
	require.True(t, h.accountBalance(t, memstore.AccountInventory).Equal(d("15")))
	h.requireBalancedBooks(t)
}

func TestNonCashMethodsMoveCounterpartyBalance(t *testing.T) {
	h := newHarness(t)
	running := decimal.Zero
	for _, method := range []ledger.PaymentMethod{ledger.PaymentBank, ledger.PaymentTransfer, ledger.PaymentCheck} {
		t.Run(string(method), func(t *testing.T) {
			res, err := h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, posting.TradePayload{
				CounterpartyID: customerID,
				WarehouseID:    warehouseID,
				PaymentMethod:  method,
				Lines:          []posting.LineInput{{ProductID: consultingID, Quantity: d("1")}},
			})
			require.NoError(t, err)
			require.NotNil(t, res.Transaction)
			require.Equal(t, accountledger.DirectionDebit, res.Transaction.Direction)
			running = running.Add(d("50"))
			require.True(t, h.balance(t, customerID).Equal(running))
		})
	}

	pos, err := h.orch.CreateEvent(context.Background(), posting.EventPOSInvoice, posting.TradePayload{
		WarehouseID:   warehouseID,
		PaymentMethod: ledger.PaymentBank,
		Lines:         []posting.LineInput{{ProductID: consultingID, Quantity: d("1")}},
	})
	require.NoError(t, err)
	require.Nil(t, pos.Transaction)

	ret, err := h.orch.CreateEvent(context.Background(), posting.EventSalesReturn, posting.TradePayload{
		CounterpartyID: customerID,
		WarehouseID:    warehouseID,
		PaymentMethod:  ledger.PaymentCash,
		Lines:          []posting.LineInput{{ProductID: consultingID, Quantity: d("1")}},
	})
	require.NoError(t, err)
	require.NotNil(t, ret.Transaction)
	require.Equal(t, accountledger.DirectionCredit, ret.Transaction.Direction)
	require.True(t, h.balance(t, customerID).Equal(d("100")))
	h.requireBalancedBooks(t)
}

func TestCreditExposureCountsEitherSide(t *testing.T) {
	require.Equal(t, "450", posting.CreditExposure(d("-450")).String())
	require.Equal(t, "120", posting.CreditExposure(d("120")).String())
	require.True(t, posting.CreditExposure(decimal.Zero).IsZero())
}

func TestCreditNoteAndPayroll(t *testing.T) {
	h := newHarness(t)
	note, err := h.orch.CreateEvent(context.Background(), posting.EventCreditNote, posting.CreditNotePayload{
		CounterpartyID: customerID,
		Amount:         d("30"),
	})
	require.NoError(t, err)
	require.Equal(t, "CN-000001", note.Document.Number)
	require.True(t, h.balance(t, customerID).Equal(d("-30")))
	require.True(t, h.accountBalance(t, memstore.AccountSalesReturns).Equal(d("30")))

	_, err = h.orch.CreateEvent(context.Background(), posting.EventCreditNote, posting.CreditNotePayload{
		CounterpartyID: supplierID,
		Amount:         d("30"),
	})
	require.ErrorIs(t, err, posting.ErrInvalidInput)

	run, err := h.orch.CreateEvent(context.Background(), posting.EventPayroll, posting.PayrollPayload{
		Period:         "2024-04",
		Gross:          d("1000"),
		SocialSecurity: d("100"),
		Net:            d("900"),
	})
	require.NoError(t, err)
	require.Len(t, run.Entries[0].Lines, 3)
	require.True(t, h.accountBalance(t, memstore.AccountSalaries).Equal(d("1000")))

	_, err = h.orch.CreateEvent(context.Background(), posting.EventPayroll, posting.PayrollPayload{
		Period:         "2024-05",
		Gross:          d("1000"),
		SocialSecurity: d("100"),
		Net:            d("850"),
	})
	require.ErrorIs(t, err, posting.ErrInvalidInput)
	h.requireBalancedBooks(t)
}

func TestManualNumbers(t *testing.T) {
	h := newHarness(t)
	payload := posting.TradePayload{
		ManualNumber:  "INV-000010",
		WarehouseID:   warehouseID,
		PaymentMethod: ledger.PaymentCash,
		Lines:         []posting.LineInput{{ProductID: consultingID, Quantity: d("1")}},
	}
	res, err := h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, payload)
	require.NoError(t, err)
	require.Equal(t, "INV-000010", res.Document.Number)

	before := h.store.Counts()
	_, err = h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, payload)
	require.ErrorIs(t, err, sequence.ErrNumberTaken)
	require.Equal(t, before, h.store.Counts())

	payload.ManualNumber = ""
	res, err = h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, payload)
	require.NoError(t, err)
	require.Equal(t, "INV-000011", res.Document.Number)
}

func TestValidation(t *testing.T) {
	h := newHarness(t)
	h.store.PutProduct(catalog.Product{ID: 3, SKU: "OLD-1", Name: "Retired", SalePrice: d("5")})
	h.store.PutCounterparty(catalog.Counterparty{ID: 102, Kind: catalog.KindCustomer, Name: "Closed Account"})
	cases := []struct {
		name    string
		event   posting.EventType
		payload any
		want    error
	}{
		{"no lines", posting.EventSalesInvoice, posting.TradePayload{WarehouseID: warehouseID, PaymentMethod: ledger.PaymentCash}, posting.ErrInvalidInput},
		{"zero quantity", posting.EventSalesInvoice, posting.TradePayload{WarehouseID: warehouseID, PaymentMethod: ledger.PaymentCash,
			Lines: []posting.LineInput{{ProductID: consultingID, Quantity: d("0")}}}, posting.ErrInvalidInput},
		{"unknown payment method", posting.EventSalesInvoice, posting.TradePayload{WarehouseID: warehouseID, PaymentMethod: "barter",
			Lines: []posting.LineInput{{ProductID: consultingID, Quantity: d("1")}}}, posting.ErrInvalidInput},
		{"credit without counterparty", posting.EventSalesInvoice, posting.TradePayload{WarehouseID: warehouseID, PaymentMethod: ledger.PaymentCredit,
			Lines: []posting.LineInput{{ProductID: consultingID, Quantity: d("1")}}}, posting.ErrInvalidInput},
		{"purchase from customer", posting.EventPurchaseInvoice, posting.TradePayload{CounterpartyID: customerID, WarehouseID: warehouseID, PaymentMethod: ledger.PaymentCash,
			Lines: []posting.LineInput{{ProductID: widgetID, Quantity: d("1")}}}, posting.ErrInvalidInput},
		{"unknown product", posting.EventSalesInvoice, posting.TradePayload{WarehouseID: warehouseID, PaymentMethod: ledger.PaymentCash,
			Lines: []posting.LineInput{{ProductID: 404, Quantity: d("1")}}}, posting.ErrInvalidInput},
		{"inactive product", posting.EventSalesInvoice, posting.TradePayload{WarehouseID: warehouseID, PaymentMethod: ledger.PaymentCash,
			Lines: []posting.LineInput{{ProductID: 3, Quantity: d("1")}}}, posting.ErrInvalidInput},
		{"inactive customer", posting.EventSalesInvoice, posting.TradePayload{CounterpartyID: 102, WarehouseID: warehouseID, PaymentMethod: ledger.PaymentCredit,
			Lines: []posting.LineInput{{ProductID: consultingID, Quantity: d("1")}}}, posting.ErrInvalidInput},
		{"credit note to inactive customer", posting.EventCreditNote, posting.CreditNotePayload{CounterpartyID: 102, Amount: d("1")}, posting.ErrInvalidInput},
		{"recurring on credit", posting.EventRecurringEntry, posting.RecurringEntryPayload{Kind: posting.RecurringRevenue,
			CategoryCode: memstore.CategoryRent, Amount: d("1"), PaymentMethod: ledger.PaymentCredit}, posting.ErrInvalidInput},
		{"mismatched payload", posting.EventPayroll, posting.CreditNotePayload{CounterpartyID: customerID, Amount: d("1")}, posting.ErrUnsupportedEvent},
		{"unknown event", posting.EventType("barter"), posting.TradePayload{}, posting.ErrUnsupportedEvent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.orch.CreateEvent(context.Background(), tc.event, tc.payload)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Equal(t, memstore.Counts{}, h.store.Counts())
	require.ErrorIs(t, h.orch.DeleteEvent(context.Background(), "barter", [16]byte{}, 0), posting.ErrUnsupportedEvent)
}

func TestConcurrentPostingsGetDistinctNumbers(t *testing.T) {
	h := newHarness(t)
	var (
		mu      sync.Mutex
		numbers = make(map[string]bool)
		g       errgroup.Group
	)
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			res, err := h.orch.CreateEvent(context.Background(), posting.EventSalesInvoice, posting.TradePayload{
				CounterpartyID: customerID,
				WarehouseID:    warehouseID,
				PaymentMethod:  ledger.PaymentCredit,
				Lines:          []posting.LineInput{{ProductID: consultingID, Quantity: d("1")}},
			})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			numbers[res.Document.Number] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, numbers, 25)
	require.True(t, h.balance(t, customerID).Equal(d("1250")))
	h.requireBalancedBooks(t)
}
