package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/catalog"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// tradeRules captures what differs between the stock-moving documents.
type tradeRules struct {
	ledgerEvent  ledger.EventType
	stock        inventory.MovementType
	party        catalog.CounterpartyKind
	requireParty bool
	control      ledger.AccountKey
	txnType      accountledger.TransactionType
	txnDirection accountledger.Direction
	creditCheck  bool
	anyMethod    bool
	price        func(catalog.Product) decimal.Decimal
}

// recordsBalance reports whether the document moves the counterparty's
// running balance: non-cash documents with a counterparty, and anyMethod
// documents (returns) with one whatever the method.
func (r tradeRules) recordsBalance(method ledger.PaymentMethod, counterpartyID int64) bool {
	if counterpartyID == 0 {
		return false
	}
	return r.anyMethod || !method.IsCash()
}

func salePrice(p catalog.Product) decimal.Decimal { return p.SalePrice }
func costPrice(p catalog.Product) decimal.Decimal { return p.CostPrice }

var tradeRulesFor = map[EventType]tradeRules{
	EventSalesInvoice: {
		ledgerEvent: ledger.EventSalesInvoice, stock: inventory.MovementOut, party: catalog.KindCustomer,
		control: ledger.KeyReceivable, txnType: accountledger.TypeSalesInvoice, txnDirection: accountledger.DirectionDebit,
		creditCheck: true, price: salePrice,
	},
	EventPOSInvoice: {
		ledgerEvent: ledger.EventPOSInvoice, stock: inventory.MovementOut, party: catalog.KindCustomer,
		txnType: accountledger.TypeSalesInvoice, txnDirection: accountledger.DirectionDebit, price: salePrice,
	},
	EventSalesReturn: {
		ledgerEvent: ledger.EventSalesReturn, stock: inventory.MovementIn, party: catalog.KindCustomer,
		control: ledger.KeyReceivable, txnType: accountledger.TypeSalesReturn, txnDirection: accountledger.DirectionCredit,
		anyMethod: true, price: salePrice,
	},
	EventPurchaseInvoice: {
		ledgerEvent: ledger.EventPurchaseInvoice, stock: inventory.MovementIn, party: catalog.KindSupplier, requireParty: true,
		control: ledger.KeyPayable, txnType: accountledger.TypePurchaseInvoice, txnDirection: accountledger.DirectionCredit,
		price: costPrice,
	},
	EventPurchaseReturn: {
		ledgerEvent: ledger.EventPurchaseReturn, stock: inventory.MovementOut, party: catalog.KindSupplier, requireParty: true,
		control: ledger.KeyPayable, txnType: accountledger.TypePurchaseReturn, txnDirection: accountledger.DirectionDebit,
		price: costPrice,
	},
}

// CreateSalesInvoice posts a sales invoice.
func (o *Orchestrator) CreateSalesInvoice(ctx context.Context, p TradePayload) (Result, error) {
	return o.createTrade(ctx, EventSalesInvoice, p)
}

// CreatePurchaseInvoice posts a purchase invoice.
func (o *Orchestrator) CreatePurchaseInvoice(ctx context.Context, p TradePayload) (Result, error) {
	return o.createTrade(ctx, EventPurchaseInvoice, p)
}

func (o *Orchestrator) createTrade(ctx context.Context, event EventType, p TradePayload) (Result, error) {
	rules := tradeRulesFor[event]
	if err := o.validateStruct(p); err != nil {
		return Result{}, err
	}
	if (p.PaymentMethod.IsCredit() || rules.requireParty) && p.CounterpartyID == 0 {
		return Result{}, fmt.Errorf("%w: %s requires a counterparty", ErrInvalidInput, event)
	}
	var party catalog.Counterparty
	if p.CounterpartyID != 0 {
		var err error
		party, err = o.counterparties.Counterparty(ctx, p.CounterpartyID)
		if err != nil {
			if errors.Is(err, catalog.ErrCounterpartyNotFound) {
				return Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return Result{}, err
		}
		if !party.IsActive {
			return Result{}, fmt.Errorf("%w: counterparty %d is inactive", ErrInvalidInput, party.ID)
		}
		if party.Kind != rules.party {
			return Result{}, fmt.Errorf("%w: counterparty %d is a %s, %s needs a %s", ErrInvalidInput, party.ID, party.Kind, event, rules.party)
		}
	}
	products, err := o.loadProducts(ctx, p.Lines)
	if err != nil {
		return Result{}, err
	}
	priced, totals, err := PriceLines(p.Lines, products, rules.price, p.Discount, p.InclusiveTax, o.precision)
	if err != nil {
		return Result{}, err
	}
	settleKey, err := ledger.SettlementKey(rules.ledgerEvent, p.PaymentMethod, rules.control)
	if err != nil {
		return Result{}, err
	}

	doc := Document{
		ID:             uuid.New(),
		EventType:      event,
		Date:           o.documentDate(p.Date),
		CounterpartyID: p.CounterpartyID,
		WarehouseID:    p.WarehouseID,
		PaymentMethod:  p.PaymentMethod,
		Totals:         totals,
		InclusiveTax:   p.InclusiveTax,
		SourceID:       p.SourceID,
		Notes:          p.Notes,
		CreatedBy:      p.ActorID,
	}
	for _, line := range priced {
		doc.Lines = append(doc.Lines, DocumentLine{
			ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: line.UnitPrice,
			TaxRate: line.TaxRate, TaxAmount: line.Tax, Total: line.Total,
		})
	}

	var result Result
	err = o.observe(event, "create", func() error {
		return o.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			result = Result{}
			if rules.creditCheck && p.PaymentMethod.IsCredit() {
				if err := o.checkCredit(ctx, tx, party, totals.Total); err != nil {
					return err
				}
			}
			if rules.stock == inventory.MovementOut {
				warnings, err := o.inventory.CheckAvailabilityTx(ctx, tx.Inventory(), stockRequests(p.WarehouseID, priced, products))
				if err != nil {
					return err
				}
				if len(warnings) > 0 {
					if !p.OverrideStock {
						return &inventory.InsufficientStockWarning{Warnings: warnings}
					}
					o.logger.Warn("stock warning overridden", slog.String("event", string(event)), slog.Int("lines", len(warnings)), slog.Int64("actor_id", p.ActorID))
					result.Warnings = warnings
				}
			}
			if err := o.persist(ctx, tx, &doc, p.ManualNumber); err != nil {
				return err
			}
			result.Document = doc

			movements, cost, err := o.moveStock(ctx, tx, rules, doc, priced, products)
			if err != nil {
				return err
			}
			result.Movements = movements

			entries, err := o.postTrade(ctx, tx, rules, doc, settleKey, cost)
			if err != nil {
				return err
			}
			result.Entries = entries

			if rules.recordsBalance(p.PaymentMethod, doc.CounterpartyID) && totals.Total.IsPositive() {
				txn, err := o.accounts.RecordTx(ctx, tx.Accounts(), accountledger.RecordInput{
					Date:           doc.Date,
					CounterpartyID: doc.CounterpartyID,
					Type:           rules.txnType,
					Direction:      rules.txnDirection,
					Amount:         totals.Total,
					Reference:      event.Reference(doc.ID),
					CreatedBy:      doc.CreatedBy,
				})
				if err != nil {
					return err
				}
				result.Transaction = &txn
			}
			return o.audit(ctx, tx, doc, shared.AuditCreate, doc.CreatedBy)
		})
	})
	if err != nil {
		return Result{}, err
	}
	o.logger.Info("document posted", slog.String("event", string(event)), slog.String("number", doc.Number),
		slog.String("document_id", doc.ID.String()), slog.String("total", totals.Total.String()))
	return result, nil
}

func (o *Orchestrator) loadProducts(ctx context.Context, lines []LineInput) (map[int64]catalog.Product, error) {
	products := make(map[int64]catalog.Product, len(lines))
	for _, line := range lines {
		if _, ok := products[line.ProductID]; ok {
			continue
		}
		product, err := o.catalog.Product(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: product %d: %v", ErrInvalidInput, line.ProductID, err)
			}
			return nil, err
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: product %d is inactive", ErrInvalidInput, line.ProductID)
		}
		products[line.ProductID] = product
	}
	return products, nil
}

// checkCredit rejects when exposure plus the new total passes the limit. A
// limit of zero or less means no credit line is enforced.
func (o *Orchestrator) checkCredit(ctx context.Context, tx Tx, party catalog.Counterparty, total decimal.Decimal) error {
	if !party.CreditLimit.IsPositive() {
		return nil
	}
	balance, err := o.accounts.CurrentBalanceTx(ctx, tx.Accounts(), party.ID)
	if err != nil {
		return err
	}
	exposure := CreditExposure(balance)
	projected := exposure.Add(total)
	if projected.LessThanOrEqual(party.CreditLimit) {
		return nil
	}
	over := projected.Sub(party.CreditLimit)
	o.logger.Warn("credit limit exceeded", slog.Int64("counterparty_id", party.ID), slog.String("over", over.String()))
	return &CreditLimitExceededError{
		CounterpartyID: party.ID,
		Limit:          party.CreditLimit,
		Exposure:       exposure,
		Requested:      total,
		Over:           over,
	}
}

// CreditExposure is the amount a counterparty's running balance counts
// against its credit limit. Invoices posted here move the balance up
// (debit) while opening balances imported from older books carry the owed
// amount as a credit, so both sides count: exposure is the magnitude of the
// balance. A customer holding a prepayment therefore also uses up limit.
func CreditExposure(balance decimal.Decimal) decimal.Decimal {
	return balance.Abs()
}

func stockRequests(warehouseID int64, lines []PricedLine, products map[int64]catalog.Product) []inventory.StockRequest {
	requests := make([]inventory.StockRequest, 0, len(lines))
	for _, line := range lines {
		product := products[line.ProductID]
		if !product.TrackStock {
			continue
		}
		requests = append(requests, inventory.StockRequest{
			ProductID:        line.ProductID,
			WarehouseID:      warehouseID,
			Quantity:         line.Quantity,
			ReorderThreshold: product.MinimumQuantity,
		})
	}
	return requests
}

// moveStock records one movement per stocked line and returns their total cost.
func (o *Orchestrator) moveStock(ctx context.Context, tx Tx, rules tradeRules, doc Document, lines []PricedLine, products map[int64]catalog.Product) ([]inventory.Movement, decimal.Decimal, error) {
	var movements []inventory.Movement
	cost := decimal.Zero
	for _, line := range lines {
		product := products[line.ProductID]
		if !product.TrackStock {
			continue
		}
		unitCost, totalCost, err := o.lineCost(ctx, tx, doc, line, product)
		if err != nil {
			return nil, decimal.Zero, err
		}
		m, err := o.inventory.RecordMovementTx(ctx, tx.Inventory(), inventory.MovementInput{
			Date:        doc.Date,
			ProductID:   line.ProductID,
			WarehouseID: doc.WarehouseID,
			Type:        rules.stock,
			Quantity:    line.Quantity,
			UnitCost:    unitCost,
			TotalCost:   totalCost,
			Reference:   doc.EventType.Reference(doc.ID),
			CreatedBy:   doc.CreatedBy,
		})
		if err != nil {
			return nil, decimal.Zero, err
		}
		movements = append(movements, m)
		cost = cost.Add(m.TotalCost)
	}
	return movements, cost, nil
}

// lineCost values a line: sales issue at FIFO cost, sales returns at the
// cost the goods left with, purchases and purchase returns at their net
// price after their share of the document discount. The total is zero
// unless it must override quantity × unit cost.
func (o *Orchestrator) lineCost(ctx context.Context, tx Tx, doc Document, line PricedLine, product catalog.Product) (decimal.Decimal, decimal.Decimal, error) {
	switch doc.EventType {
	case EventSalesInvoice, EventPOSInvoice:
		total, err := o.inventory.FIFOCostTx(ctx, tx.Inventory(), line.ProductID, line.Quantity, product.CostPrice)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		return shared.Round(total.Div(line.Quantity), o.precision), total, nil
	case EventSalesReturn:
		if doc.SourceID != uuid.Nil {
			for _, source := range []EventType{EventSalesInvoice, EventPOSInvoice} {
				moved, err := tx.Inventory().MovementsByReference(ctx, source.Reference(doc.SourceID))
				if err != nil {
					return decimal.Zero, decimal.Zero, err
				}
				for _, m := range moved {
					if m.ProductID == line.ProductID {
						return m.UnitCost, decimal.Zero, nil
					}
				}
			}
		}
		return product.CostPrice, decimal.Zero, nil
	default:
		net := line.DiscountedNet()
		return shared.Round(net.Div(line.Quantity), o.precision), net, nil
	}
}

func (o *Orchestrator) postTrade(ctx context.Context, tx Tx, rules tradeRules, doc Document, settleKey ledger.AccountKey, cost decimal.Decimal) ([]ledger.JournalEntry, error) {
	t := doc.Totals
	var main, cogs []keyedLine
	switch doc.EventType {
	case EventSalesInvoice, EventPOSInvoice:
		main = []keyedLine{debit(settleKey, t.Total), credit(ledger.KeySales, t.Net()), credit(ledger.KeyTaxPayable, t.Tax)}
		cogs = []keyedLine{debit(ledger.KeyCOGS, cost), credit(ledger.KeyInventory, cost)}
	case EventSalesReturn:
		main = []keyedLine{debit(ledger.KeySalesReturns, t.Net()), debit(ledger.KeyTaxPayable, t.Tax), credit(settleKey, t.Total)}
		cogs = []keyedLine{debit(ledger.KeyInventory, cost), credit(ledger.KeyCOGS, cost)}
	case EventPurchaseInvoice:
		main = []keyedLine{debit(ledger.KeyInventory, t.Net()), debit(ledger.KeyTaxReceivable, t.Tax), credit(settleKey, t.Total)}
	case EventPurchaseReturn:
		main = []keyedLine{debit(settleKey, t.Total), credit(ledger.KeyInventory, t.Net()), credit(ledger.KeyTaxReceivable, t.Tax)}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, doc.EventType)
	}
	var entries []ledger.JournalEntry
	entry, err := o.post(ctx, tx, rules.ledgerEvent, ledger.PostingInput{
		Date:        doc.Date,
		Description: fmt.Sprintf("%s %s", doc.EventType, doc.Number),
		Reference:   doc.EventType.Reference(doc.ID),
		CreatedBy:   doc.CreatedBy,
	}, main)
	if err != nil {
		return nil, err
	}
	entries = append(entries, entry)
	if cogs != nil && cost.IsPositive() {
		entry, err := o.post(ctx, tx, rules.ledgerEvent, ledger.PostingInput{
			Date:        doc.Date,
			Description: fmt.Sprintf("cost of goods %s %s", doc.EventType, doc.Number),
			Reference:   doc.EventType.COGSReference(doc.ID),
			CreatedBy:   doc.CreatedBy,
		}, cogs)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
