package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Precision     int32
	CriticalLevel decimal.Decimal
}

// Service is the inventory valuation engine.
type Service struct {
	repo      RepositoryPort
	precision int32
	critical  decimal.Decimal
	now       func() time.Time
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	precision := cfg.Precision
	if precision <= 0 {
		precision = shared.DefaultPrecision
	}
	critical := cfg.CriticalLevel
	if critical.IsZero() {
		critical = DefaultCriticalLevel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, precision: precision, critical: critical, now: time.Now, logger: logger}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// RecordMovement stores one movement in its own transaction.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (Movement, error) {
	var out Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.RecordMovementTx(ctx, tx, input)
		return err
	})
	return out, err
}

// RecordMovementTx stores a movement and moves the materialized balance in
// the same transaction.
func (s *Service) RecordMovementTx(ctx context.Context, tx TxRepository, input MovementInput) (Movement, error) {
	if err := input.Validate(); err != nil {
		return Movement{}, err
	}
	qty := shared.Round(input.Quantity, s.precision)
	if !qty.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	unitCost := shared.Round(input.UnitCost, s.precision)
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	number := input.Number
	if number == "" {
		number = movementNumber(input.Type, date)
	}
	totalCost := shared.Round(qty.Mul(unitCost), s.precision)
	if input.TotalCost.IsPositive() {
		totalCost = shared.Round(input.TotalCost, s.precision)
	}
	m := Movement{
		Number:      number,
		Date:        date,
		ProductID:   input.ProductID,
		WarehouseID: input.WarehouseID,
		Type:        input.Type,
		Reference:   input.Reference,
		Quantity:    qty,
		UnitCost:    unitCost,
		TotalCost:   totalCost,
		CreatedBy:   input.CreatedBy,
	}
	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	m.ID = id
	if err := s.applyBalance(ctx, tx, m.ProductID, m.WarehouseID, m.SignedQuantity()); err != nil {
		return Movement{}, err
	}
	return m, nil
}

func (s *Service) applyBalance(ctx context.Context, tx TxRepository, productID, warehouseID int64, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	bal, err := tx.GetBalanceForUpdate(ctx, productID, warehouseID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return fmt.Errorf("inventory: lock balance: %w", err)
	}
	bal.ProductID = productID
	bal.WarehouseID = warehouseID
	bal.Qty = bal.Qty.Add(delta)
	bal.UpdatedAt = s.now()
	if err := tx.UpsertBalance(ctx, bal); err != nil {
		return fmt.Errorf("inventory: upsert balance: %w", err)
	}
	return nil
}

func movementNumber(t MovementType, date time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("MV-%s-%s-%s", strings.ToUpper(string(t)), date.Format("20060102"), short)
}

// CurrentStock is Σin − Σout for the product, optionally in one warehouse.
func (s *Service) CurrentStock(ctx context.Context, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		qty, err = s.CurrentStockTx(ctx, tx, productID, warehouseID)
		return err
	})
	return qty, err
}

// CurrentStockTx derives stock from the movement ledger.
func (s *Service) CurrentStockTx(ctx context.Context, tx TxRepository, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	qty, err := tx.StockQuantity(ctx, productID, warehouseID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("inventory: stock quantity: %w", err)
	}
	return qty, nil
}

// FIFOCostOfQuantity values qty of the product by FIFO layers.
func (s *Service) FIFOCostOfQuantity(ctx context.Context, productID int64, qty, fallbackCost decimal.Decimal) (decimal.Decimal, error) {
	var cost decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		cost, err = s.FIFOCostTx(ctx, tx, productID, qty, fallbackCost)
		return err
	})
	return cost, err
}

// FIFOCostTx values qty against the layers left after every issue already
// recorded; call it before recording the issue being valued.
func (s *Service) FIFOCostTx(ctx context.Context, tx TxRepository, productID int64, qty, fallbackCost decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	layers, err := tx.CostLayers(ctx, productID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("inventory: cost layers: %w", err)
	}
	issued, err := tx.IssuedQuantity(ctx, productID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("inventory: issued quantity: %w", err)
	}
	SortLayers(layers)
	cost, covered := FIFOCost(layers, issued, qty, fallbackCost)
	if covered.LessThan(qty) {
		s.logger.Debug("fifo fallback cost used", slog.Int64("product_id", productID), slog.String("uncovered", qty.Sub(covered).String()))
	}
	return shared.Round(cost, s.precision), nil
}

// ReverseMovements deletes every movement of a reference. Deleting nothing is not an error.
func (s *Service) ReverseMovements(ctx context.Context, ref shared.Reference) (int, error) {
	var n int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		n, err = s.ReverseMovementsTx(ctx, tx, ref)
		return err
	})
	return n, err
}

// ReverseMovementsTx is ReverseMovements inside the caller's unit of work.
func (s *Service) ReverseMovementsTx(ctx context.Context, tx TxRepository, ref shared.Reference) (int, error) {
	deleted, err := tx.DeleteByReference(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("inventory: delete movements %s: %w", ref, err)
	}
	for _, m := range deleted {
		if err := s.applyBalance(ctx, tx, m.ProductID, m.WarehouseID, m.SignedQuantity().Neg()); err != nil {
			return 0, err
		}
	}
	return len(deleted), nil
}

// MovementsByReference lists a reference's movements.
func (s *Service) MovementsByReference(ctx context.Context, ref shared.Reference) ([]Movement, error) {
	var out []Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.MovementsByReference(ctx, ref)
		return err
	})
	return out, err
}

// Transfer posts an out at the source and an in at the destination. The
// legs change per-warehouse stock but neither consumes nor creates a FIFO
// layer.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Movement, Movement, error) {
	if input.SrcWarehouse == 0 || input.DstWarehouse == 0 || input.ProductID == 0 {
		return Movement{}, Movement{}, errors.New("inventory: warehouse and product required")
	}
	if input.SrcWarehouse == input.DstWarehouse {
		return Movement{}, Movement{}, errors.New("inventory: source and destination warehouse must differ")
	}
	// Both legs always carry the transfer reference type so valuation skips them.
	ref := shared.Reference{Type: RefWarehouseTransfer, ID: input.Reference.ID}
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	var out, in Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.RecordMovementTx(ctx, tx, MovementInput{
			Date: input.Date, ProductID: input.ProductID, WarehouseID: input.SrcWarehouse, Type: MovementOut,
			Quantity: input.Quantity, UnitCost: input.UnitCost, Reference: ref, CreatedBy: input.CreatedBy,
		})
		if err != nil {
			return err
		}
		in, err = s.RecordMovementTx(ctx, tx, MovementInput{
			Date: input.Date, ProductID: input.ProductID, WarehouseID: input.DstWarehouse, Type: MovementIn,
			Quantity: input.Quantity, UnitCost: input.UnitCost, Reference: ref, CreatedBy: input.CreatedBy,
		})
		return err
	})
	return out, in, err
}

// Classify grades qty with the configured critical level.
func (s *Service) Classify(qty, reorderThreshold decimal.Decimal) StockLevel {
	return Classify(qty, reorderThreshold, s.critical)
}

// CheckAvailabilityTx returns a warning for every product/warehouse whose
// requested total exceeds stock on hand.
func (s *Service) CheckAvailabilityTx(ctx context.Context, tx TxRepository, requests []StockRequest) ([]StockWarning, error) {
	type key struct{ product, warehouse int64 }
	totals := make(map[key]decimal.Decimal)
	thresholds := make(map[key]decimal.Decimal)
	var order []key
	for _, req := range requests {
		k := key{req.ProductID, req.WarehouseID}
		if _, seen := totals[k]; !seen {
			order = append(order, k)
		}
		totals[k] = totals[k].Add(req.Quantity)
		thresholds[k] = req.ReorderThreshold
	}
	var warnings []StockWarning
	for _, k := range order {
		warehouseID := k.warehouse
		available, err := s.CurrentStockTx(ctx, tx, k.product, &warehouseID)
		if err != nil {
			return nil, err
		}
		requested := totals[k]
		if requested.GreaterThan(available) {
			warnings = append(warnings, StockWarning{
				ProductID:   k.product,
				WarehouseID: k.warehouse,
				Requested:   requested,
				Available:   available,
				Level:       s.Classify(available.Sub(requested), thresholds[k]),
			})
		}
	}
	return warnings, nil
}

// Reconcile rewrites materialized balances from the movement ledger and
// reports every row that had drifted.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	var drifts []Drift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stored, err := tx.ListBalances(ctx)
		if err != nil {
			return err
		}
		derived, err := tx.DerivedBalances(ctx)
		if err != nil {
			return err
		}
		type key struct{ product, warehouse int64 }
		current := make(map[key]decimal.Decimal, len(stored))
		for _, b := range stored {
			current[key{b.ProductID, b.WarehouseID}] = b.Qty
		}
		seen := make(map[key]bool, len(derived))
		for _, d := range derived {
			k := key{d.ProductID, d.WarehouseID}
			seen[k] = true
			if qty, ok := current[k]; ok && qty.Equal(d.Qty) {
				continue
			}
			drifts = append(drifts, Drift{ProductID: d.ProductID, WarehouseID: d.WarehouseID, Stored: current[k], Derived: d.Qty})
			if err := tx.UpsertBalance(ctx, Balance{ProductID: d.ProductID, WarehouseID: d.WarehouseID, Qty: d.Qty, UpdatedAt: s.now()}); err != nil {
				return err
			}
		}
		for _, b := range stored {
			k := key{b.ProductID, b.WarehouseID}
			if seen[k] || b.Qty.IsZero() {
				continue
			}
			drifts = append(drifts, Drift{ProductID: b.ProductID, WarehouseID: b.WarehouseID, Stored: b.Qty, Derived: decimal.Zero})
			if err := tx.UpsertBalance(ctx, Balance{ProductID: b.ProductID, WarehouseID: b.WarehouseID, Qty: decimal.Zero, UpdatedAt: s.now()}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: reconcile: %w", err)
	}
	for _, d := range drifts {
		s.logger.Warn("inventory balance drift", slog.Int64("product_id", d.ProductID), slog.Int64("warehouse_id", d.WarehouseID),
			slog.String("stored", d.Stored.String()), slog.String("derived", d.Derived.String()))
	}
	return drifts, nil
}
