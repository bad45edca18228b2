package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementIn adds quantity.
	MovementIn MovementType = "in"
	// MovementOut removes quantity.
	MovementOut MovementType = "out"
	// MovementTransfer is an informational transfer record.
	MovementTransfer MovementType = "transfer"
	// MovementAdjustment is an informational valuation record.
	MovementAdjustment MovementType = "adjustment"
)

// Valid reports whether t is a known type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementTransfer, MovementAdjustment:
		return true
	}
	return false
}

// Sign is +1 for in, -1 for out and 0 for types that never move quantity.
func (t MovementType) Sign() int {
	switch t {
	case MovementIn:
		return 1
	case MovementOut:
		return -1
	}
	return 0
}

// Reference types owned by the engine itself.
const (
	RefWarehouseTransfer = "warehouse_transfer"
	RefAdjustment        = "adjustment"
	RefOpeningBalance    = "opening_balance"
)

var (
	// ErrInvalidQuantity indicates quantity must be positive.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates negative cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must not be negative")
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = errors.New("inventory: unknown movement type")
	// ErrBalanceNotFound indicates missing balance row.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
	// ErrInsufficientStock is matched by every *InsufficientStockWarning.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Movement is one row of the stock ledger.
type Movement struct {
	ID          int64
	Number      string
	Date        time.Time
	ProductID   int64
	WarehouseID int64
	Type        MovementType
	Reference   shared.Reference
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	TotalCost   decimal.Decimal
	CreatedBy   int64
	CreatedAt   time.Time
}

// Valued reports whether the movement takes part in FIFO valuation. Transfer
// legs only relocate stock whose cost layer is its original receipt.
func (m Movement) Valued() bool {
	return m.Reference.Type != RefWarehouseTransfer
}

// SignedQuantity is the movement's effect on stock.
func (m Movement) SignedQuantity() decimal.Decimal {
	switch m.Type.Sign() {
	case 1:
		return m.Quantity
	case -1:
		return m.Quantity.Neg()
	}
	return decimal.Zero
}

// MovementInput describes a movement to record. A positive TotalCost is
// kept as given instead of quantity × unit cost, so a FIFO valuation
// survives unit cost rounding.
type MovementInput struct {
	Number      string
	Date        time.Time
	ProductID   int64
	WarehouseID int64
	Type        MovementType
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	TotalCost   decimal.Decimal
	Reference   shared.Reference
	CreatedBy   int64
}

// Validate ensures the input can be stored.
func (in MovementInput) Validate() error {
	if in.ProductID == 0 || in.WarehouseID == 0 {
		return errors.New("inventory: warehouse and product required")
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMovementType, in.Type)
	}
	if !in.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() || in.TotalCost.IsNegative() {
		return ErrInvalidUnitCost
	}
	if !in.Reference.Valid() {
		return errors.New("inventory: reference type and id required")
	}
	return nil
}

// TransferInput moves stock between warehouses.
type TransferInput struct {
	Date         time.Time
	ProductID    int64
	SrcWarehouse int64
	DstWarehouse int64
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	Reference    shared.Reference
	CreatedBy    int64
}

// Balance is the materialized stock counter of a product in a warehouse.
type Balance struct {
	ProductID   int64
	WarehouseID int64
	Qty         decimal.Decimal
	UpdatedAt   time.Time
}

// Drift is a materialized balance that disagrees with the movement ledger.
type Drift struct {
	ProductID   int64
	WarehouseID int64
	Stored      decimal.Decimal
	Derived     decimal.Decimal
}

// StockLevel is an advisory classification of on-hand quantity.
type StockLevel string

const (
	StockOut      StockLevel = "out"
	StockCritical StockLevel = "critical"
	StockLow      StockLevel = "low"
	StockGood     StockLevel = "good"
)

// DefaultCriticalLevel is the quantity at or below which stock is critical.
var DefaultCriticalLevel = decimal.NewFromInt(5)

// Classify grades qty against the critical level and a product's reorder threshold.
func Classify(qty, reorderThreshold, critical decimal.Decimal) StockLevel {
	switch {
	case !qty.IsPositive():
		return StockOut
	case qty.LessThanOrEqual(critical):
		return StockCritical
	case qty.LessThanOrEqual(reorderThreshold):
		return StockLow
	default:
		return StockGood
	}
}

// StockRequest is one line of an outgoing document checked for availability.
type StockRequest struct {
	ProductID        int64
	WarehouseID      int64
	Quantity         decimal.Decimal
	ReorderThreshold decimal.Decimal
}

// StockWarning describes a line that would drive stock below zero.
type StockWarning struct {
	ProductID   int64
	WarehouseID int64
	Requested   decimal.Decimal
	Available   decimal.Decimal
	Level       StockLevel
}

// InsufficientStockWarning is returned when a document would oversell and
// the caller did not override.
type InsufficientStockWarning struct {
	Warnings []StockWarning
}

func (w *InsufficientStockWarning) Error() string {
	parts := make([]string, 0, len(w.Warnings))
	for _, warn := range w.Warnings {
		parts = append(parts, fmt.Sprintf("product %d in warehouse %d: requested %s, available %s",
			warn.ProductID, warn.WarehouseID, warn.Requested.String(), warn.Available.String()))
	}
	return "inventory: insufficient stock: " + strings.Join(parts, "; ")
}

func (w *InsufficientStockWarning) Unwrap() error { return ErrInsufficientStock }
