package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/testing/memstore"
)

const (
	productID = int64(7)
	mainWH    = int64(1)
	branchWH  = int64(2)
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newInventory(t *testing.T) (*inventory.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return inventory.NewService(store.Inventory(), inventory.ServiceConfig{}, nil), store
}

func receive(t *testing.T, svc *inventory.Service, day time.Time, qty, cost string) inventory.Movement {
	t.Helper()
	m, err := svc.RecordMovement(context.Background(), inventory.MovementInput{
		Date:        day,
		ProductID:   productID,
		WarehouseID: mainWH,
		Type:        inventory.MovementIn,
		Quantity:    d(qty),
		UnitCost:    d(cost),
		Reference:   shared.Reference{Type: "purchase_invoice", ID: uuid.New()},
	})
	require.NoError(t, err)
	return m
}

func TestFIFOCostAcrossLayers(t *testing.T) {
	svc, _ := newInventory(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	receive(t, svc, day, "10", "2")
	receive(t, svc, day.AddDate(0, 0, 1), "5", "3")

	cost, err := svc.FIFOCostOfQuantity(context.Background(), productID, d("12"), d("9"))
	require.NoError(t, err)
	require.Equal(t, "26.000", cost.StringFixed(3))

	_, err = svc.RecordMovement(context.Background(), inventory.MovementInput{
		Date: day.AddDate(0, 0, 2), ProductID: productID, WarehouseID: mainWH, Type: inventory.MovementOut,
		Quantity: d("12"), UnitCost: d("2.167"), Reference: shared.Reference{Type: "sales_invoice", ID: uuid.New()},
	})
	require.NoError(t, err)

	cost, err = svc.FIFOCostOfQuantity(context.Background(), productID, d("3"), d("9"))
	require.NoError(t, err)
	require.Equal(t, "9.000", cost.StringFixed(3))

	cost, err = svc.FIFOCostOfQuantity(context.Background(), productID, d("4"), d("9"))
	require.NoError(t, err)
	require.Equal(t, "18.000", cost.StringFixed(3))
}

func TestStockIsConservedAcrossMovements(t *testing.T) {
	svc, store := newInventory(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	receive(t, svc, day, "10", "2")
	saleRef := shared.Reference{Type: "sales_invoice", ID: uuid.New()}
	_, err := svc.RecordMovement(ctx, inventory.MovementInput{
		Date: day, ProductID: productID, WarehouseID: mainWH, Type: inventory.MovementOut,
		Quantity: d("4"), UnitCost: d("2"), Reference: saleRef,
	})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, inventory.MovementInput{
		Date: day, ProductID: productID, WarehouseID: mainWH, Type: inventory.MovementAdjustment,
		Quantity: d("100"), Reference: shared.Reference{Type: inventory.RefAdjustment, ID: uuid.New()},
	})
	require.NoError(t, err)

	qty, err := svc.CurrentStock(ctx, productID, nil)
	require.NoError(t, err)
	require.True(t, qty.Equal(d("6")))
	bal, ok := store.StoredBalance(productID, mainWH)
	require.True(t, ok)
	require.True(t, bal.Qty.Equal(d("6")))

	n, err := svc.ReverseMovements(ctx, saleRef)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	qty, err = svc.CurrentStock(ctx, productID, nil)
	require.NoError(t, err)
	require.True(t, qty.Equal(d("10")))

	n, err = svc.ReverseMovements(ctx, saleRef)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestTransferMovesStockBetweenWarehouses(t *testing.T) {
	svc, store := newInventory(t)
	ctx := context.Background()
	receive(t, svc, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "10", "2")

	out, in, err := svc.Transfer(ctx, inventory.TransferInput{
		ProductID: productID, SrcWarehouse: mainWH, DstWarehouse: branchWH, Quantity: d("3"), UnitCost: d("2"),
	})
	require.NoError(t, err)
	require.Equal(t, inventory.RefWarehouseTransfer, out.Reference.Type)
	require.Equal(t, out.Reference, in.Reference)

	wh := mainWH
	qty, err := svc.CurrentStock(ctx, productID, &wh)
	require.NoError(t, err)
	require.True(t, qty.Equal(d("7")))
	wh = branchWH
	qty, err = svc.CurrentStock(ctx, productID, &wh)
	require.NoError(t, err)
	require.True(t, qty.Equal(d("3")))
	total, err := svc.CurrentStock(ctx, productID, nil)
	require.NoError(t, err)
	require.True(t, total.Equal(d("10")))

	bal, ok := store.StoredBalance(productID, branchWH)
	require.True(t, ok)
	require.True(t, bal.Qty.Equal(d("3")))

	_, _, err = svc.Transfer(ctx, inventory.TransferInput{ProductID: productID, SrcWarehouse: mainWH, DstWarehouse: mainWH, Quantity: d("1")})
	require.Error(t, err)
}

func TestTransferLeavesFIFOLayersUntouched(t *testing.T) {
	svc, _ := newInventory(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	receive(t, svc, day, "10", "2")
	receive(t, svc, day.AddDate(0, 0, 1), "5", "3")

	_, _, err := svc.Transfer(ctx, inventory.TransferInput{
		Date: day.AddDate(0, 0, 2), ProductID: productID, SrcWarehouse: mainWH, DstWarehouse: branchWH, Quantity: d("10"),
	})
	require.NoError(t, err)

	cost, err := svc.FIFOCostOfQuantity(ctx, productID, d("12"), d("9"))
	require.NoError(t, err)
	require.Equal(t, "26.000", cost.StringFixed(3))

	// A custom reference type on the input does not make the legs valued.
	_, _, err = svc.Transfer(ctx, inventory.TransferInput{
		Date: day.AddDate(0, 0, 3), ProductID: productID, SrcWarehouse: branchWH, DstWarehouse: mainWH, Quantity: d("4"),
		Reference: shared.Reference{Type: "sales_invoice", ID: uuid.New()},
	})
	require.NoError(t, err)
	cost, err = svc.FIFOCostOfQuantity(ctx, productID, d("12"), d("9"))
	require.NoError(t, err)
	require.Equal(t, "26.000", cost.StringFixed(3))
}

func TestRecordMovementValidation(t *testing.T) {
	svc, store := newInventory(t)
	ref := shared.Reference{Type: "sales_invoice", ID: uuid.New()}
	_, err := svc.RecordMovement(context.Background(), inventory.MovementInput{
		ProductID: productID, WarehouseID: mainWH, Type: inventory.MovementIn, Quantity: d("0"), Reference: ref,
	})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, err = svc.RecordMovement(context.Background(), inventory.MovementInput{
		ProductID: productID, WarehouseID: mainWH, Type: "scrap", Quantity: d("1"), Reference: ref,
	})
	require.ErrorIs(t, err, inventory.ErrInvalidMovementType)
	_, err = svc.RecordMovement(context.Background(), inventory.MovementInput{
		ProductID: productID, WarehouseID: mainWH, Type: inventory.MovementIn, Quantity: d("1"), UnitCost: d("-1"), Reference: ref,
	})
	require.ErrorIs(t, err, inventory.ErrInvalidUnitCost)
	require.Zero(t, store.Counts().Movements)
}

func TestCheckAvailabilityAggregatesLines(t *testing.T) {
	svc, store := newInventory(t)
	receive(t, svc, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "10", "2")

	var warnings []inventory.StockWarning
	err := store.Inventory().WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		warnings, err = svc.CheckAvailabilityTx(ctx, tx, []inventory.StockRequest{
			{ProductID: productID, WarehouseID: mainWH, Quantity: d("6"), ReorderThreshold: d("8")},
			{ProductID: productID, WarehouseID: mainWH, Quantity: d("6"), ReorderThreshold: d("8")},
			{ProductID: 99, WarehouseID: mainWH, Quantity: d("1")},
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Equal(t, productID, warnings[0].ProductID)
	require.True(t, warnings[0].Requested.Equal(d("12")))
	require.True(t, warnings[0].Available.Equal(d("10")))
	require.Equal(t, inventory.StockOut, warnings[0].Level)
	require.Equal(t, int64(99), warnings[1].ProductID)
}

func TestReconcileRepairsDrift(t *testing.T) {
	svc, store := newInventory(t)
	receive(t, svc, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "10", "2")
	store.CorruptBalance(inventory.Balance{ProductID: productID, WarehouseID: mainWH, Qty: d("4")})
	store.CorruptBalance(inventory.Balance{ProductID: 42, WarehouseID: mainWH, Qty: d("1")})

	drifts, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 2)
	require.True(t, drifts[0].Stored.Equal(d("4")))
	require.True(t, drifts[0].Derived.Equal(d("10")))

	bal, _ := store.StoredBalance(productID, mainWH)
	require.True(t, bal.Qty.Equal(d("10")))

	drifts, err = svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Empty(t, drifts)
}
