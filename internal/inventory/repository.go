package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	DeleteByReference(ctx context.Context, ref shared.Reference) ([]Movement, error)
	MovementsByReference(ctx context.Context, ref shared.Reference) ([]Movement, error)
	StockQuantity(ctx context.Context, productID int64, warehouseID *int64) (decimal.Decimal, error)
	CostLayers(ctx context.Context, productID int64) ([]CostLayer, error)
	IssuedQuantity(ctx context.Context, productID int64) (decimal.Decimal, error)
	GetBalanceForUpdate(ctx context.Context, productID, warehouseID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	ListBalances(ctx context.Context) ([]Balance, error)
	DerivedBalances(ctx context.Context) ([]Balance, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepository struct {
	db shared.DBTX
}

// NewTxRepository binds the repository to an open transaction.
func NewTxRepository(tx shared.DBTX) TxRepository {
	return &txRepository{db: tx}
}

const movementColumns = `id, movement_number, movement_date, product_id, warehouse_id, movement_type, reference_type, reference_id, quantity, unit_cost, total_cost, COALESCE(created_by,0), created_at`

func scanMovements(rows pgx.Rows) ([]Movement, error) {
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.Number, &m.Date, &m.ProductID, &m.WarehouseID, &m.Type, &m.Reference.Type, &m.Reference.ID,
			&m.Quantity, &m.UnitCost, &m.TotalCost, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO inventory_movements (movement_number, movement_date, product_id, warehouse_id, movement_type, reference_type, reference_id, quantity, unit_cost, total_cost, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW()) RETURNING id`,
		m.Number, m.Date, m.ProductID, m.WarehouseID, string(m.Type), m.Reference.Type, m.Reference.ID, m.Quantity, m.UnitCost, m.TotalCost, nullInt(m.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) DeleteByReference(ctx context.Context, ref shared.Reference) ([]Movement, error) {
	rows, err := r.db.Query(ctx, `DELETE FROM inventory_movements WHERE reference_type=$1 AND reference_id=$2 RETURNING `+movementColumns, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	return scanMovements(rows)
}

func (r *txRepository) MovementsByReference(ctx context.Context, ref shared.Reference) ([]Movement, error) {
	rows, err := r.db.Query(ctx, `SELECT `+movementColumns+` FROM inventory_movements WHERE reference_type=$1 AND reference_id=$2 ORDER BY id`, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	return scanMovements(rows)
}

func (r *txRepository) StockQuantity(ctx context.Context, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(CASE movement_type WHEN 'in' THEN quantity WHEN 'out' THEN -quantity ELSE 0 END), 0)
FROM inventory_movements WHERE product_id=$1 AND ($2::BIGINT IS NULL OR warehouse_id=$2)`, productID, warehouseID).Scan(&qty)
	return qty, err
}

func (r *txRepository) CostLayers(ctx context.Context, productID int64) ([]CostLayer, error) {
	rows, err := r.db.Query(ctx, `SELECT id, movement_date, quantity, unit_cost FROM inventory_movements
WHERE product_id=$1 AND movement_type='in' AND reference_type<>$2 ORDER BY movement_date, id`, productID, RefWarehouseTransfer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var layers []CostLayer
	for rows.Next() {
		var l CostLayer
		if err := rows.Scan(&l.MovementID, &l.Date, &l.Quantity, &l.UnitCost); err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

func (r *txRepository) IssuedQuantity(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM inventory_movements
WHERE product_id=$1 AND movement_type='out' AND reference_type<>$2`, productID, RefWarehouseTransfer).Scan(&qty)
	return qty, err
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, productID, warehouseID int64) (Balance, error) {
	var bal Balance
	err := r.db.QueryRow(ctx, `SELECT product_id, warehouse_id, qty, updated_at FROM inventory_balances WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`, productID, warehouseID).
		Scan(&bal.ProductID, &bal.WarehouseID, &bal.Qty, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ProductID: productID, WarehouseID: warehouseID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.db.Exec(ctx, `INSERT INTO inventory_balances (product_id, warehouse_id, qty, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=NOW()`, balance.ProductID, balance.WarehouseID, balance.Qty)
	return err
}

func (r *txRepository) ListBalances(ctx context.Context) ([]Balance, error) {
	rows, err := r.db.Query(ctx, `SELECT product_id, warehouse_id, qty, updated_at FROM inventory_balances ORDER BY product_id, warehouse_id`)
	if err != nil {
		return nil, err
	}
	return scanBalances(rows, true)
}

func (r *txRepository) DerivedBalances(ctx context.Context) ([]Balance, error) {
	rows, err := r.db.Query(ctx, `SELECT product_id, warehouse_id,
SUM(CASE movement_type WHEN 'in' THEN quantity WHEN 'out' THEN -quantity ELSE 0 END)
FROM inventory_movements GROUP BY product_id, warehouse_id ORDER BY product_id, warehouse_id`)
	if err != nil {
		return nil, err
	}
	return scanBalances(rows, false)
}

func scanBalances(rows pgx.Rows, withUpdated bool) ([]Balance, error) {
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		dest := []any{&b.ProductID, &b.WarehouseID, &b.Qty}
		if withUpdated {
			dest = append(dest, &b.UpdatedAt)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
