package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads products and counterparties from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Product loads an active product.
func (r *Repository) Product(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, cost_price, sale_price, tax_rate, minimum_quantity, track_stock, is_active
FROM products WHERE id=$1 AND is_active`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.CostPrice, &p.SalePrice, &p.TaxRate, &p.MinimumQuantity, &p.TrackStock, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// Counterparty loads an active customer or supplier.
func (r *Repository) Counterparty(ctx context.Context, id int64) (Counterparty, error) {
	var c Counterparty
	err := r.pool.QueryRow(ctx, `SELECT id, kind, name, credit_limit, is_active FROM counterparties WHERE id=$1 AND is_active`, id).
		Scan(&c.ID, &c.Kind, &c.Name, &c.CreditLimit, &c.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Counterparty{}, ErrCounterpartyNotFound
		}
		return Counterparty{}, err
	}
	return c, nil
}
