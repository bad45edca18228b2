package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound indicates an unknown or inactive product.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCounterpartyNotFound indicates an unknown or inactive counterparty.
	ErrCounterpartyNotFound = errors.New("catalog: counterparty not found")
)

// Product carries the pricing and stock attributes the ledgers consume.
type Product struct {
	ID              int64           `json:"id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	CostPrice       decimal.Decimal `json:"cost_price"`
	SalePrice       decimal.Decimal `json:"sale_price"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	MinimumQuantity decimal.Decimal `json:"minimum_quantity"`
	TrackStock      bool            `json:"track_stock"`
	IsActive        bool            `json:"is_active"`
}

// CounterpartyKind separates customers from suppliers.
type CounterpartyKind string

const (
	// KindCustomer buys from us.
	KindCustomer CounterpartyKind = "customer"
	// KindSupplier sells to us.
	KindSupplier CounterpartyKind = "supplier"
)

// Counterparty is a customer or supplier with a running balance.
type Counterparty struct {
	ID          int64            `json:"id"`
	Kind        CounterpartyKind `json:"kind"`
	Name        string           `json:"name"`
	CreditLimit decimal.Decimal  `json:"credit_limit"`
	IsActive    bool             `json:"is_active"`
}
