package posting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/catalog"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// PricedLine is a line after price and tax computation. Discount is its
// pro-rata share of the document discount.
type PricedLine struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
	Net       decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	Discount  decimal.Decimal
}

// DiscountedNet is what the line is worth once the document discount is
// spread over it.
func (l PricedLine) DiscountedNet() decimal.Decimal {
	return l.Net.Sub(l.Discount)
}

// PriceLines computes line and document amounts. It has no side effects.
// Line tax is net × rate / 100 rounded half-up; with inclusive tax the
// entered price is gross and the tax is backed out of it.
func PriceLines(lines []LineInput, products map[int64]catalog.Product, defaultPrice func(catalog.Product) decimal.Decimal, discount decimal.Decimal, inclusive bool, precision int32) ([]PricedLine, Totals, error) {
	priced := make([]PricedLine, 0, len(lines))
	totals := Totals{Subtotal: decimal.Zero, Tax: decimal.Zero}
	for idx, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, Totals{}, fmt.Errorf("%w: line %d: %v", ErrInvalidInput, idx, catalog.ErrProductNotFound)
		}
		price := line.UnitPrice
		if price.IsZero() && defaultPrice != nil {
			price = defaultPrice(product)
		}
		rate := product.TaxRate
		if line.TaxRate != nil {
			rate = *line.TaxRate
		}
		if rate.IsNegative() {
			return nil, Totals{}, fmt.Errorf("%w: line %d: negative tax rate", ErrInvalidInput, idx)
		}
		qty := shared.Round(line.Quantity, precision)
		price = shared.Round(price, precision)
		gross := qty.Mul(price)
		var net, tax decimal.Decimal
		if inclusive {
			net = shared.Round(gross.Mul(hundred).Div(hundred.Add(rate)), precision)
			tax = shared.Round(gross, precision).Sub(net)
		} else {
			net = shared.Round(gross, precision)
			tax = shared.Round(net.Mul(rate).Div(hundred), precision)
		}
		priced = append(priced, PricedLine{
			ProductID: line.ProductID,
			Quantity:  qty,
			UnitPrice: price,
			TaxRate:   rate,
			Net:       net,
			Tax:       tax,
			Total:     net.Add(tax),
		})
		totals.Subtotal = totals.Subtotal.Add(net)
		totals.Tax = totals.Tax.Add(tax)
	}
	totals.Discount = shared.Round(discount, precision)
	if totals.Discount.GreaterThan(totals.Subtotal) {
		return nil, Totals{}, fmt.Errorf("%w: discount %s exceeds subtotal %s", ErrInvalidInput, totals.Discount.String(), totals.Subtotal.String())
	}
	totals.Total = totals.Subtotal.Add(totals.Tax).Sub(totals.Discount)
	spreadDiscount(priced, totals.Discount, totals.Subtotal, precision)
	return priced, totals, nil
}

// spreadDiscount shares discount over the lines in proportion to their net.
// The rounding remainder goes to the last line with a positive net so the
// shares add up to discount exactly.
func spreadDiscount(lines []PricedLine, discount, subtotal decimal.Decimal, precision int32) {
	for i := range lines {
		lines[i].Discount = decimal.Zero
	}
	if !discount.IsPositive() || !subtotal.IsPositive() {
		return
	}
	last := -1
	for i := range lines {
		if lines[i].Net.IsPositive() {
			last = i
		}
	}
	given := decimal.Zero
	for i := range lines {
		if i == last {
			lines[i].Discount = discount.Sub(given)
			return
		}
		share := shared.Round(discount.Mul(lines[i].Net).Div(subtotal), precision)
		lines[i].Discount = share
		given = given.Add(share)
	}
}
