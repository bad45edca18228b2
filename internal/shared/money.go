package shared

import "github.com/shopspring/decimal"

// DefaultPrecision is the number of decimal places money is stored with.
const DefaultPrecision int32 = 3

// Round rounds half away from zero, which is half-up for the non-negative
// amounts the ledgers store.
func Round(v decimal.Decimal, places int32) decimal.Decimal {
	return v.Round(places)
}

// Sum adds values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
