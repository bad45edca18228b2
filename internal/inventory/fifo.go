package inventory

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CostLayer is an inbound movement available for FIFO consumption.
type CostLayer struct {
	MovementID int64
	Date       time.Time
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
}

// SortLayers orders layers oldest document date first. Movement ids are
// assigned in insertion order and break ties within a day.
func SortLayers(layers []CostLayer) {
	sort.SliceStable(layers, func(i, j int) bool {
		if !layers[i].Date.Equal(layers[j].Date) {
			return layers[i].Date.Before(layers[j].Date)
		}
		return layers[i].MovementID < layers[j].MovementID
	})
}

// FIFOCost values qty against sorted layers after the quantity already
// issued has consumed the oldest ones. Whatever the layers cannot cover is
// valued at fallback. It returns the cost and the layer-covered quantity.
func FIFOCost(layers []CostLayer, issued, qty, fallback decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	skip := issued
	need := qty
	cost := decimal.Zero
	covered := decimal.Zero
	for _, layer := range layers {
		if !need.IsPositive() {
			break
		}
		available := layer.Quantity
		if skip.IsPositive() {
			if skip.GreaterThanOrEqual(available) {
				skip = skip.Sub(available)
				continue
			}
			available = available.Sub(skip)
			skip = decimal.Zero
		}
		take := decimal.Min(available, need)
		cost = cost.Add(take.Mul(layer.UnitCost))
		covered = covered.Add(take)
		need = need.Sub(take)
	}
	if need.IsPositive() {
		cost = cost.Add(need.Mul(fallback))
	}
	return cost, covered
}
