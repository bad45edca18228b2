package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func testLayers() []CostLayer {
	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	return []CostLayer{
		{MovementID: 1, Date: day1, Quantity: dec("10"), UnitCost: dec("2")},
		{MovementID: 2, Date: day2, Quantity: dec("5"), UnitCost: dec("3")},
	}
}

func TestFIFOCost(t *testing.T) {
	cases := []struct {
		name        string
		issued, qty string
		cost, cover string
	}{
		{name: "spans two layers", issued: "0", qty: "12", cost: "26", cover: "12"},
		{name: "after earlier issues", issued: "4", qty: "8", cost: "18", cover: "8"},
		{name: "oldest layer exhausted", issued: "10", qty: "5", cost: "15", cover: "5"},
		{name: "beyond layers uses fallback", issued: "0", qty: "20", cost: "55", cover: "15"},
		{name: "nothing left", issued: "15", qty: "2", cost: "8", cover: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cost, covered := FIFOCost(testLayers(), dec(tc.issued), dec(tc.qty), dec("4"))
			require.True(t, cost.Equal(dec(tc.cost)), "cost %s", cost)
			require.True(t, covered.Equal(dec(tc.cover)), "covered %s", covered)
		})
	}
}

func TestSortLayersBreaksTiesByMovement(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	layers := []CostLayer{
		{MovementID: 9, Date: day.AddDate(0, 0, 1)},
		{MovementID: 7, Date: day},
		{MovementID: 3, Date: day},
	}
	SortLayers(layers)
	require.Equal(t, []int64{3, 7, 9}, []int64{layers[0].MovementID, layers[1].MovementID, layers[2].MovementID})
}

func TestClassify(t *testing.T) {
	critical := DefaultCriticalLevel
	require.Equal(t, StockOut, Classify(dec("0"), dec("20"), critical))
	require.Equal(t, StockOut, Classify(dec("-2"), dec("20"), critical))
	require.Equal(t, StockCritical, Classify(dec("5"), dec("20"), critical))
	require.Equal(t, StockLow, Classify(dec("20"), dec("20"), critical))
	require.Equal(t, StockGood, Classify(dec("21"), dec("20"), critical))
}

func TestMovementTypeSign(t *testing.T) {
	m := Movement{Type: MovementTransfer, Quantity: dec("3")}
	require.True(t, m.SignedQuantity().IsZero())
	m.Type = MovementOut
	require.True(t, m.SignedQuantity().Equal(dec("-3")))
	require.False(t, MovementType("scrap").Valid())
}
