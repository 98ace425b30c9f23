package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestNextAvgCost(t *testing.T) {
	cases := []struct {
		name     string
		onHand   int
		avgCost  string
		qty      int
		unitCost string
		want     string
	}{
		{"empty shelf takes unit cost", 0, "0", 10, "4.25", "4.25"},
		{"equal batches average evenly", 10, "5", 10, "15", "10"},
		{"weighting follows quantity", 30, "2", 10, "6", "3"},
		{"free stock pulls average down", 5, "8", 5, "0", "4"},
		{"negative on hand treated as empty", -2, "9", 4, "3", "3"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextAvgCost(tc.onHand, d(tc.avgCost), tc.qty, d(tc.unitCost))
			if !got.Equal(d(tc.want)) {
				t.Errorf("NextAvgCost(%d, %s, %d, %s) = %s, want %s",
					tc.onHand, tc.avgCost, tc.qty, tc.unitCost, got, tc.want)
			}
		})
	}
}

func TestAvailableQty(t *testing.T) {
	p := Part{OnHandQty: 10, ReservedQty: 4}
	if p.AvailableQty() != 6 {
		t.Errorf("AvailableQty() = %d, want 6", p.AvailableQty())
	}
}

func TestReferenceIsZero(t *testing.T) {
	if !(Reference{}).IsZero() {
		t.Error("empty reference should be zero")
	}
	if (Reference{Kind: RefWorkOrder, ID: "wo-1"}).IsZero() {
		t.Error("populated reference should not be zero")
	}
}
