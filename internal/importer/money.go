package importer

import (
	"github.com/shopspring/decimal"
)

// CentsToPrice renders an integer minor-unit amount as the two-decimal
// string stored on catalog price columns.
func CentsToPrice(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// PriceToCents parses a stored price string back into minor units. Returns
// nil for empty or unparseable values so legacy catalog rows without a cost
// never fake a zero baseline.
func PriceToCents(price string) *int64 {
	if price == "" {
		return nil
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil
	}
	cents := d.Mul(decimal.New(100, 0)).Round(0).IntPart()
	return &cents
}
