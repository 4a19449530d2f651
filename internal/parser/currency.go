package parser

import (
	"math"
	"strconv"
	"strings"

	"price-import-service/internal/models"
)

var currencyReplacer = strings.NewReplacer(
	"$", "",
	"€", "",
	"£", "",
	",", "",
	" ", "",
	" ", "",
)

// ParseCurrency normalizes a raw cell into integer minor units (cents).
// Under the dollars convention the value is multiplied by 100 and rounded;
// under the cents convention it is rounded to the nearest integer. Empty or
// non-numeric input yields nil rather than an error; whether that is a
// problem is the row validator's call, not the parser's.
func ParseCurrency(raw string, convention models.DecimalConvention) *int64 {
	cleaned := currencyReplacer.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}

	var cents int64
	switch convention {
	case models.DecimalConventionCents:
		cents = int64(math.Round(value))
	default:
		cents = int64(math.Round(value * 100))
	}
	return &cents
}
