package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"price-import-service/internal/models"
)

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

func TestValidateRowValid(t *testing.T) {
	verdict := ValidateRow(RowInput{
		SKU:       strPtr("SKU-1"),
		CostCents: i64Ptr(1000),
		MsrpCents: i64Ptr(1500),
	})

	assert.Equal(t, models.RowStatusValid, verdict.Status)
	assert.Empty(t, verdict.Errors)
	assert.Empty(t, verdict.Warnings)
}

func TestValidateRowMissingSKU(t *testing.T) {
	verdict := ValidateRow(RowInput{CostCents: i64Ptr(1000)})

	assert.Equal(t, models.RowStatusError, verdict.Status)
	assert.Contains(t, verdict.Errors, "SKU is required")
}

func TestValidateRowMissingCost(t *testing.T) {
	verdict := ValidateRow(RowInput{SKU: strPtr("SKU-1")})

	assert.Equal(t, models.RowStatusError, verdict.Status)
	assert.Contains(t, verdict.Errors, "cost is missing or not a number")
}

func TestValidateRowNonPositiveCost(t *testing.T) {
	for _, cost := range []int64{0, -100} {
		verdict := ValidateRow(RowInput{SKU: strPtr("SKU-1"), CostCents: i64Ptr(cost)})
		assert.Equal(t, models.RowStatusError, verdict.Status, "cost=%d", cost)
		assert.Contains(t, verdict.Errors, "cost must be greater than zero")
	}
}

func TestValidateRowMsrpBelowCost(t *testing.T) {
	verdict := ValidateRow(RowInput{
		SKU:       strPtr("SKU-1"),
		CostCents: i64Ptr(2000),
		MsrpCents: i64Ptr(1500),
	})

	assert.Equal(t, models.RowStatusWarning, verdict.Status, "warning does not block")
	assert.Empty(t, verdict.Errors)
	assert.Contains(t, verdict.Warnings, "MSRP is less than cost")
}

func TestValidateRowPromoAboveMsrp(t *testing.T) {
	verdict := ValidateRow(RowInput{
		SKU:        strPtr("SKU-1"),
		CostCents:  i64Ptr(1000),
		MsrpCents:  i64Ptr(1500),
		PromoCents: i64Ptr(1600),
	})

	assert.Equal(t, models.RowStatusWarning, verdict.Status)
	assert.Contains(t, verdict.Warnings, "promo price is greater than MSRP")
}

func TestValidateRowCollectsEverything(t *testing.T) {
	// Missing SKU and a promo above MSRP: the error decides the status but
	// the warning is still recorded
	verdict := ValidateRow(RowInput{
		MsrpCents:  i64Ptr(1000),
		PromoCents: i64Ptr(1200),
	})

	assert.Equal(t, models.RowStatusError, verdict.Status)
	assert.Len(t, verdict.Errors, 2)
	assert.Contains(t, verdict.Warnings, "promo price is greater than MSRP")
}

func TestValidateRowNoMsrpNoWarning(t *testing.T) {
	verdict := ValidateRow(RowInput{
		SKU:        strPtr("SKU-1"),
		CostCents:  i64Ptr(1000),
		PromoCents: i64Ptr(900),
	})

	assert.Equal(t, models.RowStatusValid, verdict.Status, "promo check needs an MSRP to compare against")
}
