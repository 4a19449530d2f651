package importer

import (
	"price-import-service/internal/models"
)

// RowInput carries the parsed values of one file row into validation
type RowInput struct {
	SKU         *string
	Description *string
	CostCents   *int64
	MsrpCents   *int64
	PromoCents  *int64
}

// RowVerdict is the validator's result for one row
type RowVerdict struct {
	Status   models.RowStatus
	Errors   []string
	Warnings []string
}

// ValidateRow applies every pricing rule to one row. All rules run; a row
// collects every applicable error and warning, not just the first.
func ValidateRow(in RowInput) RowVerdict {
	var verdict RowVerdict

	if in.SKU == nil || *in.SKU == "" {
		verdict.Errors = append(verdict.Errors, "SKU is required")
	}

	if in.CostCents == nil {
		verdict.Errors = append(verdict.Errors, "cost is missing or not a number")
	} else if *in.CostCents <= 0 {
		verdict.Errors = append(verdict.Errors, "cost must be greater than zero")
	}

	if in.CostCents != nil && in.MsrpCents != nil && *in.MsrpCents < *in.CostCents {
		verdict.Warnings = append(verdict.Warnings, "MSRP is less than cost")
	}

	if in.MsrpCents != nil && in.PromoCents != nil && *in.PromoCents > *in.MsrpCents {
		verdict.Warnings = append(verdict.Warnings, "promo price is greater than MSRP")
	}

	switch {
	case len(verdict.Errors) > 0:
		verdict.Status = models.RowStatusError
	case len(verdict.Warnings) > 0:
		verdict.Status = models.RowStatusWarning
	default:
		verdict.Status = models.RowStatusValid
	}
	return verdict
}
