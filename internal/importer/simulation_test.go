package importer

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-import-service/internal/models"
)

func matchedRow(rowNumber int, sku string, prevCost, newCost, prevMsrp, newMsrp *int64) models.ImportRow {
	productID := uuid.New()
	kind := models.MatchKindExactSKU
	row := models.ImportRow{
		RowNumber:     rowNumber,
		SKU:           &sku,
		ProductID:     &productID,
		MatchKind:     &kind,
		Status:        models.RowStatusValid,
		CostCents:     newCost,
		MsrpCents:     newMsrp,
		PrevCostCents: prevCost,
		PrevMsrpCents: prevMsrp,
	}
	if newCost != nil && prevCost != nil {
		delta := *newCost - *prevCost
		row.CostDeltaCents = &delta
	}
	if newMsrp != nil && prevMsrp != nil {
		delta := *newMsrp - *prevMsrp
		row.MsrpDeltaCents = &delta
	}
	return row
}

func TestComputeSimulationDirectionBuckets(t *testing.T) {
	rows := []models.ImportRow{
		matchedRow(1, "UP", i64Ptr(1000), i64Ptr(1200), nil, nil),
		matchedRow(2, "DOWN", i64Ptr(1000), i64Ptr(800), nil, nil),
		matchedRow(3, "SAME", i64Ptr(1000), i64Ptr(1000), nil, nil),
	}

	result := computeSimulation(rows)

	assert.Equal(t, 3, result.ProductsAffected)
	assert.Equal(t, 0, result.NewProducts)
	assert.Equal(t, 1, result.CostChanges.Increases)
	assert.Equal(t, 1, result.CostChanges.Decreases)
	assert.Equal(t, 1, result.CostChanges.NoChange)
}

func TestComputeSimulationNewProducts(t *testing.T) {
	kind := models.MatchKindNew
	sku := "NEW-1"
	rows := []models.ImportRow{
		{RowNumber: 1, SKU: &sku, MatchKind: &kind, Status: models.RowStatusValid, CostCents: i64Ptr(500)},
	}

	result := computeSimulation(rows)

	assert.Equal(t, 0, result.ProductsAffected)
	assert.Equal(t, 1, result.NewProducts)
	assert.Zero(t, result.CostChanges.Increases+result.CostChanges.Decreases+result.CostChanges.NoChange,
		"unmatched rows have no deltas")
}

func TestComputeSimulationMarginBuckets(t *testing.T) {
	rows := []models.ImportRow{
		// margin 500 -> 800: improved
		matchedRow(1, "A", i64Ptr(1000), i64Ptr(1000), i64Ptr(1500), i64Ptr(1800)),
		// margin 500 -> 300: reduced
		matchedRow(2, "B", i64Ptr(1000), i64Ptr(1200), i64Ptr(1500), i64Ptr(1500)),
		// margin 500 -> 500: unchanged
		matchedRow(3, "C", i64Ptr(1000), i64Ptr(1100), i64Ptr(1500), i64Ptr(1600)),
		// missing previous MSRP: excluded from margin buckets entirely
		matchedRow(4, "D", i64Ptr(1000), i64Ptr(1100), nil, i64Ptr(1600)),
	}

	result := computeSimulation(rows)

	assert.Equal(t, 1, result.MarginImpact.Improved)
	assert.Equal(t, 1, result.MarginImpact.Reduced)
	assert.Equal(t, 1, result.MarginImpact.Unchanged)
	assert.Equal(t, 3, result.MarginImpact.Improved+result.MarginImpact.Reduced+result.MarginImpact.Unchanged,
		"row with missing inputs is not counted as unchanged")
}

func TestComputeSimulationLargestChanges(t *testing.T) {
	var rows []models.ImportRow
	for i := 1; i <= 12; i++ {
		delta := int64(i * 10)
		if i%2 == 0 {
			delta = -delta
		}
		rows = append(rows, matchedRow(i, fmt.Sprintf("SKU-%d", i), i64Ptr(1000), i64Ptr(1000+delta), nil, nil))
	}

	result := computeSimulation(rows)

	require.Len(t, result.LargestChanges, 10)
	assert.Equal(t, int64(-120), result.LargestChanges[0].CostDeltaCents, "sorted by absolute delta")
	assert.Equal(t, int64(110), result.LargestChanges[1].CostDeltaCents)
	assert.Equal(t, 12, result.LargestChanges[0].RowNumber)
}

func TestComputeSimulationSummariesAndErrorRows(t *testing.T) {
	sku := "BAD"
	errorRow := models.ImportRow{
		RowNumber: 1,
		SKU:       &sku,
		Status:    models.RowStatusError,
		Errors:    models.StringArray{"cost is missing or not a number"},
	}
	warningRow := matchedRow(2, "W", i64Ptr(1000), i64Ptr(900), nil, nil)
	warningRow.Status = models.RowStatusWarning
	warningRow.Warnings = models.StringArray{"MSRP is less than cost"}

	result := computeSimulation([]models.ImportRow{errorRow, warningRow})

	assert.Equal(t, 1, result.ErrorsSummary["cost is missing or not a number"])
	assert.Equal(t, 1, result.WarningsSummary["MSRP is less than cost"])
	assert.Equal(t, 1, result.ProductsAffected, "error rows never contribute financial aggregates")
	assert.Equal(t, 1, result.CostChanges.Decreases)
}

func TestComputeSimulationDistinctProducts(t *testing.T) {
	shared := matchedRow(1, "DUP", i64Ptr(1000), i64Ptr(1100), nil, nil)
	second := matchedRow(2, "DUP", i64Ptr(1000), i64Ptr(1200), nil, nil)
	second.ProductID = shared.ProductID

	result := computeSimulation([]models.ImportRow{shared, second})

	assert.Equal(t, 1, result.ProductsAffected, "duplicate SKU rows hit the same product")
	assert.Equal(t, 2, result.CostChanges.Increases)
}
