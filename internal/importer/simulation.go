package importer

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"price-import-service/internal/models"
)

// simulationReadable are the phases in which the aggregate is meaningful:
// validation has finished and rows are persisted
func simulationReadable(status models.ImportStatus) bool {
	switch status {
	case models.ImportStatusPending, models.ImportStatusMapping, models.ImportStatusValidating:
		return false
	}
	return true
}

// Simulate computes the financial impact summary of a validated import.
// Pure read over persisted rows; the catalog is never touched. Results are
// cached while the import sits in preview.
func (o *Orchestrator) Simulate(ctx context.Context, tenantID string, importID uuid.UUID) (*models.SimulationResult, error) {
	imp, err := o.imports.GetImportByID(tenantID, importID)
	if err != nil {
		return nil, err
	}
	if !simulationReadable(imp.Status) {
		return nil, &InvalidStateError{Current: imp.Status, Allowed: []models.ImportStatus{models.ImportStatusPreview}}
	}

	var result models.SimulationResult
	err = o.imports.GetOrSetSimulation(ctx, importID, &result, func() (any, error) {
		rows, err := o.imports.AllRows(importID)
		if err != nil {
			return nil, err
		}
		return computeSimulation(rows), nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// computeSimulation aggregates persisted rows into the preview summary
func computeSimulation(rows []models.ImportRow) *models.SimulationResult {
	result := &models.SimulationResult{
		LargestChanges:  []models.PriceChange{},
		WarningsSummary: map[string]int{},
		ErrorsSummary:   map[string]int{},
	}

	affected := make(map[uuid.UUID]struct{})
	var changes []models.PriceChange

	for _, row := range rows {
		for _, w := range row.Warnings {
			result.WarningsSummary[w]++
		}
		for _, e := range row.Errors {
			result.ErrorsSummary[e]++
		}
		if row.Status == models.RowStatusError {
			continue
		}

		if row.ProductID != nil {
			affected[*row.ProductID] = struct{}{}
		} else {
			result.NewProducts++
		}

		if row.CostDeltaCents != nil {
			bucketDirection(&result.CostChanges, *row.CostDeltaCents)

			sku := ""
			if row.SKU != nil {
				sku = *row.SKU
			}
			change := models.PriceChange{
				RowNumber:      row.RowNumber,
				SKU:            sku,
				PrevCostCents:  *row.PrevCostCents,
				NewCostCents:   *row.CostCents,
				CostDeltaCents: *row.CostDeltaCents,
			}
			if row.ProductID != nil {
				id := row.ProductID.String()
				change.ProductID = &id
			}
			changes = append(changes, change)
		}
		if row.MsrpDeltaCents != nil {
			bucketDirection(&result.MsrpChanges, *row.MsrpDeltaCents)
		}

		// Rows missing any of the four margin inputs are excluded from the
		// margin buckets entirely rather than counted as unchanged
		if row.PrevCostCents != nil && row.PrevMsrpCents != nil && row.CostCents != nil && row.MsrpCents != nil {
			prevMargin := *row.PrevMsrpCents - *row.PrevCostCents
			newMargin := *row.MsrpCents - *row.CostCents
			switch {
			case newMargin > prevMargin:
				result.MarginImpact.Improved++
			case newMargin < prevMargin:
				result.MarginImpact.Reduced++
			default:
				result.MarginImpact.Unchanged++
			}
		}
	}

	result.ProductsAffected = len(affected)

	sort.Slice(changes, func(i, j int) bool {
		ai, aj := abs64(changes[i].CostDeltaCents), abs64(changes[j].CostDeltaCents)
		if ai != aj {
			return ai > aj
		}
		return changes[i].RowNumber < changes[j].RowNumber
	})
	if len(changes) > 10 {
		changes = changes[:10]
	}
	result.LargestChanges = changes

	return result
}

func bucketDirection(buckets *models.PriceDirectionBuckets, delta int64) {
	switch {
	case delta > 0:
		buckets.Increases++
	case delta < 0:
		buckets.Decreases++
	default:
		buckets.NoChange++
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
