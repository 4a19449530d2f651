package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"price-import-service/internal/models"
)

// errCommitCancelled aborts the commit transaction when the durable
// cancellation flag is observed
var errCommitCancelled = errors.New("commit cancelled")

// committedChange records one catalog mutation so its event can be emitted
// after the transaction actually commits
type committedChange struct {
	product      models.Product
	prevCost     *int64
	newCostCents int64
}

// RequestCommit moves a previewed import into the commit pass. The
// PREVIEW to IMPORTING transition is status-guarded so two concurrent
// requests cannot both start a pass. Refuses, without touching the catalog,
// when error rows exist and the caller did not ask to skip them.
func (o *Orchestrator) RequestCommit(tenantID string, importID uuid.UUID, req *models.CommitImportRequest) (*models.Import, error) {
	imp, err := o.imports.GetImportByID(tenantID, importID)
	if err != nil {
		return nil, err
	}
	if imp.Status != models.ImportStatusPreview {
		return nil, &InvalidStateError{Current: imp.Status, Allowed: []models.ImportStatus{models.ImportStatusPreview}}
	}

	if !req.SkipErrors {
		count, err := o.imports.ErrorRowCount(importID)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, &ErrorRowsPresentError{Count: count}
		}
	}

	ok, err := o.imports.TransitionStatus(tenantID, importID, []models.ImportStatus{models.ImportStatusPreview}, models.ImportStatusImporting, map[string]interface{}{
		"processed_rows":   0,
		"updated_rows":     0,
		"skipped_rows":     0,
		"cancel_requested": false,
		"started_at":       time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		imp, err = o.imports.GetImportByID(tenantID, importID)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidStateError{Current: imp.Status, Allowed: []models.ImportStatus{models.ImportStatusPreview}}
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runCommit(tenantID, importID, req.ApplyEffectiveDate)
	}()

	return o.imports.GetImportByID(tenantID, importID)
}

// runCommit is the background IMPORTING pass. All catalog mutations and
// their history entries live in one transaction: a failure or an observed
// cancellation rolls back every write of the pass, leaving the catalog
// untouched.
func (o *Orchestrator) runCommit(tenantID string, importID uuid.UUID, applyEffectiveDate bool) {
	log := o.logger.WithFields(logrus.Fields{"importId": importID, "tenantId": tenantID})

	imp, err := o.imports.GetImportByID(tenantID, importID)
	if err != nil {
		o.failImport(tenantID, importID, fmt.Sprintf("failed to load import: %v", err))
		return
	}

	effectiveFrom := time.Now()
	if applyEffectiveDate && imp.EffectiveFrom != nil {
		effectiveFrom = *imp.EffectiveFrom
	}

	rows, err := o.imports.RowsForCommit(importID)
	if err != nil {
		o.failImport(tenantID, importID, fmt.Sprintf("failed to load rows: %v", err))
		return
	}

	var (
		processed int
		updated   int
		skipped   int
		changes   []committedChange
	)

	txErr := o.imports.DB().Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			// Under READ COMMITTED this statement sees a cancellation flag
			// committed by a concurrent request after the pass began
			cancel, err := o.imports.IsCancelRequestedTx(tx, importID)
			if err != nil {
				return err
			}
			if cancel {
				return errCommitCancelled
			}

			if row.ProductID == nil || row.SKU == nil || row.CostCents == nil {
				if err := o.imports.UpdateRowStatusTx(tx, row.ID, models.RowStatusSkipped); err != nil {
					return err
				}
				skipped++
			} else {
				change, err := o.commitRow(tx, tenantID, &row, imp, effectiveFrom)
				if err != nil {
					return err
				}
				changes = append(changes, *change)
				updated++
			}

			processed++
			// Progress runs outside the transaction so pollers see movement
			// while the pass is still open. Best effort; a rolled-back pass
			// resets the counter through its status transition anyway.
			_ = o.imports.UpdateProgress(importID, processed)
		}
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, errCommitCancelled) {
			now := time.Now()
			ok, err := o.imports.TransitionStatus(tenantID, importID, []models.ImportStatus{models.ImportStatusImporting}, models.ImportStatusCancelled, map[string]interface{}{
				"completed_at": now,
			})
			if err != nil || !ok {
				log.WithError(err).Error("Failed to record cancellation")
			}
			log.WithField("rowsRolledBack", processed).Info("Commit pass cancelled and rolled back")
			return
		}
		o.failImport(tenantID, importID, fmt.Sprintf("commit failed: %v", txErr))
		return
	}

	now := time.Now()
	ok, err := o.imports.TransitionStatus(tenantID, importID, []models.ImportStatus{models.ImportStatusImporting}, models.ImportStatusCompleted, map[string]interface{}{
		"processed_rows": processed,
		"updated_rows":   updated,
		"skipped_rows":   skipped,
		"completed_at":   now,
	})
	if err != nil || !ok {
		log.WithError(err).Error("Failed to finish commit")
		return
	}

	for _, change := range changes {
		o.products.InvalidateProductCache(context.Background(), tenantID, change.product.ID)
	}

	if o.events != nil {
		for _, change := range changes {
			product := change.product
			_ = o.events.PublishPriceChanged(context.Background(), &product, change.prevCost, change.newCostCents, tenantID, importID)
		}
		if final, err := o.imports.GetImportByID(tenantID, importID); err == nil {
			_ = o.events.PublishImportCompleted(context.Background(), final)
		}
	}

	log.WithFields(logrus.Fields{"updated": updated, "skipped": skipped}).Info("Commit pass complete")
}

// commitRow applies one matched row: mutate the product's price fields and
// append the paired history entry, atomically within the pass transaction.
func (o *Orchestrator) commitRow(tx *gorm.DB, tenantID string, row *models.ImportRow, imp *models.Import, effectiveFrom time.Time) (*committedChange, error) {
	var product models.Product
	if err := tx.Where("tenant_id = ? AND id = ?", tenantID, *row.ProductID).First(&product).Error; err != nil {
		return nil, fmt.Errorf("row %d: product %s: %w", row.RowNumber, row.ProductID, err)
	}

	// Minor units convert to the catalog's decimal representation only here,
	// at the point of mutation
	newCost := CentsToPrice(*row.CostCents)
	updates := map[string]interface{}{"cost_price": newCost}
	var newPrice *string
	if row.MsrpCents != nil {
		p := CentsToPrice(*row.MsrpCents)
		newPrice = &p
		updates["price"] = p
	}
	if row.PromoCents != nil {
		updates["promo_price"] = CentsToPrice(*row.PromoCents)
	}
	if err := o.products.ApplyPriceUpdateTx(tx, product.ID, updates); err != nil {
		return nil, fmt.Errorf("row %d: update product: %w", row.RowNumber, err)
	}

	prevPrice := product.Price
	entry := &models.PriceHistoryEntry{
		TenantID:      tenantID,
		ProductID:     product.ID,
		PrevCost:      product.CostPrice,
		NewCost:       newCost,
		PrevPrice:     &prevPrice,
		NewPrice:      newPrice,
		CostCents:     *row.CostCents,
		MsrpCents:     row.MsrpCents,
		PromoCents:    row.PromoCents,
		SourceType:    models.PriceHistorySourceImport,
		ImportID:      imp.ID,
		EffectiveFrom: effectiveFrom,
		CreatedBy:     imp.CreatedBy,
	}
	if err := o.imports.CreateHistoryEntryTx(tx, entry); err != nil {
		return nil, fmt.Errorf("row %d: history entry: %w", row.RowNumber, err)
	}

	if err := o.imports.UpdateRowStatusTx(tx, row.ID, models.RowStatusImported); err != nil {
		return nil, fmt.Errorf("row %d: mark imported: %w", row.RowNumber, err)
	}

	var prevCost *int64
	if product.CostPrice != nil {
		prevCost = PriceToCents(*product.CostPrice)
	}
	return &committedChange{product: product, prevCost: prevCost, newCostCents: *row.CostCents}, nil
}
