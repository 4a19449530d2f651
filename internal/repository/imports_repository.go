package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"price-import-service/internal/models"
)

// Cache TTL constants
const (
	ImportCacheTTL     = 30 * time.Second // Import detail/progress change often while running
	SimulationCacheTTL = 5 * time.Minute  // Simulations are stable while an import sits in preview
	RowListCacheTTL    = 2 * time.Minute
)

// ImportListFilter narrows the import listing
type ImportListFilter struct {
	Status   *models.ImportStatus
	VendorID *string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	Limit    int
}

// ImportsRepository persists imports, their rows and the price ledger
type ImportsRepository struct {
	db    *gorm.DB
	redis *redis.Client
	cache *cache.CacheLayer
}

func NewImportsRepository(db *gorm.DB, redisClient *redis.Client) *ImportsRepository {
	repo := &ImportsRepository{
		db:    db,
		redis: redisClient,
	}

	if redisClient != nil {
		cacheConfig := cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 2000,
			L1TTL:      10 * time.Second,
			DefaultTTL: ImportCacheTTL,
			KeyPrefix:  "tesseract:price-imports:",
		}
		repo.cache = cache.NewCacheLayerFromClient(redisClient, cacheConfig)
	}

	return repo
}

// DB exposes the underlying handle for transaction composition
func (r *ImportsRepository) DB() *gorm.DB {
	return r.db
}

// InvalidateImportCaches drops all cached reads for one import. Called on
// every state transition so pollers never see a stale phase.
func (r *ImportsRepository) InvalidateImportCaches(ctx context.Context, importID uuid.UUID) {
	if r.cache == nil {
		return
	}
	_ = r.cache.DeletePattern(ctx, fmt.Sprintf("import:%s:*", importID.String()))
}

// GetOrSetSimulation caches a simulation result while the import sits in preview
func (r *ImportsRepository) GetOrSetSimulation(ctx context.Context, importID uuid.UUID, out *models.SimulationResult, fetch func() (any, error)) error {
	if r.cache == nil {
		value, err := fetch()
		if err != nil {
			return err
		}
		*out = *(value.(*models.SimulationResult))
		return nil
	}
	key := fmt.Sprintf("import:%s:simulation", importID.String())
	return r.cache.GetOrSetJSON(ctx, key, out, SimulationCacheTTL, fetch)
}

// Import lifecycle

// CreateImport persists a freshly uploaded import
func (r *ImportsRepository) CreateImport(tenantID string, imp *models.Import) error {
	imp.TenantID = tenantID
	imp.CreatedAt = time.Now()
	imp.UpdatedAt = time.Now()
	return r.db.Create(imp).Error
}

// GetImportByID retrieves one import with tenant isolation
func (r *ImportsRepository) GetImportByID(tenantID string, importID uuid.UUID) (*models.Import, error) {
	var imp models.Import
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, importID).First(&imp).Error; err != nil {
		return nil, err
	}
	return &imp, nil
}

// ListImports retrieves imports with filters and pagination, newest first
func (r *ImportsRepository) ListImports(tenantID string, filter *ImportListFilter) ([]models.Import, int64, error) {
	var imports []models.Import
	var total int64

	query := r.db.Model(&models.Import{}).Where("tenant_id = ?", tenantID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.VendorID != nil {
		query = query.Where("vendor_id = ?", *filter.VendorID)
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at <= ?", *filter.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&imports).Error; err != nil {
		return nil, 0, err
	}
	return imports, total, nil
}

// TransitionStatus performs a status-guarded conditional update and reports
// whether the transition happened. This is the concurrency guard that keeps
// two commit passes from racing out of PREVIEW.
func (r *ImportsRepository) TransitionStatus(tenantID string, importID uuid.UUID, from []models.ImportStatus, to models.ImportStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := r.db.Model(&models.Import{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, importID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		r.InvalidateImportCaches(context.Background(), importID)
	}
	return result.RowsAffected > 0, nil
}

// UpdateImport applies arbitrary column updates to one import
func (r *ImportsRepository) UpdateImport(importID uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	err := r.db.Model(&models.Import{}).Where("id = ?", importID).Updates(updates).Error
	if err == nil {
		r.InvalidateImportCaches(context.Background(), importID)
	}
	return err
}

// UpdateProgress bumps the processed-row counter. Runs on the repository's
// own connection so commit-pass progress is visible to pollers even while
// the catalog mutation transaction is still open.
func (r *ImportsRepository) UpdateProgress(importID uuid.UUID, processedRows int) error {
	err := r.db.Model(&models.Import{}).Where("id = ?", importID).Updates(map[string]interface{}{
		"processed_rows": processedRows,
		"updated_at":     time.Now(),
	}).Error
	if err == nil {
		r.InvalidateImportCaches(context.Background(), importID)
	}
	return err
}

// MarkFailed ends an import with a recorded failure message
func (r *ImportsRepository) MarkFailed(importID uuid.UUID, message string) error {
	now := time.Now()
	return r.UpdateImport(importID, map[string]interface{}{
		"status":        models.ImportStatusFailed,
		"error_message": message,
		"completed_at":  now,
	})
}

// RequestCancel durably records a cancellation request for an import that is
// mid-commit. The flag lives in storage, not in memory, so it survives a
// worker restart and is visible across processes.
func (r *ImportsRepository) RequestCancel(tenantID string, importID uuid.UUID) (bool, error) {
	result := r.db.Model(&models.Import{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, importID, models.ImportStatusImporting).
		Updates(map[string]interface{}{
			"cancel_requested": true,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		r.InvalidateImportCaches(context.Background(), importID)
	}
	return result.RowsAffected > 0, nil
}

// IsCancelRequestedTx reads the cancellation flag from inside the commit
// transaction. Under READ COMMITTED each statement takes a fresh snapshot,
// so a flag committed by a concurrent cancel request is visible here.
func (r *ImportsRepository) IsCancelRequestedTx(tx *gorm.DB, importID uuid.UUID) (bool, error) {
	var imp models.Import
	if err := tx.Select("cancel_requested").Where("id = ?", importID).First(&imp).Error; err != nil {
		return false, err
	}
	return imp.CancelRequested, nil
}

// SweepStaleRunning marks imports orphaned in a running phase (by a crashed
// or restarted worker) as failed so they do not poll forever. Called once at
// startup.
func (r *ImportsRepository) SweepStaleRunning() (int64, error) {
	result := r.db.Model(&models.Import{}).
		Where("status IN ?", []models.ImportStatus{models.ImportStatusValidating, models.ImportStatusImporting}).
		Updates(map[string]interface{}{
			"status":        models.ImportStatusFailed,
			"error_message": "interrupted by service restart",
			"completed_at":  time.Now(),
			"updated_at":    time.Now(),
		})
	return result.RowsAffected, result.Error
}

// Import rows

// ReplaceRows clears any rows from a prior validation attempt. Each
// validation pass owns the full row set for its import.
func (r *ImportsRepository) ReplaceRows(importID uuid.UUID) error {
	return r.db.Where("import_id = ?", importID).Delete(&models.ImportRow{}).Error
}

// InsertRowBatch persists one batch of validated rows
func (r *ImportsRepository) InsertRowBatch(rows []*models.ImportRow) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now()
	for _, row := range rows {
		row.CreatedAt = now
		row.UpdatedAt = now
	}
	return r.db.Create(rows).Error
}

// GetRows retrieves rows for one import in file order, optionally filtered
// by status, with pagination
func (r *ImportsRepository) GetRows(importID uuid.UUID, status *models.RowStatus, page, limit int) ([]models.ImportRow, int64, error) {
	var rows []models.ImportRow
	var total int64

	query := r.db.Model(&models.ImportRow{}).Where("import_id = ?", importID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("row_number ASC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountRowsByStatus groups row counts by status for one import
func (r *ImportsRepository) CountRowsByStatus(importID uuid.UUID) (models.RowCountBreakdown, error) {
	var results []struct {
		Status models.RowStatus
		Count  int64
	}
	err := r.db.Model(&models.ImportRow{}).
		Select("status, COUNT(*) as count").
		Where("import_id = ?", importID).
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	breakdown := make(models.RowCountBreakdown, len(results))
	for _, res := range results {
		breakdown[res.Status] = res.Count
	}
	return breakdown, nil
}

// AllRows returns every row of an import in file order
func (r *ImportsRepository) AllRows(importID uuid.UUID) ([]models.ImportRow, error) {
	var rows []models.ImportRow
	err := r.db.Where("import_id = ?", importID).Order("row_number ASC").Find(&rows).Error
	return rows, err
}

// RowsForCommit returns the committable rows in strictly ascending row order.
// Ordering matters: later rows intentionally override earlier ones for the
// same SKU, and progress counters assume monotonic advancement.
func (r *ImportsRepository) RowsForCommit(importID uuid.UUID) ([]models.ImportRow, error) {
	var rows []models.ImportRow
	err := r.db.Where("import_id = ? AND status IN ?", importID,
		[]models.RowStatus{models.RowStatusValid, models.RowStatusWarning}).
		Order("row_number ASC").
		Find(&rows).Error
	return rows, err
}

// ErrorRowCount counts rows that fail validation for one import
func (r *ImportsRepository) ErrorRowCount(importID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&models.ImportRow{}).
		Where("import_id = ? AND status = ?", importID, models.RowStatusError).
		Count(&count).Error
	return count, err
}

// UpdateRowStatusTx marks one row inside a commit transaction
func (r *ImportsRepository) UpdateRowStatusTx(tx *gorm.DB, rowID uuid.UUID, status models.RowStatus) error {
	return tx.Model(&models.ImportRow{}).Where("id = ?", rowID).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

// Price history

// CreateHistoryEntryTx appends one ledger entry inside a commit transaction
func (r *ImportsRepository) CreateHistoryEntryTx(tx *gorm.DB, entry *models.PriceHistoryEntry) error {
	entry.CreatedAt = time.Now()
	return tx.Create(entry).Error
}

// GetPriceHistory lists the ledger for one product, newest first
func (r *ImportsRepository) GetPriceHistory(tenantID string, productID uuid.UUID, page, limit int) ([]models.PriceHistoryEntry, int64, error) {
	var entries []models.PriceHistoryEntry
	var total int64

	query := r.db.Model(&models.PriceHistoryEntry{}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// CountHistoryByImport counts ledger entries written by one import
func (r *ImportsRepository) CountHistoryByImport(importID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&models.PriceHistoryEntry{}).Where("import_id = ?", importID).Count(&count).Error
	return count, err
}
