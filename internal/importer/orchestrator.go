package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"price-import-service/internal/models"
	"price-import-service/internal/parser"
	"price-import-service/internal/repository"
)

// EventPublisher receives domain events emitted along the import pipeline.
// A nil publisher disables eventing.
type EventPublisher interface {
	PublishPriceChanged(ctx context.Context, product *models.Product, prevCostCents *int64, newCostCents int64, tenantID string, importID uuid.UUID) error
	PublishImportCompleted(ctx context.Context, imp *models.Import) error
	PublishImportFailed(ctx context.Context, imp *models.Import, reason string) error
}

// Config holds the orchestrator's tunables
type Config struct {
	UploadDir      string
	BatchSize      int
	SampleRowCount int
}

func (c Config) withDefaults() Config {
	if c.UploadDir == "" {
		c.UploadDir = os.TempDir()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.SampleRowCount <= 0 {
		c.SampleRowCount = 5
	}
	return c
}

// Orchestrator owns the lifecycle of price-list imports. Request handling
// stays synchronous; the validation and commit passes run as tracked
// background tasks so callers poll for progress instead of blocking.
type Orchestrator struct {
	imports  *repository.ImportsRepository
	products *repository.ProductsRepository
	events   EventPublisher
	logger   *logrus.Logger
	cfg      Config

	wg sync.WaitGroup
}

func NewOrchestrator(imports *repository.ImportsRepository, products *repository.ProductsRepository, publisher EventPublisher, logger *logrus.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		imports:  imports,
		products: products,
		events:   publisher,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// Wait blocks until every background pass has finished. Used for graceful
// shutdown and by tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// CreateImport stores the uploaded file, parses it once to verify it is
// readable, and records a PENDING import. The returned grid lets the caller
// show detected columns and a row sample to the operator.
func (o *Orchestrator) CreateImport(tenantID string, src io.Reader, filename string, vendorID *string, effectiveFrom, effectiveTo *time.Time, createdBy *string) (*models.Import, *parser.Grid, error) {
	format, err := parser.FormatForFilename(filename)
	if err != nil {
		return nil, nil, &parser.ParseError{Message: err.Error()}
	}

	importID := uuid.New()
	storagePath := filepath.Join(o.cfg.UploadDir, fmt.Sprintf("%s%s", importID.String(), filepath.Ext(filename)))
	dst, err := os.Create(storagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store upload: %w", err)
	}
	size, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(storagePath)
		return nil, nil, fmt.Errorf("failed to store upload: %w", err)
	}

	grid, err := o.parseFile(storagePath, format)
	if err != nil {
		// Rejected files are not retained
		os.Remove(storagePath)
		return nil, nil, err
	}

	imp := &models.Import{
		ID:            importID,
		VendorID:      vendorID,
		Filename:      filename,
		StoragePath:   storagePath,
		FileSize:      size,
		Format:        format,
		Status:        models.ImportStatusPending,
		TotalRows:     len(grid.DataRows(1)),
		EffectiveFrom: effectiveFrom,
		EffectiveTo:   effectiveTo,
		CreatedBy:     createdBy,
	}
	if err := o.imports.CreateImport(tenantID, imp); err != nil {
		os.Remove(storagePath)
		return nil, nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"importId": imp.ID,
		"tenantId": tenantID,
		"filename": filename,
		"rows":     imp.TotalRows,
	}).Info("Import uploaded")

	return imp, grid, nil
}

// mappingSubmittable are the phases from which an operator may submit or
// resubmit a column mapping
var mappingSubmittable = []models.ImportStatus{
	models.ImportStatusPending,
	models.ImportStatusPreview,
	models.ImportStatusFailed,
	models.ImportStatusCancelled,
}

// SubmitMapping validates and persists a column mapping, then starts the
// background validation pass. Returns immediately with the import in
// VALIDATING.
func (o *Orchestrator) SubmitMapping(tenantID string, importID uuid.UUID, req *models.SubmitMappingRequest) (*models.Import, error) {
	mapping, err := buildMapping(req)
	if err != nil {
		return nil, err
	}

	imp, err := o.imports.GetImportByID(tenantID, importID)
	if err != nil {
		return nil, err
	}

	// The status guard doubles as the mapping-immutability rule: once a
	// validation pass is running the mapping cannot change until it ends.
	ok, err := o.imports.TransitionStatus(tenantID, importID, mappingSubmittable, models.ImportStatusMapping, map[string]interface{}{
		"mapping":          mapping,
		"cancel_requested": false,
		"error_message":    nil,
		"processed_rows":   0,
		"updated_rows":     0,
		"created_rows":     0,
		"skipped_rows":     0,
		"error_rows":       0,
		"matched_rows":     0,
		"new_rows":         0,
		"started_at":       time.Now(),
		"completed_at":     nil,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InvalidStateError{Current: imp.Status, Allowed: mappingSubmittable}
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runValidation(tenantID, importID, mapping)
	}()

	imp, err = o.imports.GetImportByID(tenantID, importID)
	if err != nil {
		return nil, err
	}
	return imp, nil
}

func buildMapping(req *models.SubmitMappingRequest) (*models.ColumnMapping, error) {
	if _, ok := req.Columns[models.FieldSKU]; !ok {
		return nil, &MappingError{Field: models.FieldSKU, Message: "mapping must include a SKU column"}
	}
	if _, ok := req.Columns[models.FieldCost]; !ok {
		return nil, &MappingError{Field: models.FieldCost, Message: "mapping must include a cost column"}
	}
	for field, letter := range req.Columns {
		switch field {
		case models.FieldSKU, models.FieldDescription, models.FieldCost, models.FieldMSRP, models.FieldPromoPrice:
		default:
			return nil, &MappingError{Field: field, Message: "unknown field"}
		}
		if !parser.IsValidColumnLetter(letter) {
			return nil, &MappingError{Field: field, Message: fmt.Sprintf("invalid column letter %q", letter)}
		}
	}
	if req.Convention != models.DecimalConventionDollars && req.Convention != models.DecimalConventionCents {
		return nil, &MappingError{Field: "convention", Message: "convention must be dollars or cents"}
	}

	headerRows := 1
	if req.HeaderRows != nil {
		if *req.HeaderRows < 0 {
			return nil, &MappingError{Field: "headerRows", Message: "headerRows must not be negative"}
		}
		headerRows = *req.HeaderRows
	}

	columns := make(map[string]string, len(req.Columns))
	for field, letter := range req.Columns {
		columns[field] = letter
	}
	return &models.ColumnMapping{
		Columns:    columns,
		Convention: req.Convention,
		HeaderRows: headerRows,
	}, nil
}

// runValidation is the background VALIDATING pass: re-parse, walk every data
// row through resolution, matching and validation, persist rows in batches,
// finish in PREVIEW. Any infrastructure failure moves the import to FAILED
// with the failure recorded.
func (o *Orchestrator) runValidation(tenantID string, importID uuid.UUID, mapping *models.ColumnMapping) {
	log := o.logger.WithFields(logrus.Fields{"importId": importID, "tenantId": tenantID})

	ok, err := o.imports.TransitionStatus(tenantID, importID, []models.ImportStatus{models.ImportStatusMapping}, models.ImportStatusValidating, nil)
	if err != nil || !ok {
		log.WithError(err).Warn("Validation pass could not start")
		return
	}

	imp, err := o.imports.GetImportByID(tenantID, importID)
	if err != nil {
		o.failImport(tenantID, importID, fmt.Sprintf("failed to load import: %v", err))
		return
	}

	grid, err := o.parseFile(imp.StoragePath, imp.Format)
	if err != nil {
		o.failImport(tenantID, importID, err.Error())
		return
	}
	dataRows := grid.DataRows(mapping.HeaderRows)

	// Each pass owns the complete row set; rows from an earlier attempt go away
	if err := o.imports.ReplaceRows(importID); err != nil {
		o.failImport(tenantID, importID, fmt.Sprintf("failed to clear previous rows: %v", err))
		return
	}
	if err := o.imports.UpdateImport(importID, map[string]interface{}{"total_rows": len(dataRows)}); err != nil {
		o.failImport(tenantID, importID, fmt.Sprintf("failed to update row count: %v", err))
		return
	}

	matcher := NewMatcher(o.products, tenantID)
	var (
		batch       []*models.ImportRow
		processed   int
		errorRows   int
		matchedRows int
		newRows     int
	)

	flush := func() error {
		if err := o.imports.InsertRowBatch(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return o.imports.UpdateProgress(importID, processed)
	}

	for i, cells := range dataRows {
		row, err := o.buildRow(matcher, mapping, importID, i+1, cells)
		if err != nil {
			o.failImport(tenantID, importID, fmt.Sprintf("row %d: %v", i+1, err))
			return
		}
		switch row.Status {
		case models.RowStatusError:
			errorRows++
		default:
			if row.ProductID != nil {
				matchedRows++
			} else {
				newRows++
			}
		}

		batch = append(batch, row)
		processed++
		if len(batch) >= o.cfg.BatchSize {
			if err := flush(); err != nil {
				o.failImport(tenantID, importID, fmt.Sprintf("failed to persist rows: %v", err))
				return
			}
			// A cancellation between batches stops the pass; rows written so
			// far stay behind and are replaced on the next mapping.
			if current, err := o.imports.GetImportByID(tenantID, importID); err == nil && current.Status != models.ImportStatusValidating {
				log.WithField("status", current.Status).Info("Validation pass stopped early")
				return
			}
		}
	}
	if err := flush(); err != nil {
		o.failImport(tenantID, importID, fmt.Sprintf("failed to persist rows: %v", err))
		return
	}

	ok, err = o.imports.TransitionStatus(tenantID, importID, []models.ImportStatus{models.ImportStatusValidating}, models.ImportStatusPreview, map[string]interface{}{
		"total_rows":     len(dataRows),
		"processed_rows": processed,
		"error_rows":     errorRows,
		"matched_rows":   matchedRows,
		"new_rows":       newRows,
	})
	if err != nil {
		o.failImport(tenantID, importID, fmt.Sprintf("failed to finish validation: %v", err))
		return
	}
	if !ok {
		// Cancelled underneath us; nothing more to do
		return
	}

	log.WithFields(logrus.Fields{
		"rows":    processed,
		"errors":  errorRows,
		"matched": matchedRows,
		"new":     newRows,
	}).Info("Validation pass complete")
}

// buildRow resolves, matches and validates a single file row
func (o *Orchestrator) buildRow(matcher *Matcher, mapping *models.ColumnMapping, importID uuid.UUID, rowNumber int, cells []string) (*models.ImportRow, error) {
	raw := make(models.JSON, len(cells))
	for i, cell := range cells {
		raw[parser.IndexToLetter(i)] = cell
	}

	resolve := func(field string) *string {
		letter, ok := mapping.Columns[field]
		if !ok {
			return nil
		}
		value := parser.ResolveCell(cells, letter)
		if value == "" {
			return nil
		}
		return &value
	}
	price := func(field string) *int64 {
		if s := resolve(field); s != nil {
			return parser.ParseCurrency(*s, mapping.Convention)
		}
		return nil
	}

	row := &models.ImportRow{
		ImportID:    importID,
		RowNumber:   rowNumber,
		RawData:     raw,
		SKU:         resolve(models.FieldSKU),
		Description: resolve(models.FieldDescription),
		CostCents:   price(models.FieldCost),
		MsrpCents:   price(models.FieldMSRP),
		PromoCents:  price(models.FieldPromoPrice),
	}

	verdict := ValidateRow(RowInput{
		SKU:         row.SKU,
		Description: row.Description,
		CostCents:   row.CostCents,
		MsrpCents:   row.MsrpCents,
		PromoCents:  row.PromoCents,
	})
	row.Status = verdict.Status
	row.Errors = verdict.Errors
	row.Warnings = verdict.Warnings

	sku := ""
	if row.SKU != nil {
		sku = *row.SKU
	}
	match, err := matcher.Match(sku)
	if err != nil {
		return nil, err
	}
	kind := match.Kind
	row.MatchKind = &kind
	if match.Product != nil {
		id := match.Product.ID
		row.ProductID = &id

		// Snapshot current prices so preview deltas survive later catalog
		// changes by other imports
		if match.Product.CostPrice != nil {
			row.PrevCostCents = PriceToCents(*match.Product.CostPrice)
		}
		row.PrevMsrpCents = PriceToCents(match.Product.Price)
		if row.CostCents != nil && row.PrevCostCents != nil {
			delta := *row.CostCents - *row.PrevCostCents
			row.CostDeltaCents = &delta
		}
		if row.MsrpCents != nil && row.PrevMsrpCents != nil {
			delta := *row.MsrpCents - *row.PrevMsrpCents
			row.MsrpDeltaCents = &delta
		}
	}
	return row, nil
}

// Cancel handles a cancellation request. Imports not mid-commit flip to
// CANCELLED immediately; a running commit pass is asked to stop and rolls
// itself back at its next checkpoint.
func (o *Orchestrator) Cancel(tenantID string, importID uuid.UUID) (*models.CancelImportResponse, error) {
	imp, err := o.imports.GetImportByID(tenantID, importID)
	if err != nil {
		return nil, err
	}
	if imp.Status.IsTerminal() {
		return nil, &InvalidStateError{Current: imp.Status, Allowed: []models.ImportStatus{
			models.ImportStatusPending, models.ImportStatusMapping, models.ImportStatusValidating,
			models.ImportStatusPreview, models.ImportStatusImporting,
		}}
	}

	if imp.Status == models.ImportStatusImporting {
		ok, err := o.imports.RequestCancel(tenantID, importID)
		if err != nil {
			return nil, err
		}
		if ok {
			return &models.CancelImportResponse{
				Success:      true,
				Status:       models.ImportStatusImporting,
				Acknowledged: true,
				Message:      "cancellation requested; commit pass will roll back",
			}, nil
		}
		// Commit pass ended between our read and the flag write; fall through
		// to report the final status
		imp, err = o.imports.GetImportByID(tenantID, importID)
		if err != nil {
			return nil, err
		}
		return &models.CancelImportResponse{Success: true, Status: imp.Status, Acknowledged: false,
			Message: "import already finished"}, nil
	}

	now := time.Now()
	ok, err := o.imports.TransitionStatus(tenantID, importID, []models.ImportStatus{
		models.ImportStatusPending, models.ImportStatusMapping, models.ImportStatusValidating, models.ImportStatusPreview,
	}, models.ImportStatusCancelled, map[string]interface{}{"completed_at": now})
	if err != nil {
		return nil, err
	}
	if !ok {
		imp, err = o.imports.GetImportByID(tenantID, importID)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidStateError{Current: imp.Status, Allowed: []models.ImportStatus{
			models.ImportStatusPending, models.ImportStatusMapping, models.ImportStatusValidating, models.ImportStatusPreview,
		}}
	}

	o.logger.WithFields(logrus.Fields{"importId": importID, "tenantId": tenantID}).Info("Import cancelled")
	return &models.CancelImportResponse{Success: true, Status: models.ImportStatusCancelled, Acknowledged: true,
		Message: "import cancelled"}, nil
}

// Progress returns the pollable progress view of an import
func (o *Orchestrator) Progress(tenantID string, importID uuid.UUID) (*models.ImportProgress, error) {
	imp, err := o.imports.GetImportByID(tenantID, importID)
	if err != nil {
		return nil, err
	}

	percent := 0
	switch {
	case imp.Status == models.ImportStatusCompleted:
		percent = 100
	case imp.TotalRows > 0:
		percent = imp.ProcessedRows * 100 / imp.TotalRows
	}

	return &models.ImportProgress{
		ImportID:        imp.ID.String(),
		Status:          imp.Status,
		TotalRows:       imp.TotalRows,
		ProcessedRows:   imp.ProcessedRows,
		PercentComplete: percent,
		CancelRequested: imp.CancelRequested,
		ErrorMessage:    imp.ErrorMessage,
	}, nil
}

// failImport records a terminal failure and emits the failure event
func (o *Orchestrator) failImport(tenantID string, importID uuid.UUID, message string) {
	o.logger.WithFields(logrus.Fields{"importId": importID, "tenantId": tenantID, "reason": message}).
		Error("Import failed")
	if err := o.imports.MarkFailed(importID, message); err != nil {
		o.logger.WithError(err).WithField("importId", importID).Error("Failed to record import failure")
		return
	}
	if o.events != nil {
		if imp, err := o.imports.GetImportByID(tenantID, importID); err == nil {
			_ = o.events.PublishImportFailed(context.Background(), imp, message)
		}
	}
}

func (o *Orchestrator) parseFile(path string, format models.ImportFormat) (*parser.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &parser.ParseError{Message: "failed to open stored file", Err: err}
	}
	defer f.Close()
	return parser.Parse(f, format)
}
