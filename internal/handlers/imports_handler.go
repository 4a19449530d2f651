package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"price-import-service/internal/clients"
	"price-import-service/internal/importer"
	"price-import-service/internal/models"
	"price-import-service/internal/parser"
	"price-import-service/internal/repository"
)

const DefaultMaxUploadBytes = 20 << 20

type ImportsHandler struct {
	orchestrator   *importer.Orchestrator
	repo           *repository.ImportsRepository
	vendorClient   *clients.VendorClient
	maxUploadBytes int64
	sampleRows     int
}

func NewImportsHandler(orchestrator *importer.Orchestrator, repo *repository.ImportsRepository, vendorClient *clients.VendorClient, maxUploadBytes int64) *ImportsHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &ImportsHandler{
		orchestrator:   orchestrator,
		repo:           repo,
		vendorClient:   vendorClient,
		maxUploadBytes: maxUploadBytes,
		sampleRows:     5,
	}
}

// respondError translates pipeline errors into the shared error envelope
func respondError(c *gin.Context, err error) {
	var (
		parseErr   *parser.ParseError
		mappingErr *importer.MappingError
		stateErr   *importer.InvalidStateError
		rowsErr    *importer.ErrorRowsPresentError
	)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "NOT_FOUND", Message: "Import not found"},
		})
	case errors.As(err, &parseErr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "PARSE_ERROR", Message: parseErr.Message},
		})
	case errors.As(err, &mappingErr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INVALID_MAPPING", Message: mappingErr.Message, Field: mappingErr.Field},
		})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INVALID_STATE", Message: stateErr.Error()},
		})
	case errors.As(err, &rowsErr):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "ERROR_ROWS_PRESENT",
				Message: rowsErr.Error(),
				Details: &models.JSON{"errorRows": rowsErr.Count},
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INTERNAL_ERROR", Message: "An internal error occurred"},
		})
	}
}

func parseImportID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "VALIDATION_ERROR", Message: "Invalid import ID", Field: "id"},
		})
		return uuid.Nil, false
	}
	return id, true
}

// UploadImport accepts a price-list file and creates a PENDING import
// @Summary Upload a vendor price list
// @Description Upload a CSV or XLSX price list for review and import
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Price list file"
// @Success 201 {object} models.UploadImportResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /imports [post]
func (h *ImportsHandler) UploadImport(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "VALIDATION_ERROR", Message: "A file is required", Field: "file"},
		})
		return
	}

	// Size and extension checks happen before any parsing work
	if fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_TOO_LARGE",
				Message: "File exceeds the maximum upload size",
				Details: &models.JSON{"maxBytes": h.maxUploadBytes, "size": fileHeader.Size},
			},
		})
		return
	}
	if _, err := parser.FormatForFilename(fileHeader.Filename); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INVALID_FORMAT", Message: "Only .csv and .xlsx files are supported", Field: "file"},
		})
		return
	}

	var vendorID *string
	if v := c.PostForm("vendorId"); v != "" {
		// Vendor association is optional; an unreachable vendor directory
		// must not block uploads
		if h.vendorClient != nil {
			if _, err := h.vendorClient.GetVendorByID(tenantID.(string), v); err != nil {
				c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Success: false,
					Error:   models.Error{Code: "VALIDATION_ERROR", Message: "Unknown vendor", Field: "vendorId"},
				})
				return
			}
		}
		vendorID = &v
	}

	var effectiveFrom, effectiveTo *time.Time
	if raw := c.PostForm("effectiveFrom"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			effectiveFrom = &t
		}
	}
	if raw := c.PostForm("effectiveTo"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			effectiveTo = &t
		}
	}

	var createdBy *string
	if uid, ok := userID.(string); ok && uid != "" {
		createdBy = &uid
	}

	src, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer src.Close()

	imp, grid, err := h.orchestrator.CreateImport(tenantID.(string), src, fileHeader.Filename, vendorID, effectiveFrom, effectiveTo, createdBy)
	if err != nil {
		respondError(c, err)
		return
	}

	sample := grid.DataRows(1)
	if len(sample) > h.sampleRows {
		sample = sample[:h.sampleRows]
	}

	c.JSON(http.StatusCreated, models.UploadImportResponse{
		Success:       true,
		ImportID:      imp.ID.String(),
		Filename:      imp.Filename,
		TotalRows:     imp.TotalRows,
		ColumnLetters: grid.ColumnLetters,
		Headers:       grid.Headers,
		SampleRows:    sample,
	})
}

// SubmitMapping stores the column mapping and starts background validation
func (h *ImportsHandler) SubmitMapping(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	importID, ok := parseImportID(c)
	if !ok {
		return
	}

	var req models.SubmitMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "VALIDATION_ERROR", Message: err.Error()},
		})
		return
	}

	imp, err := h.orchestrator.SubmitMapping(tenantID.(string), importID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, models.SuccessResponse{Success: true, Data: imp})
}

// GetImports lists imports with filtering and pagination
func (h *ImportsHandler) GetImports(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter := &repository.ImportListFilter{Page: page, Limit: limit}
	if status := c.Query("status"); status != "" {
		s := models.ImportStatus(status)
		filter.Status = &s
	}
	if vendorID := c.Query("vendorId"); vendorID != "" {
		filter.VendorID = &vendorID
	}
	if raw := c.Query("dateFrom"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateFrom = &t
		}
	}
	if raw := c.Query("dateTo"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateTo = &t
		}
	}

	imports, total, err := h.repo.ListImports(tenantID.(string), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportListResponse{
		Success:    true,
		Data:       imports,
		Pagination: buildPagination(page, limit, total),
	})
}

// GetImport returns one import with a status-grouped row-count breakdown
func (h *ImportsHandler) GetImport(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	importID, ok := parseImportID(c)
	if !ok {
		return
	}

	imp, err := h.repo.GetImportByID(tenantID.(string), importID)
	if err != nil {
		respondError(c, err)
		return
	}

	counts, err := h.repo.CountRowsByStatus(importID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportDetailResponse{
		Success:   true,
		Data:      imp,
		RowCounts: counts,
	})
}

// GetImportRows returns a paginated row listing filterable by row status
// @Summary List import rows
// @Description Paginated rows of one import, in file order
// @Tags Imports
// @Produce json
// @Param id path string true "Import ID"
// @Param status query string false "Row status filter"
// @Success 200 {object} models.ImportRowListResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /imports/{id}/rows [get]
func (h *ImportsHandler) GetImportRows(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	importID, ok := parseImportID(c)
	if !ok {
		return
	}

	imp, err := h.repo.GetImportByID(tenantID.(string), importID)
	if err != nil {
		respondError(c, err)
		return
	}
	switch imp.Status {
	case models.ImportStatusPending, models.ImportStatusMapping, models.ImportStatusValidating:
		respondError(c, &importer.InvalidStateError{Current: imp.Status, Allowed: []models.ImportStatus{models.ImportStatusPreview}})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var status *models.RowStatus
	if raw := c.Query("status"); raw != "" {
		s := models.RowStatus(raw)
		status = &s
	}

	rows, total, err := h.repo.GetRows(importID, status, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := h.repo.CountRowsByStatus(importID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportRowListResponse{
		Success:    true,
		Data:       rows,
		Summary:    summary,
		Pagination: buildPagination(page, limit, total),
	})
}

// GetSimulation returns the financial impact summary of a previewed import
func (h *ImportsHandler) GetSimulation(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	importID, ok := parseImportID(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.Simulate(c.Request.Context(), tenantID.(string), importID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SimulationResponse{Success: true, Data: result})
}

// GetProgress returns the pollable progress view of an import
func (h *ImportsHandler) GetProgress(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	importID, ok := parseImportID(c)
	if !ok {
		return
	}

	progress, err := h.orchestrator.Progress(tenantID.(string), importID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: progress})
}

// CommitImport starts the catalog mutation pass for a previewed import
func (h *ImportsHandler) CommitImport(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	importID, ok := parseImportID(c)
	if !ok {
		return
	}

	var req models.CommitImportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error:   models.Error{Code: "VALIDATION_ERROR", Message: err.Error()},
			})
			return
		}
	}

	imp, err := h.orchestrator.RequestCommit(tenantID.(string), importID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, models.SuccessResponse{Success: true, Data: imp})
}

// CancelImport cancels an import in any non-terminal phase
func (h *ImportsHandler) CancelImport(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	importID, ok := parseImportID(c)
	if !ok {
		return
	}

	resp, err := h.orchestrator.Cancel(tenantID.(string), importID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetPriceHistory returns the price ledger for one product, newest first
func (h *ImportsHandler) GetPriceHistory(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "VALIDATION_ERROR", Message: "Invalid product ID", Field: "id"},
		})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	entries, total, err := h.repo.GetPriceHistory(tenantID.(string), productID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PriceHistoryListResponse{
		Success:    true,
		Data:       entries,
		Pagination: buildPagination(page, limit, total),
	})
}

func buildPagination(page, limit int, total int64) *models.PaginationInfo {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &models.PaginationInfo{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}
