package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"price-import-service/internal/importer"
	"price-import-service/internal/models"
	"price-import-service/internal/repository"
)

const testTenant = "tenant-1"

func newTestRouter(t *testing.T) (*gin.Engine, *importer.Orchestrator, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Import{},
		&models.ImportRow{},
		&models.PriceHistoryEntry{},
	))

	importsRepo := repository.NewImportsRepository(db, nil)
	productsRepo := repository.NewProductsRepository(db, nil)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	orchestrator := importer.NewOrchestrator(importsRepo, productsRepo, nil, logger, importer.Config{
		UploadDir: t.TempDir(),
	})
	handler := NewImportsHandler(orchestrator, importsRepo, nil, 1<<20)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("tenant_id", testTenant)
		c.Set("user_id", "operator-1")
		c.Next()
	})

	imports := router.Group("/api/v1/imports")
	{
		imports.POST("", handler.UploadImport)
		imports.GET("", handler.GetImports)
		imports.GET("/:id", handler.GetImport)
		imports.PUT("/:id/mapping", handler.SubmitMapping)
		imports.GET("/:id/rows", handler.GetImportRows)
		imports.GET("/:id/simulation", handler.GetSimulation)
		imports.GET("/:id/progress", handler.GetProgress)
		imports.POST("/:id/commit", handler.CommitImport)
		imports.POST("/:id/cancel", handler.CancelImport)
	}
	router.GET("/api/v1/products/:id/price-history", handler.GetPriceHistory)

	return router, orchestrator, db
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func doUpload(t *testing.T, router *gin.Engine, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestUploadImportHappyPath(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doUpload(t, router, "prices.csv", "SKU,Name,Cost,MSRP\nW-1,Widget,10.00,15.00\nW-2,Gadget,5.00,8.00\n")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.UploadImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.ImportID)
	assert.Equal(t, 2, resp.TotalRows)
	assert.Equal(t, []string{"A", "B", "C", "D"}, resp.ColumnLetters)
	assert.Equal(t, []string{"SKU", "Name", "Cost", "MSRP"}, resp.Headers)
	assert.Len(t, resp.SampleRows, 2)
}

func TestUploadImportMissingFile(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", strings.NewReader(""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestUploadImportRejectsExtension(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doUpload(t, router, "prices.pdf", "whatever")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FORMAT", errorCode(t, rec))
}

func TestUploadImportRejectsOversizedFile(t *testing.T) {
	router, _, _ := newTestRouter(t)

	big := "SKU,Cost\n" + strings.Repeat("W-1,10.00\n", 200000)
	rec := doUpload(t, router, "prices.csv", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE_TOO_LARGE", errorCode(t, rec))
}

func TestUploadImportParseFailure(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doUpload(t, router, "prices.csv", "SKU,Cost\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PARSE_ERROR", errorCode(t, rec))
}

func TestSubmitMappingInvalidBody(t *testing.T) {
	router, _, _ := newTestRouter(t)
	importID := uploadAndGetID(t, router)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/imports/"+importID+"/mapping",
		strings.NewReader(`{"columns":{"sku":"A"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitMappingBadColumns(t *testing.T) {
	router, _, _ := newTestRouter(t)
	importID := uploadAndGetID(t, router)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/imports/"+importID+"/mapping",
		strings.NewReader(`{"columns":{"sku":"A"},"convention":"dollars"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_MAPPING", errorCode(t, rec))
}

func TestGetImportNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestGetImportInvalidID(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRowsBeforePreviewConflicts(t *testing.T) {
	router, _, _ := newTestRouter(t)
	importID := uploadAndGetID(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+importID+"/rows", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", errorCode(t, rec))
}

func TestCommitBeforePreviewConflicts(t *testing.T) {
	router, _, _ := newTestRouter(t)
	importID := uploadAndGetID(t, router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/"+importID+"/commit", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", errorCode(t, rec))
}

func TestFullPipelineOverHTTP(t *testing.T) {
	router, orchestrator, db := newTestRouter(t)

	cost := "10.00"
	require.NoError(t, db.Create(&models.Product{
		TenantID:  testTenant,
		Name:      "Widget",
		SKU:       "W-1",
		Price:     "15.00",
		CostPrice: &cost,
		Status:    models.ProductStatusActive,
	}).Error)

	importID := uploadAndGetID(t, router)

	// Mapping is accepted and validation runs in the background
	req := httptest.NewRequest(http.MethodPut, "/api/v1/imports/"+importID+"/mapping",
		strings.NewReader(`{"columns":{"sku":"A","cost":"C","msrp":"D"},"convention":"dollars"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	orchestrator.Wait()

	// Rows are readable in preview
	req = httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+importID+"/rows", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var rowsResp models.ImportRowListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rowsResp))
	require.Len(t, rowsResp.Data, 1)
	assert.EqualValues(t, 1, rowsResp.Summary[models.RowStatusValid])

	// Simulation is readable in preview
	req = httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+importID+"/simulation", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var simResp models.SimulationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &simResp))
	assert.Equal(t, 1, simResp.Data.ProductsAffected)

	// Commit and wait for the background pass
	req = httptest.NewRequest(http.MethodPost, "/api/v1/imports/"+importID+"/commit", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	orchestrator.Wait()

	req = httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+importID+"/progress", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(models.ImportStatusCompleted))

	// The ledger is visible through the price-history endpoint
	var product models.Product
	require.NoError(t, db.First(&product, "sku = ?", "W-1").Error)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/products/"+product.ID.String()+"/price-history", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var historyResp models.PriceHistoryListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &historyResp))
	require.Len(t, historyResp.Data, 1)
	assert.Equal(t, "12.00", historyResp.Data[0].NewCost)
}

func TestListImportsFiltersByStatus(t *testing.T) {
	router, _, _ := newTestRouter(t)
	uploadAndGetID(t, router)
	uploadAndGetID(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports?status=PENDING&limit=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ImportListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.EqualValues(t, 2, resp.Pagination.Total)
	assert.True(t, resp.Pagination.HasNext)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/imports?status=COMPLETED", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data)
}

func uploadAndGetID(t *testing.T, router *gin.Engine) string {
	t.Helper()
	rec := doUpload(t, router, "prices.csv", "SKU,Name,Cost,MSRP\nW-1,Widget,12.00,16.00\n")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp models.UploadImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ImportID
}
