package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImportFormat represents the file format of an uploaded price list
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

// ImportStatus represents the lifecycle phase of a price-list import.
//
// PENDING    file received and parsed, awaiting a column mapping
// MAPPING    mapping accepted, validation about to start
// VALIDATING background validation pass in progress
// PREVIEW    rows and simulation readable, nothing committed
// IMPORTING  background commit pass in progress
// COMPLETED / FAILED / CANCELLED are terminal; FAILED and CANCELLED imports
// may be retried by submitting a new mapping.
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "PENDING"
	ImportStatusMapping    ImportStatus = "MAPPING"
	ImportStatusValidating ImportStatus = "VALIDATING"
	ImportStatusPreview    ImportStatus = "PREVIEW"
	ImportStatusImporting  ImportStatus = "IMPORTING"
	ImportStatusCompleted  ImportStatus = "COMPLETED"
	ImportStatusFailed     ImportStatus = "FAILED"
	ImportStatusCancelled  ImportStatus = "CANCELLED"
)

// IsTerminal reports whether the status is final.
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed || s == ImportStatusCancelled
}

// RowStatus represents the state of a single import row
type RowStatus string

const (
	RowStatusValid    RowStatus = "VALID"
	RowStatusWarning  RowStatus = "WARNING"
	RowStatusError    RowStatus = "ERROR"
	RowStatusSkipped  RowStatus = "SKIPPED"
	RowStatusImported RowStatus = "IMPORTED"
)

// MatchKind records how a row's SKU was resolved against the catalog
type MatchKind string

const (
	MatchKindExactSKU   MatchKind = "EXACT_SKU"
	MatchKindExactModel MatchKind = "EXACT_MODEL"
	MatchKindNew        MatchKind = "NEW"
)

// DecimalConvention selects how numeric cells are interpreted
type DecimalConvention string

const (
	DecimalConventionDollars DecimalConvention = "dollars"
	DecimalConventionCents   DecimalConvention = "cents"
)

// Mapping field names accepted in a ColumnMapping. SKU and cost are
// mandatory, the rest optional.
const (
	FieldSKU         = "sku"
	FieldDescription = "description"
	FieldCost        = "cost"
	FieldMSRP        = "msrp"
	FieldPromoPrice  = "promoPrice"
)

// ColumnMapping binds semantic fields to spreadsheet column letters. It is
// stored as JSONB on the import so the operator's choices stay auditable.
type ColumnMapping struct {
	Columns    map[string]string `json:"columns"`
	Convention DecimalConvention `json:"convention"`
	HeaderRows int               `json:"headerRows"`
}

func (m ColumnMapping) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *ColumnMapping) Scan(value interface{}) error {
	if value == nil {
		*m = ColumnMapping{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return nil
}

// Import represents one uploaded vendor price list and its processing
// lifecycle. Imports are retained indefinitely for audit and never
// hard-deleted.
type Import struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	TenantID        string         `json:"tenantId" gorm:"not null;index:idx_imports_tenant;index:idx_imports_tenant_status"`
	VendorID        *string        `json:"vendorId,omitempty" gorm:"index"`
	Filename        string         `json:"filename" gorm:"not null"`
	StoragePath     string         `json:"-" gorm:"not null"`
	FileSize        int64          `json:"fileSize"`
	Format          ImportFormat   `json:"format" gorm:"not null"`
	Status          ImportStatus   `json:"status" gorm:"not null;default:'PENDING';index:idx_imports_tenant_status"`
	TotalRows       int            `json:"totalRows"`
	ProcessedRows   int            `json:"processedRows"`
	UpdatedRows     int            `json:"updatedRows"`
	CreatedRows     int            `json:"createdRows"`
	SkippedRows     int            `json:"skippedRows"`
	ErrorRows       int            `json:"errorRows"`
	MatchedRows     int            `json:"matchedRows"`
	NewRows         int            `json:"newRows"`
	Mapping         *ColumnMapping `json:"mapping,omitempty" gorm:"type:jsonb"`
	EffectiveFrom   *time.Time     `json:"effectiveFrom,omitempty"`
	EffectiveTo     *time.Time     `json:"effectiveTo,omitempty"`
	CancelRequested bool           `json:"cancelRequested" gorm:"not null;default:false"`
	ErrorMessage    *string        `json:"errorMessage,omitempty"`
	CreatedBy       *string        `json:"createdBy,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (i *Import) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the Import model
func (Import) TableName() string {
	return "imports"
}

// ImportRow represents one data line of an import. Rows are created in bulk
// during validation, replacing any rows from a previous pass, and transition
// to IMPORTED or SKIPPED exactly once, during commit.
type ImportRow struct {
	ID             uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	ImportID       uuid.UUID   `json:"importId" gorm:"type:uuid;not null;index:idx_import_rows_import;index:idx_import_rows_import_status"`
	RowNumber      int         `json:"rowNumber" gorm:"not null"`
	RawData        JSON        `json:"rawData" gorm:"type:jsonb"`
	SKU            *string     `json:"sku,omitempty"`
	Description    *string     `json:"description,omitempty"`
	CostCents      *int64      `json:"costCents,omitempty"`
	MsrpCents      *int64      `json:"msrpCents,omitempty"`
	PromoCents     *int64      `json:"promoCents,omitempty"`
	ProductID      *uuid.UUID  `json:"productId,omitempty" gorm:"type:uuid;index"`
	MatchKind      *MatchKind  `json:"matchKind,omitempty"`
	Status         RowStatus   `json:"status" gorm:"not null;index:idx_import_rows_import_status"`
	Errors         StringArray `json:"errors" gorm:"type:jsonb"`
	Warnings       StringArray `json:"warnings" gorm:"type:jsonb"`
	PrevCostCents  *int64      `json:"prevCostCents,omitempty"`
	PrevMsrpCents  *int64      `json:"prevMsrpCents,omitempty"`
	CostDeltaCents *int64      `json:"costDeltaCents,omitempty"`
	MsrpDeltaCents *int64      `json:"msrpDeltaCents,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

func (r *ImportRow) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the ImportRow model
func (ImportRow) TableName() string {
	return "import_rows"
}

// ============================================================================
// Request / response DTOs
// ============================================================================

// UploadImportResponse is returned after a successful upload
type UploadImportResponse struct {
	Success       bool       `json:"success"`
	ImportID      string     `json:"importId"`
	Filename      string     `json:"filename"`
	TotalRows     int        `json:"totalRows"`
	ColumnLetters []string   `json:"columnLetters"`
	Headers       []string   `json:"headers"`
	SampleRows    [][]string `json:"sampleRows"`
}

// SubmitMappingRequest carries the operator's column mapping
type SubmitMappingRequest struct {
	Columns    map[string]string `json:"columns" binding:"required"`
	Convention DecimalConvention `json:"convention" binding:"required"`
	HeaderRows *int              `json:"headerRows,omitempty"`
}

// CommitImportRequest carries commit options
type CommitImportRequest struct {
	SkipErrors         bool `json:"skipErrors"`
	ApplyEffectiveDate bool `json:"applyEffectiveDate"`
}

// ImportProgress is the pollable progress view of an import
type ImportProgress struct {
	ImportID        string       `json:"importId"`
	Status          ImportStatus `json:"status"`
	TotalRows       int          `json:"totalRows"`
	ProcessedRows   int          `json:"processedRows"`
	PercentComplete int          `json:"percentComplete"`
	CancelRequested bool         `json:"cancelRequested"`
	ErrorMessage    *string      `json:"errorMessage,omitempty"`
}

// RowCountBreakdown groups row counts by status for the detail view
type RowCountBreakdown map[RowStatus]int64

// ImportDetailResponse is the single-import detail payload
type ImportDetailResponse struct {
	Success   bool              `json:"success"`
	Data      *Import           `json:"data"`
	RowCounts RowCountBreakdown `json:"rowCounts"`
}

// ImportListResponse is the paginated import listing payload
type ImportListResponse struct {
	Success    bool            `json:"success"`
	Data       []Import        `json:"data"`
	Pagination *PaginationInfo `json:"pagination"`
}

// ImportRowListResponse is the paginated row listing payload
type ImportRowListResponse struct {
	Success    bool              `json:"success"`
	Data       []ImportRow       `json:"data"`
	Summary    RowCountBreakdown `json:"summary"`
	Pagination *PaginationInfo   `json:"pagination"`
}

// PriceDirectionBuckets counts rows by the direction of a price change
type PriceDirectionBuckets struct {
	Increases int `json:"increases"`
	Decreases int `json:"decreases"`
	NoChange  int `json:"noChange"`
}

// MarginImpactBuckets counts rows by margin effect. Rows missing any of the
// four inputs (previous/new cost and MSRP) are excluded entirely rather than
// counted as unchanged.
type MarginImpactBuckets struct {
	Improved  int `json:"improved"`
	Reduced   int `json:"reduced"`
	Unchanged int `json:"unchanged"`
}

// PriceChange describes one of the largest cost movements in a simulation
type PriceChange struct {
	RowNumber      int     `json:"rowNumber"`
	SKU            string  `json:"sku"`
	ProductID      *string `json:"productId,omitempty"`
	PrevCostCents  int64   `json:"prevCostCents"`
	NewCostCents   int64   `json:"newCostCents"`
	CostDeltaCents int64   `json:"costDeltaCents"`
}

// SimulationResult is the read-only financial impact summary of an import
type SimulationResult struct {
	ProductsAffected int                   `json:"productsAffected"`
	NewProducts      int                   `json:"newProducts"`
	CostChanges      PriceDirectionBuckets `json:"costChanges"`
	MsrpChanges      PriceDirectionBuckets `json:"msrpChanges"`
	MarginImpact     MarginImpactBuckets   `json:"marginImpact"`
	LargestChanges   []PriceChange         `json:"largestChanges"`
	WarningsSummary  map[string]int        `json:"warningsSummary"`
	ErrorsSummary    map[string]int        `json:"errorsSummary"`
}

// SimulationResponse wraps a SimulationResult
type SimulationResponse struct {
	Success bool              `json:"success"`
	Data    *SimulationResult `json:"data"`
}

// CancelImportResponse reports the phase an import ended up in after a
// cancellation request
type CancelImportResponse struct {
	Success      bool         `json:"success"`
	Status       ImportStatus `json:"status"`
	Acknowledged bool         `json:"acknowledged"`
	Message      string       `json:"message"`
}
