package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PriceHistorySource identifies what produced a history entry
type PriceHistorySource string

const (
	PriceHistorySourceImport PriceHistorySource = "import"
)

// PriceHistoryEntry is one row of the append-only price ledger. Entries are
// never updated or deleted after insertion; exactly one is written per
// committed row that had a catalog match. Decimal-string columns mirror the
// catalog representation, the *_cents columns carry the normalized minor
// units the pipeline validated against.
type PriceHistoryEntry struct {
	ID            uuid.UUID          `json:"id" gorm:"type:uuid;primary_key"`
	TenantID      string             `json:"tenantId" gorm:"not null;index:idx_price_history_tenant"`
	ProductID     uuid.UUID          `json:"productId" gorm:"type:uuid;not null;index:idx_price_history_product"`
	PrevCost      *string            `json:"prevCost,omitempty"`
	NewCost       string             `json:"newCost" gorm:"not null"`
	PrevPrice     *string            `json:"prevPrice,omitempty"`
	NewPrice      *string            `json:"newPrice,omitempty"`
	CostCents     int64              `json:"costCents" gorm:"not null"`
	MsrpCents     *int64             `json:"msrpCents,omitempty"`
	PromoCents    *int64             `json:"promoCents,omitempty"`
	SourceType    PriceHistorySource `json:"sourceType" gorm:"not null;default:'import'"`
	ImportID      uuid.UUID          `json:"importId" gorm:"type:uuid;not null;index"`
	EffectiveFrom time.Time          `json:"effectiveFrom" gorm:"not null"`
	CreatedBy     *string            `json:"createdBy,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
}

func (e *PriceHistoryEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the PriceHistoryEntry model
func (PriceHistoryEntry) TableName() string {
	return "price_history"
}

// PriceHistoryListResponse is the paginated ledger payload
type PriceHistoryListResponse struct {
	Success    bool                `json:"success"`
	Data       []PriceHistoryEntry `json:"data"`
	Pagination *PaginationInfo     `json:"pagination"`
}
