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

const ProductCacheTTL = 5 * time.Minute

// ProductsRepository provides read and price-update access to the catalog
type ProductsRepository struct {
	db    *gorm.DB
	redis *redis.Client
	cache *cache.CacheLayer
}

func NewProductsRepository(db *gorm.DB, redisClient *redis.Client) *ProductsRepository {
	repo := &ProductsRepository{
		db:    db,
		redis: redisClient,
	}

	if redisClient != nil {
		cacheConfig := cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 5000,
			L1TTL:      30 * time.Second,
			DefaultTTL: ProductCacheTTL,
			KeyPrefix:  "tesseract:products:",
		}
		repo.cache = cache.NewCacheLayerFromClient(redisClient, cacheConfig)
	}

	return repo
}

// GetProductByID retrieves one product with tenant isolation
func (r *ProductsRepository) GetProductByID(tenantID string, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, productID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// MatchBySKU finds a product by case-insensitive exact SKU
func (r *ProductsRepository) MatchBySKU(tenantID, sku string) (*models.Product, error) {
	var product models.Product
	err := r.db.Where("tenant_id = ? AND LOWER(sku) = LOWER(?)", tenantID, sku).First(&product).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// MatchByModel finds a product by case-insensitive exact model number.
// Returns nil when zero or more than one product carries the model; an
// ambiguous model match is treated as no match.
func (r *ProductsRepository) MatchByModel(tenantID, model string) (*models.Product, error) {
	var products []models.Product
	err := r.db.Where("tenant_id = ? AND model IS NOT NULL AND LOWER(model) = LOWER(?)", tenantID, model).
		Limit(2).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	if len(products) != 1 {
		return nil, nil
	}
	return &products[0], nil
}

// ApplyPriceUpdateTx mutates one product's price fields inside a commit
// transaction. Only fields present in updates change.
func (r *ProductsRepository) ApplyPriceUpdateTx(tx *gorm.DB, productID uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()
	return tx.Model(&models.Product{}).Where("id = ?", productID).Updates(updates).Error
}

// InvalidateProductCache drops cached reads for one product after a price change
func (r *ProductsRepository) InvalidateProductCache(ctx context.Context, tenantID string, productID uuid.UUID) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, fmt.Sprintf("product:%s:%s", tenantID, productID.String()))
	_ = r.cache.DeletePattern(ctx, fmt.Sprintf("products:%s:list:*", tenantID))
}
