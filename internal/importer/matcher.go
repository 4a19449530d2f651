package importer

import (
	"price-import-service/internal/models"
	"price-import-service/internal/repository"
)

// MatchResult pairs a catalog product with how it was found
type MatchResult struct {
	Product *models.Product
	Kind    models.MatchKind
}

// Matcher resolves file rows to catalog products by exact identity only.
// Fuzzy or ranked matching is deliberately absent; commit semantics need a
// deterministic answer for every row.
type Matcher struct {
	products *repository.ProductsRepository
	tenantID string
}

func NewMatcher(products *repository.ProductsRepository, tenantID string) *Matcher {
	return &Matcher{products: products, tenantID: tenantID}
}

// Match tries case-insensitive exact SKU first, then case-insensitive exact
// model number. An unmatched row comes back as a new item with no product.
func (m *Matcher) Match(sku string) (MatchResult, error) {
	if sku != "" {
		product, err := m.products.MatchBySKU(m.tenantID, sku)
		if err != nil {
			return MatchResult{}, err
		}
		if product != nil {
			return MatchResult{Product: product, Kind: models.MatchKindExactSKU}, nil
		}

		product, err = m.products.MatchByModel(m.tenantID, sku)
		if err != nil {
			return MatchResult{}, err
		}
		if product != nil {
			return MatchResult{Product: product, Kind: models.MatchKindExactModel}, nil
		}
	}
	return MatchResult{Kind: models.MatchKindNew}, nil
}
