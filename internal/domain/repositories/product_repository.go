package repositories

import (
	"context"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

// ProductRepository defines the interface for product data operations
type ProductRepository interface {
	// GetByID retrieves a product by ID
	GetByID(ctx context.Context, id string) (*entities.Product, error)

	// GetByIDs retrieves multiple products by their IDs
	GetByIDs(ctx context.Context, ids []string) ([]*entities.Product, error)

	// ListBatch retrieves products in stable ID order for bulk indexing
	ListBatch(ctx context.Context, offset, limit int) ([]*entities.Product, error)

	// ListNeedingEmbedding retrieves products whose embedding is missing
	// or whose content hash no longer matches the stored vector's hash
	ListNeedingEmbedding(ctx context.Context, limit int) ([]*entities.Product, error)

	// UpdateContentHash stores the hash the product's vector was computed
	// from back on the product row
	UpdateContentHash(ctx context.Context, productID, hash string) error

	// BestDiscounts retrieves the deepest active discounts for a city
	BestDiscounts(ctx context.Context, city string, limit int) ([]*entities.Product, error)
}
