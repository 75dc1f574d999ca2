package repositories

import (
	"context"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

// EmbeddingRepository defines the interface for product embedding storage
type EmbeddingRepository interface {
	// Upsert inserts or replaces the embedding row for a product
	Upsert(ctx context.Context, embedding *entities.ProductEmbedding) error

	// GetByProductIDs retrieves embeddings for multiple products
	GetByProductIDs(ctx context.Context, productIDs []string) ([]*entities.ProductEmbedding, error)

	// DeleteByProductID removes the embedding row for a product
	DeleteByProductID(ctx context.Context, productID string) error
}
