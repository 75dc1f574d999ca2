package providers

import "context"

// ProductIndexer defines the interface for maintaining the search index
type ProductIndexer interface {
	// IndexProduct upserts one product document into the index
	IndexProduct(ctx context.Context, document map[string]interface{}) error

	// DeleteProduct removes a product document from the index
	DeleteProduct(ctx context.Context, productID string) error
}
