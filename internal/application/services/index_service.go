package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/providers"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
)

// reindexPageSize is how many products one reindex page loads
const reindexPageSize = 200

// IndexOutcome summarizes one reindex pass for the job ledger
type IndexOutcome struct {
	Processed int
	Indexed   int
	Skipped   int
	Failed    int
}

// IndexService pushes products and their embedding vectors into the
// search index. Products without a vector are skipped; the embedding
// refresh job will produce their vector and the next reindex picks them
// up.
type IndexService struct {
	products   repositories.ProductRepository
	embeddings repositories.EmbeddingRepository
	indexer    providers.ProductIndexer
}

// NewIndexService creates a new index service
func NewIndexService(
	products repositories.ProductRepository,
	embeddings repositories.EmbeddingRepository,
	indexer providers.ProductIndexer,
) *IndexService {
	return &IndexService{products: products, embeddings: embeddings, indexer: indexer}
}

// ReindexAll walks the product table in stable ID order and upserts every
// product that has an embedding into the search index
func (s *IndexService) ReindexAll(ctx context.Context) (IndexOutcome, error) {
	outcome := IndexOutcome{}

	for offset := 0; ; offset += reindexPageSize {
		batch, err := s.products.ListBatch(ctx, offset, reindexPageSize)
		if err != nil {
			return outcome, err
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]string, 0, len(batch))
		for _, product := range batch {
			ids = append(ids, product.ID)
		}
		vectors, err := s.embeddings.GetByProductIDs(ctx, ids)
		if err != nil {
			return outcome, err
		}
		byProduct := make(map[string]*entities.ProductEmbedding, len(vectors))
		for _, embedding := range vectors {
			byProduct[embedding.ProductID] = embedding
		}

		for _, product := range batch {
			if err := ctx.Err(); err != nil {
				return outcome, err
			}

			outcome.Processed++
			embedding, ok := byProduct[product.ID]
			if !ok {
				outcome.Skipped++
				continue
			}

			document := buildProductDocument(product, embedding.Vector)
			if err := s.indexer.IndexProduct(ctx, document); err != nil {
				outcome.Failed++
				log.Error().Err(err).Str("product_id", product.ID).Msg("product index failed")
				continue
			}
			outcome.Indexed++
		}

		if len(batch) < reindexPageSize {
			break
		}
	}

	log.Info().
		Int("processed", outcome.Processed).
		Int("indexed", outcome.Indexed).
		Int("skipped", outcome.Skipped).
		Int("failed", outcome.Failed).
		Msg("product reindex pass finished")
	return outcome, nil
}

// buildProductDocument shapes a product and its vector into the search
// index document layout
func buildProductDocument(product *entities.Product, vector []float32) map[string]interface{} {
	document := map[string]interface{}{
		"id":         product.ID,
		"title":      product.Title,
		"category":   product.Category,
		"city":       product.City,
		"store_id":   product.StoreID,
		"store_name": product.StoreName,
		"base_price": product.BasePrice,
		"embedding":  vector,
		"updated_at": product.UpdatedAt.Unix(),
	}
	if product.DiscountPrice != nil {
		document["discount_price"] = *product.DiscountPrice
	}
	if product.DiscountExpires != nil {
		document["discount_expires"] = product.DiscountExpires.Unix()
	}
	if len(product.Tags) > 0 {
		document["tags"] = product.Tags
	}
	return document
}
