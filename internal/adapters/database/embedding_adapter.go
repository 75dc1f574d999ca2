package database

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/postgres"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

// EmbeddingAdapter implements EmbeddingRepository. Vectors are stored as
// float8[] and converted at the boundary.
type EmbeddingAdapter struct {
	conn *sql.DB
}

// NewEmbeddingAdapter creates a new embedding adapter
func NewEmbeddingAdapter(client *postgres.Client) repositories.EmbeddingRepository {
	return &EmbeddingAdapter{conn: client.DB()}
}

// Upsert inserts or replaces the embedding row for a product
func (a *EmbeddingAdapter) Upsert(ctx context.Context, embedding *entities.ProductEmbedding) error {
	query := `INSERT INTO product_embeddings
		(product_id, vector, embedding_text, model_version, content_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (product_id) DO UPDATE SET
			vector = EXCLUDED.vector,
			embedding_text = EXCLUDED.embedding_text,
			model_version = EXCLUDED.model_version,
			content_hash = EXCLUDED.content_hash,
			updated_at = NOW()`

	_, err := a.conn.ExecContext(ctx, query,
		embedding.ProductID,
		pq.Array(vectorToFloat64(embedding.Vector)),
		embedding.EmbeddingText,
		embedding.ModelVersion,
		embedding.ContentHash,
	)
	if err != nil {
		return apperrors.NewInternalError("failed to upsert embedding", err)
	}
	return nil
}

// GetByProductIDs retrieves embeddings for multiple products
func (a *EmbeddingAdapter) GetByProductIDs(ctx context.Context, productIDs []string) ([]*entities.ProductEmbedding, error) {
	if len(productIDs) == 0 {
		return []*entities.ProductEmbedding{}, nil
	}

	query := `SELECT product_id, vector, embedding_text, model_version, content_hash, updated_at
		FROM product_embeddings WHERE product_id = ANY($1)`

	rows, err := a.conn.QueryContext(ctx, query, pq.Array(productIDs))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query embeddings", err)
	}
	defer rows.Close()

	var embeddings []*entities.ProductEmbedding
	for rows.Next() {
		embedding := &entities.ProductEmbedding{}
		var vector pq.Float64Array

		err := rows.Scan(
			&embedding.ProductID,
			&vector,
			&embedding.EmbeddingText,
			&embedding.ModelVersion,
			&embedding.ContentHash,
			&embedding.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan embedding", err)
		}

		embedding.Vector = vectorToFloat32(vector)
		embeddings = append(embeddings, embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate embeddings", err)
	}
	return embeddings, nil
}

// DeleteByProductID removes the embedding row for a product
func (a *EmbeddingAdapter) DeleteByProductID(ctx context.Context, productID string) error {
	_, err := a.conn.ExecContext(ctx,
		"DELETE FROM product_embeddings WHERE product_id = $1", productID)
	if err != nil {
		return apperrors.NewInternalError("failed to delete embedding", err)
	}
	return nil
}

func vectorToFloat64(vector []float32) []float64 {
	out := make([]float64, len(vector))
	for i, v := range vector {
		out[i] = float64(v)
	}
	return out
}

func vectorToFloat32(vector []float64) []float32 {
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(v)
	}
	return out
}
