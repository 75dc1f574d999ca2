package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/postgres"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

var productColumns = []interface{}{
	"id", "title", "category", "city", "store_id", "store_name",
	"base_price", "discount_price", "discount_expires",
	"size", "brand", "product_type", "tags",
	"enriched_description", "content_hash", "created_at", "updated_at",
}

// ProductAdapter implements ProductRepository
type ProductAdapter struct {
	conn *sql.DB
	db   *goqu.Database
}

// NewProductAdapter creates a new product adapter
func NewProductAdapter(client *postgres.Client) repositories.ProductRepository {
	return &ProductAdapter{
		conn: client.DB(),
		db:   goqu.New("postgres", client.DB()),
	}
}

func scanProduct(rows interface {
	Scan(dest ...interface{}) error
}) (*entities.Product, error) {
	product := &entities.Product{}
	var category, size, brand, productType, enriched sql.NullString

	err := rows.Scan(
		&product.ID,
		&product.Title,
		&category,
		&product.City,
		&product.StoreID,
		&product.StoreName,
		&product.BasePrice,
		&product.DiscountPrice,
		&product.DiscountExpires,
		&size,
		&brand,
		&productType,
		pq.Array(&product.Tags),
		&enriched,
		&product.ContentHash,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	product.Category = category.String
	product.Size = size.String
	product.Brand = brand.String
	product.ProductType = productType.String
	product.EnrichedDescription = enriched.String
	return product, nil
}

// GetByID retrieves a product by ID
func (a *ProductAdapter) GetByID(ctx context.Context, id string) (*entities.Product, error) {
	query, args, err := a.db.Select(productColumns...).
		From("products").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	product, err := scanProduct(a.conn.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("product with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get product", err)
	}
	return product, nil
}

// GetByIDs retrieves multiple products by their IDs
func (a *ProductAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Product, error) {
	if len(ids) == 0 {
		return []*entities.Product{}, nil
	}

	query, args, err := a.db.Select(productColumns...).
		From("products").
		Where(goqu.Ex{"id": ids}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.queryProducts(ctx, query, args...)
}

// ListBatch retrieves products in stable ID order for bulk indexing
func (a *ProductAdapter) ListBatch(ctx context.Context, offset, limit int) ([]*entities.Product, error) {
	query, args, err := a.db.Select(productColumns...).
		From("products").
		Order(goqu.I("id").Asc()).
		Offset(uint(offset)).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.queryProducts(ctx, query, args...)
}

// ListNeedingEmbedding retrieves products whose embedding is missing or
// whose content hash no longer matches the stored vector's hash
func (a *ProductAdapter) ListNeedingEmbedding(ctx context.Context, limit int) ([]*entities.Product, error) {
	ds := a.db.Select(qualifyColumns("p", productColumns)...).
		From(goqu.T("products").As("p")).
		LeftJoin(
			goqu.T("product_embeddings").As("e"),
			goqu.On(goqu.Ex{"e.product_id": goqu.I("p.id")}),
		).
		Where(goqu.Or(
			goqu.I("e.product_id").IsNull(),
			goqu.I("e.content_hash").IsNull(),
			goqu.L("e.content_hash <> p.content_hash"),
		)).
		Order(goqu.I("p.updated_at").Asc())

	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.queryProducts(ctx, query, args...)
}

// UpdateContentHash stores the hash the product's vector was computed
// from back on the product row
func (a *ProductAdapter) UpdateContentHash(ctx context.Context, productID, hash string) error {
	query, args, err := a.db.Update("products").
		Set(goqu.Record{"content_hash": hash}).
		Where(goqu.Ex{"id": productID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build query", err)
	}

	result, err := a.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update content hash", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("product with id %s not found", productID))
	}
	return nil
}

// BestDiscounts retrieves the deepest active discounts for a city
func (a *ProductAdapter) BestDiscounts(ctx context.Context, city string, limit int) ([]*entities.Product, error) {
	ds := a.db.Select(productColumns...).
		From("products").
		Where(
			goqu.I("discount_price").IsNotNull(),
			goqu.L("discount_price < base_price"),
			goqu.Or(
				goqu.I("discount_expires").IsNull(),
				goqu.L("discount_expires >= CURRENT_DATE"),
			),
		).
		Order(goqu.L("(base_price - discount_price) / base_price").Desc())

	if city != "" {
		ds = ds.Where(goqu.Ex{"city": city})
	}
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.queryProducts(ctx, query, args...)
}

func (a *ProductAdapter) queryProducts(ctx context.Context, query string, args ...interface{}) ([]*entities.Product, error) {
	rows, err := a.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query products", err)
	}
	defer rows.Close()

	var products []*entities.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan product", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate products", err)
	}
	return products, nil
}

func qualifyColumns(alias string, columns []interface{}) []interface{} {
	qualified := make([]interface{}, len(columns))
	for i, col := range columns {
		qualified[i] = goqu.I(fmt.Sprintf("%s.%s", alias, col))
	}
	return qualified
}
