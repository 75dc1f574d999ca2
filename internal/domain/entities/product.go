package entities

import "time"

// Product represents a marketplace product. Products are owned by the API
// layer; the core reads them for search, diffing, and embedding refresh.
type Product struct {
	ID                  string     `json:"id" db:"id"`
	Title               string     `json:"title" db:"title"`
	Category            string     `json:"category" db:"category"`
	City                string     `json:"city" db:"city"`
	StoreID             string     `json:"store_id" db:"store_id"`
	StoreName           string     `json:"store_name" db:"store_name"`
	BasePrice           float64    `json:"base_price" db:"base_price"`
	DiscountPrice       *float64   `json:"discount_price,omitempty" db:"discount_price"`
	DiscountExpires     *time.Time `json:"discount_expires,omitempty" db:"discount_expires"`
	Size                string     `json:"size" db:"size"`
	Brand               string     `json:"brand" db:"brand"`
	ProductType         string     `json:"product_type" db:"product_type"`
	Tags                []string   `json:"tags"`
	EnrichedDescription string     `json:"enriched_description" db:"enriched_description"`
	ContentHash         string     `json:"content_hash" db:"content_hash"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// ActiveDiscount returns the discount price if it has not expired as of
// today. A discount whose expiry date is before today counts as absent:
// the product is treated as a regular product.
func (p *Product) ActiveDiscount(today time.Time) *float64 {
	if p.DiscountPrice == nil {
		return nil
	}
	if p.DiscountExpires != nil && p.DiscountExpires.Before(today) {
		return nil
	}
	return p.DiscountPrice
}

// EffectivePrice returns the discount price when an unexpired discount
// exists, otherwise the base price.
func (p *Product) EffectivePrice(today time.Time) float64 {
	if d := p.ActiveDiscount(today); d != nil {
		return *d
	}
	return p.BasePrice
}

// ProductEmbedding holds the semantic vector of a product, 1-to-1 with the
// product row. The embedding is fresh iff its content hash matches the
// product's current content hash.
type ProductEmbedding struct {
	ProductID     string    `json:"product_id" db:"product_id"`
	Vector        []float32 `json:"vector"`
	EmbeddingText string    `json:"embedding_text" db:"embedding_text"`
	ModelVersion  string    `json:"model_version" db:"model_version"`
	ContentHash   string    `json:"content_hash" db:"content_hash"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
