package providers

import (
	"context"
	"time"
)

// SearchQuery describes one semantic lookup for a tracked term
type SearchQuery struct {
	Term            string
	UserID          string
	TopK            int
	MinSimilarity   float64
	PreferredStores []string
	ContextWeight   float64
}

// ProductHit is one candidate product returned by semantic search, with
// the raw vector similarity and the context-adjusted combined score.
type ProductHit struct {
	ProductID       string
	Title           string
	StoreID         string
	StoreName       string
	BasePrice       float64
	DiscountPrice   *float64
	DiscountExpires *time.Time
	Similarity      float64
	ContextBonus    float64
	Combined        float64
}

// SemanticSearchProvider defines the interface for vector product search
type SemanticSearchProvider interface {
	// Search returns candidate products for a term, ordered by combined
	// score descending
	Search(ctx context.Context, query SearchQuery) ([]ProductHit, error)
}
