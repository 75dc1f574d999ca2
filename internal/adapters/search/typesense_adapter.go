package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/providers"
	tsclient "github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/typesense"
)

// favoritesKeyPrefix is where the web app caches each user's favorited
// product ids as a JSON string array
const favoritesKeyPrefix = "favorites:"

// TypesenseAdapter implements semantic product search using Typesense
// vector queries. The tracked term is embedded, the nearest products are
// fetched restricted to the user's preferred stores, and a context bonus
// is applied for products the user has favorited.
type TypesenseAdapter struct {
	client   *tsclient.Client
	embedder providers.EmbeddingProvider
	cache    providers.CacheProvider
}

// Ensure TypesenseAdapter implements SemanticSearchProvider
var _ providers.SemanticSearchProvider = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense search adapter. The cache
// is optional; without it no favorites bonus is applied.
func NewTypesenseAdapter(client *tsclient.Client, embedder providers.EmbeddingProvider, cache providers.CacheProvider) *TypesenseAdapter {
	return &TypesenseAdapter{client: client, embedder: embedder, cache: cache}
}

// Search returns candidate products for a term, ordered by combined score
// descending. Hits below the raw similarity floor are dropped before the
// context bonus is applied.
func (a *TypesenseAdapter) Search(ctx context.Context, query providers.SearchQuery) ([]providers.ProductHit, error) {
	vector, err := a.embedder.Embed(ctx, query.Term)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search term: %w", err)
	}

	topK := query.TopK
	if topK <= 0 {
		topK = 10
	}

	searchParams := &api.SearchCollectionParams{
		Q:           pointer.String("*"),
		QueryBy:     pointer.String("title"),
		VectorQuery: pointer.String(buildVectorQuery(vector, topK)),
		PerPage:     pointer.Int(topK),
	}
	if filter := storeFilter(query.PreferredStores); filter != "" {
		searchParams.FilterBy = pointer.String(filter)
	}

	result, err := a.client.Client().Collection(tsclient.ProductsCollection).Documents().Search(ctx, searchParams)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}

	var hits []providers.ProductHit
	if result.Hits == nil {
		return hits, nil
	}

	favorites := a.favorites(ctx, query.UserID)

	for _, rawHit := range *result.Hits {
		if rawHit.Document == nil {
			continue
		}

		hit, ok := parseHit(*rawHit.Document, rawHit.VectorDistance)
		if !ok {
			continue
		}
		if hit.Similarity < query.MinSimilarity {
			continue
		}

		hit.ContextBonus = contextBonus(hit, favorites, query.ContextWeight)
		hit.Combined = hit.Similarity + hit.ContextBonus
		if hit.Combined > 1.0 {
			hit.Combined = 1.0
		}

		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Combined > hits[j].Combined
	})

	return hits, nil
}

// favorites loads the user's favorited product ids from the cache. A miss
// or a stale payload just means no bonus.
func (a *TypesenseAdapter) favorites(ctx context.Context, userID string) map[string]struct{} {
	if a.cache == nil || userID == "" {
		return nil
	}
	raw, err := a.cache.Get(ctx, favoritesKeyPrefix+userID)
	if err != nil {
		return nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// storeFilter renders the Typesense filter restricting hits to the
// user's preferred stores. Empty preferences mean no restriction.
func storeFilter(stores []string) string {
	trimmed := make([]string, 0, len(stores))
	for _, store := range stores {
		if s := strings.TrimSpace(store); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return ""
	}
	return "store_name:=[" + strings.Join(trimmed, ", ") + "]"
}

// buildVectorQuery renders the Typesense vector query expression
func buildVectorQuery(vector []float32, k int) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("embedding:([%s], k:%d)", strings.Join(parts, ","), k)
}

// parseHit converts a Typesense document into a product hit. The vector
// distance is cosine distance, so similarity is its complement.
func parseHit(doc map[string]interface{}, distance *float32) (providers.ProductHit, bool) {
	id, ok := doc["id"].(string)
	if !ok || id == "" {
		return providers.ProductHit{}, false
	}

	hit := providers.ProductHit{ProductID: id}
	if title, ok := doc["title"].(string); ok {
		hit.Title = title
	}
	if storeID, ok := doc["store_id"].(string); ok {
		hit.StoreID = storeID
	}
	if storeName, ok := doc["store_name"].(string); ok {
		hit.StoreName = storeName
	}
	if basePrice, ok := doc["base_price"].(float64); ok {
		hit.BasePrice = basePrice
	}
	if discountPrice, ok := doc["discount_price"].(float64); ok {
		hit.DiscountPrice = &discountPrice
	}
	if expires, ok := doc["discount_expires"].(float64); ok && expires > 0 {
		t := time.Unix(int64(expires), 0).UTC()
		hit.DiscountExpires = &t
	}

	if distance != nil {
		hit.Similarity = 1 - float64(*distance)
		if hit.Similarity < 0 {
			hit.Similarity = 0
		}
	}

	return hit, true
}

// contextBonus rewards products the user has favorited, capped at the
// configured context weight
func contextBonus(hit providers.ProductHit, favorites map[string]struct{}, weight float64) float64 {
	if weight <= 0 || len(favorites) == 0 {
		return 0
	}
	if _, ok := favorites[hit.ProductID]; ok {
		return weight
	}
	return 0
}
