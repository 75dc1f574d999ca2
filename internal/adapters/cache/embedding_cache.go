package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/providers"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/observability"
)

// embeddingCacheTTL is one day; query terms are stable and the vectors
// are cheap to recompute after expiry
const embeddingCacheTTL = 24 * 60 * 60

// CachedEmbedder decorates an embedding provider with a cache keyed by
// model version and text. During a scan pass many users share search
// terms, so caching saves most embedding calls.
type CachedEmbedder struct {
	inner   providers.EmbeddingProvider
	cache   providers.CacheProvider
	metrics *observability.Metrics
}

// NewCachedEmbedder wraps an embedding provider with a cache
func NewCachedEmbedder(inner providers.EmbeddingProvider, cache providers.CacheProvider, metrics *observability.Metrics) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, metrics: metrics}
}

// Embed returns the cached vector for the text, or embeds and caches it
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)

	if cached, err := e.cache.Get(ctx, key); err == nil && cached != nil {
		var vector []float32
		if err := json.Unmarshal(cached, &vector); err == nil && len(vector) > 0 {
			observability.RecordCacheHit(ctx, e.metrics, "embedding")
			return vector, nil
		}
	}
	observability.RecordCacheMiss(ctx, e.metrics, "embedding")

	vector, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(vector); err == nil {
		if err := e.cache.Set(ctx, key, encoded, embeddingCacheTTL); err != nil {
			log.Warn().Err(err).Msg("failed to cache embedding")
		}
	}
	return vector, nil
}

// ModelVersion returns the wrapped provider's model identifier
func (e *CachedEmbedder) ModelVersion() string {
	return e.inner.ModelVersion()
}

func (e *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.inner.ModelVersion() + "|" + text))
	return "embedding:" + hex.EncodeToString(sum[:])
}
