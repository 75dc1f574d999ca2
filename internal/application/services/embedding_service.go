package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/providers"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
)

// RefreshOutcome summarizes one embedding refresh pass for the job ledger
type RefreshOutcome struct {
	Processed int
	Succeeded int
	Failed    int
}

// EmbeddingService keeps product embeddings in sync with product content.
// A product needs a refresh when it has no embedding row or its content
// hash no longer matches the hash the vector was computed from.
type EmbeddingService struct {
	products   repositories.ProductRepository
	embeddings repositories.EmbeddingRepository
	embedder   providers.EmbeddingProvider
	clk        clock.Clock
	cfg        config.EmbeddingsConfig
}

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(
	products repositories.ProductRepository,
	embeddings repositories.EmbeddingRepository,
	embedder providers.EmbeddingProvider,
	clk clock.Clock,
	cfg config.EmbeddingsConfig,
) *EmbeddingService {
	return &EmbeddingService{
		products:   products,
		embeddings: embeddings,
		embedder:   embedder,
		clk:        clk,
		cfg:        cfg,
	}
}

// RefreshStale re-embeds every product with a missing or stale embedding,
// in batches. A product that fails is counted and skipped; it will be
// picked up again on the next run. Returns a no-op outcome when nothing
// is stale.
func (s *EmbeddingService) RefreshStale(ctx context.Context) (RefreshOutcome, error) {
	outcome := RefreshOutcome{}
	attempted := make(map[string]struct{})

	for {
		batch, err := s.products.ListNeedingEmbedding(ctx, s.cfg.BatchSize)
		if err != nil {
			return outcome, err
		}

		progressed := false
		for _, product := range batch {
			if _, seen := attempted[product.ID]; seen {
				continue
			}
			attempted[product.ID] = struct{}{}
			progressed = true

			outcome.Processed++
			if err := s.refreshProduct(ctx, product); err != nil {
				if ctx.Err() != nil {
					return outcome, ctx.Err()
				}
				outcome.Failed++
				log.Error().Err(err).Str("product_id", product.ID).Msg("embedding refresh failed")
				continue
			}
			outcome.Succeeded++
		}

		// Failed products come back in the next fetch; stop once a
		// fetch yields nothing new
		if len(batch) < s.cfg.BatchSize || !progressed {
			break
		}
	}

	if outcome.Processed > 0 {
		log.Info().
			Int("processed", outcome.Processed).
			Int("succeeded", outcome.Succeeded).
			Int("failed", outcome.Failed).
			Msg("embedding refresh pass finished")
	}
	return outcome, nil
}

// RefreshByIDs re-embeds an explicit set of products regardless of
// staleness
func (s *EmbeddingService) RefreshByIDs(ctx context.Context, ids []string) (RefreshOutcome, error) {
	outcome := RefreshOutcome{}

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return outcome, err
	}

	for _, product := range products {
		outcome.Processed++
		if err := s.refreshProduct(ctx, product); err != nil {
			if ctx.Err() != nil {
				return outcome, ctx.Err()
			}
			outcome.Failed++
			log.Error().Err(err).Str("product_id", product.ID).Msg("embedding refresh failed")
			continue
		}
		outcome.Succeeded++
	}
	return outcome, nil
}

// RebuildAll re-embeds the entire catalog, fresh or not. Meant for model
// version changes.
func (s *EmbeddingService) RebuildAll(ctx context.Context) (RefreshOutcome, error) {
	outcome := RefreshOutcome{}

	for offset := 0; ; offset += s.cfg.BatchSize {
		batch, err := s.products.ListBatch(ctx, offset, s.cfg.BatchSize)
		if err != nil {
			return outcome, err
		}
		if len(batch) == 0 {
			break
		}

		for _, product := range batch {
			outcome.Processed++
			if err := s.refreshProduct(ctx, product); err != nil {
				if ctx.Err() != nil {
					return outcome, ctx.Err()
				}
				outcome.Failed++
				log.Error().Err(err).Str("product_id", product.ID).Msg("embedding rebuild failed")
				continue
			}
			outcome.Succeeded++
		}

		if len(batch) < s.cfg.BatchSize {
			break
		}
	}
	return outcome, nil
}

func (s *EmbeddingService) refreshProduct(ctx context.Context, product *entities.Product) error {
	text := BuildEmbeddingText(product)
	hash := ContentHash(text)

	vector, err := s.embedWithRetry(ctx, text)
	if err != nil {
		return err
	}

	if err := s.embeddings.Upsert(ctx, &entities.ProductEmbedding{
		ProductID:     product.ID,
		Vector:        vector,
		EmbeddingText: text,
		ModelVersion:  s.embedder.ModelVersion(),
		ContentHash:   hash,
		UpdatedAt:     s.clk.Now(),
	}); err != nil {
		return err
	}

	// Keep the product row's hash aligned with the vector so the next
	// staleness pass does not re-embed an unchanged product
	if product.ContentHash != hash {
		if err := s.products.UpdateContentHash(ctx, product.ID, hash); err != nil {
			return err
		}
		product.ContentHash = hash
	}
	return nil
}

// embedWithRetry calls the embedding provider with a retry policy chosen
// by error class: rate limits back off exponentially, connection errors
// retry at a constant interval, hard API errors never retry.
func (s *EmbeddingService) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var policy backoff.BackOff
	attempts := 0

	for {
		vector, err := s.embedder.Embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		if errors.Is(err, providers.ErrHardAPI) || ctx.Err() != nil {
			return nil, err
		}

		attempts++
		if attempts > s.cfg.MaxRetries {
			return nil, err
		}

		if policy == nil {
			policy = retryPolicy(err)
		}
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return nil, err
		}
		s.clk.Sleep(ctx, wait)
	}
}

func retryPolicy(err error) backoff.BackOff {
	if errors.Is(err, providers.ErrRateLimited) {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = time.Second
		policy.MaxInterval = 30 * time.Second
		return policy
	}
	return backoff.NewConstantBackOff(2 * time.Second)
}

// BuildEmbeddingText assembles the text a product's vector is computed
// from. Field order is fixed so the same product always yields the same
// text.
func BuildEmbeddingText(product *entities.Product) string {
	parts := make([]string, 0, 8)
	appendPart := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	appendPart(product.Title)
	appendPart(product.Brand)
	appendPart(product.ProductType)
	appendPart(product.Category)
	appendPart(product.Size)
	if product.BasePrice > 0 {
		appendPart(fmt.Sprintf("%.2f KM", product.BasePrice))
	}
	if product.DiscountPrice != nil {
		appendPart(fmt.Sprintf("akcija %.2f KM", *product.DiscountPrice))
	}

	// Tags are stored in arbitrary order; sorting keeps the text and
	// therefore the content hash stable
	tags := append([]string(nil), product.Tags...)
	sort.Strings(tags)
	appendPart(strings.Join(tags, " "))
	appendPart(product.EnrichedDescription)
	appendPart(product.StoreName)
	appendPart(product.City)

	return strings.Join(parts, ". ")
}

// ContentHash computes the SHA256 hex digest of an embedding text
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
