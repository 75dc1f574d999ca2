package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/adapters/database"
	"github.com/asabanovic/ai-market-v2-sub000/internal/application/services"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/openai"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/postgres"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/typesense"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/observability"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/secrets"
)

func main() {
	var reset, rebuild bool
	var intervalFlag string
	flag.BoolVar(&reset, "reset", false, "delete the existing Typesense collection before reindexing")
	flag.BoolVar(&rebuild, "rebuild-embeddings", false, "re-embed the whole catalog before reindexing (for model changes)")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.Parse()

	observability.InitLogger("indexer", os.Getenv("APP_ENV"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vaultResult, err := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv(""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load secrets from vault")
	}
	if vaultResult.Enabled {
		log.Info().Str("path", vaultResult.Path).Int("loaded", vaultResult.Loaded).Msg("vault secrets applied")
	}

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}

	var interval time.Duration
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			log.Fatal().Str("interval", intervalValue).Msg("invalid reindex interval")
		}
	}

	for {
		if err := indexOnce(ctx, reset, rebuild); err != nil {
			log.Error().Err(err).Msg("reindex failed")
		}

		if interval <= 0 {
			break
		}

		reset = false
		rebuild = false
		log.Info().Dur("next_run_in", interval).Msg("reindex complete")

		select {
		case <-ctx.Done():
			log.Info().Msg("indexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, reset, rebuild bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		return err
	}

	if reset || os.Getenv("RESET_TYPESENSE") == "true" {
		log.Info().Str("collection", typesense.ProductsCollection).Msg("deleting Typesense collection before reindex")
		if _, err := tsClient.Client().Collection(typesense.ProductsCollection).Delete(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to delete collection")
		}
	}

	if err := tsClient.InitSchema(ctx); err != nil {
		return err
	}

	productRepo := database.NewProductAdapter(pgClient)
	embeddingRepo := database.NewEmbeddingAdapter(pgClient)

	if rebuild {
		openaiClient, err := openai.NewClient(&cfg.OpenAI)
		if err != nil {
			return err
		}
		embeddingSvc := services.NewEmbeddingService(
			productRepo, embeddingRepo, openaiClient, clock.NewSystemClock(), cfg.Embeddings)
		outcome, err := embeddingSvc.RebuildAll(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Int("succeeded", outcome.Succeeded).
			Int("failed", outcome.Failed).
			Msg("embedding rebuild complete")
	}

	indexSvc := services.NewIndexService(productRepo, embeddingRepo, tsClient)

	outcome, err := indexSvc.ReindexAll(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Int("indexed", outcome.Indexed).
		Int("skipped", outcome.Skipped).
		Int("failed", outcome.Failed).
		Msg("indexing complete")
	return nil
}
