package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/adapters/cache"
	"github.com/asabanovic/ai-market-v2-sub000/internal/adapters/database"
	"github.com/asabanovic/ai-market-v2-sub000/internal/adapters/events"
	"github.com/asabanovic/ai-market-v2-sub000/internal/adapters/search"
	"github.com/asabanovic/ai-market-v2-sub000/internal/application/services"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/openai"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/postgres"
	redisclient "github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/redis"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/typesense"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/notifications"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/observability"
	"github.com/asabanovic/ai-market-v2-sub000/internal/jobs"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/secrets"
)

func main() {
	observability.InitLogger("scheduler", os.Getenv("APP_ENV"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vaultResult, err := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv(""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load secrets from vault")
	}
	if vaultResult.Enabled {
		log.Info().Str("path", vaultResult.Path).Int("loaded", vaultResult.Loaded).Msg("vault secrets applied")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	var metrics *observability.Metrics
	if cfg.OTEL.Enabled {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up telemetry")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("telemetry shutdown failed")
			}
		}()

		metrics, err = observability.InitMetrics()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init metrics")
		}
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pgClient.Close()

	redisClient, err := redisclient.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to typesense")
	}
	if err := tsClient.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init typesense schema")
	}

	openaiClient, err := openai.NewClient(&cfg.OpenAI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create openai client")
	}

	mailSender, err := notifications.NewEmailSender(&cfg.Mail)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create mail sender")
	}

	userRepo := database.NewUserAdapter(pgClient)
	termRepo := database.NewTrackedTermAdapter(pgClient)
	productRepo := database.NewProductAdapter(pgClient)
	embeddingRepo := database.NewEmbeddingAdapter(pgClient)
	scanRepo := database.NewScanAdapter(pgClient)
	jobRunRepo := database.NewJobRunAdapter(pgClient)
	emailRepo := database.NewEmailNotificationAdapter(pgClient)

	cacheProvider := cache.NewRedisAdapter(redisClient)
	eventBus := events.NewRedisEventBus(redisClient)
	embedder := cache.NewCachedEmbedder(openaiClient, cacheProvider, metrics)
	searchProvider := search.NewTypesenseAdapter(tsClient, embedder, cacheProvider)

	clk := clock.NewSystemClock()
	prefSvc := services.NewPreferenceService(termRepo, openaiClient)
	scanSvc := services.NewScanService(userRepo, scanRepo, prefSvc, searchProvider, eventBus, clk, cfg.Scan)
	embeddingSvc := services.NewEmbeddingService(productRepo, embeddingRepo, embedder, clk, cfg.Embeddings)
	indexSvc := services.NewIndexService(productRepo, embeddingRepo, tsClient)
	notifSvc := services.NewNotificationService(userRepo, scanRepo, productRepo, emailRepo, mailSender, clk, cfg.Scan)
	streakSvc := services.NewStreakService(sqlx.NewDb(pgClient.DB(), "postgres"), notifSvc, clk, cfg.Streak)

	scheduler := jobs.NewScheduler(jobRunRepo, clk, metrics, cfg.Scheduler)
	if err := jobs.RegisterAll(scheduler, jobs.Deps{
		Scans:         scanSvc,
		Embeddings:    embeddingSvc,
		Index:         indexSvc,
		Notifications: notifSvc,
		Runs:          jobRunRepo,
		Clk:           clk,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register jobs")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: adminMux(scheduler, streakSvc),
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("admin server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin server failed")
			stop()
		}
	}()

	go scheduler.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("admin server shutdown failed")
	}
}

func adminMux(scheduler *jobs.Scheduler, streaks *services.StreakService) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/jobs/status", func(w http.ResponseWriter, r *http.Request) {
		statuses, err := scheduler.Status(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statuses)
	})

	mux.HandleFunc("/jobs/history", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
			return
		}
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		runs, err := scheduler.History(r.Context(), name, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	mux.HandleFunc("/jobs/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
			return
		}
		if err := scheduler.Trigger(r.Context(), name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "job": name})
	})

	mux.HandleFunc("/visits", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
			return
		}
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
			return
		}
		update, err := streaks.RecordVisit(r.Context(), body.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, update)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.IsConflict(err):
		status = http.StatusConflict
	case apperrors.IsValidation(err):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
