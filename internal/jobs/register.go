package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/application/services"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
)

// staleRunAge is how long a running ledger row may live before the sweep
// marks it failed
const staleRunAge = 24 * time.Hour

// Deps bundles everything the job table needs
type Deps struct {
	Scans         *services.ScanService
	Embeddings    *services.EmbeddingService
	Index         *services.IndexService
	Notifications *services.NotificationService
	Runs          repositories.JobRunRepository
	Clk           clock.Clock
}

// RegisterAll installs the full nightly job table. Weekly and
// re-engagement emails carry a calendar predicate in the body; the job
// still fires daily and completes as a no-op on off days, which keeps
// the once-per-day ledger gate uniform across jobs.
func RegisterAll(s *Scheduler, deps Deps) error {
	table := []Job{
		{
			Name: "stale_job_sweep",
			At:   "00:15",
			Run: func(ctx context.Context, force bool) (Counters, error) {
				swept, err := deps.Runs.MarkStaleFailed(ctx, deps.Clk.Now().Add(-staleRunAge))
				if err != nil {
					return Counters{}, err
				}
				if swept > 0 {
					log.Warn().Int("swept", swept).Msg("marked stale job runs failed")
				}
				return Counters{Processed: swept, Success: swept}, nil
			},
		},
		{
			Name: "embedding_refresh",
			At:   "02:00",
			Run: func(ctx context.Context, force bool) (Counters, error) {
				outcome, err := deps.Embeddings.RefreshStale(ctx)
				return Counters{Processed: outcome.Processed, Success: outcome.Succeeded, Failed: outcome.Failed}, err
			},
		},
		{
			Name: "product_reindex",
			At:   "03:00",
			Run: func(ctx context.Context, force bool) (Counters, error) {
				outcome, err := deps.Index.ReindexAll(ctx)
				return Counters{Processed: outcome.Processed, Success: outcome.Indexed, Failed: outcome.Failed}, err
			},
		},
		{
			Name: "product_scan",
			At:   "04:30",
			Run: func(ctx context.Context, force bool) (Counters, error) {
				outcome, err := deps.Scans.ScanAllUsers(ctx)
				return Counters{Processed: outcome.Processed, Success: outcome.Succeeded, Failed: outcome.Failed}, err
			},
		},
		{
			Name: "daily_scan_emails",
			At:   "07:00",
			Run: func(ctx context.Context, force bool) (Counters, error) {
				outcome, err := deps.Notifications.SendDailySummaries(ctx)
				return dispatchCounters(outcome), err
			},
		},
		{
			Name: "weekly_summary_emails",
			At:   "08:00",
			Run: func(ctx context.Context, force bool) (Counters, error) {
				if !force && deps.Clk.Now().Weekday() != time.Sunday {
					return Counters{}, nil
				}
				outcome, err := deps.Notifications.SendWeeklySummaries(ctx)
				return dispatchCounters(outcome), err
			},
		},
		{
			Name: "reengagement_emails",
			At:   "09:00",
			Run: func(ctx context.Context, force bool) (Counters, error) {
				if day := deps.Clk.Now().Day(); !force && day != 1 && day != 15 {
					return Counters{}, nil
				}
				outcome, err := deps.Notifications.SendReengagement(ctx)
				return dispatchCounters(outcome), err
			},
		},
	}

	for _, job := range table {
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}

func dispatchCounters(outcome services.DispatchOutcome) Counters {
	return Counters{
		Processed: outcome.Sent + outcome.Failed + outcome.Skipped,
		Success:   outcome.Sent,
		Failed:    outcome.Failed,
	}
}
