package jobs

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/observability"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
)

// Counters carries the record counts a job reports on completion
type Counters struct {
	Processed int
	Success   int
	Failed    int
}

// RunHandle tracks one job execution in the persistent run ledger. A
// handle transitions exactly once, to Complete or Fail; later calls are
// no-ops.
type RunHandle struct {
	run     *entities.JobRun
	runs    repositories.JobRunRepository
	clk     clock.Clock
	metrics *observability.Metrics
	done    bool
}

// StartRun appends a running ledger row for the named job
func StartRun(
	ctx context.Context,
	runs repositories.JobRunRepository,
	clk clock.Clock,
	metrics *observability.Metrics,
	jobName string,
) (*RunHandle, error) {
	run := &entities.JobRun{
		ID:        uuid.New().String(),
		JobName:   jobName,
		StartedAt: clk.Now(),
		Status:    entities.JobRunStatusRunning,
	}
	if err := runs.Create(ctx, run); err != nil {
		return nil, err
	}
	return &RunHandle{run: run, runs: runs, clk: clk, metrics: metrics}, nil
}

// Complete finalizes the run as completed with its counters
func (h *RunHandle) Complete(ctx context.Context, counters Counters) {
	h.finish(ctx, entities.JobRunStatusCompleted, counters, nil)
}

// Fail finalizes the run as failed, recording the error message
func (h *RunHandle) Fail(ctx context.Context, counters Counters, jobErr error) {
	var msg *string
	if jobErr != nil {
		s := jobErr.Error()
		msg = &s
	}
	h.finish(ctx, entities.JobRunStatusFailed, counters, msg)
}

func (h *RunHandle) finish(ctx context.Context, status entities.JobRunStatus, counters Counters, errMsg *string) {
	if h.done {
		return
	}
	h.done = true

	now := h.clk.Now()
	duration := now.Sub(h.run.StartedAt)
	seconds := duration.Seconds()

	h.run.Status = status
	h.run.CompletedAt = &now
	h.run.RecordsProcessed = counters.Processed
	h.run.RecordsSuccess = counters.Success
	h.run.RecordsFailed = counters.Failed
	h.run.ErrorMessage = errMsg
	h.run.DurationSeconds = &seconds

	if err := h.runs.Update(ctx, h.run); err != nil {
		log.Error().Err(err).
			Str("job_name", h.run.JobName).
			Str("run_id", h.run.ID).
			Msg("failed to finalize job run")
	}

	observability.RecordJobRunMetric(ctx, h.metrics, h.run.JobName, string(status), duration)
}
