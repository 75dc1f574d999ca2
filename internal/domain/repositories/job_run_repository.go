package repositories

import (
	"context"
	"time"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

// JobRunRepository defines the interface for the job run ledger
type JobRunRepository interface {
	// Create appends a new run row in running state
	Create(ctx context.Context, run *entities.JobRun) error

	// Update finalizes a run row with its terminal state and counters
	Update(ctx context.Context, run *entities.JobRun) error

	// GetLastRun retrieves the most recent run of a job, nil if the job
	// has never run
	GetLastRun(ctx context.Context, jobName string) (*entities.JobRun, error)

	// ListRecent retrieves recent runs of a job, newest first
	ListRecent(ctx context.Context, jobName string, limit int) ([]*entities.JobRun, error)

	// MarkStaleFailed flips running rows started before the cutoff to
	// failed and returns how many rows were touched
	MarkStaleFailed(ctx context.Context, startedBefore time.Time) (int, error)
}
