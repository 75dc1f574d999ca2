package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/postgres"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

const jobRunColumns = `id, job_name, started_at, completed_at, status,
	records_processed, records_success, records_failed, error_message, duration_seconds`

// JobRunAdapter implements JobRunRepository
type JobRunAdapter struct {
	conn *sql.DB
}

// NewJobRunAdapter creates a new job run adapter
func NewJobRunAdapter(client *postgres.Client) repositories.JobRunRepository {
	return &JobRunAdapter{conn: client.DB()}
}

func scanJobRun(row interface {
	Scan(dest ...interface{}) error
}) (*entities.JobRun, error) {
	run := &entities.JobRun{}
	err := row.Scan(
		&run.ID,
		&run.JobName,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Status,
		&run.RecordsProcessed,
		&run.RecordsSuccess,
		&run.RecordsFailed,
		&run.ErrorMessage,
		&run.DurationSeconds,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Create appends a new run row in running state
func (a *JobRunAdapter) Create(ctx context.Context, run *entities.JobRun) error {
	query := `INSERT INTO job_runs
		(id, job_name, started_at, status, records_processed, records_success, records_failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := a.conn.ExecContext(ctx, query,
		run.ID,
		run.JobName,
		run.StartedAt,
		run.Status,
		run.RecordsProcessed,
		run.RecordsSuccess,
		run.RecordsFailed,
	)
	if err != nil {
		return apperrors.NewInternalError("failed to create job run", err)
	}
	return nil
}

// Update finalizes a run row with its terminal state and counters
func (a *JobRunAdapter) Update(ctx context.Context, run *entities.JobRun) error {
	query := `UPDATE job_runs SET
		completed_at = $2, status = $3, records_processed = $4,
		records_success = $5, records_failed = $6, error_message = $7,
		duration_seconds = $8
		WHERE id = $1`

	result, err := a.conn.ExecContext(ctx, query,
		run.ID,
		run.CompletedAt,
		run.Status,
		run.RecordsProcessed,
		run.RecordsSuccess,
		run.RecordsFailed,
		run.ErrorMessage,
		run.DurationSeconds,
	)
	if err != nil {
		return apperrors.NewInternalError("failed to update job run", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError("job run not found")
	}
	return nil
}

// GetLastRun retrieves the most recent run of a job, nil if the job has
// never run
func (a *JobRunAdapter) GetLastRun(ctx context.Context, jobName string) (*entities.JobRun, error) {
	query := `SELECT ` + jobRunColumns + `
		FROM job_runs WHERE job_name = $1
		ORDER BY started_at DESC LIMIT 1`

	run, err := scanJobRun(a.conn.QueryRowContext(ctx, query, jobName))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get last job run", err)
	}
	return run, nil
}

// ListRecent retrieves recent runs of a job, newest first
func (a *JobRunAdapter) ListRecent(ctx context.Context, jobName string, limit int) ([]*entities.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + jobRunColumns + `
		FROM job_runs WHERE job_name = $1
		ORDER BY started_at DESC LIMIT $2`

	rows, err := a.conn.QueryContext(ctx, query, jobName, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list job runs", err)
	}
	defer rows.Close()

	var runs []*entities.JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan job run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate job runs", err)
	}
	return runs, nil
}

// MarkStaleFailed flips running rows started before the cutoff to failed
func (a *JobRunAdapter) MarkStaleFailed(ctx context.Context, startedBefore time.Time) (int, error) {
	query := `UPDATE job_runs SET
		status = $1, completed_at = NOW(),
		error_message = 'marked failed by stale job sweep'
		WHERE status = $2 AND started_at < $3`

	result, err := a.conn.ExecContext(ctx, query,
		entities.JobRunStatusFailed,
		entities.JobRunStatusRunning,
		startedBefore,
	)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to mark stale job runs", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to get rows affected", err)
	}
	return int(rowsAffected), nil
}
