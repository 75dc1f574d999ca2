package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

func TestJobRunAdapter_GetLastRun_NeverRan(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery("SELECT (.+) FROM job_runs WHERE job_name").
		WithArgs("product_scan").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	adapter := &JobRunAdapter{conn: mockDB}
	run, err := adapter.GetLastRun(context.Background(), "product_scan")
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRunAdapter_GetLastRun_ReturnsNewest(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	started := time.Date(2026, 3, 1, 4, 30, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)
	duration := 90.0

	rows := sqlmock.NewRows([]string{
		"id", "job_name", "started_at", "completed_at", "status",
		"records_processed", "records_success", "records_failed",
		"error_message", "duration_seconds",
	}).AddRow("run-1", "product_scan", started, completed, "completed", 12, 11, 1, nil, duration)

	mock.ExpectQuery("SELECT (.+) FROM job_runs WHERE job_name").
		WithArgs("product_scan").
		WillReturnRows(rows)

	adapter := &JobRunAdapter{conn: mockDB}
	run, err := adapter.GetLastRun(context.Background(), "product_scan")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, entities.JobRunStatusCompleted, run.Status)
	assert.Equal(t, 12, run.RecordsProcessed)
	require.NotNil(t, run.DurationSeconds)
	assert.Equal(t, 90.0, *run.DurationSeconds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRunAdapter_MarkStaleFailed(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	cutoff := time.Date(2026, 3, 1, 0, 15, 0, 0, time.UTC).Add(-24 * time.Hour)

	mock.ExpectExec("UPDATE job_runs SET").
		WithArgs(string(entities.JobRunStatusFailed), string(entities.JobRunStatusRunning), cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	adapter := &JobRunAdapter{conn: mockDB}
	touched, err := adapter.MarkStaleFailed(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, touched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRunAdapter_Update_NotFound(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("UPDATE job_runs SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	adapter := &JobRunAdapter{conn: mockDB}
	run := &entities.JobRun{ID: "missing", Status: entities.JobRunStatusCompleted}
	err = adapter.Update(context.Background(), run)
	require.Error(t, err)
}
