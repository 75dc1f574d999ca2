package entities

import "time"

// JobRunStatus represents the state of a scheduled job execution
type JobRunStatus string

const (
	JobRunStatusRunning   JobRunStatus = "running"
	JobRunStatusCompleted JobRunStatus = "completed"
	JobRunStatusFailed    JobRunStatus = "failed"
)

// JobRun is one persisted execution of a scheduled job. Rows are append-only
// history; a running row older than 24h is treated as stale by consumers.
type JobRun struct {
	ID               string       `json:"id" db:"id"`
	JobName          string       `json:"job_name" db:"job_name"`
	StartedAt        time.Time    `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	Status           JobRunStatus `json:"status" db:"status"`
	RecordsProcessed int          `json:"records_processed" db:"records_processed"`
	RecordsSuccess   int          `json:"records_success" db:"records_success"`
	RecordsFailed    int          `json:"records_failed" db:"records_failed"`
	ErrorMessage     *string      `json:"error_message,omitempty" db:"error_message"`
	DurationSeconds  *float64     `json:"duration_seconds,omitempty" db:"duration_seconds"`
}
