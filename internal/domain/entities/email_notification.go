package entities

import "time"

// EmailType represents the notification purpose
type EmailType string

const (
	EmailTypeDailyScan    EmailType = "daily_scan"
	EmailTypeWeeklyScan   EmailType = "weekly_scan"
	EmailTypeReengagement EmailType = "reengagement"
	EmailTypeStreakBonus  EmailType = "streak_bonus"
)

// EmailStatus represents the send outcome
type EmailStatus string

const (
	EmailStatusSent   EmailStatus = "sent"
	EmailStatusFailed EmailStatus = "failed"
)

// EmailNotification is one appended row of the outbound email ledger. The
// ledger is the only source of truth for "did this user already get this
// email today"; dedup queries key on user id and on the lowercased address.
type EmailNotification struct {
	ID           string                 `json:"id" db:"id"`
	UserID       string                 `json:"user_id" db:"user_id"`
	Email        string                 `json:"email" db:"email"`
	EmailType    EmailType              `json:"email_type" db:"email_type"`
	Subject      string                 `json:"subject" db:"subject"`
	Status       EmailStatus            `json:"status" db:"status"`
	SentAt       time.Time              `json:"sent_at" db:"sent_at"`
	ErrorMessage *string                `json:"error_message,omitempty" db:"error_message"`
	ExtraData    map[string]interface{} `json:"extra_data,omitempty"`
}
