package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/postgres"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

// EmailNotificationAdapter implements EmailNotificationRepository
type EmailNotificationAdapter struct {
	db *sqlx.DB
}

// NewEmailNotificationAdapter creates a new email notification adapter
func NewEmailNotificationAdapter(client *postgres.Client) repositories.EmailNotificationRepository {
	return &EmailNotificationAdapter{
		db: sqlx.NewDb(client.DB(), "postgres"),
	}
}

type emailNotificationRow struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	Email        string         `db:"email"`
	EmailType    string         `db:"email_type"`
	Subject      string         `db:"subject"`
	Status       string         `db:"status"`
	SentAt       time.Time      `db:"sent_at"`
	ErrorMessage sql.NullString `db:"error_message"`
	ExtraData    []byte         `db:"extra_data"`
}

// Log appends a notification row, sent or failed
func (a *EmailNotificationAdapter) Log(ctx context.Context, notification *entities.EmailNotification) error {
	var extraData []byte
	if notification.ExtraData != nil {
		data, err := json.Marshal(notification.ExtraData)
		if err != nil {
			return apperrors.NewInternalError("failed to marshal extra data", err)
		}
		extraData = data
	}

	query := `INSERT INTO email_notifications
		(id, user_id, email, email_type, subject, status, sent_at, error_message, extra_data)
		VALUES (:id, :user_id, :email, :email_type, :subject, :status, :sent_at, :error_message, :extra_data)`

	row := emailNotificationRow{
		ID:        notification.ID,
		UserID:    notification.UserID,
		Email:     strings.ToLower(notification.Email),
		EmailType: string(notification.EmailType),
		Subject:   notification.Subject,
		Status:    string(notification.Status),
		SentAt:    notification.SentAt,
		ExtraData: extraData,
	}
	if notification.ErrorMessage != nil {
		row.ErrorMessage = sql.NullString{String: *notification.ErrorMessage, Valid: true}
	}

	if _, err := a.db.NamedExecContext(ctx, query, row); err != nil {
		return apperrors.NewInternalError("failed to log email notification", err)
	}
	return nil
}

// SentSince retrieves who already got an email of any of the given types
// at or after the cutoff. Only sent rows count; addresses are lowercased.
func (a *EmailNotificationAdapter) SentSince(ctx context.Context, emailTypes []entities.EmailType, since time.Time) (repositories.SentSet, error) {
	set := repositories.SentSet{
		UserIDs: make(map[string]struct{}),
		Emails:  make(map[string]struct{}),
	}

	types := make([]string, len(emailTypes))
	for i, emailType := range emailTypes {
		types[i] = string(emailType)
	}

	query := `SELECT user_id, LOWER(email) AS email
		FROM email_notifications
		WHERE email_type = ANY($1) AND status = $2 AND sent_at >= $3`

	rows, err := a.db.QueryContext(ctx, query, pq.Array(types), string(entities.EmailStatusSent), since)
	if err != nil {
		return set, apperrors.NewInternalError("failed to query sent notifications", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, email string
		if err := rows.Scan(&userID, &email); err != nil {
			return set, apperrors.NewInternalError("failed to scan notification row", err)
		}
		set.UserIDs[userID] = struct{}{}
		set.Emails[email] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return set, apperrors.NewInternalError("failed to iterate notifications", err)
	}
	return set, nil
}
