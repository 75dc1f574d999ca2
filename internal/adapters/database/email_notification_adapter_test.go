package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

func setupEmailAdapter(t *testing.T) (*EmailNotificationAdapter, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &EmailNotificationAdapter{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

func TestEmailNotificationAdapter_Log_LowercasesAddress(t *testing.T) {
	adapter, mock := setupEmailAdapter(t)

	mock.ExpectExec("INSERT INTO email_notifications").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := adapter.Log(context.Background(), &entities.EmailNotification{
		ID:        "n-1",
		UserID:    "u-1",
		Email:     "Kupac@Example.COM",
		EmailType: entities.EmailTypeDailyScan,
		Subject:   "2 nova proizvoda",
		Status:    entities.EmailStatusSent,
		SentAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailNotificationAdapter_SentSince(t *testing.T) {
	adapter, mock := setupEmailAdapter(t)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"user_id", "email"}).
		AddRow("u-1", "kupac@example.com").
		AddRow("u-2", "druga@example.com")

	mock.ExpectQuery("SELECT user_id, LOWER\\(email\\) AS email").
		WithArgs(pq.Array([]string{string(entities.EmailTypeDailyScan), string(entities.EmailTypeWeeklyScan)}),
			string(entities.EmailStatusSent), since).
		WillReturnRows(rows)

	set, err := adapter.SentSince(context.Background(),
		[]entities.EmailType{entities.EmailTypeDailyScan, entities.EmailTypeWeeklyScan}, since)
	require.NoError(t, err)
	assert.True(t, set.Contains("u-1", "someone-else@example.com"), "user id match should count")
	assert.True(t, set.Contains("u-9", "druga@example.com"), "address match should count")
	assert.False(t, set.Contains("u-9", "nova@example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
