package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupUserAdapter(t *testing.T) (*UserAdapter, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &UserAdapter{conn: mockDB}, mock
}

func userRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "email", "phone", "email_notifications",
		"daily_emails", "weekly_summary", "activation_emails",
		"grocery_interests", "typical_products", "preferred_stores",
		"current_streak", "longest_streak", "last_activity_date", "last_streak_milestone",
		"regular_credits", "extra_credits", "created_at", "updated_at",
	})
	for _, id := range ids {
		rows.AddRow(id, id+"@example.com", nil, true,
			true, true, true,
			"{}", "{}", "{}",
			0, 0, nil, 0,
			10, 0, time.Now(), time.Now())
	}
	return rows
}

func TestUserAdapter_ListReengagementCandidates_ExcludesUsersWithActiveTerms(t *testing.T) {
	adapter, mock := setupUserAdapter(t)
	cutoff := time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)

	// The audience is users with zero active tracked terms; inactivity is
	// an additional filter on top
	mock.ExpectQuery(`SELECT 1 FROM tracked_terms`).
		WithArgs(cutoff).
		WillReturnRows(userRows("u-1"))

	users, err := adapter.ListReengagementCandidates(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u-1", users[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserAdapter_ListReengagementCandidates_Empty(t *testing.T) {
	adapter, mock := setupUserAdapter(t)
	cutoff := time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`last_activity_date IS NULL OR u.last_activity_date < \$1`).
		WithArgs(cutoff).
		WillReturnRows(userRows())

	users, err := adapter.ListReengagementCandidates(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}
