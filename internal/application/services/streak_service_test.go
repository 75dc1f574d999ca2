package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
)

func newStreakHarness(t *testing.T) (*StreakService, sqlmock.Sqlmock, *clock.FakeClock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	svc := NewStreakService(sqlx.NewDb(mockDB, "postgres"), nil, fc, config.StreakConfig{DailyActivityBonus: 2})
	return svc, mock, fc
}

func visitRows(pageViews int, bonusClaimed bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"page_views", "daily_bonus_claimed"}).
		AddRow(pageViews, bonusClaimed)
}

func streakStateRows(streak, longest int, lastActivity interface{}, lastMilestone int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"current_streak", "longest_streak", "last_activity_date", "last_streak_milestone",
		"email", "email_notifications", "activation_emails",
	}).AddRow(streak, longest, lastActivity, lastMilestone, nil, true, true)
}

func TestRecordVisit_FirstVisitAwardsDailyBonusAndMilestone(t *testing.T) {
	svc, mock, fc := newStreakHarness(t)
	today := fc.Today()
	yesterday := today.AddDate(0, 0, -1)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO daily_visits").
		WithArgs(sqlmock.AnyArg(), "u-1", today, sqlmock.AnyArg()).
		WillReturnRows(visitRows(1, false))
	mock.ExpectExec("UPDATE daily_visits SET daily_bonus_claimed").
		WithArgs("u-1", today).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT current_streak").
		WithArgs("u-1").
		WillReturnRows(streakStateRows(6, 6, yesterday, 3))
	// Credit increment is daily bonus (2) plus the milestone award (10)
	mock.ExpectExec("UPDATE users").
		WithArgs("u-1", 7, 7, today, 7, 12, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	update, err := svc.RecordVisit(context.Background(), "u-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.True(t, update.FirstVisit)
	assert.Equal(t, 7, update.CurrentStreak)
	assert.Equal(t, 7, update.LongestStreak)
	assert.Equal(t, 2, update.DailyBonus)
	assert.Equal(t, 7, update.Milestone)
	assert.Equal(t, 10, update.CreditsAwarded)
}

func TestRecordVisit_RepeatVisitOnlyBumpsPageViews(t *testing.T) {
	svc, mock, fc := newStreakHarness(t)
	today := fc.Today()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO daily_visits").
		WithArgs(sqlmock.AnyArg(), "u-1", today, sqlmock.AnyArg()).
		WillReturnRows(visitRows(3, true))
	mock.ExpectQuery("SELECT current_streak").
		WithArgs("u-1").
		WillReturnRows(streakStateRows(7, 9, today, 7))
	mock.ExpectExec("UPDATE users").
		WithArgs("u-1", 7, 9, today, 7, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	update, err := svc.RecordVisit(context.Background(), "u-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.False(t, update.FirstVisit)
	assert.Equal(t, 7, update.CurrentStreak)
	assert.Zero(t, update.DailyBonus)
	assert.Zero(t, update.Milestone)
	assert.Zero(t, update.CreditsAwarded)
}

func TestRecordVisit_GapResetsStreak(t *testing.T) {
	svc, mock, fc := newStreakHarness(t)
	today := fc.Today()
	lastWeek := today.AddDate(0, 0, -6)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO daily_visits").
		WithArgs(sqlmock.AnyArg(), "u-1", today, sqlmock.AnyArg()).
		WillReturnRows(visitRows(1, false))
	mock.ExpectExec("UPDATE daily_visits SET daily_bonus_claimed").
		WithArgs("u-1", today).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT current_streak").
		WithArgs("u-1").
		WillReturnRows(streakStateRows(12, 12, lastWeek, 7))
	mock.ExpectExec("UPDATE users").
		WithArgs("u-1", 1, 12, today, 7, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	update, err := svc.RecordVisit(context.Background(), "u-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, update.CurrentStreak)
	assert.Equal(t, 12, update.LongestStreak)
	assert.Equal(t, 2, update.DailyBonus)
	assert.Zero(t, update.Milestone)
}

func TestRecordVisit_NeverVisitedStartsAtOne(t *testing.T) {
	svc, mock, fc := newStreakHarness(t)
	today := fc.Today()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO daily_visits").
		WithArgs(sqlmock.AnyArg(), "u-1", today, sqlmock.AnyArg()).
		WillReturnRows(visitRows(1, false))
	mock.ExpectExec("UPDATE daily_visits SET daily_bonus_claimed").
		WithArgs("u-1", today).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT current_streak").
		WithArgs("u-1").
		WillReturnRows(streakStateRows(0, 0, nil, 0))
	mock.ExpectExec("UPDATE users").
		WithArgs("u-1", 1, 1, today, 0, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	update, err := svc.RecordVisit(context.Background(), "u-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1, update.CurrentStreak)
	assert.Equal(t, 2, update.DailyBonus)
}

// A crash between the visit insert and the bonus claim leaves the row
// with daily_bonus_claimed = false; the next visit of the day still gets
// the bonus, exactly once.
func TestRecordVisit_UnclaimedBonusOnRepeatVisit(t *testing.T) {
	svc, mock, fc := newStreakHarness(t)
	today := fc.Today()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO daily_visits").
		WithArgs(sqlmock.AnyArg(), "u-1", today, sqlmock.AnyArg()).
		WillReturnRows(visitRows(2, false))
	mock.ExpectExec("UPDATE daily_visits SET daily_bonus_claimed").
		WithArgs("u-1", today).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT current_streak").
		WithArgs("u-1").
		WillReturnRows(streakStateRows(4, 4, today, 3))
	mock.ExpectExec("UPDATE users").
		WithArgs("u-1", 4, 4, today, 3, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	update, err := svc.RecordVisit(context.Background(), "u-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.False(t, update.FirstVisit)
	assert.Equal(t, 2, update.DailyBonus)
	assert.Zero(t, update.Milestone)
}

func TestNextMilestone(t *testing.T) {
	tests := []struct {
		name          string
		streak        int
		lastMilestone int
		wantMilestone int
		wantCredits   int
	}{
		{"below first milestone", 2, 0, 0, 0},
		{"hits first milestone", 3, 0, 3, 5},
		{"one milestone per call", 14, 3, 7, 10},
		{"already awarded", 7, 7, 0, 0},
		{"top milestone", 60, 30, 60, 100},
		{"beyond all milestones", 90, 60, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			milestone, credits := nextMilestone(tt.streak, tt.lastMilestone)
			assert.Equal(t, tt.wantMilestone, milestone)
			assert.Equal(t, tt.wantCredits, credits)
		})
	}
}
