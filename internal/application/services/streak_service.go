package services

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

// streakMilestones maps a streak length to the bonus credits it awards.
// Milestone credits always go to extra credits, never regular credits.
var streakMilestones = map[int]int{
	3:  5,
	7:  10,
	14: 20,
	30: 50,
	60: 100,
}

// StreakUpdate reports what one recorded visit changed
type StreakUpdate struct {
	CurrentStreak  int
	LongestStreak  int
	FirstVisit     bool
	DailyBonus     int
	Milestone      int
	CreditsAwarded int
}

// StreakService maintains daily visit rows and the user's activity streak.
// The visit upsert and the streak update run in one transaction so a
// concurrent visit can never double-increment a streak or double-award a
// bonus.
type StreakService struct {
	db       *sqlx.DB
	notifier *NotificationService
	clk      clock.Clock
	cfg      config.StreakConfig
}

// NewStreakService creates a new streak service. The notifier is optional;
// when nil, milestone emails are skipped.
func NewStreakService(db *sqlx.DB, notifier *NotificationService, clk clock.Clock, cfg config.StreakConfig) *StreakService {
	return &StreakService{db: db, notifier: notifier, clk: clk, cfg: cfg}
}

// RecordVisit registers one page view for the user today and updates the
// streak. The first visit of a day claims the daily activity bonus and
// extends or resets the streak; later visits only bump the page view
// counter. Crossing a milestone awards extra credits, at most one
// milestone per visit.
func (s *StreakService) RecordVisit(ctx context.Context, userID string) (*StreakUpdate, error) {
	now := s.clk.Now()
	today := s.clk.Today()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var (
		pageViews    int
		bonusClaimed bool
	)
	err = tx.QueryRowContext(ctx, `
		INSERT INTO daily_visits (id, user_id, visit_date, first_seen, last_seen, page_views, daily_bonus_claimed)
		VALUES ($1, $2, $3, $4, $4, 1, false)
		ON CONFLICT (user_id, visit_date)
		DO UPDATE SET last_seen = $4, page_views = daily_visits.page_views + 1
		RETURNING page_views, daily_bonus_claimed`,
		uuid.New().String(), userID, today, now,
	).Scan(&pageViews, &bonusClaimed)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to upsert daily visit", err)
	}

	update := &StreakUpdate{FirstVisit: pageViews == 1}

	// The flag is set-once per row, so the bonus lands exactly once per
	// day even if an earlier call crashed after the insert
	if !bonusClaimed {
		update.DailyBonus = s.cfg.DailyActivityBonus
		_, err = tx.ExecContext(ctx,
			`UPDATE daily_visits SET daily_bonus_claimed = true WHERE user_id = $1 AND visit_date = $2`,
			userID, today,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to claim daily bonus", err)
		}
	}

	var (
		currentStreak, longestStreak, lastMilestone int
		lastActivity                                sql.NullTime
		user                                        streakUserRow
	)
	err = tx.QueryRowContext(ctx, `
		SELECT current_streak, longest_streak, last_activity_date, last_streak_milestone,
		       email, email_notifications, activation_emails
		FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&currentStreak, &longestStreak, &lastActivity, &lastMilestone,
		&user.email, &user.emailNotifications, &user.activationEmails)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("user not found")
		}
		return nil, apperrors.NewInternalError("failed to load streak state", err)
	}

	if update.FirstVisit {
		switch {
		case lastActivity.Valid && clock.Midnight(lastActivity.Time).Equal(today):
			// Already counted today, nothing to extend
		case lastActivity.Valid && clock.Midnight(lastActivity.Time).Equal(today.AddDate(0, 0, -1)):
			currentStreak++
		default:
			currentStreak = 1
		}
		if currentStreak > longestStreak {
			longestStreak = currentStreak
		}

		if milestone, credits := nextMilestone(currentStreak, lastMilestone); milestone > 0 {
			update.Milestone = milestone
			update.CreditsAwarded = credits
			lastMilestone = milestone
		}
	}

	update.CurrentStreak = currentStreak
	update.LongestStreak = longestStreak

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET current_streak = $2, longest_streak = $3, last_activity_date = $4,
		    last_streak_milestone = $5, extra_credits = extra_credits + $6,
		    updated_at = $7
		WHERE id = $1`,
		userID, currentStreak, longestStreak, today, lastMilestone,
		update.DailyBonus+update.CreditsAwarded, now,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to update streak", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewInternalError("failed to commit streak update", err)
	}

	if update.Milestone > 0 {
		log.Info().
			Str("user_id", userID).
			Int("milestone", update.Milestone).
			Int("credits", update.CreditsAwarded).
			Msg("streak milestone reached")
		s.sendMilestoneEmail(ctx, userID, user, update)
	}

	return update, nil
}

// nextMilestone returns the lowest uncrossed milestone the streak has
// reached, or 0 when none
func nextMilestone(streak, lastMilestone int) (int, int) {
	thresholds := make([]int, 0, len(streakMilestones))
	for threshold := range streakMilestones {
		thresholds = append(thresholds, threshold)
	}
	sort.Ints(thresholds)

	for _, threshold := range thresholds {
		if threshold > lastMilestone && streak >= threshold {
			return threshold, streakMilestones[threshold]
		}
	}
	return 0, 0
}

type streakUserRow struct {
	email              sql.NullString
	emailNotifications bool
	activationEmails   bool
}

func (s *StreakService) sendMilestoneEmail(ctx context.Context, userID string, row streakUserRow, update *StreakUpdate) {
	if s.notifier == nil || !row.email.Valid {
		return
	}

	user := &entities.User{
		ID:                 userID,
		Email:              &row.email.String,
		EmailNotifications: row.emailNotifications,
		EmailPreferences:   entities.EmailPreferences{ActivationEmails: row.activationEmails},
	}
	if err := s.notifier.SendStreakBonus(ctx, user, update.Milestone, update.CreditsAwarded); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to send streak bonus email")
	}
}
