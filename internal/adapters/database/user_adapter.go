package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/postgres"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

const userColumns = `id, email, phone, email_notifications,
	daily_emails, weekly_summary, activation_emails,
	grocery_interests, typical_products, preferred_stores,
	current_streak, longest_streak, last_activity_date, last_streak_milestone,
	regular_credits, extra_credits, created_at, updated_at`

// UserAdapter implements UserRepository
type UserAdapter struct {
	conn *sql.DB
}

// NewUserAdapter creates a new user adapter
func NewUserAdapter(client *postgres.Client) repositories.UserRepository {
	return &UserAdapter{conn: client.DB()}
}

func scanUser(row interface {
	Scan(dest ...interface{}) error
}) (*entities.User, error) {
	user := &entities.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Phone,
		&user.EmailNotifications,
		&user.EmailPreferences.DailyEmails,
		&user.EmailPreferences.WeeklySummary,
		&user.EmailPreferences.ActivationEmails,
		pq.Array(&user.GroceryInterests),
		pq.Array(&user.TypicalProducts),
		pq.Array(&user.PreferredStores),
		&user.CurrentStreak,
		&user.LongestStreak,
		&user.LastActivityDate,
		&user.LastStreakMilestone,
		&user.RegularCredits,
		&user.ExtraCredits,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (a *UserAdapter) GetByID(ctx context.Context, id string) (*entities.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns)

	user, err := scanUser(a.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get user", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (a *UserAdapter) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE LOWER(email) = LOWER($1)", userColumns)

	user, err := scanUser(a.conn.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user with email %s not found", email))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get user", err)
	}
	return user, nil
}

// Update updates a user
func (a *UserAdapter) Update(ctx context.Context, user *entities.User) error {
	user.UpdatedAt = time.Now()

	query := `UPDATE users SET
		email = $2, phone = $3, email_notifications = $4,
		daily_emails = $5, weekly_summary = $6, activation_emails = $7,
		grocery_interests = $8, typical_products = $9, preferred_stores = $10,
		current_streak = $11, longest_streak = $12, last_activity_date = $13,
		last_streak_milestone = $14, regular_credits = $15, extra_credits = $16,
		updated_at = $17
		WHERE id = $1`

	result, err := a.conn.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Phone,
		user.EmailNotifications,
		user.EmailPreferences.DailyEmails,
		user.EmailPreferences.WeeklySummary,
		user.EmailPreferences.ActivationEmails,
		pq.Array(user.GroceryInterests),
		pq.Array(user.TypicalProducts),
		pq.Array(user.PreferredStores),
		user.CurrentStreak,
		user.LongestStreak,
		user.LastActivityDate,
		user.LastStreakMilestone,
		user.RegularCredits,
		user.ExtraCredits,
		user.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewInternalError("failed to update user", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("user with id %s not found", user.ID))
	}
	return nil
}

// ListScanCandidates retrieves users eligible for a product scan, ordered
// by their last completed scan ascending. Users never scanned sort first
// via the epoch fallback; users already scanned today are excluded.
func (a *UserAdapter) ListScanCandidates(ctx context.Context, today time.Time) ([]*entities.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users u
		WHERE (COALESCE(array_length(u.grocery_interests, 1), 0) > 0
		   OR COALESCE(array_length(u.typical_products, 1), 0) > 0)
		  AND NOT EXISTS (
			SELECT 1 FROM product_scans s
			WHERE s.user_id = u.id AND s.scan_date = $1 AND s.status = 'completed'
		  )
		ORDER BY COALESCE(
			(SELECT MAX(s2.scan_date) FROM product_scans s2
			 WHERE s2.user_id = u.id AND s2.status = 'completed'),
			'1970-01-01'::date
		) ASC, u.created_at ASC`, prefixColumns(userColumns, "u"))

	return a.queryUsers(ctx, query, today)
}

// ListDailyEmailRecipients retrieves users opted into daily scan emails
func (a *UserAdapter) ListDailyEmailRecipients(ctx context.Context) ([]*entities.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users u
		WHERE u.email IS NOT NULL AND u.email <> ''
		  AND u.email_notifications AND u.daily_emails
		ORDER BY u.created_at ASC`, prefixColumns(userColumns, "u"))

	return a.queryUsers(ctx, query)
}

// ListWeeklyEmailRecipients retrieves users opted into the weekly summary
func (a *UserAdapter) ListWeeklyEmailRecipients(ctx context.Context) ([]*entities.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users u
		WHERE u.email IS NOT NULL AND u.email <> ''
		  AND u.email_notifications AND u.weekly_summary
		ORDER BY u.created_at ASC`, prefixColumns(userColumns, "u"))

	return a.queryUsers(ctx, query)
}

// ListReengagementCandidates retrieves inactive users with no active
// tracked terms who are opted into activation emails
func (a *UserAdapter) ListReengagementCandidates(ctx context.Context, inactiveSince time.Time) ([]*entities.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users u
		WHERE u.email IS NOT NULL AND u.email <> ''
		  AND u.email_notifications AND u.activation_emails
		  AND (u.last_activity_date IS NULL OR u.last_activity_date < $1)
		  AND NOT EXISTS (
			SELECT 1 FROM tracked_terms t
			WHERE t.user_id = u.id AND t.is_active
		  )
		ORDER BY u.created_at ASC`, prefixColumns(userColumns, "u"))

	return a.queryUsers(ctx, query, inactiveSince)
}

func (a *UserAdapter) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*entities.User, error) {
	rows, err := a.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query users", err)
	}
	defer rows.Close()

	var users []*entities.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate users", err)
	}
	return users, nil
}
