package repositories

import (
	"context"
	"time"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*entities.User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*entities.User, error)

	// Update updates a user
	Update(ctx context.Context, user *entities.User) error

	// ListScanCandidates retrieves users with non-empty preferences,
	// ordered by their last completed scan ascending so the least
	// recently scanned user goes first. Users never scanned sort before
	// everyone else. Users already scanned today are excluded.
	ListScanCandidates(ctx context.Context, today time.Time) ([]*entities.User, error)

	// ListDailyEmailRecipients retrieves users opted into daily scan
	// emails who have a usable email address
	ListDailyEmailRecipients(ctx context.Context) ([]*entities.User, error)

	// ListWeeklyEmailRecipients retrieves users opted into the weekly
	// summary who have a usable email address
	ListWeeklyEmailRecipients(ctx context.Context) ([]*entities.User, error)

	// ListReengagementCandidates retrieves users opted into activation
	// emails whose last activity is before the cutoff
	ListReengagementCandidates(ctx context.Context, inactiveSince time.Time) ([]*entities.User, error)
}
