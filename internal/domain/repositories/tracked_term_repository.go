package repositories

import (
	"context"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

// TrackedTermRepository defines the interface for tracked term operations
type TrackedTermRepository interface {
	// ListActiveByUser retrieves a user's active tracked terms
	ListActiveByUser(ctx context.Context, userID string) ([]*entities.TrackedTerm, error)

	// UpsertBatch inserts terms, reactivating and refreshing any that
	// already exist for the user instead of duplicating them
	UpsertBatch(ctx context.Context, terms []*entities.TrackedTerm) error

	// DeactivateMissing deactivates the user's auto-extracted terms whose
	// search_term is not in keep. Manually added terms are left alone.
	DeactivateMissing(ctx context.Context, userID string, keep []string) error
}
