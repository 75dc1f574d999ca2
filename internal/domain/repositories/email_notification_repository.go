package repositories

import (
	"context"
	"time"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

// SentSet holds who already received a given email type, keyed both by
// user ID and by lowercased address. A recipient matching either set is a
// duplicate.
type SentSet struct {
	UserIDs map[string]struct{}
	Emails  map[string]struct{}
}

// Contains reports whether the user or address is already in the set
func (s SentSet) Contains(userID, email string) bool {
	if _, ok := s.UserIDs[userID]; ok {
		return true
	}
	_, ok := s.Emails[email]
	return ok
}

// EmailNotificationRepository defines the interface for the email ledger
type EmailNotificationRepository interface {
	// Log appends a notification row, sent or failed
	Log(ctx context.Context, notification *entities.EmailNotification) error

	// SentSince retrieves the set of recipients that already got an email
	// of any of the given types at or after the cutoff. Only sent rows
	// count; addresses are lowercased.
	SentSince(ctx context.Context, emailTypes []entities.EmailType, since time.Time) (SentSet, error)
}
