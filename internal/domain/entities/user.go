package entities

import "time"

// EmailPreferences holds per-channel email opt-outs. All channels default to
// enabled; a stored false is an explicit opt-out.
type EmailPreferences struct {
	DailyEmails      bool `json:"daily_emails" db:"daily_emails"`
	WeeklySummary    bool `json:"weekly_summary" db:"weekly_summary"`
	ActivationEmails bool `json:"activation_emails" db:"activation_emails"`
}

// Preferences is the canonical preference input of a user. The preference
// normalizer and the fingerprint are pure functions over this value.
type Preferences struct {
	GroceryInterests []string `json:"grocery_interests"`
	TypicalProducts  []string `json:"typical_products"`
	PreferredStores  []string `json:"preferred_stores"`
}

// IsEmpty reports whether the user has no usable preference inputs
func (p Preferences) IsEmpty() bool {
	return len(p.GroceryInterests) == 0 && len(p.TypicalProducts) == 0
}

// User represents a marketplace user as seen by the pipeline. Account
// lifecycle is owned by the API layer; the core reads preferences and
// maintains streak state.
type User struct {
	ID                  string           `json:"id" db:"id"`
	Email               *string          `json:"email,omitempty" db:"email"`
	Phone               *string          `json:"phone,omitempty" db:"phone"`
	EmailNotifications  bool             `json:"email_notifications" db:"email_notifications"`
	EmailPreferences    EmailPreferences `json:"email_preferences"`
	GroceryInterests    []string         `json:"grocery_interests"`
	TypicalProducts     []string         `json:"typical_products"`
	PreferredStores     []string         `json:"preferred_stores"`
	CurrentStreak       int              `json:"current_streak" db:"current_streak"`
	LongestStreak       int              `json:"longest_streak" db:"longest_streak"`
	LastActivityDate    *time.Time       `json:"last_activity_date,omitempty" db:"last_activity_date"`
	LastStreakMilestone int              `json:"last_streak_milestone" db:"last_streak_milestone"`
	RegularCredits      int              `json:"regular_credits" db:"regular_credits"`
	ExtraCredits        int              `json:"extra_credits" db:"extra_credits"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// Prefs returns the canonical preference inputs of the user
func (u *User) Prefs() Preferences {
	return Preferences{
		GroceryInterests: u.GroceryInterests,
		TypicalProducts:  u.TypicalProducts,
		PreferredStores:  u.PreferredStores,
	}
}
