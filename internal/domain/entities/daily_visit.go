package entities

import "time"

// DailyVisit is one user's activity record for one calendar day, unique on
// (user_id, visit_date). daily_bonus_claimed is set at most once per row.
type DailyVisit struct {
	ID                string    `json:"id" db:"id"`
	UserID            string    `json:"user_id" db:"user_id"`
	VisitDate         time.Time `json:"visit_date" db:"visit_date"`
	FirstSeen         time.Time `json:"first_seen" db:"first_seen"`
	LastSeen          time.Time `json:"last_seen" db:"last_seen"`
	PageViews         int       `json:"page_views" db:"page_views"`
	DailyBonusClaimed bool      `json:"daily_bonus_claimed" db:"daily_bonus_claimed"`
}
