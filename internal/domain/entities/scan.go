package entities

import "time"

// ScanStatus represents the lifecycle of a per-user product scan
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// ProductScan is one user's scan for one calendar day. At most one
// completed row exists per (user, day); re-running a scan for the same day
// replaces its results instead of duplicating them.
type ProductScan struct {
	ID                 string     `json:"id" db:"id"`
	UserID             string     `json:"user_id" db:"user_id"`
	ScanDate           time.Time  `json:"scan_date" db:"scan_date"`
	Status             ScanStatus `json:"status" db:"status"`
	PreferencesHash    string     `json:"preferences_hash" db:"preferences_hash"`
	TotalProductsFound int        `json:"total_products_found" db:"total_products_found"`
	NewProductsCount   int        `json:"new_products_count" db:"new_products_count"`
	NewDiscountsCount  int        `json:"new_discounts_count" db:"new_discounts_count"`
	Summary            string     `json:"summary" db:"summary"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// ScanResult is one (tracked term x product) hit inside a scan, carrying a
// snapshot of the product at scan time plus the day-over-day diff flags.
type ScanResult struct {
	ID                     string    `json:"id" db:"id"`
	ScanID                 string    `json:"scan_id" db:"scan_id"`
	TrackedTermID          string    `json:"tracked_term_id" db:"tracked_term_id"`
	SearchTerm             string    `json:"search_term" db:"search_term"`
	ProductID              string    `json:"product_id" db:"product_id"`
	ProductTitle           string    `json:"product_title" db:"product_title"`
	StoreID                string    `json:"store_id" db:"store_id"`
	StoreName              string    `json:"store_name" db:"store_name"`
	Similarity             float64   `json:"similarity" db:"similarity"`
	RawSimilarity          float64   `json:"raw_similarity" db:"raw_similarity"`
	BasePrice              float64   `json:"base_price" db:"base_price"`
	DiscountPrice          *float64  `json:"discount_price,omitempty" db:"discount_price"`
	IsNewToday             bool      `json:"is_new_today" db:"is_new_today"`
	WasDiscountedYesterday bool      `json:"was_discounted_yesterday" db:"was_discounted_yesterday"`
	PriceDroppedToday      bool      `json:"price_dropped_today" db:"price_dropped_today"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}

// EffectivePrice returns the snapshot's discount price when present,
// otherwise the base price.
func (r *ScanResult) EffectivePrice() float64 {
	if r.DiscountPrice != nil {
		return *r.DiscountPrice
	}
	return r.BasePrice
}

// PriceSnapshot is yesterday's price state of one product, used to compute
// the diff flags of today's scan.
type PriceSnapshot struct {
	BasePrice     float64
	DiscountPrice *float64
}

// EffectivePrice returns the snapshot's effective price
func (s PriceSnapshot) EffectivePrice() float64 {
	if s.DiscountPrice != nil {
		return *s.DiscountPrice
	}
	return s.BasePrice
}
