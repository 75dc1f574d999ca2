package entities

import "time"

// TermSource identifies how a tracked term entered the system
type TermSource string

const (
	TermSourceAutoExtracted TermSource = "auto_extracted"
	TermSourceProductImage  TermSource = "product_image"
	TermSourceCameraScan    TermSource = "camera_scan"
	TermSourceManual        TermSource = "manual"
)

// TrackedTerm is a normalized search phrase a user is subscribed to.
// (user_id, search_term) is unique; search_term is the diacritic-stripped
// lowercase key, original_text keeps the display form.
type TrackedTerm struct {
	ID           string     `json:"id" db:"id"`
	UserID       string     `json:"user_id" db:"user_id"`
	SearchTerm   string     `json:"search_term" db:"search_term"`
	OriginalText string     `json:"original_text" db:"original_text"`
	Source       TermSource `json:"source" db:"source"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
