package entities

import "time"

// ScanEventType identifies what happened to a scan
type ScanEventType string

const (
	ScanEventCompleted ScanEventType = "scan.completed"
	ScanEventFailed    ScanEventType = "scan.failed"
)

// ScanEvent is published on the event bus when a user scan finishes, so the
// API layer can push live feed updates to dashboards.
type ScanEvent struct {
	ID           string        `json:"id"`
	Type         ScanEventType `json:"type"`
	UserID       string        `json:"user_id"`
	ScanID       string        `json:"scan_id"`
	NewProducts  int           `json:"new_products"`
	NewDiscounts int           `json:"new_discounts"`
	Timestamp    time.Time     `json:"timestamp"`
}
