package repositories

import (
	"context"
	"time"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

// ScanRepository defines the interface for product scan operations
type ScanRepository interface {
	// Create creates a new scan row
	Create(ctx context.Context, scan *entities.ProductScan) error

	// Update updates a scan row
	Update(ctx context.Context, scan *entities.ProductScan) error

	// GetByUserAndDate retrieves a user's scan for a specific day
	GetByUserAndDate(ctx context.Context, userID string, date time.Time) (*entities.ProductScan, error)

	// GetLatestByUser retrieves a user's most recent scan
	GetLatestByUser(ctx context.Context, userID string) (*entities.ProductScan, error)

	// DeleteResults removes all results attached to a scan
	DeleteResults(ctx context.Context, scanID string) error

	// InsertResults bulk inserts scan results
	InsertResults(ctx context.Context, results []*entities.ScanResult) error

	// ListResultsByScan retrieves the results of one scan
	ListResultsByScan(ctx context.Context, scanID string) ([]*entities.ScanResult, error)

	// ListResultsByUserSince retrieves a user's results from completed
	// scans on or after the given date
	ListResultsByUserSince(ctx context.Context, userID string, since time.Time) ([]*entities.ScanResult, error)

	// YesterdaySnapshot retrieves product price snapshots from the user's
	// completed scan of the previous day, keyed by product ID. An empty
	// map means no completed scan existed yesterday.
	YesterdaySnapshot(ctx context.Context, userID string, yesterday time.Time) (map[string]entities.PriceSnapshot, error)

	// ListCompletedByDate retrieves all completed scans for a day
	ListCompletedByDate(ctx context.Context, date time.Time) ([]*entities.ProductScan, error)
}
