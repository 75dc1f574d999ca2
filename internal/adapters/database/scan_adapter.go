package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/postgres"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

var scanColumns = []interface{}{
	"id", "user_id", "scan_date", "status", "preferences_hash",
	"total_products_found", "new_products_count", "new_discounts_count",
	"summary", "created_at", "updated_at",
}

var scanResultColumns = []interface{}{
	"id", "scan_id", "tracked_term_id", "search_term", "product_id",
	"product_title", "store_id", "store_name", "similarity", "raw_similarity",
	"base_price", "discount_price", "is_new_today",
	"was_discounted_yesterday", "price_dropped_today", "created_at",
}

// ScanAdapter implements ScanRepository
type ScanAdapter struct {
	conn *sql.DB
	db   *goqu.Database
}

// NewScanAdapter creates a new scan adapter
func NewScanAdapter(client *postgres.Client) repositories.ScanRepository {
	return &ScanAdapter{
		conn: client.DB(),
		db:   goqu.New("postgres", client.DB()),
	}
}

func scanProductScan(row interface {
	Scan(dest ...interface{}) error
}) (*entities.ProductScan, error) {
	scan := &entities.ProductScan{}
	err := row.Scan(
		&scan.ID,
		&scan.UserID,
		&scan.ScanDate,
		&scan.Status,
		&scan.PreferencesHash,
		&scan.TotalProductsFound,
		&scan.NewProductsCount,
		&scan.NewDiscountsCount,
		&scan.Summary,
		&scan.CreatedAt,
		&scan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return scan, nil
}

// Create creates a new scan row
func (a *ScanAdapter) Create(ctx context.Context, scan *entities.ProductScan) error {
	now := time.Now()
	scan.CreatedAt = now
	scan.UpdatedAt = now

	query, args, err := a.db.Insert("product_scans").Rows(goqu.Record{
		"id":                   scan.ID,
		"user_id":              scan.UserID,
		"scan_date":            scan.ScanDate,
		"status":               scan.Status,
		"preferences_hash":     scan.PreferencesHash,
		"total_products_found": scan.TotalProductsFound,
		"new_products_count":   scan.NewProductsCount,
		"new_discounts_count":  scan.NewDiscountsCount,
		"summary":              scan.Summary,
		"created_at":           scan.CreatedAt,
		"updated_at":           scan.UpdatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.conn.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create scan", err)
	}
	return nil
}

// Update updates a scan row
func (a *ScanAdapter) Update(ctx context.Context, scan *entities.ProductScan) error {
	scan.UpdatedAt = time.Now()

	query, args, err := a.db.Update("product_scans").Set(goqu.Record{
		"status":               scan.Status,
		"preferences_hash":     scan.PreferencesHash,
		"total_products_found": scan.TotalProductsFound,
		"new_products_count":   scan.NewProductsCount,
		"new_discounts_count":  scan.NewDiscountsCount,
		"summary":              scan.Summary,
		"updated_at":           scan.UpdatedAt,
	}).Where(goqu.Ex{"id": scan.ID}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update scan", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("scan with id %s not found", scan.ID))
	}
	return nil
}

// GetByUserAndDate retrieves a user's scan for a specific day
func (a *ScanAdapter) GetByUserAndDate(ctx context.Context, userID string, date time.Time) (*entities.ProductScan, error) {
	query, args, err := a.db.Select(scanColumns...).
		From("product_scans").
		Where(goqu.Ex{"user_id": userID, "scan_date": date}).
		Order(goqu.I("created_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	scan, err := scanProductScan(a.conn.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no scan for user %s on %s", userID, date.Format("2006-01-02")))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get scan", err)
	}
	return scan, nil
}

// GetLatestByUser retrieves a user's most recent scan
func (a *ScanAdapter) GetLatestByUser(ctx context.Context, userID string) (*entities.ProductScan, error) {
	query, args, err := a.db.Select(scanColumns...).
		From("product_scans").
		Where(goqu.Ex{"user_id": userID}).
		Order(goqu.I("scan_date").Desc(), goqu.I("created_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	scan, err := scanProductScan(a.conn.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no scans for user %s", userID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get latest scan", err)
	}
	return scan, nil
}

// DeleteResults removes all results attached to a scan
func (a *ScanAdapter) DeleteResults(ctx context.Context, scanID string) error {
	query, args, err := a.db.Delete("scan_results").
		Where(goqu.Ex{"scan_id": scanID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	if _, err := a.conn.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to delete scan results", err)
	}
	return nil
}

// InsertResults bulk inserts scan results
func (a *ScanAdapter) InsertResults(ctx context.Context, results []*entities.ScanResult) error {
	if len(results) == 0 {
		return nil
	}

	now := time.Now()
	records := make([]interface{}, 0, len(results))
	for _, result := range results {
		records = append(records, goqu.Record{
			"id":                       result.ID,
			"scan_id":                  result.ScanID,
			"tracked_term_id":          result.TrackedTermID,
			"search_term":              result.SearchTerm,
			"product_id":               result.ProductID,
			"product_title":            result.ProductTitle,
			"store_id":                 result.StoreID,
			"store_name":               result.StoreName,
			"similarity":               result.Similarity,
			"raw_similarity":           result.RawSimilarity,
			"base_price":               result.BasePrice,
			"discount_price":           result.DiscountPrice,
			"is_new_today":             result.IsNewToday,
			"was_discounted_yesterday": result.WasDiscountedYesterday,
			"price_dropped_today":      result.PriceDroppedToday,
			"created_at":               now,
		})
	}

	query, args, err := a.db.Insert("scan_results").Rows(records...).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.conn.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to insert scan results", err)
	}
	return nil
}

// ListResultsByScan retrieves the results of one scan
func (a *ScanAdapter) ListResultsByScan(ctx context.Context, scanID string) ([]*entities.ScanResult, error) {
	query, args, err := a.db.Select(scanResultColumns...).
		From("scan_results").
		Where(goqu.Ex{"scan_id": scanID}).
		Order(goqu.I("similarity").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.queryResults(ctx, query, args...)
}

// ListResultsByUserSince retrieves a user's results from completed scans
// on or after the given date
func (a *ScanAdapter) ListResultsByUserSince(ctx context.Context, userID string, since time.Time) ([]*entities.ScanResult, error) {
	query, args, err := a.db.Select(qualifyColumns("r", scanResultColumns)...).
		From(goqu.T("scan_results").As("r")).
		Join(
			goqu.T("product_scans").As("s"),
			goqu.On(goqu.Ex{"s.id": goqu.I("r.scan_id")}),
		).
		Where(
			goqu.Ex{"s.user_id": userID, "s.status": entities.ScanStatusCompleted},
			goqu.L("s.scan_date >= ?", since),
		).
		Order(goqu.I("r.similarity").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.queryResults(ctx, query, args...)
}

// YesterdaySnapshot retrieves product price snapshots from the user's
// completed scan of the previous day, keyed by product ID
func (a *ScanAdapter) YesterdaySnapshot(ctx context.Context, userID string, yesterday time.Time) (map[string]entities.PriceSnapshot, error) {
	query, args, err := a.db.Select("r.product_id", "r.base_price", "r.discount_price").
		From(goqu.T("scan_results").As("r")).
		Join(
			goqu.T("product_scans").As("s"),
			goqu.On(goqu.Ex{"s.id": goqu.I("r.scan_id")}),
		).
		Where(goqu.Ex{
			"s.user_id":   userID,
			"s.scan_date": yesterday,
			"s.status":    entities.ScanStatusCompleted,
		}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query snapshot", err)
	}
	defer rows.Close()

	snapshot := make(map[string]entities.PriceSnapshot)
	for rows.Next() {
		var productID string
		var basePrice float64
		var discountPrice *float64

		if err := rows.Scan(&productID, &basePrice, &discountPrice); err != nil {
			return nil, apperrors.NewInternalError("failed to scan snapshot row", err)
		}
		snapshot[productID] = entities.PriceSnapshot{
			BasePrice:     basePrice,
			DiscountPrice: discountPrice,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate snapshot", err)
	}
	return snapshot, nil
}

// ListCompletedByDate retrieves all completed scans for a day
func (a *ScanAdapter) ListCompletedByDate(ctx context.Context, date time.Time) ([]*entities.ProductScan, error) {
	query, args, err := a.db.Select(scanColumns...).
		From("product_scans").
		Where(goqu.Ex{"scan_date": date, "status": entities.ScanStatusCompleted}).
		Order(goqu.I("created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query scans", err)
	}
	defer rows.Close()

	var scans []*entities.ProductScan
	for rows.Next() {
		scan, err := scanProductScan(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan row", err)
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate scans", err)
	}
	return scans, nil
}

func (a *ScanAdapter) queryResults(ctx context.Context, query string, args ...interface{}) ([]*entities.ScanResult, error) {
	rows, err := a.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query scan results", err)
	}
	defer rows.Close()

	var results []*entities.ScanResult
	for rows.Next() {
		result := &entities.ScanResult{}
		err := rows.Scan(
			&result.ID,
			&result.ScanID,
			&result.TrackedTermID,
			&result.SearchTerm,
			&result.ProductID,
			&result.ProductTitle,
			&result.StoreID,
			&result.StoreName,
			&result.Similarity,
			&result.RawSimilarity,
			&result.BasePrice,
			&result.DiscountPrice,
			&result.IsNewToday,
			&result.WasDiscountedYesterday,
			&result.PriceDroppedToday,
			&result.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan result row", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate results", err)
	}
	return results, nil
}
