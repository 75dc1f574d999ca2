package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/postgres"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

// TrackedTermAdapter implements TrackedTermRepository
type TrackedTermAdapter struct {
	conn *sql.DB
	db   *goqu.Database
}

// NewTrackedTermAdapter creates a new tracked term adapter
func NewTrackedTermAdapter(client *postgres.Client) repositories.TrackedTermRepository {
	return &TrackedTermAdapter{
		conn: client.DB(),
		db:   goqu.New("postgres", client.DB()),
	}
}

// ListActiveByUser retrieves a user's active tracked terms
func (a *TrackedTermAdapter) ListActiveByUser(ctx context.Context, userID string) ([]*entities.TrackedTerm, error) {
	query, args, err := a.db.Select(
		"id", "user_id", "search_term", "original_text", "source",
		"is_active", "created_at", "updated_at",
	).From("tracked_terms").
		Where(goqu.Ex{"user_id": userID, "is_active": true}).
		Order(goqu.I("created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list tracked terms", err)
	}
	defer rows.Close()

	var terms []*entities.TrackedTerm
	for rows.Next() {
		term := &entities.TrackedTerm{}
		err := rows.Scan(
			&term.ID,
			&term.UserID,
			&term.SearchTerm,
			&term.OriginalText,
			&term.Source,
			&term.IsActive,
			&term.CreatedAt,
			&term.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan tracked term", err)
		}
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate tracked terms", err)
	}
	return terms, nil
}

// UpsertBatch inserts terms, reactivating existing ones on conflict
func (a *TrackedTermAdapter) UpsertBatch(ctx context.Context, terms []*entities.TrackedTerm) error {
	if len(terms) == 0 {
		return nil
	}

	now := time.Now()
	records := make([]interface{}, 0, len(terms))
	for _, term := range terms {
		records = append(records, goqu.Record{
			"id":            term.ID,
			"user_id":       term.UserID,
			"search_term":   term.SearchTerm,
			"original_text": term.OriginalText,
			"source":        term.Source,
			"is_active":     true,
			"created_at":    now,
			"updated_at":    now,
		})
	}

	query, args, err := a.db.Insert("tracked_terms").
		Rows(records...).
		OnConflict(goqu.DoUpdate("user_id, search_term", goqu.Record{
			"original_text": goqu.L("EXCLUDED.original_text"),
			"source":        goqu.L("EXCLUDED.source"),
			"is_active":     true,
			"updated_at":    now,
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	if _, err := a.conn.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to upsert tracked terms", err)
	}
	return nil
}

// DeactivateMissing deactivates the user's auto-extracted terms not in keep
func (a *TrackedTermAdapter) DeactivateMissing(ctx context.Context, userID string, keep []string) error {
	ds := a.db.Update("tracked_terms").
		Set(goqu.Record{"is_active": false, "updated_at": time.Now()}).
		Where(goqu.Ex{
			"user_id":   userID,
			"source":    entities.TermSourceAutoExtracted,
			"is_active": true,
		})

	if len(keep) > 0 {
		ds = ds.Where(goqu.L("NOT (search_term = ANY(?))", pq.Array(keep)))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build deactivate query", err)
	}

	if _, err := a.conn.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to deactivate tracked terms", err)
	}
	return nil
}
