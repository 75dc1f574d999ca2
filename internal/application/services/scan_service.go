package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/providers"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

// ScanOutcome summarizes one ScanAllUsers pass for the job ledger
type ScanOutcome struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
}

// ScanService runs the per-user product scan pipeline: tracked terms are
// searched semantically, hits are diffed against yesterday's completed
// scan, and the result set replaces any earlier scan of the same day.
type ScanService struct {
	users  repositories.UserRepository
	scans  repositories.ScanRepository
	prefs  *PreferenceService
	search providers.SemanticSearchProvider
	bus    providers.EventBus
	clk    clock.Clock
	cfg    config.ScanConfig
}

// NewScanService creates a new scan service
func NewScanService(
	users repositories.UserRepository,
	scans repositories.ScanRepository,
	prefs *PreferenceService,
	search providers.SemanticSearchProvider,
	bus providers.EventBus,
	clk clock.Clock,
	cfg config.ScanConfig,
) *ScanService {
	return &ScanService{
		users:  users,
		scans:  scans,
		prefs:  prefs,
		search: search,
		bus:    bus,
		clk:    clk,
		cfg:    cfg,
	}
}

// ScanAllUsers scans every eligible user, least recently scanned first.
// A fixed pause runs between users so the search and embedding upstreams
// are never hammered. One user failing never aborts the pass.
func (s *ScanService) ScanAllUsers(ctx context.Context) (ScanOutcome, error) {
	today := s.clk.Today()
	outcome := ScanOutcome{}

	users, err := s.users.ListScanCandidates(ctx, today)
	if err != nil {
		return outcome, err
	}

	pacer := clock.NewPacer(s.clk, s.cfg.BetweenUsers)
	for _, user := range users {
		if err := pacer.Wait(ctx); err != nil {
			return outcome, err
		}

		outcome.Processed++
		scan, err := s.ScanUser(ctx, user)
		switch {
		case err != nil:
			outcome.Failed++
			log.Error().Err(err).Str("user_id", user.ID).Msg("user scan failed")
		case scan == nil:
			outcome.Skipped++
		default:
			outcome.Succeeded++
		}
	}

	return outcome, nil
}

// ScanUser runs one user's scan for today. Returns (nil, nil) when the
// scan is skipped because a completed scan with the same preference
// fingerprint already exists for today. Tracked terms are re-derived
// only when the fingerprint moved since the most recent scan or no
// active terms exist; otherwise the stored terms are reused without
// touching the extractor.
func (s *ScanService) ScanUser(ctx context.Context, user *entities.User) (*entities.ProductScan, error) {
	today := s.clk.Today()
	fingerprint := Fingerprint(user.Prefs())

	latest, err := s.scans.GetLatestByUser(ctx, user.ID)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}

	var existing *entities.ProductScan
	priorFingerprint := ""
	if latest != nil {
		priorFingerprint = latest.PreferencesHash
		if clock.Midnight(latest.ScanDate).Equal(today) {
			existing = latest
		}
	}
	if existing != nil &&
		existing.Status == entities.ScanStatusCompleted &&
		existing.PreferencesHash == fingerprint {
		log.Debug().Str("user_id", user.ID).Msg("scan skipped, fingerprint unchanged")
		return nil, nil
	}

	terms, err := s.prefs.TrackedTermsFor(ctx, user, priorFingerprint)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		log.Debug().Str("user_id", user.ID).Msg("scan skipped, no tracked terms")
		return nil, nil
	}

	scan := existing
	if scan == nil {
		scan = &entities.ProductScan{
			ID:       uuid.New().String(),
			UserID:   user.ID,
			ScanDate: today,
		}
		scan.Status = entities.ScanStatusRunning
		scan.PreferencesHash = fingerprint
		if err := s.scans.Create(ctx, scan); err != nil {
			return nil, err
		}
	} else {
		scan.Status = entities.ScanStatusRunning
		scan.PreferencesHash = fingerprint
		if err := s.scans.Update(ctx, scan); err != nil {
			return nil, err
		}
	}

	results, err := s.collectResults(ctx, user, scan, terms, today)
	if err != nil {
		scan.Status = entities.ScanStatusFailed
		scan.Summary = ""
		if updateErr := s.scans.Update(ctx, scan); updateErr != nil {
			log.Error().Err(updateErr).Str("scan_id", scan.ID).Msg("failed to mark scan failed")
		}
		s.publish(ctx, user.ID, scan, entities.ScanEventFailed)
		return nil, err
	}

	totals := tallyResults(results)
	scan.Status = entities.ScanStatusCompleted
	scan.TotalProductsFound = totals.products
	scan.NewProductsCount = totals.newProducts
	scan.NewDiscountsCount = totals.newDiscounts
	scan.Summary = ScanSummary(totals.newProducts, totals.newDiscounts)

	// Same-day re-runs replace results instead of accumulating them
	if err := s.scans.DeleteResults(ctx, scan.ID); err != nil {
		return nil, err
	}
	if err := s.scans.InsertResults(ctx, results); err != nil {
		return nil, err
	}
	if err := s.scans.Update(ctx, scan); err != nil {
		return nil, err
	}

	s.publish(ctx, user.ID, scan, entities.ScanEventCompleted)

	log.Info().
		Str("user_id", user.ID).
		Int("products", totals.products).
		Int("new_products", totals.newProducts).
		Int("new_discounts", totals.newDiscounts).
		Msg("user scan completed")
	return scan, nil
}

func (s *ScanService) collectResults(
	ctx context.Context,
	user *entities.User,
	scan *entities.ProductScan,
	terms []*entities.TrackedTerm,
	today time.Time,
) ([]*entities.ScanResult, error) {
	yesterday, err := s.scans.YesterdaySnapshot(ctx, user.ID, today.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}

	pacer := clock.NewPacer(s.clk, s.cfg.BetweenSearchTerms)
	var results []*entities.ScanResult

	// One failing term does not sink the scan; the scan fails only when
	// every term does
	failedTerms := 0
	var lastErr error

	for _, term := range terms {
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}

		hits, err := s.search.Search(ctx, providers.SearchQuery{
			Term:            term.SearchTerm,
			UserID:          user.ID,
			TopK:            s.cfg.TopK,
			MinSimilarity:   s.cfg.MinSimilarity,
			PreferredStores: user.PreferredStores,
			ContextWeight:   s.cfg.ContextWeight,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			failedTerms++
			lastErr = err
			log.Warn().Err(err).Str("term", term.SearchTerm).Msg("term search failed")
			continue
		}

		for _, hit := range hits {
			if hit.Combined < s.cfg.MatchThreshold {
				continue
			}
			results = append(results, buildResult(scan.ID, term, hit, yesterday, today))
		}
	}

	if failedTerms > 0 && failedTerms == len(terms) {
		return nil, fmt.Errorf("all %d term searches failed: %w", len(terms), lastErr)
	}
	return results, nil
}

// buildResult snapshots one hit and computes its day-over-day flags. A
// discount that expired before today counts as no discount at all.
func buildResult(
	scanID string,
	term *entities.TrackedTerm,
	hit providers.ProductHit,
	yesterday map[string]entities.PriceSnapshot,
	today time.Time,
) *entities.ScanResult {
	discount := hit.DiscountPrice
	if discount != nil && hit.DiscountExpires != nil && hit.DiscountExpires.Before(today) {
		discount = nil
	}

	result := &entities.ScanResult{
		ID:            uuid.New().String(),
		ScanID:        scanID,
		TrackedTermID: term.ID,
		SearchTerm:    term.SearchTerm,
		ProductID:     hit.ProductID,
		ProductTitle:  hit.Title,
		StoreID:       hit.StoreID,
		StoreName:     hit.StoreName,
		Similarity:    hit.Combined,
		RawSimilarity: hit.Similarity,
		BasePrice:     hit.BasePrice,
		DiscountPrice: discount,
	}

	snapshot, seenYesterday := yesterday[hit.ProductID]
	result.IsNewToday = !seenYesterday
	if seenYesterday {
		result.WasDiscountedYesterday = snapshot.DiscountPrice != nil
		result.PriceDroppedToday = result.EffectivePrice() < snapshot.EffectivePrice()
	}

	return result
}

type scanTotals struct {
	products     int
	newProducts  int
	newDiscounts int
}

// tallyResults counts unique products across all terms so a product hit
// by two terms is counted once
func tallyResults(results []*entities.ScanResult) scanTotals {
	seen := make(map[string]struct{})
	newSeen := make(map[string]struct{})
	discountSeen := make(map[string]struct{})
	totals := scanTotals{}

	for _, result := range results {
		if _, dup := seen[result.ProductID]; !dup {
			seen[result.ProductID] = struct{}{}
			totals.products++
		}
		if result.IsNewToday {
			if _, dup := newSeen[result.ProductID]; !dup {
				newSeen[result.ProductID] = struct{}{}
				totals.newProducts++
			}
		}
		if result.DiscountPrice != nil && !result.WasDiscountedYesterday {
			if _, dup := discountSeen[result.ProductID]; !dup {
				discountSeen[result.ProductID] = struct{}{}
				totals.newDiscounts++
			}
		}
	}
	return totals
}

// ScanSummary renders the Bosnian one-line scan summary with correct
// paucal agreement
func ScanSummary(newProducts, newDiscounts int) string {
	if newProducts == 0 && newDiscounts == 0 {
		return "Bez promjena od jučer"
	}

	var parts []string
	if newProducts > 0 {
		parts = append(parts, bosnianNewProducts(newProducts))
	}
	if newDiscounts > 0 {
		parts = append(parts, bosnianNewDiscounts(newDiscounts))
	}

	summary := parts[0]
	if len(parts) == 2 {
		summary = parts[0] + " i " + parts[1]
	}
	return summary
}

// paucal reports whether n takes the Bosnian paucal form (2-4, 22-24,
// but not 12-14)
func paucal(n int) bool {
	if n%100 >= 12 && n%100 <= 14 {
		return false
	}
	return n%10 >= 2 && n%10 <= 4
}

func bosnianNewProducts(n int) string {
	switch {
	case n == 1:
		return "1 novi proizvod"
	case paucal(n):
		return fmt.Sprintf("%d nova proizvoda", n)
	default:
		return fmt.Sprintf("%d novih proizvoda", n)
	}
}

func bosnianNewDiscounts(n int) string {
	switch {
	case n == 1:
		return "1 nova akcija"
	case paucal(n):
		return fmt.Sprintf("%d nove akcije", n)
	default:
		return fmt.Sprintf("%d novih akcija", n)
	}
}

func (s *ScanService) publish(ctx context.Context, userID string, scan *entities.ProductScan, eventType entities.ScanEventType) {
	if s.bus == nil {
		return
	}

	event := &entities.ScanEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		UserID:       userID,
		ScanID:       scan.ID,
		NewProducts:  scan.NewProductsCount,
		NewDiscounts: scan.NewDiscountsCount,
		Timestamp:    s.clk.Now(),
	}

	if err := s.bus.Publish(ctx, providers.EventChannelScanUpdates, event); err != nil {
		log.Warn().Err(err).Str("scan_id", scan.ID).Msg("failed to publish scan event")
	}
	if err := s.bus.Publish(ctx, providers.GetUserChannel(userID), event); err != nil {
		log.Warn().Err(err).Str("scan_id", scan.ID).Msg("failed to publish user scan event")
	}
}
