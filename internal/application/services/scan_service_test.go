package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/providers"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

func floatPtr(f float64) *float64 { return &f }

type fakeTermRepo struct {
	active map[string][]*entities.TrackedTerm
}

func newFakeTermRepo() *fakeTermRepo {
	return &fakeTermRepo{active: make(map[string][]*entities.TrackedTerm)}
}

func (r *fakeTermRepo) ListActiveByUser(ctx context.Context, userID string) ([]*entities.TrackedTerm, error) {
	return r.active[userID], nil
}

func (r *fakeTermRepo) UpsertBatch(ctx context.Context, terms []*entities.TrackedTerm) error {
	for _, term := range terms {
		exists := false
		for _, current := range r.active[term.UserID] {
			if current.SearchTerm == term.SearchTerm {
				exists = true
				break
			}
		}
		if !exists {
			r.active[term.UserID] = append(r.active[term.UserID], term)
		}
	}
	return nil
}

func (r *fakeTermRepo) DeactivateMissing(ctx context.Context, userID string, keep []string) error {
	keepSet := make(map[string]struct{}, len(keep))
	for _, term := range keep {
		keepSet[term] = struct{}{}
	}
	var remaining []*entities.TrackedTerm
	for _, term := range r.active[userID] {
		if term.Source != entities.TermSourceAutoExtracted {
			remaining = append(remaining, term)
			continue
		}
		if _, ok := keepSet[term.SearchTerm]; ok {
			remaining = append(remaining, term)
		}
	}
	r.active[userID] = remaining
	return nil
}

type fakeScanRepo struct {
	scans     map[string]*entities.ProductScan
	results   map[string][]*entities.ScanResult
	yesterday map[string]entities.PriceSnapshot
}

func newFakeScanRepo() *fakeScanRepo {
	return &fakeScanRepo{
		scans:     make(map[string]*entities.ProductScan),
		results:   make(map[string][]*entities.ScanResult),
		yesterday: make(map[string]entities.PriceSnapshot),
	}
}

func (r *fakeScanRepo) Create(ctx context.Context, scan *entities.ProductScan) error {
	copied := *scan
	r.scans[scan.ID] = &copied
	return nil
}

func (r *fakeScanRepo) Update(ctx context.Context, scan *entities.ProductScan) error {
	copied := *scan
	r.scans[scan.ID] = &copied
	return nil
}

func (r *fakeScanRepo) GetByUserAndDate(ctx context.Context, userID string, date time.Time) (*entities.ProductScan, error) {
	for _, scan := range r.scans {
		if scan.UserID == userID && scan.ScanDate.Equal(date) {
			copied := *scan
			return &copied, nil
		}
	}
	return nil, apperrors.NewNotFoundError("no scan")
}

func (r *fakeScanRepo) GetLatestByUser(ctx context.Context, userID string) (*entities.ProductScan, error) {
	var latest *entities.ProductScan
	for _, scan := range r.scans {
		if scan.UserID != userID {
			continue
		}
		if latest == nil || scan.ScanDate.After(latest.ScanDate) {
			latest = scan
		}
	}
	if latest == nil {
		return nil, apperrors.NewNotFoundError("no scans")
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeScanRepo) DeleteResults(ctx context.Context, scanID string) error {
	delete(r.results, scanID)
	return nil
}

func (r *fakeScanRepo) InsertResults(ctx context.Context, results []*entities.ScanResult) error {
	for _, result := range results {
		r.results[result.ScanID] = append(r.results[result.ScanID], result)
	}
	return nil
}

func (r *fakeScanRepo) ListResultsByScan(ctx context.Context, scanID string) ([]*entities.ScanResult, error) {
	return r.results[scanID], nil
}

func (r *fakeScanRepo) ListResultsByUserSince(ctx context.Context, userID string, since time.Time) ([]*entities.ScanResult, error) {
	var out []*entities.ScanResult
	for scanID, results := range r.results {
		scan := r.scans[scanID]
		if scan == nil || scan.UserID != userID || scan.ScanDate.Before(since) {
			continue
		}
		out = append(out, results...)
	}
	return out, nil
}

func (r *fakeScanRepo) YesterdaySnapshot(ctx context.Context, userID string, yesterday time.Time) (map[string]entities.PriceSnapshot, error) {
	return r.yesterday, nil
}

func (r *fakeScanRepo) ListCompletedByDate(ctx context.Context, date time.Time) ([]*entities.ProductScan, error) {
	var out []*entities.ProductScan
	for _, scan := range r.scans {
		if scan.ScanDate.Equal(date) && scan.Status == entities.ScanStatusCompleted {
			out = append(out, scan)
		}
	}
	return out, nil
}

type fakeSearch struct {
	hits     map[string][]providers.ProductHit
	err      error
	errTerms map[string]error
}

func (s *fakeSearch) Search(ctx context.Context, query providers.SearchQuery) ([]providers.ProductHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err, ok := s.errTerms[query.Term]; ok {
		return nil, err
	}
	return s.hits[query.Term], nil
}

type fakeUserRepo struct {
	candidates []*entities.User
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*entities.User, error) {
	return nil, apperrors.NewNotFoundError("not implemented")
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	return nil, apperrors.NewNotFoundError("not implemented")
}

func (r *fakeUserRepo) Update(ctx context.Context, user *entities.User) error { return nil }

func (r *fakeUserRepo) ListScanCandidates(ctx context.Context, today time.Time) ([]*entities.User, error) {
	return r.candidates, nil
}

func (r *fakeUserRepo) ListDailyEmailRecipients(ctx context.Context) ([]*entities.User, error) {
	return r.candidates, nil
}

func (r *fakeUserRepo) ListWeeklyEmailRecipients(ctx context.Context) ([]*entities.User, error) {
	return r.candidates, nil
}

func (r *fakeUserRepo) ListReengagementCandidates(ctx context.Context, inactiveSince time.Time) ([]*entities.User, error) {
	return r.candidates, nil
}

func testScanConfig() config.ScanConfig {
	return config.ScanConfig{
		MatchThreshold:     0.45,
		MinSimilarity:      0.25,
		TopK:               10,
		ContextWeight:      0.20,
		BetweenUsers:       2 * time.Second,
		BetweenSearchTerms: 500 * time.Millisecond,
		BetweenEmails:      500 * time.Millisecond,
	}
}

func testUser(id string, interests ...string) *entities.User {
	return &entities.User{
		ID:               id,
		GroceryInterests: interests,
	}
}

func newScanHarness(hits map[string][]providers.ProductHit) (*ScanService, *fakeScanRepo, *clock.FakeClock) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC))
	scans := newFakeScanRepo()
	prefs := NewPreferenceService(newFakeTermRepo(), nil)
	svc := NewScanService(
		&fakeUserRepo{},
		scans,
		prefs,
		&fakeSearch{hits: hits},
		nil,
		fc,
		testScanConfig(),
	)
	return svc, scans, fc
}

func TestScanUser_NewProductFlaggedAndCounted(t *testing.T) {
	svc, scans, _ := newScanHarness(map[string][]providers.ProductHit{
		"mlijeko": {
			{ProductID: "p-1", Title: "Mlijeko 1l", StoreName: "Bingo", BasePrice: 2.5, Similarity: 0.8, Combined: 0.8},
		},
	})

	scan, err := svc.ScanUser(context.Background(), testUser("u-1", "mlijeko"))
	require.NoError(t, err)
	require.NotNil(t, scan)

	assert.Equal(t, entities.ScanStatusCompleted, scan.Status)
	assert.Equal(t, 1, scan.TotalProductsFound)
	assert.Equal(t, 1, scan.NewProductsCount)
	assert.Equal(t, "1 novi proizvod", scan.Summary)

	results := scans.results[scan.ID]
	require.Len(t, results, 1)
	assert.True(t, results[0].IsNewToday)
	assert.False(t, results[0].WasDiscountedYesterday)
}

func TestScanUser_BelowThresholdDropped(t *testing.T) {
	svc, scans, _ := newScanHarness(map[string][]providers.ProductHit{
		"mlijeko": {
			{ProductID: "p-1", Similarity: 0.40, Combined: 0.40},
			{ProductID: "p-2", Similarity: 0.50, Combined: 0.50},
		},
	})

	scan, err := svc.ScanUser(context.Background(), testUser("u-1", "mlijeko"))
	require.NoError(t, err)
	require.NotNil(t, scan)

	results := scans.results[scan.ID]
	require.Len(t, results, 1)
	assert.Equal(t, "p-2", results[0].ProductID)
}

func TestScanUser_DiscountDiffAgainstYesterday(t *testing.T) {
	svc, scans, _ := newScanHarness(map[string][]providers.ProductHit{
		"mlijeko": {
			{ProductID: "p-old", BasePrice: 3.0, DiscountPrice: floatPtr(2.0), Similarity: 0.7, Combined: 0.7},
			{ProductID: "p-drop", BasePrice: 3.0, DiscountPrice: floatPtr(1.5), Similarity: 0.7, Combined: 0.7},
		},
	})
	scans.yesterday = map[string]entities.PriceSnapshot{
		"p-old":  {BasePrice: 3.0, DiscountPrice: floatPtr(2.0)},
		"p-drop": {BasePrice: 3.0},
	}

	scan, err := svc.ScanUser(context.Background(), testUser("u-1", "mlijeko"))
	require.NoError(t, err)
	require.NotNil(t, scan)

	byID := make(map[string]*entities.ScanResult)
	for _, result := range scans.results[scan.ID] {
		byID[result.ProductID] = result
	}

	require.Contains(t, byID, "p-old")
	assert.False(t, byID["p-old"].IsNewToday)
	assert.True(t, byID["p-old"].WasDiscountedYesterday)
	assert.False(t, byID["p-old"].PriceDroppedToday)

	require.Contains(t, byID, "p-drop")
	assert.False(t, byID["p-drop"].IsNewToday)
	assert.False(t, byID["p-drop"].WasDiscountedYesterday)
	assert.True(t, byID["p-drop"].PriceDroppedToday)

	// p-drop newly went on discount, p-old was already discounted
	assert.Equal(t, 1, scan.NewDiscountsCount)
	assert.Equal(t, 0, scan.NewProductsCount)
}

func TestScanUser_ExpiredDiscountTreatedAsNone(t *testing.T) {
	lastWeek := time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)
	svc, scans, _ := newScanHarness(map[string][]providers.ProductHit{
		"mlijeko": {
			{ProductID: "p-1", BasePrice: 3.0, DiscountPrice: floatPtr(2.0), DiscountExpires: &lastWeek, Similarity: 0.7, Combined: 0.7},
		},
	})

	scan, err := svc.ScanUser(context.Background(), testUser("u-1", "mlijeko"))
	require.NoError(t, err)
	require.NotNil(t, scan)

	results := scans.results[scan.ID]
	require.Len(t, results, 1)
	assert.Nil(t, results[0].DiscountPrice)
	assert.Equal(t, 0, scan.NewDiscountsCount)
}

func TestScanUser_SkipsWhenFingerprintUnchanged(t *testing.T) {
	user := testUser("u-1", "mlijeko")
	svc, scans, fc := newScanHarness(map[string][]providers.ProductHit{
		"mlijeko": {
			{ProductID: "p-1", Similarity: 0.8, Combined: 0.8},
		},
	})

	first, err := svc.ScanUser(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.ScanUser(context.Background(), user)
	require.NoError(t, err)
	assert.Nil(t, second, "same-day scan with unchanged preferences should be skipped")

	// Changing preferences re-runs and replaces the day's results
	user.GroceryInterests = []string{"mlijeko", "jogurt"}
	third, err := svc.ScanUser(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, first.ID, third.ID, "same-day re-scan reuses the scan row")
	assert.Len(t, scans.results[third.ID], 1)

	_ = fc
}

type countingExtractor struct {
	terms []string
	calls int
}

func (c *countingExtractor) ExtractTerms(ctx context.Context, phrases []string) ([]string, error) {
	c.calls++
	return c.terms, nil
}

func TestScanUser_UnchangedFingerprintReusesTermsWithoutExtractor(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC))
	user := testUser("u-1", "mlijeko")

	terms := newFakeTermRepo()
	terms.active["u-1"] = []*entities.TrackedTerm{
		{ID: "t-1", UserID: "u-1", SearchTerm: "mlijeko", Source: entities.TermSourceAutoExtracted, IsActive: true},
	}
	scans := newFakeScanRepo()
	scans.scans["s-old"] = &entities.ProductScan{
		ID:              "s-old",
		UserID:          "u-1",
		ScanDate:        fc.Today().AddDate(0, 0, -1),
		Status:          entities.ScanStatusCompleted,
		PreferencesHash: Fingerprint(user.Prefs()),
	}

	extractor := &countingExtractor{terms: []string{"mlijeko"}}
	prefs := NewPreferenceService(terms, extractor)
	search := &fakeSearch{hits: map[string][]providers.ProductHit{
		"mlijeko": {{ProductID: "p-1", Similarity: 0.8, Combined: 0.8}},
	}}
	svc := NewScanService(&fakeUserRepo{}, scans, prefs, search, nil, fc, testScanConfig())

	scan, err := svc.ScanUser(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, scan)
	assert.Zero(t, extractor.calls, "unchanged preferences must not re-run term extraction")

	// A preference change moves the fingerprint and re-derives terms
	user.GroceryInterests = []string{"mlijeko", "jogurt"}
	_, err = svc.ScanUser(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 1, extractor.calls)
}

func TestScanUser_OneFailingTermDoesNotSinkScan(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC))
	scans := newFakeScanRepo()
	prefs := NewPreferenceService(newFakeTermRepo(), nil)
	search := &fakeSearch{
		hits: map[string][]providers.ProductHit{
			"mlijeko": {{ProductID: "p-1", Similarity: 0.8, Combined: 0.8}},
		},
		errTerms: map[string]error{"jogurt": errors.New("search timeout")},
	}
	svc := NewScanService(&fakeUserRepo{}, scans, prefs, search, nil, fc, testScanConfig())

	scan, err := svc.ScanUser(context.Background(), testUser("u-1", "mlijeko i jogurt"))
	require.NoError(t, err)
	require.NotNil(t, scan)
	assert.Equal(t, entities.ScanStatusCompleted, scan.Status)
	require.Len(t, scans.results[scan.ID], 1)
}

func TestScanUser_FailureMarksScanFailed(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC))
	scans := newFakeScanRepo()
	prefs := NewPreferenceService(newFakeTermRepo(), nil)
	svc := NewScanService(
		&fakeUserRepo{},
		scans,
		prefs,
		&fakeSearch{err: errors.New("search down")},
		nil,
		fc,
		testScanConfig(),
	)

	_, err := svc.ScanUser(context.Background(), testUser("u-1", "mlijeko"))
	require.Error(t, err)

	var failed *entities.ProductScan
	for _, scan := range scans.scans {
		failed = scan
	}
	require.NotNil(t, failed)
	assert.Equal(t, entities.ScanStatusFailed, failed.Status)
}

func TestScanAllUsers_PacesBetweenUsers(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC))
	scans := newFakeScanRepo()
	prefs := NewPreferenceService(newFakeTermRepo(), nil)
	users := &fakeUserRepo{candidates: []*entities.User{
		testUser("u-1", "mlijeko"),
		testUser("u-2", "jogurt"),
		testUser("u-3", "hljeb"),
	}}
	svc := NewScanService(users, scans, prefs, &fakeSearch{}, nil, fc, testScanConfig())

	outcome, err := svc.ScanAllUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Processed)

	// Two inter-user gaps of 2s each; per-term pacing never sleeps on the
	// first term of a user
	var total time.Duration
	for _, d := range fc.SleptFor {
		total += d
	}
	assert.Equal(t, 4*time.Second, total)
}

func TestScanAllUsers_OneFailureDoesNotAbort(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC))
	scans := newFakeScanRepo()
	prefs := NewPreferenceService(newFakeTermRepo(), nil)
	users := &fakeUserRepo{candidates: []*entities.User{
		testUser("u-1", "mlijeko"),
		testUser("u-2", "jogurt"),
	}}

	search := &fakeSearch{err: errors.New("search down")}
	svc := NewScanService(users, scans, prefs, search, nil, fc, testScanConfig())

	outcome, err := svc.ScanAllUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Processed)
	assert.Equal(t, 2, outcome.Failed)
}

func TestScanSummary(t *testing.T) {
	tests := []struct {
		newProducts  int
		newDiscounts int
		want         string
	}{
		{0, 0, "Bez promjena od jučer"},
		{1, 0, "1 novi proizvod"},
		{2, 0, "2 nova proizvoda"},
		{4, 0, "4 nova proizvoda"},
		{5, 0, "5 novih proizvoda"},
		{12, 0, "12 novih proizvoda"},
		{22, 0, "22 nova proizvoda"},
		{0, 1, "1 nova akcija"},
		{0, 3, "3 nove akcije"},
		{0, 7, "7 novih akcija"},
		{2, 5, "2 nova proizvoda i 5 novih akcija"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ScanSummary(tt.newProducts, tt.newDiscounts))
	}
}
