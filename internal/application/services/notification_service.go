package services

import (
	"context"
	"sort"
	"strings"
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

// weeklyMinSimilarity filters weak matches out of the weekly digest
const weeklyMinSimilarity = 0.5

// weeklyTopPerTerm caps how many products one term contributes to the
// weekly digest
const weeklyTopPerTerm = 3

// dailyTopPerTerm caps how many products one term contributes to the
// daily summary
const dailyTopPerTerm = 2

// summaryEmailTypes are deduped jointly: a user who got a daily summary
// today is not sent a weekly one the same day, and vice versa
var summaryEmailTypes = []entities.EmailType{
	entities.EmailTypeDailyScan,
	entities.EmailTypeWeeklyScan,
}

// reengagementInactivity is how long a user must be inactive before the
// re-engagement campaign picks them up
const reengagementInactivity = 7 * 24 * time.Hour

// DispatchOutcome summarizes one email campaign pass for the job ledger
type DispatchOutcome struct {
	Sent    int
	Failed  int
	Skipped int
}

// NotificationService dispatches the outbound email campaigns. Every
// campaign dedups against the email ledger since local midnight, keyed by
// user ID and by lowercased address, so a re-run of a job never emails
// anyone twice.
type NotificationService struct {
	users    repositories.UserRepository
	scans    repositories.ScanRepository
	products repositories.ProductRepository
	ledger   repositories.EmailNotificationRepository
	mail     providers.MailProvider
	clk      clock.Clock
	cfg      config.ScanConfig
}

// NewNotificationService creates a new notification service
func NewNotificationService(
	users repositories.UserRepository,
	scans repositories.ScanRepository,
	products repositories.ProductRepository,
	ledger repositories.EmailNotificationRepository,
	mail providers.MailProvider,
	clk clock.Clock,
	cfg config.ScanConfig,
) *NotificationService {
	return &NotificationService{
		users:    users,
		scans:    scans,
		products: products,
		ledger:   ledger,
		mail:     mail,
		clk:      clk,
		cfg:      cfg,
	}
}

// SendDailySummaries emails every opted-in user whose scan completed today.
// Users without a completed scan, without an address, or already emailed
// today are skipped.
func (s *NotificationService) SendDailySummaries(ctx context.Context) (DispatchOutcome, error) {
	outcome := DispatchOutcome{}
	today := s.clk.Today()

	sent, err := s.ledger.SentSince(ctx, summaryEmailTypes, today)
	if err != nil {
		return outcome, err
	}

	recipients, err := s.users.ListDailyEmailRecipients(ctx)
	if err != nil {
		return outcome, err
	}

	pacer := clock.NewPacer(s.clk, s.cfg.BetweenEmails)
	for _, user := range recipients {
		address, ok := s.eligible(user, user.EmailPreferences.DailyEmails, entities.EmailTypeDailyScan, sent)
		if !ok {
			outcome.Skipped++
			continue
		}

		scan, err := s.scans.GetByUserAndDate(ctx, user.ID, today)
		if err != nil {
			if apperrors.IsNotFound(err) {
				outcome.Skipped++
				continue
			}
			return outcome, err
		}
		if scan.Status != entities.ScanStatusCompleted {
			outcome.Skipped++
			continue
		}
		// Nothing changed since yesterday, nothing to announce
		if scan.NewProductsCount+scan.NewDiscountsCount == 0 {
			outcome.Skipped++
			continue
		}

		results, err := s.scans.ListResultsByScan(ctx, scan.ID)
		if err != nil {
			return outcome, err
		}

		if err := pacer.Wait(ctx); err != nil {
			return outcome, err
		}

		s.deliver(ctx, &outcome, sent, user, address, entities.EmailTypeDailyScan,
			dailySubject(scan), renderDailyEmail(scan, dailyHighlights(results)),
			map[string]interface{}{"scan_id": scan.ID})
	}

	return outcome, nil
}

// SendWeeklySummaries emails every opted-in user a digest of the last
// seven days of scan results. Weak matches are dropped and each term
// contributes at most its strongest few products.
func (s *NotificationService) SendWeeklySummaries(ctx context.Context) (DispatchOutcome, error) {
	outcome := DispatchOutcome{}
	today := s.clk.Today()

	sent, err := s.ledger.SentSince(ctx, summaryEmailTypes, today)
	if err != nil {
		return outcome, err
	}

	recipients, err := s.users.ListWeeklyEmailRecipients(ctx)
	if err != nil {
		return outcome, err
	}

	pacer := clock.NewPacer(s.clk, s.cfg.BetweenEmails)
	for _, user := range recipients {
		address, ok := s.eligible(user, user.EmailPreferences.WeeklySummary, entities.EmailTypeWeeklyScan, sent)
		if !ok {
			outcome.Skipped++
			continue
		}

		results, err := s.scans.ListResultsByUserSince(ctx, user.ID, today.AddDate(0, 0, -7))
		if err != nil {
			return outcome, err
		}

		highlights := weeklyHighlights(results)
		if len(highlights) == 0 {
			outcome.Skipped++
			continue
		}

		if err := pacer.Wait(ctx); err != nil {
			return outcome, err
		}

		s.deliver(ctx, &outcome, sent, user, address, entities.EmailTypeWeeklyScan,
			"Vaš sedmični pregled akcija", renderWeeklyEmail(highlights), nil)
	}

	return outcome, nil
}

// SendReengagement emails users who have been inactive for a while,
// featuring the current deepest discounts.
func (s *NotificationService) SendReengagement(ctx context.Context) (DispatchOutcome, error) {
	outcome := DispatchOutcome{}
	today := s.clk.Today()

	sent, err := s.ledger.SentSince(ctx, []entities.EmailType{entities.EmailTypeReengagement}, today)
	if err != nil {
		return outcome, err
	}

	candidates, err := s.users.ListReengagementCandidates(ctx, s.clk.Now().Add(-reengagementInactivity))
	if err != nil {
		return outcome, err
	}

	discounts, err := s.products.BestDiscounts(ctx, "", 5)
	if err != nil {
		return outcome, err
	}

	pacer := clock.NewPacer(s.clk, s.cfg.BetweenEmails)
	for _, user := range candidates {
		address, ok := s.eligible(user, user.EmailPreferences.ActivationEmails, entities.EmailTypeReengagement, sent)
		if !ok {
			outcome.Skipped++
			continue
		}

		if err := pacer.Wait(ctx); err != nil {
			return outcome, err
		}

		s.deliver(ctx, &outcome, sent, user, address, entities.EmailTypeReengagement,
			"Nedostajete nam! Pogledajte nove akcije", renderReengagementEmail(discounts, today), nil)
	}

	return outcome, nil
}

// SendStreakBonus emails a single user about a streak milestone reward
func (s *NotificationService) SendStreakBonus(ctx context.Context, user *entities.User, milestone, credits int) error {
	sent, err := s.ledger.SentSince(ctx, []entities.EmailType{entities.EmailTypeStreakBonus}, s.clk.Today())
	if err != nil {
		return err
	}

	address, ok := s.eligible(user, user.EmailPreferences.ActivationEmails, entities.EmailTypeStreakBonus, sent)
	if !ok {
		return nil
	}

	outcome := DispatchOutcome{}
	s.deliver(ctx, &outcome, sent, user, address, entities.EmailTypeStreakBonus,
		streakBonusSubject(milestone), renderStreakBonusEmail(milestone, credits),
		map[string]interface{}{"milestone": milestone, "credits": credits})
	if outcome.Failed > 0 {
		return apperrors.NewInternalError("streak bonus email failed", nil)
	}
	return nil
}

// eligible checks the address, the opt-in flag, and the dedup set. Returns
// the lowercased address when the user can receive the email.
func (s *NotificationService) eligible(user *entities.User, optedIn bool, emailType entities.EmailType, sent repositories.SentSet) (string, bool) {
	if user.Email == nil || *user.Email == "" {
		return "", false
	}
	if !user.EmailNotifications || !optedIn {
		return "", false
	}

	address := strings.ToLower(strings.TrimSpace(*user.Email))
	if sent.Contains(user.ID, address) {
		log.Debug().
			Str("user_id", user.ID).
			Str("email_type", string(emailType)).
			Msg("email skipped, already sent today")
		return "", false
	}
	return address, true
}

// deliver sends one message and appends the outcome to the email ledger.
// A send failure is recorded and counted, never propagated; one bounced
// address must not halt a campaign. Successful sends join the in-run
// dedup set so two users sharing an address get one email.
func (s *NotificationService) deliver(
	ctx context.Context,
	outcome *DispatchOutcome,
	sent repositories.SentSet,
	user *entities.User,
	address string,
	emailType entities.EmailType,
	subject, html string,
	extra map[string]interface{},
) {
	row := &entities.EmailNotification{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Email:     address,
		EmailType: emailType,
		Subject:   subject,
		SentAt:    s.clk.Now(),
		ExtraData: extra,
	}

	_, err := s.mail.Send(ctx, providers.MailMessage{To: address, Subject: subject, HTML: html})
	if err != nil {
		outcome.Failed++
		msg := err.Error()
		row.Status = entities.EmailStatusFailed
		row.ErrorMessage = &msg
		log.Error().Err(err).Str("user_id", user.ID).Str("email_type", string(emailType)).Msg("email send failed")
	} else {
		outcome.Sent++
		row.Status = entities.EmailStatusSent
		if sent.UserIDs != nil {
			sent.UserIDs[user.ID] = struct{}{}
		}
		if sent.Emails != nil {
			sent.Emails[address] = struct{}{}
		}
	}

	if logErr := s.ledger.Log(ctx, row); logErr != nil {
		log.Error().Err(logErr).Str("user_id", user.ID).Msg("failed to log email notification")
	}
}

// termHighlight groups one search term's best results for an email
type termHighlight struct {
	Term    string
	Results []*entities.ScanResult
}

// groupByTerm buckets results per search term, deduped by product,
// preserving first-appearance term order
func groupByTerm(results []*entities.ScanResult, include func(*entities.ScanResult) bool) (map[string][]*entities.ScanResult, []string) {
	seen := make(map[string]struct{})
	byTerm := make(map[string][]*entities.ScanResult)
	var termOrder []string

	for _, result := range results {
		if !include(result) {
			continue
		}
		key := result.SearchTerm + "|" + result.ProductID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if _, known := byTerm[result.SearchTerm]; !known {
			termOrder = append(termOrder, result.SearchTerm)
		}
		byTerm[result.SearchTerm] = append(byTerm[result.SearchTerm], result)
	}
	return byTerm, termOrder
}

// weeklyHighlights dedups a week of results by term and product, drops
// weak matches, and keeps each term's top products by similarity
func weeklyHighlights(results []*entities.ScanResult) []termHighlight {
	byTerm, termOrder := groupByTerm(results, func(r *entities.ScanResult) bool {
		return r.Similarity >= weeklyMinSimilarity
	})

	highlights := make([]termHighlight, 0, len(termOrder))
	for _, term := range termOrder {
		group := byTerm[term]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Similarity > group[j].Similarity
		})
		if len(group) > weeklyTopPerTerm {
			group = group[:weeklyTopPerTerm]
		}
		highlights = append(highlights, termHighlight{Term: term, Results: group})
	}
	return highlights
}

// dailyHighlights keeps today's fresh results, grouped per term with the
// cheapest couple of products first
func dailyHighlights(results []*entities.ScanResult) []termHighlight {
	byTerm, termOrder := groupByTerm(results, func(r *entities.ScanResult) bool {
		return r.IsNewToday || r.PriceDroppedToday ||
			(r.DiscountPrice != nil && !r.WasDiscountedYesterday)
	})

	highlights := make([]termHighlight, 0, len(termOrder))
	for _, term := range termOrder {
		group := byTerm[term]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].EffectivePrice() < group[j].EffectivePrice()
		})
		if len(group) > dailyTopPerTerm {
			group = group[:dailyTopPerTerm]
		}
		highlights = append(highlights, termHighlight{Term: term, Results: group})
	}
	return highlights
}
