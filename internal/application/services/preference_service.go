package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/providers"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
)

// diacriticFold maps Bosnian diacritics to their ASCII base letters
var diacriticFold = strings.NewReplacer(
	"č", "c", "ć", "c", "š", "s", "ž", "z", "đ", "d",
	"Č", "c", "Ć", "c", "Š", "s", "Ž", "z", "Đ", "d",
)

// genericTerms name no concrete product and are dropped during
// normalization
var genericTerms = map[string]struct{}{
	"hrana":      {},
	"proizvod":   {},
	"proizvodi":  {},
	"namirnice":  {},
	"namirnica":  {},
	"artikli":    {},
	"artikal":    {},
	"akcija":     {},
	"akcije":     {},
	"popust":     {},
	"popusti":    {},
	"kupovina":   {},
	"sve":        {},
	"svasta":     {},
	"ostalo":     {},
}

// typoFixes corrects frequent misspellings after diacritic folding
var typoFixes = map[string]string{
	"mljeko":   "mlijeko",
	"jagurt":   "jogurt",
	"cokalada": "cokolada",
	"hleb":     "hljeb",
	"kava":     "kafa",
}

// PreferenceService turns free-text user preferences into normalized
// tracked terms and computes the preference fingerprint that gates scans.
type PreferenceService struct {
	terms     repositories.TrackedTermRepository
	extractor providers.TermExtractor
}

// NewPreferenceService creates a new preference service
func NewPreferenceService(terms repositories.TrackedTermRepository, extractor providers.TermExtractor) *PreferenceService {
	return &PreferenceService{terms: terms, extractor: extractor}
}

// NormalizeTerm lowercases a phrase, strips diacritics, fixes common
// misspellings, and collapses whitespace. Returns "" for phrases that
// normalize to a generic term.
func NormalizeTerm(raw string) string {
	term := strings.ToLower(strings.TrimSpace(raw))
	term = diacriticFold.Replace(term)

	words := strings.Fields(term)
	for i, word := range words {
		if fixed, ok := typoFixes[word]; ok {
			words[i] = fixed
		}
	}
	term = strings.Join(words, " ")

	if _, generic := genericTerms[term]; generic {
		return ""
	}
	return term
}

// SplitCompound splits a preference phrase on the Bosnian conjunction
// " i " so "mlijeko i jogurt" yields two terms
func SplitCompound(phrase string) []string {
	parts := strings.Split(" "+phrase+" ", " i ")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// NormalizePhrases runs the full rule-based pipeline: compound split,
// diacritic fold, generic drop, dedupe. Order of first appearance wins.
func NormalizePhrases(phrases []string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, phrase := range phrases {
		for _, part := range SplitCompound(phrase) {
			term := NormalizeTerm(part)
			if term == "" {
				continue
			}
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			terms = append(terms, term)
		}
	}
	return terms
}

// Fingerprint computes a stable SHA256 hex digest of the normalized
// preference inputs. Two preference sets that normalize to the same terms
// and stores produce the same fingerprint regardless of input order.
func Fingerprint(prefs entities.Preferences) string {
	terms := NormalizePhrases(append(append([]string{}, prefs.GroceryInterests...), prefs.TypicalProducts...))
	sort.Strings(terms)

	stores := make([]string, 0, len(prefs.PreferredStores))
	for _, store := range prefs.PreferredStores {
		if s := NormalizeTerm(store); s != "" {
			stores = append(stores, s)
		}
	}
	sort.Strings(stores)

	h := sha256.New()
	h.Write([]byte(strings.Join(terms, "|")))
	h.Write([]byte("||"))
	h.Write([]byte(strings.Join(stores, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

// ExtractTerms resolves the concrete search terms of a preference set.
// The LLM extractor is tried first; an ordinary extractor failure falls
// back to the rule-based pipeline, but ErrUpstreamUnavailable is
// surfaced so the caller can keep its stored terms untouched.
func (s *PreferenceService) ExtractTerms(ctx context.Context, prefs entities.Preferences) ([]string, error) {
	phrases := append(append([]string{}, prefs.GroceryInterests...), prefs.TypicalProducts...)
	if len(phrases) == 0 {
		return nil, nil
	}

	if s.extractor != nil {
		extracted, err := s.extractor.ExtractTerms(ctx, phrases)
		if err == nil {
			if terms := NormalizePhrases(extracted); len(terms) > 0 {
				return terms, nil
			}
		} else if errors.Is(err, providers.ErrUpstreamUnavailable) {
			return nil, err
		} else {
			log.Warn().Err(err).Msg("term extraction failed, using rule-based fallback")
		}
	}

	return NormalizePhrases(phrases), nil
}

// TrackedTermsFor returns the terms a scan should search for. Stored
// active terms are reused as long as the preference fingerprint has not
// moved since the last scan; a changed fingerprint or an empty term set
// triggers a refresh.
func (s *PreferenceService) TrackedTermsFor(ctx context.Context, user *entities.User, priorFingerprint string) ([]*entities.TrackedTerm, error) {
	active, err := s.terms.ListActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 && priorFingerprint == Fingerprint(user.Prefs()) {
		return active, nil
	}
	return s.RefreshTrackedTerms(ctx, user)
}

// RefreshTrackedTerms reconciles the user's stored tracked terms with the
// terms extracted from the current preferences. Existing terms are
// reactivated, new ones inserted, and auto-extracted terms that no longer
// match any preference are deactivated. When the extractor upstream is
// down the stored terms are returned untouched so a model outage never
// deactivates previously extracted terms.
func (s *PreferenceService) RefreshTrackedTerms(ctx context.Context, user *entities.User) ([]*entities.TrackedTerm, error) {
	extracted, err := s.ExtractTerms(ctx, user.Prefs())
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("extractor unavailable, reusing stored terms")
		return s.terms.ListActiveByUser(ctx, user.ID)
	}

	if len(extracted) > 0 {
		batch := make([]*entities.TrackedTerm, 0, len(extracted))
		for _, term := range extracted {
			batch = append(batch, &entities.TrackedTerm{
				ID:           uuid.New().String(),
				UserID:       user.ID,
				SearchTerm:   term,
				OriginalText: term,
				Source:       entities.TermSourceAutoExtracted,
				IsActive:     true,
			})
		}
		if err := s.terms.UpsertBatch(ctx, batch); err != nil {
			return nil, err
		}
	}

	if err := s.terms.DeactivateMissing(ctx, user.ID, extracted); err != nil {
		return nil, err
	}

	return s.terms.ListActiveByUser(ctx, user.ID)
}
