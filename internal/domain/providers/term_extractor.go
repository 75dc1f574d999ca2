package providers

import "context"

// TermExtractor defines the interface for LLM-assisted extraction of
// concrete grocery search terms from free-text user preferences.
type TermExtractor interface {
	// ExtractTerms returns cleaned, deduplicated search terms for the
	// given preference phrases. Returns ErrUpstreamUnavailable when the
	// model cannot be reached; callers fall back to rule-based splitting.
	ExtractTerms(ctx context.Context, phrases []string) ([]string, error)
}
