// Package verify corroborates candidate events against their source
// pages before they reach a newsletter.
//
// The gate never drops a candidate. Events whose date and location are
// found in a fetched source are marked verified and keep the source
// URL; everything else is passed through flagged unverified, so the
// newsletter layer can present it with appropriate caveats.
package verify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"doorstep/internal/search"
	"doorstep/internal/types"
)

// maxConcurrentFetches bounds the fan-out when corroborating a batch.
const maxConcurrentFetches = 4

// Gate verifies event drafts against fetched source text.
type Gate struct {
	fetcher  search.Fetcher
	provider search.Provider
	attempts int
	logger   *zap.Logger
}

// NewGate creates a gate. attempts is the number of fallback searches
// tried per draft when the candidate URL itself does not corroborate.
func NewGate(fetcher search.Fetcher, provider search.Provider, attempts int, logger *zap.Logger) *Gate {
	if attempts <= 0 {
		attempts = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{fetcher: fetcher, provider: provider, attempts: attempts, logger: logger}
}

// Verify corroborates every draft concurrently and returns events in
// the same order. Fetch and search failures degrade to unverified
// events rather than erroring: a missing source is not a reason to
// lose the event.
func (g *Gate) Verify(ctx context.Context, drafts []types.EventDraft) []types.Event {
	events := make([]types.Event, len(drafts))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentFetches)

	for i, draft := range drafts {
		group.Go(func() error {
			events[i] = g.verifyDraft(groupCtx, draft)
			return nil
		})
	}
	// workers only report through the events slice
	_ = group.Wait()

	return events
}

func (g *Gate) verifyDraft(ctx context.Context, draft types.EventDraft) types.Event {
	event := types.Event{
		Title:          draft.Title,
		Description:    draft.Description,
		Location:       draft.Location,
		Cost:           draft.Cost,
		Date:           draft.Date,
		BookingDetails: draft.BookingDetails,
		Images:         draft.Images,
		Tags:           draft.Tags,
	}

	if draft.CandidateURL != "" && g.corroborates(ctx, draft, draft.CandidateURL) {
		event.Verified = true
		event.SourceURL = draft.CandidateURL
		return event
	}

	for attempt := 0; attempt < g.attempts; attempt++ {
		if ctx.Err() != nil {
			return event
		}
		url := g.findAlternateSource(ctx, draft, attempt)
		if url == "" {
			continue
		}
		if g.corroborates(ctx, draft, url) {
			event.Verified = true
			event.SourceURL = url
			return event
		}
	}

	g.logger.Debug("event left unverified",
		zap.String("title", draft.Title),
		zap.String("candidate_url", draft.CandidateURL))
	return event
}

// findAlternateSource searches for another page that might mention the
// event. Later attempts broaden the query.
func (g *Gate) findAlternateSource(ctx context.Context, draft types.EventDraft, attempt int) string {
	query := fmt.Sprintf("%s %s %s", draft.Title, draft.Location, draft.Date)
	if attempt > 0 {
		query = fmt.Sprintf("%s %s", draft.Title, draft.Location)
	}

	results, err := g.provider.Search(ctx, query, 1)
	if err != nil || len(results) == 0 {
		return ""
	}
	return results[0].URL
}

func (g *Gate) corroborates(ctx context.Context, draft types.EventDraft, url string) bool {
	text, err := g.fetcher.FetchText(ctx, url)
	if err != nil {
		g.logger.Debug("source fetch failed",
			zap.String("url", url), zap.Error(err))
		return false
	}
	normalized := normalize(text)
	return tokensMatch(normalized, draft.Date) && tokensMatch(normalized, draft.Location)
}

// tokensMatch reports whether at least half of the value's significant
// tokens appear in the normalized source text. Matching is fuzzy on
// purpose: listings rarely repeat a date or venue verbatim.
func tokensMatch(normalizedText, value string) bool {
	tokens := significantTokens(value)
	if len(tokens) == 0 {
		return false
	}

	matched := 0
	for _, tok := range tokens {
		if strings.Contains(normalizedText, tok) {
			matched++
		}
	}
	return matched*2 >= len(tokens)
}

func significantTokens(value string) []string {
	fields := strings.Fields(normalize(value))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// normalize lowercases and strips punctuation so "14th June, 7pm" and
// "14 june 7pm" compare equal token by token.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
