package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"doorstep/internal/llm"
	"doorstep/internal/types"
)

const (
	// radiusGrowth widens the search radius between attempts when too
	// few events were found.
	radiusGrowth = 1.5

	// maxWidenAttempts bounds the widening loop.
	maxWidenAttempts = 4
)

// EventFinder turns web search results into candidate event drafts.
// Candidates are unverified: the verification gate decides later which
// ones are confirmed against their source pages.
type EventFinder struct {
	provider  Provider
	postcodes *PostcodeClient
	client    llm.Client
	minEvents int
	logger    *zap.Logger
}

// NewEventFinder creates a finder. minEvents is the count below which
// the search radius is widened and retried.
func NewEventFinder(provider Provider, postcodes *PostcodeClient, client llm.Client, minEvents int, logger *zap.Logger) *EventFinder {
	if minEvents <= 0 {
		minEvents = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventFinder{
		provider:  provider,
		postcodes: postcodes,
		client:    client,
		minEvents: minEvents,
		logger:    logger,
	}
}

const extractSystemPrompt = `You extract local events from web search results. Given search results as JSON, return a JSON array of events. Each event must have "event_title", "date", "location", "description", and "candidate_url" (the result URL the event came from). Only include events you can actually see in the results. Return only the JSON array.`

// Find searches for local events around a postcode. When fewer than
// the minimum number of distinct events come back, the radius widens
// and the search runs again, up to a bounded number of attempts. The
// postcode lookup degrading to the raw postcode is not an error, and
// neither is a quiet area with few or no events; Find errors only when
// every attempt itself failed and produced nothing.
func (f *EventFinder) Find(ctx context.Context, postcode string, radius float64, frequency types.Frequency) ([]types.EventDraft, error) {
	if radius <= 0 {
		radius = 10
	}
	loc, err := f.postcodes.Lookup(ctx, postcode)
	if err != nil {
		f.logger.Debug("postcode lookup degraded",
			zap.String("postcode", postcode), zap.Error(err))
	}

	window := "this week"
	if frequency == types.FrequencyMonthly {
		window = "this month"
	}

	var drafts []types.EventDraft
	var lastErr error
	failures := 0
	seen := make(map[string]bool)

	for attempt := 0; attempt < maxWidenAttempts; attempt++ {
		query := fmt.Sprintf("local events in %s %s within %.0f miles", loc.Area(), window, radius)
		found, err := f.searchOnce(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return drafts, ctx.Err()
			}
			lastErr = err
			failures++
			f.logger.Warn("event search attempt failed",
				zap.Int("attempt", attempt+1), zap.Error(err))
		}

		for _, d := range found {
			key := normalizeTitle(d.Title)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			drafts = append(drafts, d)
		}

		if len(drafts) >= f.minEvents {
			break
		}
		radius *= radiusGrowth
		f.logger.Debug("widening event search radius",
			zap.Float64("radius", radius),
			zap.Int("found", len(drafts)))
	}

	// A quiet area returning nothing is a valid empty result, but when
	// every attempt errored there is no result to stand behind.
	if len(drafts) == 0 && failures == maxWidenAttempts {
		return nil, fmt.Errorf("event search failed after %d attempts: %w", maxWidenAttempts, lastErr)
	}

	return drafts, nil
}

func (f *EventFinder) searchOnce(ctx context.Context, query string) ([]types.EventDraft, error) {
	results, err := f.provider.Search(ctx, query, 10)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	encoded, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encoding search results: %w", err)
	}

	raw, err := f.client.CompleteWithSystem(ctx, extractSystemPrompt, string(encoded))
	if err != nil {
		return nil, fmt.Errorf("event extraction failed: %w", err)
	}

	var drafts []types.EventDraft
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &drafts); err != nil {
		return nil, fmt.Errorf("parsing extracted events: %w", err)
	}
	return drafts, nil
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
