package newsletter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"doorstep/internal/llm"
	"doorstep/internal/search"
	"doorstep/internal/types"
	"doorstep/internal/verify"
)

// templateVersion is stamped into newsletter metadata.
const templateVersion = "1.0"

// Composer builds newsletter content: it gathers candidate events,
// passes them through the verification gate, and writes the editorial
// sections around whatever survived.
type Composer struct {
	finder    *search.EventFinder
	gate      *verify.Gate
	postcodes *search.PostcodeClient
	client    llm.Client
	logger    *zap.Logger
}

// NewComposer creates a composer.
func NewComposer(finder *search.EventFinder, gate *verify.Gate, postcodes *search.PostcodeClient, client llm.Client, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		finder:    finder,
		gate:      gate,
		postcodes: postcodes,
		client:    client,
		logger:    logger,
	}
}

// Compose runs the full generation pipeline for a neighborhood.
func (c *Composer) Compose(ctx context.Context, hood types.Neighborhood) (types.NewsletterContent, types.NewsletterMetadata, error) {
	var content types.NewsletterContent
	var meta types.NewsletterMetadata

	loc, err := c.postcodes.Lookup(ctx, hood.Postcode)
	if err != nil {
		c.logger.Debug("postcode lookup degraded", zap.Error(err))
	}

	drafts, err := c.finder.Find(ctx, hood.Postcode, hood.Radius, hood.Frequency)
	if err != nil {
		return content, meta, fmt.Errorf("event search failed: %w", err)
	}

	events := c.gate.Verify(ctx, drafts)

	editorial := c.editorial(ctx, hood, loc.Area(), events)

	now := time.Now().UTC()
	content = types.NewsletterContent{
		Header: types.Header{
			Title:    headerTitle(hood),
			Date:     now.Format("2 January 2006"),
			Location: loc.Area(),
		},
		MainChannel: types.MainChannel{
			WelcomeMessage:   editorial.Welcome,
			CommunityUpdates: editorial.Updates,
		},
		Highlights: editorial.Highlights,
		Events:     events,
	}
	schedule := buildSchedule(events)
	if hood.Frequency == types.FrequencyMonthly {
		content.MonthlySchedule = schedule
	} else {
		content.WeeklySchedule = schedule
	}

	meta = types.NewsletterMetadata{
		Location:           loc.Area(),
		Postcode:           hood.Postcode,
		Radius:             hood.Radius,
		GenerationDate:     now,
		TemplateVersion:    templateVersion,
		SourceCount:        countSources(events),
		VerificationStatus: verificationStatus(events),
	}
	return content, meta, nil
}

func headerTitle(hood types.Neighborhood) string {
	if hood.Branding.CompanyName != "" {
		return fmt.Sprintf("%s %s Newsletter", hood.Branding.CompanyName, hood.Title)
	}
	return fmt.Sprintf("%s Newsletter", hood.Title)
}

type editorialSections struct {
	Welcome    string   `json:"welcome_message"`
	Updates    []string `json:"community_updates"`
	Highlights []string `json:"newsletter_highlights"`
}

const editorialSystemPrompt = `You write the editorial sections of a neighborhood newsletter. Given the area, audience info, and a JSON list of local events, respond with a JSON object:
{"welcome_message": "...", "community_updates": ["..."], "newsletter_highlights": ["..."]}
Keep the tone warm and community-minded. Highlights should name the most interesting events. Return only the JSON object.`

// editorial asks the LLM for the welcome, updates, and highlights. When
// the model is unavailable it falls back to plain deterministic copy so
// generation still completes.
func (c *Composer) editorial(ctx context.Context, hood types.Neighborhood, area string, events []types.Event) editorialSections {
	encoded, _ := json.Marshal(events)
	prompt := fmt.Sprintf("Area: %s\nAudience: %s\nFrequency: %s\nEvents: %s",
		area, hood.Info, hood.Frequency, string(encoded))

	raw, err := c.client.CompleteWithSystem(ctx, editorialSystemPrompt, prompt)
	if err == nil {
		var sections editorialSections
		if jsonErr := json.Unmarshal([]byte(llm.CleanJSON(raw)), &sections); jsonErr == nil && sections.Welcome != "" {
			return sections
		}
		err = fmt.Errorf("unparseable editorial response")
	}
	c.logger.Warn("editorial generation degraded to fallback copy", zap.Error(err))

	return fallbackEditorial(area, hood.Frequency, events)
}

func fallbackEditorial(area string, frequency types.Frequency, events []types.Event) editorialSections {
	window := "week"
	if frequency == types.FrequencyMonthly {
		window = "month"
	}
	sections := editorialSections{
		Welcome: fmt.Sprintf("Welcome to your %s round-up for %s. Here is what is happening near you this %s.",
			strings.ToLower(string(frequency)), area, window),
	}
	for i, e := range events {
		if i == 3 {
			break
		}
		sections.Highlights = append(sections.Highlights, fmt.Sprintf("%s (%s, %s)", e.Title, e.Date, e.Location))
	}
	return sections
}

// buildSchedule groups event titles under their date labels.
func buildSchedule(events []types.Event) map[string][]string {
	if len(events) == 0 {
		return nil
	}
	schedule := make(map[string][]string)
	for _, e := range events {
		label := e.Date
		if label == "" {
			label = "Date TBC"
		}
		schedule[label] = append(schedule[label], e.Title)
	}
	return schedule
}

func countSources(events []types.Event) int {
	seen := make(map[string]bool)
	for _, e := range events {
		if e.SourceURL != "" {
			seen[e.SourceURL] = true
		}
	}
	return len(seen)
}

// verificationStatus summarizes the gate outcome: verified when every
// event was corroborated, partial when some were, pending otherwise.
func verificationStatus(events []types.Event) string {
	if len(events) == 0 {
		return "pending"
	}
	verified := 0
	for _, e := range events {
		if e.Verified {
			verified++
		}
	}
	switch verified {
	case len(events):
		return "verified"
	case 0:
		return "pending"
	default:
		return "partial"
	}
}

const toneSystemPrompt = `You rewrite newsletter copy in a requested tone. Given the current sections as JSON and a target tone, rewrite welcome_message, community_updates, and newsletter_highlights in that tone without changing any facts, dates, or venues. Respond with the same JSON shape only.`

// RewriteTone rewrites the editorial sections of content in the given
// tone. Events themselves are never altered: tone applies to copy, not
// facts.
func (c *Composer) RewriteTone(ctx context.Context, content types.NewsletterContent, tone string) (types.NewsletterContent, error) {
	current := editorialSections{
		Welcome:    content.MainChannel.WelcomeMessage,
		Updates:    content.MainChannel.CommunityUpdates,
		Highlights: content.Highlights,
	}
	encoded, err := json.Marshal(current)
	if err != nil {
		return content, fmt.Errorf("encoding sections: %w", err)
	}

	prompt := fmt.Sprintf("Target tone: %s\nCurrent sections: %s", tone, string(encoded))
	raw, err := c.client.CompleteWithSystem(ctx, toneSystemPrompt, prompt)
	if err != nil {
		return content, fmt.Errorf("tone rewrite failed: %w", err)
	}

	var rewritten editorialSections
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &rewritten); err != nil {
		return content, fmt.Errorf("parsing rewritten sections: %w", err)
	}
	if rewritten.Welcome == "" {
		return content, fmt.Errorf("tone rewrite returned empty welcome")
	}

	content.MainChannel.WelcomeMessage = rewritten.Welcome
	content.MainChannel.CommunityUpdates = rewritten.Updates
	content.Highlights = rewritten.Highlights
	return content, nil
}

const customizeSystemPrompt = `You edit a neighborhood newsletter according to a user instruction. Given the current content as JSON and the instruction, return the full updated content as JSON with the same shape. Never invent events; you may reword copy, reorder sections, or trim. Return only the JSON object.`

// Customize applies a free-text instruction to the content through the
// LLM. The event list length may shrink but never grow: new events only
// enter through the verification gate.
func (c *Composer) Customize(ctx context.Context, content types.NewsletterContent, instruction string) (types.NewsletterContent, error) {
	encoded, err := json.Marshal(content)
	if err != nil {
		return content, fmt.Errorf("encoding content: %w", err)
	}

	prompt := fmt.Sprintf("Instruction: %s\nCurrent content: %s", instruction, string(encoded))
	raw, err := c.client.CompleteWithSystem(ctx, customizeSystemPrompt, prompt)
	if err != nil {
		return content, fmt.Errorf("customization failed: %w", err)
	}

	var updated types.NewsletterContent
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &updated); err != nil {
		return content, fmt.Errorf("parsing customized content: %w", err)
	}
	if len(updated.Events) > len(content.Events) {
		return content, fmt.Errorf("customization attempted to invent events")
	}
	return updated, nil
}

// AddEvents finds and verifies more events, appending only those whose
// titles are not already present.
func (c *Composer) AddEvents(ctx context.Context, content types.NewsletterContent, hood types.Neighborhood, radius float64) (types.NewsletterContent, int, error) {
	if radius <= 0 {
		radius = hood.Radius * 2
	}
	drafts, err := c.finder.Find(ctx, hood.Postcode, radius, hood.Frequency)
	if err != nil {
		return content, 0, fmt.Errorf("event search failed: %w", err)
	}

	existing := make(map[string]bool, len(content.Events))
	for _, e := range content.Events {
		existing[normalizeTitle(e.Title)] = true
	}

	fresh := drafts[:0]
	for _, d := range drafts {
		if !existing[normalizeTitle(d.Title)] {
			fresh = append(fresh, d)
		}
	}
	if len(fresh) == 0 {
		return content, 0, nil
	}

	verified := c.gate.Verify(ctx, fresh)
	content.Events = append(content.Events, verified...)
	return content, len(verified), nil
}

// DeleteEvents removes events matching the criteria or listed titles.
func DeleteEvents(content types.NewsletterContent, criteria []string, titles []string) (types.NewsletterContent, int) {
	dropExpensive := false
	for _, c := range criteria {
		if strings.Contains(strings.ToLower(c), "expensive") {
			dropExpensive = true
		}
	}

	byTitle := make(map[string]bool, len(titles))
	for _, t := range titles {
		byTitle[normalizeTitle(t)] = true
	}

	kept := content.Events[:0]
	removed := 0
	for _, e := range content.Events {
		switch {
		case byTitle[normalizeTitle(e.Title)]:
			removed++
		case dropExpensive && costly(e.Cost):
			removed++
		default:
			kept = append(kept, e)
		}
	}
	content.Events = kept
	return content, removed
}

// costly reports whether the cost text names a price. Free events and
// unspecified costs are never treated as expensive.
func costly(cost string) bool {
	lowered := strings.ToLower(cost)
	if lowered == "" || strings.Contains(lowered, "free") {
		return false
	}
	return strings.ContainsAny(cost, "£$") || strings.ContainsAny(lowered, "0123456789")
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
