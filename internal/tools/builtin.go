package tools

import (
	"context"
	"fmt"
	"strings"

	"doorstep/internal/llm"
	"doorstep/internal/search"
	"doorstep/internal/types"
)

// Deps carries the shared services builtin tools execute against.
type Deps struct {
	Provider search.Provider
	Events   *search.EventFinder
	LLM      llm.Client
}

// RegisterBuiltins registers the standard tool set. It panics on a
// duplicate registration, which only happens from a wiring bug.
func RegisterBuiltins(reg *Registry, deps Deps) {
	reg.MustRegister(webSearchTool(deps))
	reg.MustRegister(eventSearchTool(deps))
	reg.MustRegister(localBusinessSearchTool(deps))
	reg.MustRegister(realTimeInfoTool(deps))
	reg.MustRegister(newsletterCustomizationTool())
	reg.MustRegister(contentGenerationTool(deps))
	reg.MustRegister(imageSearchTool())
	reg.MustRegister(scheduleManagementTool())
}

func webSearchTool(deps Deps) *Tool {
	return &Tool{
		Name:        "web_search",
		Description: "Search the web for current information, news, and real-time data",
		Category:    CategorySearch,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query":       {Type: "string", Description: "Search query"},
				"location":    {Type: "string", Description: "Location context"},
				"max_results": {Type: "integer", Description: "Maximum results to return", Default: 5},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			query := argString(args, "query", "")
			if location := argString(args, "location", ""); location != "" {
				query = fmt.Sprintf("%s in %s", query, location)
			}
			limit := argInt(args, "max_results", 5)

			results, err := deps.Provider.Search(ctx, query, limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"query":         query,
				"results_count": len(results),
				"results":       results,
			}, nil
		},
	}
}

func eventSearchTool(deps Deps) *Tool {
	return &Tool{
		Name:        "event_search",
		Description: "Find local events, meetups, and activities around a UK postcode",
		Category:    CategorySearch,
		Schema: ToolSchema{
			Required: []string{"postcode"},
			Properties: map[string]Property{
				"postcode":   {Type: "string", Description: "UK postcode"},
				"radius":     {Type: "number", Description: "Search radius in miles", Default: 10},
				"frequency":  {Type: "string", Description: "weekly or monthly", Default: "weekly", Enum: []any{"weekly", "monthly"}},
				"event_type": {Type: "string", Description: "Type of events to search for"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			postcode := argString(args, "postcode", "")
			radius := argFloat(args, "radius", 10)
			frequency := types.FrequencyWeekly
			if strings.EqualFold(argString(args, "frequency", "weekly"), "monthly") {
				frequency = types.FrequencyMonthly
			}

			events, err := deps.Events.Find(ctx, postcode, radius, frequency)
			if err != nil {
				return nil, err
			}

			if eventType := argString(args, "event_type", ""); eventType != "" {
				needle := strings.ToLower(eventType)
				filtered := events[:0]
				for _, e := range events {
					if strings.Contains(strings.ToLower(e.Title), needle) ||
						strings.Contains(strings.ToLower(e.Description), needle) {
						filtered = append(filtered, e)
					}
				}
				events = filtered
			}

			return map[string]any{
				"postcode":     postcode,
				"radius":       radius,
				"frequency":    string(frequency),
				"events_count": len(events),
				"events":       events,
			}, nil
		},
	}
}

func localBusinessSearchTool(deps Deps) *Tool {
	return &Tool{
		Name:        "local_business_search",
		Description: "Find local businesses, restaurants, and services",
		Category:    CategorySearch,
		Schema: ToolSchema{
			Required: []string{"query", "location"},
			Properties: map[string]Property{
				"query":         {Type: "string", Description: "Business search query"},
				"location":      {Type: "string", Description: "Location to search in"},
				"business_type": {Type: "string", Description: "Type of business", Default: "any"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			query := argString(args, "query", "")
			location := argString(args, "location", "")
			businessType := argString(args, "business_type", "any")

			searchQuery := fmt.Sprintf("%s in %s", query, location)
			if businessType != "" && businessType != "any" {
				searchQuery = fmt.Sprintf("%s %s", businessType, searchQuery)
			}

			results, err := deps.Provider.Search(ctx, searchQuery, 5)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"query":         query,
				"location":      location,
				"business_type": businessType,
				"results_count": len(results),
				"results":       results,
			}, nil
		},
	}
}

func realTimeInfoTool(deps Deps) *Tool {
	return &Tool{
		Name:        "real_time_info",
		Description: "Get current weather, traffic, transport, and other real-time data",
		Category:    CategorySearch,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query":     {Type: "string", Description: "Information query"},
				"info_type": {Type: "string", Description: "weather, traffic, transport, or general", Default: "general"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			query := argString(args, "query", "")
			infoType := argString(args, "info_type", "general")
			if infoType != "" && infoType != "general" {
				query = fmt.Sprintf("current %s %s", infoType, query)
			}

			results, err := deps.Provider.Search(ctx, query, 5)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"query":         query,
				"info_type":     infoType,
				"results_count": len(results),
				"results":       results,
			}, nil
		},
	}
}

var customizationTypes = []string{"layout", "styling", "content", "schedule"}

func newsletterCustomizationTool() *Tool {
	return &Tool{
		Name:        "newsletter_customization",
		Description: "Customize newsletter content, layout, and styling",
		Category:    CategoryContent,
		Schema: ToolSchema{
			Required: []string{"newsletter_id", "customization_type", "parameters"},
			Properties: map[string]Property{
				"newsletter_id":      {Type: "string", Description: "Newsletter ID"},
				"customization_type": {Type: "string", Description: "Type of customization", Enum: []any{"layout", "styling", "content", "schedule"}},
				"parameters":         {Type: "object", Description: "Customization parameters"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			customizationType := argString(args, "customization_type", "")
			supported := false
			for _, t := range customizationTypes {
				if t == customizationType {
					supported = true
					break
				}
			}
			if !supported {
				return nil, fmt.Errorf("customization type %q not supported, expected one of %s",
					customizationType, strings.Join(customizationTypes, ", "))
			}

			return map[string]any{
				"newsletter_id":      argString(args, "newsletter_id", ""),
				"customization_type": customizationType,
				"parameters":         args["parameters"],
				"status":             customizationType + "_updated",
			}, nil
		},
	}
}

func contentGenerationTool(deps Deps) *Tool {
	return &Tool{
		Name:        "content_generation",
		Description: "Generate custom content for newsletters",
		Category:    CategoryContent,
		Schema: ToolSchema{
			Required: []string{"content_type", "topic"},
			Properties: map[string]Property{
				"content_type": {Type: "string", Description: "Type of content to generate"},
				"topic":        {Type: "string", Description: "Content topic"},
				"style":        {Type: "string", Description: "Writing style", Default: "professional"},
				"length":       {Type: "string", Description: "Content length", Default: "medium"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			contentType := argString(args, "content_type", "")
			topic := argString(args, "topic", "")
			style := argString(args, "style", "professional")
			length := argString(args, "length", "medium")

			prompt := fmt.Sprintf("Generate %s %s content about %s for a community newsletter. Content type: %s",
				length, style, topic, contentType)
			content, err := deps.LLM.Complete(ctx, prompt)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"content_type":      contentType,
				"topic":             topic,
				"style":             style,
				"length":            length,
				"generated_content": content,
			}, nil
		},
	}
}

// imageCatalogue maps query keywords to stock photo IDs. The catalogue
// is fixed so the same query always resolves to the same image.
var imageCatalogue = []struct {
	keyword string
	photoID string
}{
	{"community", "1511632765486-a01980e01a18"},
	{"event", "1513475382585-d06e58bcb0e0"},
	{"meetup", "1551698618-1dfe5d97d256"},
	{"business", "1507003211169-0a1dd7228f2d"},
	{"food", "1495474472287-4d71bcdd2085"},
	{"technology", "1518709268805-4e9042af9f23"},
}

var imageSizes = map[string]string{
	"small":  "w=400&h=300",
	"medium": "w=800&h=600",
	"large":  "w=1200&h=900",
}

func imageSearchTool() *Tool {
	return &Tool{
		Name:        "image_search",
		Description: "Find relevant images for newsletter content",
		Category:    CategoryContent,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query": {Type: "string", Description: "Image search query"},
				"style": {Type: "string", Description: "Image style", Default: "professional"},
				"size":  {Type: "string", Description: "Image size", Default: "large", Enum: []any{"small", "medium", "large"}},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			query := argString(args, "query", "")
			style := argString(args, "style", "professional")
			size := argString(args, "size", "large")

			photoID := imageCatalogue[0].photoID
			lowered := strings.ToLower(query)
			for _, entry := range imageCatalogue {
				if strings.Contains(lowered, entry.keyword) {
					photoID = entry.photoID
					break
				}
			}

			sizeParam, ok := imageSizes[size]
			if !ok {
				sizeParam = imageSizes["large"]
			}

			image := map[string]any{
				"url":         fmt.Sprintf("https://images.unsplash.com/photo-%s?%s&fit=crop&auto=format&q=90", photoID, sizeParam),
				"title":       fmt.Sprintf("Image for %s", query),
				"description": fmt.Sprintf("%s style image related to %s", style, query),
				"size":        size,
				"style":       style,
			}
			return map[string]any{
				"query":        query,
				"style":        style,
				"size":         size,
				"images_count": 1,
				"images":       []any{image},
			}, nil
		},
	}
}

var scheduleActions = map[string]string{
	"schedule":   "scheduled",
	"reschedule": "rescheduled",
	"cancel":     "cancelled",
}

func scheduleManagementTool() *Tool {
	return &Tool{
		Name:        "schedule_management",
		Description: "Manage newsletter scheduling and automation",
		Category:    CategorySchedule,
		Schema: ToolSchema{
			Required: []string{"newsletter_id", "action"},
			Properties: map[string]Property{
				"newsletter_id": {Type: "string", Description: "Newsletter ID"},
				"action":        {Type: "string", Description: "schedule, reschedule, or cancel", Enum: []any{"schedule", "reschedule", "cancel"}},
				"schedule_data": {Type: "object", Description: "Schedule parameters"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			action := argString(args, "action", "")
			status, ok := scheduleActions[action]
			if !ok {
				return nil, fmt.Errorf("action %q not supported, expected schedule, reschedule, or cancel", action)
			}

			return map[string]any{
				"newsletter_id": argString(args, "newsletter_id", ""),
				"action":        action,
				"schedule_data": args["schedule_data"],
				"status":        status,
			}, nil
		},
	}
}

func argString(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return fallback
}

func argInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func argFloat(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}
