// Package router classifies user messages into actions. A rule pass
// handles the common phrasings cheaply; everything else goes to the
// LLM, with the rule decision kept as the fallback when the model is
// unavailable or returns garbage.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"doorstep/internal/llm"
	"doorstep/internal/types"
)

// ruleConfidenceCutoff is the rule-pass confidence above which the LLM
// is not consulted at all.
const ruleConfidenceCutoff = 0.7

// Context carries the conversation state the router classifies against.
type Context struct {
	Postcode      string
	Frequency     types.Frequency
	HasNewsletter bool
	History       []types.Message
}

// Router decides what action a user message asks for.
type Router struct {
	client    llm.Client
	threshold float64
	logger    *zap.Logger
}

// New creates a router. threshold is the minimum confidence required
// before a destructive or newsletter-target action is allowed through;
// below it the decision degrades to a chat response.
func New(client llm.Client, threshold float64, logger *zap.Logger) *Router {
	if threshold <= 0 {
		threshold = 0.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{client: client, threshold: threshold, logger: logger}
}

// Decide classifies the message. The returned decision always carries a
// recognised action and target. Decisions below the confidence threshold
// that would touch a newsletter, either a destructive action or anything
// targeting the newsletter, are degraded to chat so a shaky
// classification never mutates content or starts a generation.
func (r *Router) Decide(ctx context.Context, message string, rctx Context) types.ActionDecision {
	decision := r.ruleDecision(message, rctx)
	if decision.Confidence > ruleConfidenceCutoff {
		return r.gate(decision)
	}

	llmDecision, err := r.llmDecision(ctx, message, rctx)
	if err != nil {
		r.logger.Warn("llm intent analysis failed, using rule decision",
			zap.Error(err))
		return r.gate(decision)
	}
	return r.gate(llmDecision)
}

// gate degrades underconfident decisions that would mutate a newsletter
// to chat. Chat-target reads pass through at any confidence.
func (r *Router) gate(d types.ActionDecision) types.ActionDecision {
	if d.Confidence >= r.threshold {
		return d
	}
	if !d.Action.Destructive() && d.Target != types.TargetNewsletter {
		return d
	}
	r.logger.Info("degrading underconfident newsletter action to chat",
		zap.String("action", string(d.Action)),
		zap.Float64("confidence", d.Confidence))
	return types.ActionDecision{
		Action:     types.ActionChat,
		Target:     types.TargetChat,
		Parameters: map[string]any{"declined_action": string(d.Action)},
		Reasoning:  fmt.Sprintf("confidence %.2f too low to apply %s, asking for confirmation instead", d.Confidence, d.Action),
		Confidence: d.Confidence,
	}
}

type rulePattern struct {
	phrases []string
	build   func(message string, rctx Context) types.ActionDecision
}

func (r *Router) ruleDecision(message string, rctx Context) types.ActionDecision {
	lowered := strings.ToLower(message)

	for _, pattern := range rulePatterns {
		for _, phrase := range pattern.phrases {
			if strings.Contains(lowered, phrase) {
				return pattern.build(lowered, rctx)
			}
		}
	}

	return types.ActionDecision{
		Action:     types.ActionChat,
		Target:     types.TargetChat,
		Parameters: map[string]any{},
		Reasoning:  "request pattern not clearly identified, responding in chat",
		Confidence: 0.5,
	}
}

// rulePatterns are checked in order; the first phrase hit wins.
var rulePatterns = []rulePattern{
	{
		phrases: []string{
			"generate newsletter", "create newsletter", "make newsletter",
			"new newsletter", "generate a newsletter", "create a newsletter",
		},
		build: func(message string, rctx Context) types.ActionDecision {
			frequency := rctx.Frequency
			if strings.Contains(message, "weekly") {
				frequency = types.FrequencyWeekly
			} else if strings.Contains(message, "monthly") {
				frequency = types.FrequencyMonthly
			}
			if !frequency.Valid() {
				frequency = types.FrequencyWeekly
			}
			return types.ActionDecision{
				Action: types.ActionGenerateNewsletter,
				Target: types.TargetNewsletter,
				Parameters: map[string]any{
					"postcode":  rctx.Postcode,
					"radius":    5.0,
					"frequency": string(frequency),
				},
				Reasoning:  "user explicitly requested newsletter generation",
				Confidence: 0.9,
			}
		},
	},
	{
		phrases: []string{
			"add more events", "add events", "more events", "find more events",
			"add additional events", "include more events",
		},
		build: func(message string, rctx Context) types.ActionDecision {
			return types.ActionDecision{
				Action: types.ActionAddEvents,
				Target: types.TargetNewsletter,
				Parameters: map[string]any{
					"postcode": rctx.Postcode,
					// wider radius when topping up an existing newsletter
					"radius": 10.0,
				},
				Reasoning:  "user wants to add more events to the existing newsletter",
				Confidence: 0.85,
			}
		},
	},
	{
		phrases: []string{
			"change tone", "change the tone", "make it more", "tone to",
			"more casual", "more professional", "more friendly", "more formal",
		},
		build: func(message string, rctx Context) types.ActionDecision {
			tone := "friendly and informative"
			switch {
			case strings.Contains(message, "casual"), strings.Contains(message, "friendly"):
				tone = "casual and friendly"
			case strings.Contains(message, "professional"), strings.Contains(message, "formal"):
				tone = "professional and informative"
			case strings.Contains(message, "enthusiastic"):
				tone = "enthusiastic and engaging"
			}
			return types.ActionDecision{
				Action:     types.ActionChangeTone,
				Target:     types.TargetNewsletter,
				Parameters: map[string]any{"tone": tone},
				Reasoning:  fmt.Sprintf("user wants the newsletter tone changed to %s", tone),
				Confidence: 0.8,
			}
		},
	},
	{
		phrases: []string{
			"delete events", "remove events", "delete event", "remove event",
			"delete any events", "remove any events", "delete expensive",
			"remove expensive", "delete paid", "remove paid",
		},
		build: func(message string, rctx Context) types.ActionDecision {
			var criteria []string
			if strings.Contains(message, "expensive") || strings.Contains(message, "cost") ||
				strings.Contains(message, "£") || strings.Contains(message, "$") {
				criteria = append(criteria, "expensive events")
			}
			return types.ActionDecision{
				Action:     types.ActionDeleteEvents,
				Target:     types.TargetNewsletter,
				Parameters: map[string]any{"criteria": criteria},
				Reasoning:  "user wants events removed from the newsletter",
				Confidence: 0.8,
			}
		},
	},
	{
		phrases: []string{
			"find events", "search events", "what events", "events happening",
			"events available", "show me events", "list events",
		},
		build: func(message string, rctx Context) types.ActionDecision {
			return types.ActionDecision{
				Action: types.ActionSearchEvents,
				Target: types.TargetChat,
				Parameters: map[string]any{
					"postcode": rctx.Postcode,
					"radius":   5.0,
				},
				Reasoning:  "user wants event information in chat",
				Confidence: 0.8,
			}
		},
	},
	{
		phrases: []string{
			"search for", "look up", "find information", "what is",
			"tell me about", "search web",
		},
		build: func(message string, rctx Context) types.ActionDecision {
			return types.ActionDecision{
				Action:     types.ActionSearchWeb,
				Target:     types.TargetChat,
				Parameters: map[string]any{"query": message},
				Reasoning:  "user wants web search results in chat",
				Confidence: 0.75,
			}
		},
	},
}

const intentSystemPrompt = `You classify user requests for a neighborhood newsletter assistant.

Available actions:
- generate_newsletter: create a new newsletter
- add_events: add more events to the existing newsletter
- change_events: modify existing events in the newsletter
- change_tone: change the tone or style of newsletter content
- delete_events: remove specific events from the newsletter
- search_web: search for current information
- search_events: find specific events
- customize: modify newsletter content or structure
- schedule: manage newsletter scheduling
- chat: answer in the conversation only

Target options: "chat", "newsletter", or "system".

Respond with a JSON object only:
{"action": "...", "target": "...", "parameters": {...}, "reasoning": "...", "confidence": 0.0-1.0}`

type llmDecisionPayload struct {
	Action     string         `json:"action"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters"`
	Reasoning  string         `json:"reasoning"`
	Confidence float64        `json:"confidence"`
}

func (r *Router) llmDecision(ctx context.Context, message string, rctx Context) (types.ActionDecision, error) {
	prompt := buildIntentPrompt(message, rctx)

	raw, err := r.client.CompleteWithSystem(ctx, intentSystemPrompt, prompt)
	if err != nil {
		return types.ActionDecision{}, fmt.Errorf("intent completion failed: %w", err)
	}

	var payload llmDecisionPayload
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &payload); err != nil {
		return types.ActionDecision{}, fmt.Errorf("parsing intent decision: %w", err)
	}

	action := types.ParseAction(payload.Action)
	if action == types.ActionUnknown {
		action = types.ActionChat
	}
	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.8
	}
	params := payload.Parameters
	if params == nil {
		params = map[string]any{}
	}

	return types.ActionDecision{
		Action:     action,
		Target:     types.ParseTarget(payload.Target),
		Parameters: params,
		Reasoning:  payload.Reasoning,
		Confidence: confidence,
	}, nil
}

func buildIntentPrompt(message string, rctx Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User message: %q\n\n", message)
	fmt.Fprintf(&b, "Newsletter exists: %v\n", rctx.HasNewsletter)
	if rctx.Postcode != "" {
		fmt.Fprintf(&b, "Neighborhood postcode: %s\n", rctx.Postcode)
	}

	history := rctx.History
	if len(history) > 3 {
		history = history[len(history)-3:]
	}
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "- %s: %s\n", m.Role, m.Content)
		}
	}

	b.WriteString("\nClassify this request.")
	return b.String()
}
