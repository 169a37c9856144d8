// Package chat orchestrates a conversation turn: the user message is
// appended, routed to an action, executed against the newsletter
// lifecycle or the tool layer, and answered with an assistant message
// carrying the decision as metadata.
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"doorstep/internal/conversation"
	"doorstep/internal/llm"
	"doorstep/internal/newsletter"
	"doorstep/internal/router"
	"doorstep/internal/store"
	"doorstep/internal/tools"
	"doorstep/internal/types"
)

// Reply is the outcome of one conversation turn.
type Reply struct {
	ConversationID string               `json:"conversation_id"`
	Message        types.Message        `json:"message"`
	Decision       types.ActionDecision `json:"decision"`
	NewsletterID   string               `json:"newsletter_id,omitempty"`
	ToolResult     *tools.Result        `json:"tool_result,omitempty"`
}

// Service runs conversation turns.
type Service struct {
	store         store.Store
	conversations *conversation.Manager
	newsletters   *newsletter.Manager
	router        *router.Router
	executor      *tools.Executor
	client        llm.Client
	logger        *zap.Logger
}

// NewService creates a chat service.
func NewService(s store.Store, conversations *conversation.Manager, newsletters *newsletter.Manager, r *router.Router, executor *tools.Executor, client llm.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:         s,
		conversations: conversations,
		newsletters:   newsletters,
		router:        r,
		executor:      executor,
		client:        client,
		logger:        logger,
	}
}

// Send processes one user message in a conversation and returns the
// assistant's reply. Both sides of the exchange are persisted before
// Send returns; sending to a closed conversation fails.
func (s *Service) Send(ctx context.Context, conversationID, userMessage string) (*Reply, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var hood types.Neighborhood
	if err := s.store.Get(ctx, store.CollectionNeighborhoods, conv.NeighborhoodID, &hood); err != nil {
		return nil, fmt.Errorf("loading neighborhood: %w", err)
	}

	conv, err = s.conversations.AppendMessage(ctx, conversationID, types.Message{
		Role:    types.RoleUser,
		Content: userMessage,
	})
	if err != nil {
		return nil, err
	}

	decision := s.router.Decide(ctx, userMessage, router.Context{
		Postcode:      hood.Postcode,
		Frequency:     hood.Frequency,
		HasNewsletter: conv.NewsletterID != "",
		History:       conv.Messages,
	})
	s.logger.Debug("turn routed",
		zap.String("conversation_id", conversationID),
		zap.String("action", string(decision.Action)),
		zap.Float64("confidence", decision.Confidence))

	reply := &Reply{ConversationID: conversationID, Decision: decision}
	text := s.performAction(ctx, conv, hood, decision, userMessage, reply)

	assistant := types.Message{
		Role:     types.RoleAssistant,
		Content:  text,
		Metadata: decision.Metadata(),
	}
	if _, err := s.conversations.AppendMessage(ctx, conversationID, assistant); err != nil {
		return nil, fmt.Errorf("saving assistant reply: %w", err)
	}

	reply.Message = assistant
	return reply, nil
}

func (s *Service) performAction(ctx context.Context, conv *types.Conversation, hood types.Neighborhood, decision types.ActionDecision, userMessage string, reply *Reply) string {
	switch decision.Action {
	case types.ActionGenerateNewsletter:
		n, err := s.newsletters.StartGeneration(ctx, hood.ID, conv.ID)
		if err != nil {
			s.logger.Warn("generation request failed", zap.Error(err))
			return fmt.Sprintf("I couldn't start the newsletter: %v", err)
		}
		reply.NewsletterID = n.ID
		return fmt.Sprintf("I'm putting together your %s newsletter for %s now. I'll let you know here when it's ready to review.",
			hood.Frequency, hood.Title)

	case types.ActionAddEvents, types.ActionDeleteEvents, types.ActionChangeEvents,
		types.ActionChangeTone, types.ActionCustomize:
		if conv.NewsletterID == "" {
			return "There's no newsletter in this conversation yet. Ask me to generate one first."
		}
		n, err := s.newsletters.ApplyUpdate(ctx, conv.NewsletterID, userMessage)
		if err != nil {
			s.logger.Warn("update failed",
				zap.String("newsletter_id", conv.NewsletterID), zap.Error(err))
			return fmt.Sprintf("I couldn't apply that change: %v", err)
		}
		reply.NewsletterID = n.ID
		return fmt.Sprintf("Done. The newsletter now has %d events (version %d).",
			len(n.Content.Events), n.Version)

	case types.ActionSearchEvents:
		result := s.executor.Execute(ctx, "event_search", toolArgs(decision.Parameters, map[string]any{
			"postcode": hood.Postcode,
		}))
		reply.ToolResult = &result
		return summarizeResult(result, "Here's what I found nearby.")

	case types.ActionSearchWeb:
		args := toolArgs(decision.Parameters, map[string]any{"query": userMessage})
		result := s.executor.Execute(ctx, "web_search", args)
		reply.ToolResult = &result
		return summarizeResult(result, "Here's what I found.")

	case types.ActionSchedule:
		args := toolArgs(decision.Parameters, map[string]any{"newsletter_id": conv.NewsletterID})
		result := s.executor.Execute(ctx, "schedule_management", args)
		reply.ToolResult = &result
		return summarizeResult(result, "Schedule updated.")

	default:
		return s.chatReply(ctx, conv, userMessage)
	}
}

const chatSystemPrompt = `You are a helpful assistant for a neighborhood newsletter service. Answer briefly and warmly. You can generate newsletters, add or remove events, change the tone, and search for local information when asked.`

// chatReply answers conversationally; if the model is unavailable it
// degrades to a canned pointer at the things the assistant can do.
func (s *Service) chatReply(ctx context.Context, conv *types.Conversation, userMessage string) string {
	prompt := userMessage
	if n := len(conv.Messages); n > 1 {
		// include a little history for continuity
		start := n - 4
		if start < 0 {
			start = 0
		}
		history := ""
		for _, m := range conv.Messages[start:] {
			history += fmt.Sprintf("%s: %s\n", m.Role, m.Content)
		}
		prompt = fmt.Sprintf("Conversation so far:\n%s\nReply to the last user message.", history)
	}

	text, err := s.client.CompleteWithSystem(ctx, chatSystemPrompt, prompt)
	if err != nil {
		s.logger.Debug("chat completion degraded", zap.Error(err))
		return "I can generate a newsletter, add or remove events, change the tone, or look things up for you. What would you like?"
	}
	return text
}

// toolArgs merges router parameters over defaults.
func toolArgs(params map[string]any, defaults map[string]any) map[string]any {
	args := make(map[string]any, len(defaults)+len(params))
	for k, v := range defaults {
		args[k] = v
	}
	for k, v := range params {
		args[k] = v
	}
	return args
}

func summarizeResult(result tools.Result, success string) string {
	if !result.Success {
		return fmt.Sprintf("That didn't work: %s", result.Error)
	}
	if encoded, err := json.Marshal(result.Result); err == nil {
		return fmt.Sprintf("%s\n%s", success, string(encoded))
	}
	return success
}
