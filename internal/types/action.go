package types

import "strings"

// Action is the closed set of intents the reasoning router can classify a
// user message into. Unparseable or ambiguous text maps to ActionUnknown,
// never to an empty value.
type Action string

const (
	ActionGenerateNewsletter Action = "generate_newsletter"
	ActionAddEvents          Action = "add_events"
	ActionDeleteEvents       Action = "delete_events"
	ActionChangeEvents       Action = "change_events"
	ActionChangeTone         Action = "change_tone"
	ActionSearchEvents       Action = "search_events"
	ActionSearchWeb          Action = "search_web"
	ActionCustomize          Action = "customize"
	ActionSchedule           Action = "schedule"
	ActionChat               Action = "chat"
	ActionUnknown            Action = "unknown"
)

// allActions indexes every recognised action for parsing.
var allActions = map[Action]bool{
	ActionGenerateNewsletter: true,
	ActionAddEvents:          true,
	ActionDeleteEvents:       true,
	ActionChangeEvents:       true,
	ActionChangeTone:         true,
	ActionSearchEvents:       true,
	ActionSearchWeb:          true,
	ActionCustomize:          true,
	ActionSchedule:           true,
	ActionChat:               true,
	ActionUnknown:            true,
}

// ParseAction normalizes free text (including the legacy upper-case enum
// names) into an Action, falling back to ActionUnknown.
func ParseAction(s string) Action {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if allActions[a] {
		return a
	}
	// Legacy aliases from the upstream intent enum.
	switch a {
	case "respond_in_chat":
		return ActionChat
	case "customize_content", "update_newsletter":
		return ActionCustomize
	case "schedule_management":
		return ActionSchedule
	}
	return ActionUnknown
}

// Destructive reports whether executing the action mutates or removes
// newsletter content. Destructive actions are gated behind the router
// confidence threshold.
func (a Action) Destructive() bool {
	switch a {
	case ActionDeleteEvents, ActionChangeEvents, ActionChangeTone, ActionCustomize:
		return true
	}
	return false
}

// Target is where the outcome of an action lands.
type Target string

const (
	TargetNewsletter Target = "newsletter"
	TargetChat       Target = "chat"
	TargetSystem     Target = "system"
)

// ParseTarget normalizes free text into a Target, defaulting to chat.
func ParseTarget(s string) Target {
	switch Target(strings.ToLower(strings.TrimSpace(s))) {
	case TargetNewsletter:
		return TargetNewsletter
	case TargetSystem:
		return TargetSystem
	default:
		return TargetChat
	}
}

// ActionDecision is the router's classification of a user message. It is
// transient: persisted only as metadata on the assistant message that
// carried it.
type ActionDecision struct {
	Action     Action         `json:"action"`
	Target     Target         `json:"target"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Reasoning  string         `json:"reasoning"`
	Confidence float64        `json:"confidence"`
}

// Metadata renders the decision as message metadata.
func (d ActionDecision) Metadata() map[string]any {
	return map[string]any{
		"action":     string(d.Action),
		"target":     string(d.Target),
		"confidence": d.Confidence,
		"reasoning":  d.Reasoning,
	}
}
