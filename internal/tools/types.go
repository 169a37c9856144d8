// Package tools provides the tool registry and executor that back
// conversational newsletter operations.
//
// Each tool is standalone: the reasoning router picks a tool by name,
// the executor validates arguments against the tool's schema, and the
// result is normalized into a uniform envelope regardless of outcome.
package tools

import (
	"context"
)

// ToolCategory classifies tools for routing and listing.
type ToolCategory string

const (
	// CategorySearch covers web, event, and business search.
	CategorySearch ToolCategory = "/search"

	// CategoryContent covers newsletter content generation and editing.
	CategoryContent ToolCategory = "/content"

	// CategorySchedule covers weekly and monthly schedule management.
	CategorySchedule ToolCategory = "/schedule"

	// CategoryGeneral is for tools usable from any conversation turn.
	CategoryGeneral ToolCategory = "/general"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool defines a named operation the router can dispatch to.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does. Shown to the LLM when
	// the router falls back to model-driven tool selection.
	Description string

	// Category classifies the tool for listing.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
}

// Validate checks that the tool definition is complete.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrUnnamedTool
	}
	if t.Execute == nil {
		return ErrNilExecute
	}
	return nil
}

// Result is the uniform envelope every execution resolves to. Exactly
// one of Result and Error is populated, keyed by Success.
type Result struct {
	Success bool   `json:"success"`
	Tool    string `json:"tool"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}
