package tools

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Executor dispatches tool calls through the registry. Every call
// resolves to a Result envelope: validation failures, execution errors,
// and timeouts all surface as success=false rather than a Go error, so
// callers can relay the envelope to the conversation unchanged.
type Executor struct {
	registry *Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// NewExecutor creates an executor with a per-call timeout bound.
func NewExecutor(registry *Registry, timeout time.Duration, logger *zap.Logger) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, timeout: timeout, logger: logger}
}

// Execute validates args against the tool schema and runs the tool.
// A tool is never invoked with arguments that failed validation.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) Result {
	tool := e.registry.Get(name)
	if tool == nil {
		return Result{Success: false, Tool: name, Error: fmt.Sprintf("%v: %s", ErrUnknownTool, name)}
	}

	if err := validateArgs(tool.Schema, args); err != nil {
		e.logger.Debug("tool argument validation failed",
			zap.String("tool", name), zap.Error(err))
		return Result{Success: false, Tool: name, Error: err.Error()}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	out, err := tool.Execute(callCtx, args)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Warn("tool execution failed",
			zap.String("tool", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return Result{Success: false, Tool: name, Error: err.Error()}
	}

	e.logger.Debug("tool executed",
		zap.String("tool", name),
		zap.Duration("elapsed", elapsed))
	return Result{Success: true, Tool: name, Result: out}
}

// validateArgs checks required parameters and primitive types. Unknown
// arguments pass through untouched so tools can accept extras.
func validateArgs(schema ToolSchema, args map[string]any) error {
	for _, req := range schema.Required {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingArgument, req)
		}
	}

	for name, value := range args {
		prop, ok := schema.Properties[name]
		if !ok {
			continue
		}
		if value == nil {
			continue
		}
		if !matchesType(prop.Type, value) {
			return fmt.Errorf("%w: %s must be %s", ErrArgumentType, name, prop.Type)
		}
	}
	return nil
}

// matchesType checks a decoded JSON value against a schema type name.
// JSON numbers decode as float64, but int is accepted for callers that
// build args in Go.
func matchesType(typeName string, value any) bool {
	switch typeName {
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "integer":
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
