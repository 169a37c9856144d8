package tools

import "errors"

// Registration errors.
var (
	// ErrUnnamedTool rejects registration of a tool without a name.
	ErrUnnamedTool = errors.New("tool has no name")

	// ErrNilExecute rejects registration of a tool without an execute function.
	ErrNilExecute = errors.New("tool has no execute function")

	// ErrDuplicateTool rejects a second registration under the same name.
	ErrDuplicateTool = errors.New("duplicate tool registration")
)

// Execution errors. These surface inside the result envelope, never as a
// bare error from Execute.
var (
	// ErrUnknownTool reports a call to a name nothing registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrMissingArgument reports a required argument absent from the call.
	ErrMissingArgument = errors.New("required argument missing")

	// ErrArgumentType reports an argument whose value has the wrong type
	// for its schema.
	ErrArgumentType = errors.New("argument has wrong type")
)
