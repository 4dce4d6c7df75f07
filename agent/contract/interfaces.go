package contract

import "context"

// ToolDecl is the wire-facing declaration of one tool: the name, a short
// description, and a JSON-schema-shaped parameter object the model sees.
type ToolDecl struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// TextGenerator is the black-box language model. Stateless per call; the
// caller re-sends all conversational state each turn.
type TextGenerator interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDecl) (ModelTurn, error)
}

// Dispatcher validates and executes one tool call. Implementations must
// always return a ToolResult, success or failure, never panic or error out.
type Dispatcher interface {
	Declarations() []ToolDecl
	Dispatch(ctx context.Context, call ToolCall) ToolResult
}
