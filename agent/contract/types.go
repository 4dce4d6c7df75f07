package contract

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation history re-sent to the model
// on every turn. Tool traffic is carried inline: an assistant message may
// hold ToolCalls, and a tool message answers exactly one of them via CallID.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	CallID    string     `json:"call_id,omitempty"`
}

// ToolCall is a model-requested invocation of one declared tool.
// Scoped to a single orchestration turn.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type ResultKind string

const (
	ResultOK               ResultKind = "ok"
	ResultInvalidArguments ResultKind = "invalid_arguments"
	ResultExecutionError   ResultKind = "execution_error"
)

// ToolResult is the dispatcher's answer to one ToolCall. Faults travel in
// Error/Kind, never as Go errors past the dispatcher.
type ToolResult struct {
	CallID string     `json:"call_id"`
	Tool   string     `json:"tool"`
	Kind   ResultKind `json:"kind"`
	Result any        `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

func (r ToolResult) OK() bool {
	return r.Kind == ResultOK
}

// ModelTurn is one response from the text generator: either plain text or
// a list of requested tool calls (or text alongside calls, which the
// orchestrator treats as a tool turn).
type ModelTurn struct {
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

func (t ModelTurn) WantsTools() bool {
	return len(t.ToolCalls) > 0
}
