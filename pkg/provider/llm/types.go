package llm

// Message roles as used across the OpenAI-compatible providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a conversation.
type Message struct {
	// Role is one of the Role* constants.
	Role string

	// Content is the text of the turn. May be empty on assistant turns that
	// carry only tool calls.
	Content string

	// ToolCalls is set on assistant turns that requested tool invocations.
	ToolCalls []ToolCall

	// ToolCallID links a RoleTool result message back to the assistant's
	// originating call.
	ToolCallID string
}

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned call identifier, echoed back in tool
	// result messages.
	ID string

	// Name is the function the model wants to invoke.
	Name string

	// Arguments is the raw JSON argument object as produced by the model.
	// It is not validated here; the dispatcher decodes it against the
	// function's schema.
	Arguments string
}

// ToolDefinition describes one function offered to the model.
type ToolDefinition struct {
	// Name is the function identifier the model uses in tool calls.
	Name string

	// Description tells the model what the function does and when to use
	// it.
	Description string

	// Parameters is the JSON Schema for the argument object, as a decoded
	// map ready for serialization into the provider's wire format.
	Parameters map[string]any
}
