package models

// Tool invocation requested by the language model
type ToolCall struct {
	Name string
	Args map[string]string
}

// Conversation state of a single chat request
type TurnState string

const (
	StateAuthorizing  TurnState = "authorizing"
	StateFirstPass    TurnState = "first_pass"
	StateInterpreting TurnState = "interpreting"
	StateToolDispatch TurnState = "tool_dispatch"
	StateSecondPass   TurnState = "second_pass"
	StateDone         TurnState = "done"
	StateFailed       TurnState = "failed"
)

// Request scoped record of one message handling. Never persisted.
type ConversationTurn struct {
	Message    string
	FirstReply string
	ToolCall   *ToolCall // nil if the model answered directly
	ToolResult string
	Reply      string
	State      TurnState
}
