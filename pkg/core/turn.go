package core

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Reply is the transient result of one completion call. It is appended to the
// session history as an assistant turn and then spoken; nothing retains it
// beyond that.
type Reply struct {
	Text                string `json:"text"`
	ScenarioDisplayName string `json:"scenario_name"`
}
