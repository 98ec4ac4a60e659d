package domain

// Role identifies the author of a conversation turn or prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in a session transcript, most recent last.
type Turn struct {
	Role Role
	Text string
}

// PromptMessage is one message of an assembled completion prompt.
type PromptMessage struct {
	Role    Role
	Content string
}
