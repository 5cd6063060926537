package llm

// Message represents a single message sent to the model.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// UserMessage is shorthand for a single user-role message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int
}

// ModelInfo is a single entry returned by a [Lister].
type ModelInfo struct {
	// ID is the identifier passed back to the provider when requesting completions.
	ID string

	// DisplayName is a human-readable label. May be empty.
	DisplayName string

	// InputTokenLimit is the advertised prompt budget. Zero when unknown.
	InputTokenLimit int
}
