package modelapi

const (
	ASSISTANT = "assistant"
	SYSTEM    = "system"
	USER      = "user"
)

// ChatMessage is the provider-neutral shape of one transcript entry handed to
// a chat model. Every provider package under modelapi/ accepts this form and
// translates it to its own wire format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionInput carries everything one chat completion call needs. The
// system prompt travels separately from the message list because Anthropic
// and Gemini both take it out-of-band.
type CompletionInput struct {
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}
